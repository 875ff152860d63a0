// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats recomputed prayer times and prayer announcements into MarkdownV2
// messages and handles delivery with retry logic for reliability.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

// sender is the part of *tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	zone           *time.Location
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, zone *time.Location) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase, zone)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration, zone *time.Location) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if zone == nil {
		zone = time.Local
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		zone:           zone,
	}, nil
}

// SendTimes sends a day of prayer times.
func (c *Client) SendTimes(set models.PrayerTimeSet) error {
	return c.send(c.formatTimes(set))
}

// SendPrayer announces that a prayer time has begun.
func (c *Client) SendPrayer(pt models.PrayerTime) error {
	name := escapeMarkdownV2(titleCase(pt.Prayer.String()))
	clock := escapeMarkdownV2(pt.Time.In(c.zone).Format("15:04"))
	return c.send(fmt.Sprintf("🕌 It is time for *%s* \\(%s\\)", name, clock))
}

// SendError reports a failing refresh cycle.
func (c *Client) SendError(err error) error {
	return c.send(fmt.Sprintf("⚠️ *Prayer time refresh failed*\n\n%s", escapeMarkdownV2(err.Error())))
}

// SendRecovery reports that refreshing works again after failures.
func (c *Client) SendRecovery(failures int) error {
	return c.send(fmt.Sprintf("✅ *Prayer time refresh recovered* after %d failed cycles", failures))
}

// Run sends every set received from updates until ctx is done or updates closes.
func (c *Client) Run(ctx context.Context, updates <-chan models.PrayerTimeSet) {
	for {
		select {
		case <-ctx.Done():
			return
		case set, ok := <-updates:
			if !ok {
				return
			}
			if err := c.SendTimes(set); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
				continue
			}
			logger.Info("Sent prayer times for %s to Telegram", set.Date)
		}
	}
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	// Send with retry
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatTimes formats a set into a Telegram message
func (c *Client) formatTimes(set models.PrayerTimeSet) string {
	var b strings.Builder

	b.WriteString("🕋 *Prayer times for ")
	b.WriteString(escapeMarkdownV2(set.Date.String()))
	b.WriteString("*\n")
	fmt.Fprintf(&b, "📍 %s\n", escapeMarkdownV2(set.Coordinates.String()))
	fmt.Fprintf(&b, "📐 %s / %s\n\n", escapeMarkdownV2(set.Method.String()), escapeMarkdownV2(set.Madhab.String()))

	for _, pt := range set.Times {
		fmt.Fprintf(&b, "%s `%s`\n",
			escapeMarkdownV2(fmt.Sprintf("%-8s", titleCase(pt.Prayer.String()))),
			pt.Time.In(c.zone).Format("15:04"))
	}

	if !set.Sunrise.IsZero() && !set.Sunset.IsZero() {
		fmt.Fprintf(&b, "\n☀️ Daylight: %s\n", escapeMarkdownV2(formatDuration(set.Sunset.Sub(set.Sunrise))))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . !
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%02dm", hours, mins)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
