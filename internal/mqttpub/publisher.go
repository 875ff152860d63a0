// Package mqttpub publishes prayer times and settings to an MQTT broker so that
// displays and home automation can follow them. Times and settings are retained,
// a subscriber connecting later immediately receives the latest of each.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/models"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	// disconnectQuiesce is how long Close waits for in-flight work, in milliseconds.
	disconnectQuiesce = 250
)

// Sub-topics below the configured root topic.
const (
	TopicTimes    = "times"
	TopicSettings = "settings"
	TopicPrayer   = "prayer"
)

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config configures the broker connection.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Publisher publishes to topics below a root topic.
type Publisher struct {
	client client
	topic  string
	qos    byte
}

// TimesMessage is the payload of <topic>/times.
type TimesMessage struct {
	Date        models.Date          `json:"date"`
	Coordinates models.Coordinates   `json:"coordinates"`
	Method      string               `json:"method"`
	Madhab      string               `json:"madhab"`
	Times       map[string]time.Time `json:"times"`
	Sunrise     time.Time            `json:"sunrise"`
	Sunset      time.Time            `json:"sunset"`
	ComputedAt  time.Time            `json:"computed_at"`
}

// SettingsMessage is the payload of <topic>/settings.
type SettingsMessage struct {
	Method                 string    `json:"method"`
	Madhab                 string    `json:"madhab"`
	UseAstronomicalMaghrib bool      `json:"use_astronomical_maghrib"`
	HighLatitudeRule       string    `json:"high_latitude_rule"`
	Version                uint64    `json:"version"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to MQTT broker %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost: %v", err)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}
	return newPublisher(c, cfg.Topic, cfg.QoS), nil
}

func newPublisher(c client, topic string, qos byte) *Publisher {
	return &Publisher{client: c, topic: topic, qos: qos}
}

// PublishTimes publishes a retained day of prayer times.
func (p *Publisher) PublishTimes(set models.PrayerTimeSet) error {
	msg := TimesMessage{
		Date:        set.Date,
		Coordinates: set.Coordinates,
		Method:      set.Method.String(),
		Madhab:      set.Madhab.String(),
		Times:       make(map[string]time.Time, len(set.Times)),
		Sunrise:     set.Sunrise,
		Sunset:      set.Sunset,
		ComputedAt:  set.ComputedAt,
	}
	for _, pt := range set.Times {
		msg.Times[pt.Prayer.String()] = pt.Time
	}
	return p.publish(TopicTimes, true, msg)
}

// PublishSettings publishes the retained settings snapshot.
func (p *Publisher) PublishSettings(s models.SettingsSnapshot) error {
	return p.publish(TopicSettings, true, SettingsMessage{
		Method:                 s.Method.String(),
		Madhab:                 s.Madhab.String(),
		UseAstronomicalMaghrib: s.UseAstronomicalMaghrib,
		HighLatitudeRule:       s.HighLatitudeRule.String(),
		Version:                s.Version,
		UpdatedAt:              s.UpdatedAt,
	})
}

// PublishPrayer announces that a prayer has begun. Announcements are not retained.
func (p *Publisher) PublishPrayer(pt models.PrayerTime) error {
	return p.publish(TopicPrayer, false, pt)
}

// Run publishes every set and snapshot received until ctx is done or both channels close.
func (p *Publisher) Run(ctx context.Context, updates <-chan models.PrayerTimeSet, changes <-chan models.SettingsSnapshot) {
	for updates != nil || changes != nil {
		select {
		case <-ctx.Done():
			return
		case set, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if err := p.PublishTimes(set); err != nil {
				logger.Error("Failed to publish prayer times: %v", err)
			}
		case snap, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := p.PublishSettings(snap); err != nil {
				logger.Error("Failed to publish settings: %v", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}

func (p *Publisher) publish(sub string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", sub, err)
	}
	topic := p.topic + "/" + sub
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	logger.Debug("Published %d bytes to %s", len(payload), topic)
	return nil
}
