package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mawaqit/internal/config"
	"github.com/rewired-gh/mawaqit/internal/coordinator"
	"github.com/rewired-gh/mawaqit/internal/httpapi"
	"github.com/rewired-gh/mawaqit/internal/logger"
	"github.com/rewired-gh/mawaqit/internal/mqttpub"
	"github.com/rewired-gh/mawaqit/internal/telegram"
)

// announceInterval is how often the tracker is asked whether a prayer began.
const announceInterval = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the service: refresh, HTTP API and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	coord := a.coord

	// Closers run after every goroutine below has returned.
	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, coord.Zone())
		if err != nil {
			return err
		}
		coord.RefreshJob().SetAlerter(telegramClient)
		updates, unsubscribe := coord.SubscribeUpdates(4)
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			telegramClient.Run(ctx, updates)
		}()
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Initialize MQTT publisher
	var publisher *mqttpub.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqttpub.Connect(mqttpub.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return err
		}
		closers = append(closers, publisher.Close)

		if err := publisher.PublishSettings(coord.Settings()); err != nil {
			logger.Warn("Failed to publish initial settings: %v", err)
		}
		updates, cancelUpdates := coord.SubscribeUpdates(4)
		defer cancelUpdates()
		changes, cancelChanges := coord.SettingsChanges(4)
		defer cancelChanges()
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx, updates, changes)
		}()
	} else {
		logger.Debug("MQTT publishing disabled")
	}

	if cfg.Refresh.Enabled {
		coord.Start(ctx)
	} else {
		logger.Info("Background refresh disabled")
	}

	if _, err := coord.RecomputeToday(ctx); err != nil {
		logger.Warn("Failed to compute today's prayer times: %v", err)
	}

	if (telegramClient != nil && cfg.Telegram.AnnouncePrayers) || publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			announce(ctx, coord.Tracker(), telegramClient, publisher, cfg.Telegram.AnnouncePrayers)
		}()
	}

	if cfg.HTTP.Enabled {
		srv := httpapi.New(coord, httpapi.Config{Addr: cfg.HTTP.Addr, CORSOrigins: cfg.HTTP.CORSOrigins})
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		logger.Info("Shutdown signal received, cleaning up...")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed: %v", err)
		}
	} else {
		<-ctx.Done()
		logger.Info("Shutdown signal received, cleaning up...")
	}

	logger.Info("Service stopped")
	return nil
}

// announce tells Telegram and MQTT when a prayer begins.
func announce(ctx context.Context, tracker *coordinator.Tracker, tg *telegram.Client, pub *mqttpub.Publisher, toTelegram bool) {
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pt, ok, err := tracker.Reached(ctx)
			if err != nil {
				logger.Debug("Tracker check failed: %v", err)
				continue
			}
			if !ok {
				continue
			}
			logger.Info("Prayer time reached: %s at %s", pt.Prayer, pt.Time.Format(time.Kitchen))
			if tg != nil && toTelegram {
				if err := tg.SendPrayer(pt); err != nil {
					logger.Warn("Failed to send prayer announcement to Telegram: %v", err)
				}
			}
			if pub != nil {
				if err := pub.PublishPrayer(pt); err != nil {
					logger.Warn("Failed to publish prayer announcement: %v", err)
				}
			}
		}
	}
}
