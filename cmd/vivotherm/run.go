package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/groutine"
	"github.com/srg/vivotherm/internal/hass"
	"github.com/srg/vivotherm/internal/mqtt"
	"github.com/srg/vivotherm/internal/runtime"
	"github.com/srg/vivotherm/internal/telemetry"
	"github.com/srg/vivotherm/pkg/config"
)

const shutdownTimeout = 15 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every paired device until interrupted",
	Long: `Loads every paired device and polls it on the configured interval.

With mqtt.enabled, sensors are announced to Home Assistant through MQTT discovery
and readings are published as retained state. With influxdb.enabled, every
successful poll is also written as InfluxDB points.

Devices that cannot be reached at startup are retried every ble.setup_retry.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	defer releaseRadio(cfg, logger)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	err = serve(ctx, cfg, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serve wires the outputs, loads every entry and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}

	store, err := entry.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	monitor := newHealthMonitor(logger)
	monitor.add("store", store, nil)

	var sinks []runtime.Sink

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT.Connection, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		bridge := hass.NewBridge(client, cfg.HomeAssistant(), logger)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()
		sinks = append(sinks, bridge)

		// Replay discovery on every reconnect.
		client.SetOnConnect(func() {
			groutine.Go(ctx, "hass-resync", func(context.Context) {
				if err := bridge.Resync(); err != nil {
					logger.WithField("error", err).Warn("Failed to republish Home Assistant discovery")
				}
			})
		})
		monitor.add("mqtt", client, func() logrus.Fields {
			return logrus.Fields{"subscriptions": client.SubscriptionCount()}
		})
	}

	if cfg.Influx.Enabled {
		client, err := telemetry.Connect(ctx, cfg.Influx, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		sinks = append(sinks, telemetry.NewSink(client, cfg.Influx.Measurement, logger))
		monitor.add("influxdb", client, nil)
	}

	manager := runtime.NewManager(
		newReaders(cfg, profile, logger),
		runtime.Options{Profile: profile, Poll: cfg.PollOptions()},
		logger,
		sinks...,
	)
	monitor.entries = manager

	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Warn("No paired devices; run 'vivotherm pair' first")
	}

	var setups sync.WaitGroup
	for _, e := range entries {
		setups.Add(1)
		groutine.Go(ctx, "setup-"+e.ID, func(ctx context.Context) {
			defer setups.Done()
			setupEntry(ctx, manager, e, cfg.BLE.SetupRetry, logger)
		})
	}

	if cfg.HealthInterval > 0 {
		monitor.start(ctx, cfg.HealthInterval)
	}

	logger.WithFields(logrus.Fields{
		"entries":  len(entries),
		"mqtt":     cfg.MQTT.Enabled,
		"influxdb": cfg.Influx.Enabled,
	}).Info("Running")

	<-ctx.Done()
	setups.Wait()

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

func setupEntry(ctx context.Context, manager *runtime.Manager, e entry.Entry, backoff time.Duration, logger *logrus.Logger) {
	log := logger.WithFields(logrus.Fields{
		"entry_id": e.ID,
		"address":  e.Address(),
	})
	err := manager.RetrySetup(ctx, e, backoff)
	switch {
	case err == nil:
		log.Info("Device loaded")
	case errors.Is(err, context.Canceled):
		log.Debug("Setup abandoned")
	default:
		log.WithField("error", err).Error("Device setup failed")
	}
}
