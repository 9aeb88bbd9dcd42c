/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_obs/internal/astro"
	"github.com/friendsincode/muninn_obs/internal/catalog"
	"github.com/friendsincode/muninn_obs/internal/config"
	"github.com/friendsincode/muninn_obs/internal/constraint"
	"github.com/friendsincode/muninn_obs/internal/db"
	"github.com/friendsincode/muninn_obs/internal/eventbus"
	"github.com/friendsincode/muninn_obs/internal/events"
	"github.com/friendsincode/muninn_obs/internal/executor"
	"github.com/friendsincode/muninn_obs/internal/hardware"
	"github.com/friendsincode/muninn_obs/internal/leadership"
	"github.com/friendsincode/muninn_obs/internal/logging"
	"github.com/friendsincode/muninn_obs/internal/observatory"
	"github.com/friendsincode/muninn_obs/internal/obslog"
	"github.com/friendsincode/muninn_obs/internal/report"
	"github.com/friendsincode/muninn_obs/internal/safety"
	"github.com/friendsincode/muninn_obs/internal/scheduler"
	"github.com/friendsincode/muninn_obs/internal/server"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "muninnobs",
	Short: "Muninn Observatory - robotic telescope controller",
	Long:  "Muninn Observatory is the decision-making core of a robotic telescope: a safety-gated state machine and dispatch scheduler that runs an observing night unattended.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the observatory controller",
	Long:  "Start the control loop, safety monitor, dispatch scheduler and status API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Muninn Observatory starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "muninn-obs",
		ServiceVersion: "0.0.1-alpha",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()

	sim, err := buildHardware(cfg)
	if err != nil {
		return err
	}

	cat := catalog.New(database, logger)
	if err := cat.LoadFile(cfg.CatalogPath); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := cat.Sync(ctx); err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	logger.Info().Int("targets", len(cat.Targets())).Str("path", cfg.CatalogPath).
		Msg("catalog loaded")

	// A malformed horizon profile is fatal: acting on an unvalidated
	// safety-relevant configuration is itself unsafe.
	horizon := constraint.FlatHorizon(cfg.MinAltitudeDeg)
	if cfg.HorizonProfilePath != "" {
		horizon, err = constraint.LoadHorizonProfile(cfg.HorizonProfilePath)
		if err != nil {
			return fmt.Errorf("load horizon profile: %w", err)
		}
	}

	site := astro.Site{
		LatitudeDeg:  cfg.LatitudeDeg,
		LongitudeDeg: cfg.LongitudeDeg,
		ElevationM:   cfg.ElevationM,
	}
	eph := astro.Computed{}

	monitor := safety.NewMonitor(
		[]safety.Check{
			safety.DarknessCheck{Site: site, Ephemeris: eph, SunAltMaxDeg: cfg.DarkSunAltitudeDeg},
			safety.WeatherCheck{Sensors: sim},
			safety.PowerCheck{Sensors: sim},
			safety.StorageCheck{Sensors: sim, MinFreeGB: cfg.MinDiskFreeGB},
			safety.ConnectivityCheck{Mount: sim, Camera: sim, Sensors: sim},
		},
		cfg.SafetyDebounce, cfg.SafetyMaxAge, cfg.SafetyPollTimeout, logger,
		safety.WithEventBus(bus), safety.WithEventLog(database),
	)

	obsLog := obslog.New(database, logger)

	constraints := []constraint.Constraint{
		constraint.Altitude{Profile: horizon, Weight: cfg.AltitudeWeight},
		constraint.MoonAvoidance{MinSepDeg: cfg.MinMoonSepDeg, Weight: cfg.MoonWeight},
		constraint.AlreadyVisited{HardVeto: cfg.VisitedVeto, Weight: cfg.VisitedWeight},
		constraint.Priority{Weight: cfg.PriorityWeight},
	}
	sched := scheduler.New(cat, constraints, site, eph, obsLog, bus, logger)

	exec := executor.New(sim, sim, obsLog, bus, executor.Config{
		SlewTimeout:     cfg.SlewTimeout,
		TrackingTimeout: cfg.TrackingTimeout,
		RetryMax:        cfg.HardwareRetryMax,
	}, logger)

	nightly := report.New(database, obsLog, bus, logger)

	machine := observatory.New(observatory.Config{
		SchedulerRetryMax:   cfg.SchedulerRetryMax,
		SchedulerRetryDelay: cfg.SchedulerRetryDelay,
		ParkTimeout:         cfg.ParkTimeout,
		TickFast:            cfg.TickFast,
		TickSlow:            cfg.TickSlow,
	}, monitor, sched, exec, sim, obsLog, nightly, bus, logger)

	if cfg.NATSEnabled {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		mirror, err := eventbus.NewMirror(natsCfg, logger)
		if err != nil {
			return fmt.Errorf("connect event mirror: %w", err)
		}
		mirror.Attach(bus)
		defer func() {
			if err := mirror.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close event mirror")
			}
		}()
	}

	if cfg.LeaseEnabled {
		lease, err := leadership.NewLease(leadership.LeaseConfig{
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			InstanceID:    cfg.InstanceID,
		}, logger)
		if err != nil {
			return fmt.Errorf("create command lease: %w", err)
		}
		if err := lease.Start(ctx); err != nil {
			return fmt.Errorf("start command lease: %w", err)
		}
		defer func() {
			if err := lease.Stop(); err != nil {
				logger.Error().Err(err).Msg("failed to stop command lease")
			}
		}()

		logger.Info().Msg("waiting for hardware command lease")
		if err := awaitLease(ctx, lease); err != nil {
			return err
		}
		// A lost lease means another instance may now command the
		// hardware; this process must stop immediately and let its
		// supervisor restart it as a standby.
		go func() {
			for held := range lease.HolderCh() {
				if !held {
					logger.Error().Msg("lost hardware command lease, shutting down")
					cancel()
					return
				}
			}
		}()
	}

	srv := server.New(cfg, machine, exec, obsLog, cat, database, logger)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	go func() {
		if err := machine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("control loop stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info().Str("state", string(machine.State())).Msg("shutting down gracefully...")
	cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("Muninn Observatory stopped")
	return nil
}

// buildHardware selects the hardware capability implementation. The
// simulator is currently the only in-tree driver; real mounts and cameras
// attach through driver processes speaking the same capability surface.
func buildHardware(cfg *config.Config) (*hardware.Simulator, error) {
	switch cfg.Hardware {
	case config.HardwareSimulator:
		return hardware.NewSimulator(hardware.DefaultSimulatorConfig()), nil
	default:
		return nil, fmt.Errorf("unknown hardware driver %q", cfg.Hardware)
	}
}

func awaitLease(ctx context.Context, lease *leadership.Lease) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case held := <-lease.HolderCh():
			if held {
				return nil
			}
		case <-time.After(time.Second):
			if lease.Held() {
				return nil
			}
		}
	}
}

// initDatabase initializes the database connection (used by subcommands)
func initDatabase() (*gorm.DB, error) {
	return db.Connect(cfg)
}
