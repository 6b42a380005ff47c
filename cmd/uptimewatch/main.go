package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"uptimewatch/internal/api"
	"uptimewatch/internal/archive"
	"uptimewatch/internal/auth"
	"uptimewatch/internal/checker"
	"uptimewatch/internal/config"
	"uptimewatch/internal/log"
	"uptimewatch/internal/probe"
	"uptimewatch/internal/registry"
	"uptimewatch/internal/scheduler"
	"uptimewatch/internal/storage"
	"uptimewatch/internal/storage/memory"
	"uptimewatch/internal/storage/postgres"
	"uptimewatch/internal/storage/sqlite"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
	log.Info().Msg("Application shut down gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Storer, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.New(), nil
	}
	store, err := sqlite.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func sessionSecret(cfg *config.Config) (string, error) {
	if cfg.SessionSecret != "" {
		return cfg.SessionSecret, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	log.Warn().Msg("SESSION_SECRET is not set, sessions will not survive a restart")
	return hex.EncodeToString(b), nil
}

// app is the wired application.
type app struct {
	store     storage.Storer
	server    *api.Server
	scheduler *scheduler.Scheduler
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("Opening store")
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.DatabaseDriver, err)
	}
	a, err := wire(ctx, cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, store storage.Storer) (*app, error) {
	symptoms, err := probe.ParseSymptoms(cfg.AlternateSymptoms)
	if err != nil {
		return nil, err
	}
	engine := probe.New(
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithUserAgent(cfg.ProbeUserAgent),
		probe.WithAlternateSymptoms(symptoms...),
	)
	coordinator := checker.NewCoordinator(store, store,
		checker.WithCheckTTL(cfg.AlternateCheckTTL),
		checker.WithAlternateTimeout(cfg.AlternateProbeTimeout),
	)
	sweeper := checker.NewSweeper(store, engine, coordinator, checker.NewWorkerPool(cfg.SweepConcurrency))
	reg := registry.New(store, sweeper)
	archiver := archive.New(store, archive.WithLocation(cfg.ExportLocation()))

	secret, err := sessionSecret(cfg)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessions(secret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	authenticator := auth.NewAuthenticator(store, sessions)
	if err := authenticator.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	if cfg.TargetsFile != "" {
		seeds, err := config.LoadSeedTargets(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		if _, err := reg.Seed(ctx, seeds); err != nil {
			return nil, err
		}
	}

	a := &app{store: store}
	if cfg.SchedulerEnabled {
		a.scheduler, err = scheduler.New(sweeper, archiver, scheduler.Options{
			SweepSchedule:   cfg.SweepSchedule,
			ArchiveSchedule: cfg.ArchiveSchedule,
			Location:        cfg.ScheduleLocation(),
		})
		if err != nil {
			return nil, err
		}
	}

	hour, minute, err := cfg.ArchiveTimeOfDay()
	if err != nil {
		return nil, err
	}
	a.server = api.NewServer(api.Deps{
		Registry:    reg,
		Sweeper:     sweeper,
		Coordinator: coordinator,
		Archiver:    archiver,
		Auth:        authenticator,
	}, api.Options{
		CronSecret:       cfg.CronSecret,
		SecureCookies:    cfg.SecureCookies,
		CORSOrigins:      cfg.CORSOrigins,
		ArchiveHour:      hour,
		ArchiveMinute:    minute,
		ArchiveWindow:    cfg.ArchiveWindow,
		ScheduleLocation: cfg.ScheduleLocation(),
	})
	return a, nil
}

func run(envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := log.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if a.scheduler != nil {
		a.scheduler.Start()
	}
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start(":" + cfg.HTTPPort)
	}()
	log.Info().Msg("Application is running")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, starting graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	// Stop scheduled jobs first so no new sweep starts mid-shutdown.
	var errs []error
	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
		}
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown error: %w", err))
	}
	return errors.Join(errs...)
}
