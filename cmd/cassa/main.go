package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cassa/internal/backend"
	"cassa/internal/cli"
	apphttp "cassa/internal/http"
	"cassa/internal/log"
	"cassa/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	profile := cli.LoadProfile(logger, cfg)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", log.FieldError, err)
			}
		}
	}()

	svc := services.NewLedgerService(services.Options{
		Household:    cfg.HouseholdID,
		Policy:       cfg.Policy(),
		Store:        be.Store,
		Publisher:    be.Publisher,
		SyncEvents:   bcfg.Type == backend.SQLiteBackend,
		Profile:      profile,
		Logger:       logger,
		PersistRetry: cfg.PersistRetry,
	})
	if err := svc.Load(ctx); err != nil {
		logger.Error("Failed to load household", log.FieldError, err, log.FieldHousehold, cfg.HouseholdID)
		os.Exit(1)
	}
	svc.Start(ctx)

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting cassa server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			log.FieldHousehold, cfg.HouseholdID,
			log.FieldPolicy, cfg.LedgerPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		// Unsaved revisions are retried until the deadline.
		return svc.Close(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
