package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cassa/internal/amqp"
	"cassa/internal/cli"
	"cassa/internal/log"
	"cassa/internal/store/google"
	"cassa/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting cassa-worker")

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if cfg.GoogleSpreadsheetID == "" || !cfg.HasGoogleAuth() {
		logger.Error("The worker mirrors to Google Sheets; set GOOGLE_SPREADSHEET_ID and the OAuth client and token")
		os.Exit(1)
	}
	sheets, err := google.New(ctx, google.Options{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		Prefix:        cfg.GoogleSheetPrefix,
		ClientFile:    cfg.GoogleOAuthClientFile,
		ClientJSON:    cfg.GoogleOAuthClientJSON,
		TokenFile:     cfg.GoogleOAuthTokenFile,
		TokenJSON:     cfg.GoogleOAuthTokenJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(repo, sheets, cfg.SyncBatchSize)

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		// Not fatal: the poller retries.
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	poller := worker.NewPoller(syncWorker, worker.PollerConfig{PollInterval: cfg.SyncInterval})
	if err := poller.Start(ctx); err != nil {
		logger.Error("Failed to start poller", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		g.Go(func() error {
			err := client.ConsumeSnapshotSaved(gctx, syncWorker.HandleSnapshotSaved)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("No AMQP_URL, relying on periodic sweeps only", "interval", cfg.SyncInterval)
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("Shutting down worker...")
		return poller.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
