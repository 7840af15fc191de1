package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"billsplit/internal/amqp"
	"billsplit/internal/cli"
	"billsplit/internal/ledger"
	"billsplit/internal/mirror"
	"billsplit/internal/mirror/drive"
	"billsplit/internal/mirror/memory"
	"billsplit/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting billsplit-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.MirrorBackend == "none" {
		logger.Error("No mirror backend configured - nothing to push (set MIRROR_BACKEND)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	var mirrorStore mirror.Store
	switch cfg.MirrorBackend {
	case "drive":
		store, err := drive.New(ctx, drive.Options{
			ClientSecretFile: cfg.GoogleOAuthClientFile,
			ClientSecretJSON: cfg.GoogleOAuthClientJSON,
			TokenFile:        cfg.GoogleOAuthTokenFile,
			FolderName:       cfg.DriveFolderName,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Drive mirror", "error", err)
			os.Exit(1)
		}
		mirrorStore = store
		logger.Info("Google Drive mirror initialized", "folder", cfg.DriveFolderName)
	case "memory":
		mirrorStore = memory.New()
		logger.Info("In-memory mirror initialized")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	pusher := worker.NewPusher(mirrorStore)

	enqueueSnapshot := func(ctx context.Context) error {
		records, err := sqliteRepo.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		pusher.Enqueue(ledger.NewHistory(records).SortedByDate())
		return nil
	}

	// On startup push whatever is on disk, covering updates missed while
	// the worker was down.
	if err := enqueueSnapshot(ctx); err != nil {
		logger.Error("Startup snapshot failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pusher.Run(gctx)
		return gctx.Err()
	})

	g.Go(func() error {
		return amqpClient.ConsumeLedgerUpdates(gctx, func(msg *amqp.LedgerUpdateMessage) error {
			return enqueueSnapshot(gctx)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := enqueueSnapshot(gctx); err != nil {
					logger.Error("Periodic snapshot failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
