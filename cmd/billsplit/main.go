package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"billsplit/internal/amqp"
	"billsplit/internal/cli"
	apphttp "billsplit/internal/http"
	"billsplit/internal/insights"
	"billsplit/internal/mirror"
	"billsplit/internal/mirror/drive"
	"billsplit/internal/mirror/memory"
	"billsplit/internal/services"
	"billsplit/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// Remote mirror (optional)
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
		logger.Info("Initialized Google Drive mirror", "folder", cfg.DriveFolderName)
	case "memory":
		mirrorStore = memory.New()
		logger.Info("Initialized in-memory mirror")
	default:
		logger.Info("Remote mirror disabled")
	}

	var pusher *worker.Pusher
	if mirrorStore != nil {
		pusher = worker.NewPusher(mirrorStore)
		go pusher.Run(ctx)
	}

	// AMQP is best-effort for the server: it only publishes change
	// notifications for the worker.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, change notifications disabled", "error", err)
		} else {
			amqpClient = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	ledgerSvc, err := services.NewLedgerService(ctx, sqliteRepo, amqpClient, mirrorStore, pusher)
	if err != nil {
		logger.Error("Failed to initialize ledger service", "error", err)
		os.Exit(1)
	}

	var summarizer apphttp.Summarizer
	if client := insights.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel); client != nil {
		summarizer = client
		logger.Info("Insights enabled")
	} else {
		logger.Info("Insights disabled - no GEMINI_API_KEY provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, ledgerSvc, summarizer)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := ledgerSvc.Close(); err != nil {
			logger.Error("Ledger service close error", "error", err)
		}
		cancel()
	})

	logger.Info("Starting billsplit server", "port", cfg.Port, "mirror", cfg.MirrorBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
