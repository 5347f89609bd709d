package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmercadier/amortization-extractor/internal/common"
	"github.com/jmercadier/amortization-extractor/internal/export"
	"github.com/jmercadier/amortization-extractor/internal/extract"
	"github.com/jmercadier/amortization-extractor/internal/langfuse"
	"github.com/jmercadier/amortization-extractor/internal/repository"
	"github.com/jmercadier/amortization-extractor/internal/resilience"
	"github.com/jmercadier/amortization-extractor/internal/server"
	"github.com/jmercadier/amortization-extractor/internal/sheets"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Extraction API collaborator
	client := langfuse.NewClient(langfuse.Config{
		BaseURL:       cfg.Langfuse.BaseURL,
		AuthToken:     cfg.Langfuse.AuthToken,
		PublicKey:     cfg.Langfuse.PublicKey,
		PromptName:    cfg.Langfuse.PromptName,
		PromptVersion: cfg.Langfuse.PromptVersion,
		Mode:          langfuse.DispatchMode(cfg.Langfuse.DispatchMode),
		Timeout:       cfg.Langfuse.Timeout,
	}, logger)

	var fallback extract.FallbackParser
	if cfg.Extract.TextFallback {
		fallback = &extract.DelimitedParser{}
	}
	orch, err := extract.NewOrchestrator(client, extract.Config{
		KeyPaths: cfg.Extract.KeyPaths,
		Fallback: fallback,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
	}, logger)
	if err != nil {
		logger.Error("build orchestrator", "error", err)
		os.Exit(1)
	}

	// Optional extraction-history store
	var jobsRepo repository.JobRepository
	if cfg.Database.DSN != "" {
		pool, err := repository.Open(ctx, repository.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		defer repository.Close(pool, logger)

		if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout, logger); err != nil {
			logger.Error("database health failed", "error", err)
			os.Exit(1)
		}
		repo := repository.NewJobRepository(pool, logger)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("ensure history schema", "error", err)
			os.Exit(1)
		}
		jobsRepo = repo
		logger.Info("extraction history enabled")
	}

	// Optional spreadsheet write-through
	var sheetsSvc *sheets.Service
	if cfg.Sheets.SpreadsheetID != "" {
		sheetsSvc, err = sheets.NewService(ctx, sheets.Config{
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			SheetRange:      cfg.Sheets.SheetRange,
			CredentialsFile: cfg.Sheets.CredentialsFile,
		}, logger)
		if err != nil {
			logger.Error("create sheets service", "error", err)
			os.Exit(1)
		}
		logger.Info("sheets write-through enabled", "spreadsheet_id", cfg.Sheets.SpreadsheetID)
	}

	handlers := server.NewHandlers(orch, export.NewService(logger), sheetsSvc, jobsRepo,
		cfg.Server.MaxUploadBytes, cfg.Sheets.AppendTimeout, logger)
	srv := server.NewServer(cfg.Server, handlers, logger)

	go func() {
		if err := srv.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("stopped")
}
