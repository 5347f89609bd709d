package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmercadier/amortization-extractor/internal/common"
	"github.com/jmercadier/amortization-extractor/internal/export"
	"github.com/jmercadier/amortization-extractor/internal/extract"
	"github.com/jmercadier/amortization-extractor/internal/langfuse"
	"github.com/jmercadier/amortization-extractor/internal/resilience"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		file   = flag.String("file", "", "PDF file to extract (required)")
		out    = flag.String("out", "", "output path (optional, defaults next to the input)")
		format = flag.String("format", "csv", "output format: csv or xlsx")
	)
	flag.Parse()

	if *file == "" {
		printError("Error: --file is required\n")
		os.Exit(1)
	}
	if *format != "csv" && *format != "xlsx" {
		printError("Error: --format must be csv or xlsx\n")
		os.Exit(1)
	}
	if *out == "" {
		base := strings.TrimSuffix(*file, filepath.Ext(*file))
		*out = base + "." + *format
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	// The file is read here at the CLI edge; the pipeline itself only ever
	// sees in-memory bytes.
	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Error("read input file", "file", *file, "error", err)
		os.Exit(1)
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	res, err := orch.Extract(ctx, data, filepath.Base(*file))
	if err != nil {
		logger.Error("extraction failed", "kind", string(common.KindOf(err)), "error", err)
		os.Exit(1)
	}
	table := res.Table

	exporter := export.NewService(logger)
	var outBytes []byte
	if *format == "xlsx" {
		outBytes, err = exporter.TableXLSX(table)
	} else {
		outBytes, err = exporter.TableCSV(table)
	}
	if err != nil {
		logger.Error("export failed", "format", *format, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, outBytes, 0o644); err != nil {
		logger.Error("write output", "out", *out, "error", err)
		os.Exit(1)
	}

	firstDue := ""
	if table.FirstDueDate != nil {
		firstDue = table.FirstDueDate.Format("2006-01-02")
	}
	logger.Info("done",
		"out", *out,
		"rows", table.RowCount,
		"attempts", res.Attempts,
		"total_interest", table.TotalInterest.String(),
		"total_insurance", table.TotalInsurance.String(),
		"first_due_date", firstDue,
	)
}
