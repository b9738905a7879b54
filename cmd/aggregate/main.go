// Package main runs one value history aggregation against the configured
// store and prints it as JSON, Markdown or CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/api"
	"goladium-analytics/internal/bootstrap"
	"goladium-analytics/internal/config"
	"goladium-analytics/internal/domain"
	"goladium-analytics/internal/history"
	"goladium-analytics/internal/logging"
	"goladium-analytics/internal/reporting"
	"goladium-analytics/internal/timeseries"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	userID := flag.String("user", "", "User ID (required)")
	category := flag.String("category", string(domain.CategoryFinancial), "Ledger category: financial or inventory")
	rangeKey := flag.String("range", string(timeseries.Range1D), "Range: 1D, 1W, 1M, 3M, 6M, 1Y, ALL")
	limit := flag.Int("limit", 0, "Keep only the most recent N candles (0 keeps all)")
	at := flag.String("at", "", "Evaluate as of this time (RFC3339, default now)")
	format := flag.String("format", "json", "Output format: json, markdown, csv")
	verify := flag.Bool("verify", false, "Also verify the stored stream (markdown only)")
	flag.StringVar(&cfg.StorageBackend, "backend", cfg.StorageBackend, "Storage backend: memory, postgres, clickhouse, sqlite")
	flag.Parse()

	// Keep stdout for the result.
	logger, err := logging.NewWithOutput(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("setup logging: %v", err)
	}

	if *userID == "" {
		logger.Fatal("--user is required")
	}
	key, err := timeseries.ParseRange(*rangeKey)
	if err != nil {
		logger.Fatal(err)
	}

	now := time.Now
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			logger.Fatalf("invalid --at: %v", err)
		}
		now = func() time.Time { return t }
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer stores.Close()

	svc := history.NewService(history.Options{
		EventStore: stores.Events,
		Engine:     timeseries.NewEngine(cfg.MaxPoints, cfg.GapPolicy),
		Now:        now,
		Logger:     logger,
	})

	q := history.Query{
		UserID:   *userID,
		Category: domain.Category(*category),
		Range:    key,
		Limit:    *limit,
	}
	result, err := svc.ValueHistory(ctx, q)
	if err != nil {
		logger.Fatalf("aggregate: %v", err)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(api.NewValueHistoryResponse(result))
	case "markdown":
		report := reporting.New(q, result, now())
		if *verify {
			report.Verification, err = svc.VerifyStream(ctx, q.UserID, q.Category, timeseries.DefaultChainTolerance)
			if err != nil {
				logger.Fatalf("verify: %v", err)
			}
		}
		_, err = fmt.Fprint(os.Stdout, reporting.RenderMarkdown(report))
	case "csv":
		err = reporting.WriteCSV(os.Stdout, result.Candles)
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		logger.Fatal(err)
	}
}
