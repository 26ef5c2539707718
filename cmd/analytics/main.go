// Command analytics serves the equipment-sensor dataset API.
//
// It ingests uploaded CSV files, validates their shape, computes summary
// statistics, and retains only the most recent -max-datasets uploads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"analytics/internal/ingest"
	"analytics/internal/metrics"
	"analytics/internal/metrics/datadog"
	"analytics/internal/server"
	"analytics/internal/storage"

	_ "analytics/internal/storage/mssql"
	_ "analytics/internal/storage/postgres"
	_ "analytics/internal/storage/sqlite"
)

func main() {
	var (
		addr        string
		storageKind string
		dsn         string
		maxDatasets int
		previewRows int
		ddTags      string
	)
	flag.StringVar(&addr, "addr", ":8000", "HTTP listen address")
	flag.StringVar(&storageKind, "storage-kind", "sqlite", "storage backend: sqlite | postgres | mssql")
	flag.StringVar(&dsn, "dsn", "analytics.db", "storage DSN (environment variables are expanded)")
	flag.IntVar(&maxDatasets, "max-datasets", 5, "maximum datasets retained; oldest are evicted first")
	flag.IntVar(&previewRows, "preview-rows", 10, "data rows included in the stored HTML preview")
	flag.StringVar(&ddTags, "dd-tags", "", "extra Datadog tags, comma-separated (e.g. env:prod,team:ops)")
	flag.Parse()

	if maxDatasets < 1 {
		fmt.Fprintln(os.Stderr, "-max-datasets must be >= 1")
		os.Exit(2)
	}

	logger := log.New(os.Stderr, "analytics: ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mb metrics.Backend = metrics.Nop{}
	if os.Getenv("DD_API_KEY") != "" {
		mb = datadog.NewBackend(ctx, datadog.Options{
			Service: "analytics",
			Tags:    datadog.ParseTagsCSV(ddTags),
		})
		defer func() {
			if err := mb.Close(); err != nil {
				logger.Printf("metrics close: %v", err)
			}
		}()
	}

	store, err := storage.New(ctx, storage.Config{
		Kind: storageKind,
		DSN:  os.ExpandEnv(dsn),
	})
	if err != nil {
		logger.Printf("open storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := ingest.New(store, maxDatasets,
		ingest.WithMetrics(mb),
		ingest.WithLogger(logger),
		ingest.WithPreviewRows(previewRows),
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(svc, server.WithMetrics(mb), server.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (storage=%s, max datasets=%d)", addr, storageKind, maxDatasets)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("serve: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}
}
