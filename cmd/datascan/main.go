package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/datascan/internal/analyze"
	"github.com/datallboy/datascan/internal/api"
	"github.com/datallboy/datascan/internal/app"
	"github.com/datallboy/datascan/internal/infra/config"
	"github.com/datallboy/datascan/internal/infra/logger"
	"github.com/datallboy/datascan/internal/ingest"
	"github.com/datallboy/datascan/internal/pipeline"
	"github.com/datallboy/datascan/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "datascan",
		Short:         "Medical imaging dataset ingestion and analysis service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default config.yaml if present)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}
	root.AddCommand(serveCmd)
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("logger error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence (migrations run inside NewPersistentStore)
	db, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("store error: %w", err)
	}
	defer db.Close()

	db.EnsurePipelineIndexes(ctx, log)

	// Analysis stack
	predLog, err := analyze.NewPredictionLogger(cfg.Log.PredictionLogPath)
	if err != nil {
		return fmt.Errorf("prediction log error: %w", err)
	}
	defer predLog.Close()

	analyzer := analyze.NewAnalyzer(analyze.UniformClassifier{}, predLog, cfg.Pipeline.FileConcurrency)

	// Ingestion stack
	registry := ingest.NewRegistry(cfg, log)
	preparer := ingest.NewPreparer(cfg, registry, log)

	// Pipeline
	controller := pipeline.NewController(cfg, db, preparer, analyzer, log)
	queue := pipeline.NewQueue(cfg.Pipeline.Enabled, controller, log)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Pipeline.Enabled {
		if err := pipeline.RecoverInterrupted(ctx, db, queue, log); err != nil {
			log.Error("failed to recover interrupted datasets: %v", err)
		}
	}

	// HTTP API
	appCtx := app.NewContext(cfg, log)
	appCtx.Store = db
	appCtx.Pipeline = queue

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("datascan listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown: %v", err)
	}

	queue.Stop()
	return nil
}
