package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/metrics"
	jobrepo "github.com/kailas-cloud/seqsearch/internal/repository/job"
	chiTransport "github.com/kailas-cloud/seqsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/seqsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/seqsearch/internal/usecase/search"
	"github.com/kailas-cloud/seqsearch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and job runner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return a.serve(ctx)
	},
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Starting seqsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("identity_driver", cfg.Identity.Driver),
		zap.String("index", cfg.Index.DBPath),
	)

	runner := a.runner()
	for _, tool := range []string{"blastp", "blastn"} {
		if err := runner.Available(tool); err != nil {
			logger.Warn("BLAST+ tool not found", zap.String("tool", tool), zap.Error(err))
		}
	}

	idx := a.index(runner)
	if cfg.Index.EnsureOnStart {
		if err := idx.EnsureReady(ctx); err != nil {
			logger.Error("Search index not ready, submissions will be rejected", zap.Error(err))
		}
	} else if !idx.Verify(ctx) {
		logger.Error("Search index failed verification, submissions will be rejected",
			zap.Strings("missing", idx.MissingFiles()),
		)
	}

	mapper, identityState, pinger := a.mapper(ctx)

	store, err := jobrepo.New(cfg.Jobs.Capacity, metrics.JobStoreEvictionsTotal, logger)
	if err != nil {
		return fmt.Errorf("create job store: %w", err)
	}
	go store.RunSweeper(ctx,
		time.Duration(cfg.Jobs.SweepIntervalSec)*time.Second,
		time.Duration(cfg.Jobs.MaxAgeSec)*time.Second,
	)

	searchSvc := searchuc.New(searchuc.Config{
		MaxConcurrent: cfg.Runner.MaxConcurrent,
		JobTimeout:    time.Duration(cfg.Runner.JobTimeoutSec) * time.Second,
		Limits: domjob.Limits{
			MinLength: cfg.Runner.MinSeqLength,
			MaxLength: cfg.Runner.MaxSeqLength,
		},
		DBPath:         idx.DBPath(),
		TmpDir:         cfg.Runner.TmpDir,
		MaxReportBytes: cfg.Blast.MaxOutputBytes,
	}, store, runner, mapper, idx, logger)

	healthSvc := healthuc.New(idx, identityState, pinger)

	server := chiTransport.NewServer(searchSvc, mapper, healthSvc, logger)
	handler := chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if err := searchSvc.Shutdown(shutdownCtx); err != nil {
		logger.Error("Jobs still running at shutdown deadline were failed", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
