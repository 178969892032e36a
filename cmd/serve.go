package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/api"
	"github.com/finharvest/filing-harvester/internal/config"
	"github.com/finharvest/filing-harvester/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger API",
		Long: `Starts the HTTP server exposing collection triggers, document and
summary queries, and Prometheus metrics. When the scheduler is enabled
a daily collection pass and a weekly identifier refresh run in the
background.`,
		RunE: runServe,
	}
}

type passAdapter struct {
	run func(ctx context.Context) error
}

func (p passAdapter) Run(ctx context.Context) error { return p.run(ctx) }

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	collector, cleanup, err := a.buildCollector(false)
	if err != nil {
		return err
	}
	defer cleanup()

	server := api.NewServer(a.universe, collector, a.store, a.buildSummarizer(), a.universe, a.cfg.Data.RawDir, a.logger)

	if a.cfg.Scheduler.Enabled {
		hour, minute, err := config.ParseDailyTime(a.cfg.Scheduler.DailyTime)
		if err != nil {
			return err
		}
		sched, err := scheduler.New(scheduler.Config{DailyHour: hour, DailyMinute: minute},
			passAdapter{run: func(ctx context.Context) error {
				_, err := collector.RunPass(ctx)
				return err
			}},
			a.universe, a.logger)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-sigCh:
		a.logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http shutdown failed", zap.Error(err))
		}
	}

	if err := a.store.Save(); err != nil {
		a.logger.Warn("final store save failed", zap.Error(err))
	}
	return nil
}
