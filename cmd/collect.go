package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

func newCollectCmd() *cobra.Command {
	var allExhibits bool

	cmd := &cobra.Command{
		Use:   "collect [ticker...]",
		Short: "Run a collection pass",
		Long: `Runs document collection. With no arguments every company in the
universe is processed in sequence; with tickers only those companies
are collected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, args, allExhibits)
		},
	}

	cmd.Flags().BoolVar(&allExhibits, "all-exhibits", false, "download every usable file of each filing, not just the primary document")

	return cmd
}

func runCollect(cmd *cobra.Command, args []string, allExhibits bool) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	collector, cleanup, err := a.buildCollector(allExhibits)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()

	if len(args) == 0 {
		report, err := collector.RunPass(ctx)
		if err != nil {
			return fmt.Errorf("collection pass: %w", err)
		}
		a.logger.Info("pass finished",
			zap.Int("companies", report.Companies),
			zap.Int("stored", report.Summary.Stored),
			zap.Int("skipped", report.Summary.Skipped),
			zap.Int("failed", report.Summary.Failed),
		)
		return nil
	}

	for _, arg := range args {
		ticker := strings.ToUpper(arg)

		outcomes, err := collector.CollectIR(ctx, ticker)
		if err != nil {
			a.logger.Warn("ir collection failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			logStage(a.logger, ticker, "ir", outcomes)
		}

		outcomes, err = collector.CollectSEC(ctx, ticker, nil)
		if err != nil {
			a.logger.Warn("sec collection failed", zap.String("ticker", ticker), zap.Error(err))
		} else {
			logStage(a.logger, ticker, "sec", outcomes)
		}
	}

	if err := a.store.Save(); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

func logStage(logger *zap.Logger, ticker, stage string, outcomes []harvester.Outcome) {
	summary := harvester.Summarize(outcomes)
	logger.Info("stage finished",
		zap.String("ticker", ticker),
		zap.String("stage", stage),
		zap.Int("stored", summary.Stored),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
}
