package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/collect"
	"github.com/finharvest/filing-harvester/internal/config"
	"github.com/finharvest/filing-harvester/internal/edgar"
	"github.com/finharvest/filing-harvester/internal/fetchstore"
	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/irscrape"
	"github.com/finharvest/filing-harvester/internal/logging"
	"github.com/finharvest/filing-harvester/internal/ratelimit"
	"github.com/finharvest/filing-harvester/internal/store"
	"github.com/finharvest/filing-harvester/internal/summarize"
	"github.com/finharvest/filing-harvester/internal/universe"
)

// app holds the assembled service dependencies shared by the commands.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	universe *universe.Universe
	limiter  *ratelimit.Limiter
	edgar    *edgar.Client
	store    *store.MetadataStore
	fetcher  *fetchstore.ContentFetcher
}

// buildApp loads configuration and wires everything that does not need
// a browser. The renderer is built separately because only some
// commands render IR pages.
func buildApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	uni, err := universe.Load(universe.Config{
		Path:        cfg.Data.UniverseFile,
		UserAgent:   cfg.SEC.UserAgent,
		HTTPTimeout: time.Duration(cfg.SEC.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		EdgarRPS:   cfg.SEC.RequestsPerSec,
		IRRPS:      cfg.IR.RequestsPerSec,
		DefaultRPS: 1,
	})

	edgarClient, err := edgar.New(edgar.Config{
		UserAgent: cfg.SEC.UserAgent,
		Timeout:   time.Duration(cfg.SEC.TimeoutSeconds) * time.Second,
	}, uni, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("init edgar client: %w", err)
	}

	fetcher, err := fetchstore.New(fetchstore.Config{
		Root:      cfg.Data.RawDir,
		UserAgent: cfg.IR.UserAgent,
		Timeout:   cfg.DownloadTimeout(),
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		universe: uni,
		limiter:  limiter,
		edgar:    edgarClient,
		store:    store.Load(cfg.Data.StoreFile, logger),
		fetcher:  fetcher,
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// buildCollector assembles the IR renderer and the pass orchestrator.
// The returned cleanup shuts the browser down.
func (a *app) buildCollector(allExhibits bool) (*collect.Collector, func(), error) {
	renderer, err := irscrape.NewChromedpRenderer(a.cfg.NavTimeout(), a.cfg.IR.UserAgent, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init renderer: %w", err)
	}

	discoverer := irscrape.NewDiscoverer(irscrape.Config{
		UserAgent:    a.cfg.IR.UserAgent,
		ProbeTimeout: time.Duration(a.cfg.IR.ProbeTimeoutSec) * time.Second,
	}, renderer, a.limiter, a.logger)

	collector := collect.New(collect.Config{
		FormTypes:         a.cfg.Collect.FormTypes,
		FilingsPerCompany: a.cfg.Collect.FilingsPerCompany,
		CompanyDelay:      time.Duration(a.cfg.Collect.CompanyDelaySeconds) * time.Second,
		FetchAllExhibits:  allExhibits,
	}, a.universe, discoverer, a.edgar, a.fetcher, a.store, a.logger)

	cleanup := func() {
		if err := renderer.Close(context.Background()); err != nil {
			a.logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	return collector, cleanup, nil
}

// buildSummarizer returns nil when no API key is configured.
func (a *app) buildSummarizer() harvester.Summarizer {
	svc, err := summarize.New(summarize.Config{
		APIKey:  a.cfg.Summarize.APIKey,
		BaseURL: a.cfg.Summarize.BaseURL,
		Model:   a.cfg.Summarize.Model,
	}, a.logger)
	if err != nil {
		if !errors.Is(err, summarize.ErrNotConfigured) {
			a.logger.Warn("summarizer unavailable", zap.Error(err))
		}
		return nil
	}
	return svc
}
