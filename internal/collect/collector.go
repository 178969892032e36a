// Package collect orchestrates one collection pass over the company
// universe: IR discovery, SEC filings, fetch, and store registration.
package collect

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/store"
	"github.com/finharvest/filing-harvester/internal/telemetry"
)

// Config controls pass behavior.
type Config struct {
	FormTypes         []string
	FilingsPerCompany int
	// CompanyDelay spaces companies out within a pass.
	CompanyDelay time.Duration
	// FetchAllExhibits downloads every usable file in a filing's index
	// instead of just the primary document.
	FetchAllExhibits bool
}

// Collector runs collection for single companies and whole passes.
type Collector struct {
	universe   harvester.Universe
	discoverer harvester.Discoverer
	resolver   harvester.Resolver
	fetcher    harvester.Fetcher
	store      *store.MetadataStore
	cfg        Config
	logger     *zap.Logger
}

// New wires the collection dependencies together.
func New(
	cfg Config,
	universe harvester.Universe,
	discoverer harvester.Discoverer,
	resolver harvester.Resolver,
	fetcher harvester.Fetcher,
	metadataStore *store.MetadataStore,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		universe:   universe,
		discoverer: discoverer,
		resolver:   resolver,
		fetcher:    fetcher,
		store:      metadataStore,
		cfg:        cfg,
		logger:     logger,
	}
}

// PassReport aggregates one full pass.
type PassReport struct {
	Companies int                      `json:"companies"`
	Summary   harvester.OutcomeSummary `json:"summary"`
	Failures  map[string]string        `json:"failures,omitempty"`
	Duration  time.Duration            `json:"-"`
	StartedAt time.Time                `json:"started_at"`
}

// RunPass walks the whole universe sequentially. A company whose IR or
// SEC stage errors is logged and skipped; the pass always continues to
// the next company. The store snapshot is saved once at the end.
func (c *Collector) RunPass(ctx context.Context) (PassReport, error) {
	start := time.Now()
	report := PassReport{
		Failures:  make(map[string]string),
		StartedAt: start.UTC(),
	}

	companies := c.universe.Companies()
	for i, company := range companies {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("pass canceled: %w", err)
		}
		report.Companies++

		outcomes, err := c.CollectIR(ctx, company.Ticker)
		if err != nil {
			telemetry.ObserveCompanyFailure("ir")
			report.Failures[company.Ticker+"/ir"] = err.Error()
			c.logger.Warn("ir stage failed",
				zap.String("ticker", company.Ticker), zap.Error(err))
		}
		report.Summary = addSummary(report.Summary, harvester.Summarize(outcomes))

		outcomes, err = c.CollectSEC(ctx, company.Ticker, nil)
		if err != nil {
			telemetry.ObserveCompanyFailure("sec")
			report.Failures[company.Ticker+"/sec"] = err.Error()
			c.logger.Warn("sec stage failed",
				zap.String("ticker", company.Ticker), zap.Error(err))
		}
		report.Summary = addSummary(report.Summary, harvester.Summarize(outcomes))

		if c.cfg.CompanyDelay > 0 && i < len(companies)-1 {
			select {
			case <-ctx.Done():
				return report, fmt.Errorf("pass canceled: %w", ctx.Err())
			case <-time.After(c.cfg.CompanyDelay):
			}
		}
	}

	if err := c.store.Save(); err != nil {
		return report, fmt.Errorf("save store after pass: %w", err)
	}

	report.Duration = time.Since(start)
	telemetry.ObservePass(report.Duration)
	c.logger.Info("collection pass complete",
		zap.Int("companies", report.Companies),
		zap.Int("stored", report.Summary.Stored),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", report.Summary.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// CollectIR discovers and fetches one company's IR documents. Every
// successful fetch, including already-present ones, goes through the
// store so dedup has a single enforcement point.
func (c *Collector) CollectIR(ctx context.Context, ticker string) ([]harvester.Outcome, error) {
	company, ok := c.universe.CompanyByTicker(ticker)
	if !ok {
		return nil, fmt.Errorf("ticker %s: %w", ticker, harvester.ErrNotFound)
	}
	c.store.UpsertCompany(company)

	refs, err := c.discoverer.Discover(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("discover ir documents: %w", err)
	}

	outcomes := make([]harvester.Outcome, 0, len(refs))
	for _, ref := range refs {
		if skipIRRef(ref) {
			continue
		}
		outcome := c.fetcher.FetchAndStore(ctx, company.Ticker, harvester.CategoryIR, ref)
		c.register(outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// SECOptions overrides pass defaults for a single on-demand SEC
// collection. A nil options value keeps the configured defaults.
type SECOptions struct {
	FormTypes  []string
	MaxFilings int
	// FetchAllExhibits enables full-index fetching for this call.
	FetchAllExhibits bool
}

// CollectSEC fetches one company's recent filings. A ticker without a
// CIK fails before any filing lookup happens.
func (c *Collector) CollectSEC(ctx context.Context, ticker string, opts *SECOptions) ([]harvester.Outcome, error) {
	company, ok := c.universe.CompanyByTicker(ticker)
	if !ok {
		return nil, fmt.Errorf("ticker %s: %w", ticker, harvester.ErrNotFound)
	}
	c.store.UpsertCompany(company)

	formTypes := c.cfg.FormTypes
	maxFilings := c.cfg.FilingsPerCompany
	allExhibits := c.cfg.FetchAllExhibits
	if opts != nil {
		if len(opts.FormTypes) > 0 {
			formTypes = opts.FormTypes
		}
		if opts.MaxFilings > 0 {
			maxFilings = opts.MaxFilings
		}
		allExhibits = allExhibits || opts.FetchAllExhibits
	}

	cik, err := c.resolver.ResolveCIK(company.Ticker)
	if err != nil {
		return nil, fmt.Errorf("resolve cik for %s: %w", company.Ticker, err)
	}

	filings, err := c.resolver.ListRecentFilings(ctx, company.Ticker, formTypes, maxFilings)
	if err != nil {
		return nil, fmt.Errorf("list filings for %s: %w", company.Ticker, err)
	}

	var outcomes []harvester.Outcome
	for _, filing := range filings {
		refs, err := c.filingRefs(ctx, company.Ticker, cik, filing, allExhibits)
		if err != nil {
			c.logger.Warn("filing expansion failed",
				zap.String("ticker", company.Ticker),
				zap.String("accession", filing.AccessionNumber),
				zap.Error(err))
			continue
		}
		for _, ref := range refs {
			outcome := c.fetcher.FetchAndStore(ctx, company.Ticker, harvester.CategorySEC, ref)
			c.register(outcome)
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

// filingRefs expands one filing into fetchable references: the primary
// document, or the whole index in fetch-all-exhibits mode.
func (c *Collector) filingRefs(ctx context.Context, ticker, cik string, filing harvester.FilingDescriptor, allExhibits bool) ([]harvester.DocumentRef, error) {
	if !allExhibits {
		if filing.PrimaryDocument == "" {
			return nil, fmt.Errorf("filing %s has no primary document", filing.AccessionNumber)
		}
		return []harvester.DocumentRef{secRef(c.resolver, cik, filing, filing.PrimaryDocument, filing.Form)}, nil
	}

	files, err := c.resolver.FetchFilingIndex(ctx, ticker, filing.AccessionNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch filing index: %w", err)
	}
	refs := make([]harvester.DocumentRef, 0, len(files))
	for _, file := range files {
		if skipExhibit(file.Name) {
			continue
		}
		form := filing.Form
		if file.Name != filing.PrimaryDocument {
			form = filing.Form + "_Exhibit"
		}
		refs = append(refs, secRef(c.resolver, cik, filing, file.Name, form))
	}
	return refs, nil
}

func secRef(resolver harvester.Resolver, cik string, filing harvester.FilingDescriptor, filename, form string) harvester.DocumentRef {
	return harvester.DocumentRef{
		URL:       resolver.DocumentURL(cik, filing.AccessionNumber, filename),
		Text:      filename,
		DocType:   form,
		Form:      filing.Form,
		Accession: filing.AccessionNumber,
	}
}

// register feeds a fetch outcome into the metadata store. Failed
// fetches carry no metadata and are not recorded.
func (c *Collector) register(outcome harvester.Outcome) {
	if outcome.Status == harvester.OutcomeFailed {
		return
	}
	c.store.AddDocument(outcome.Metadata)
}

// skipIRRef drops IR links that point at documents already covered by
// the SEC stage: "SEC Filings" hub links that leave the regulator's
// site are navigation, not documents.
func skipIRRef(ref harvester.DocumentRef) bool {
	if ref.DocType != "SEC Filings" {
		return false
	}
	parsed, err := url.Parse(ref.URL)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Host)
	return host != "sec.gov" && !strings.HasSuffix(host, ".sec.gov")
}

// skipExhibit filters index entries that are never worth storing.
func skipExhibit(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml", ".xsd", ".jpg", ".jpeg", ".gif", ".png":
		return true
	}
	return false
}

func addSummary(a, b harvester.OutcomeSummary) harvester.OutcomeSummary {
	return harvester.OutcomeSummary{
		Stored:  a.Stored + b.Stored,
		Skipped: a.Skipped + b.Skipped,
		Failed:  a.Failed + b.Failed,
	}
}
