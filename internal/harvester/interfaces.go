package harvester

import (
	"context"
)

// Universe exposes the tracked company list.
type Universe interface {
	Companies() []Company
	CompanyByTicker(ticker string) (Company, bool)
}

// Renderer loads a page with scripting enabled and returns the DOM
// snapshot. IR sites assemble their document lists client-side, so a
// plain GET is usually not enough.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
	Close(ctx context.Context) error
}

// Discoverer finds candidate document links for a company.
type Discoverer interface {
	Discover(ctx context.Context, company Company) ([]DocumentRef, error)
}

// Resolver maps tickers to filings via the regulator's API.
type Resolver interface {
	ResolveCIK(ticker string) (string, error)
	ListRecentFilings(ctx context.Context, ticker string, formTypes []string, max int) ([]FilingDescriptor, error)
	FetchFilingIndex(ctx context.Context, ticker, accessionNumber string) ([]FilingFile, error)
	DocumentURL(cik, accessionNumber, filename string) string
}

// Fetcher downloads one reference and persists artifact plus sidecar.
type Fetcher interface {
	FetchAndStore(ctx context.Context, ticker string, category Category, ref DocumentRef) Outcome
}

// Limiter spaces requests to a remote host class.
type Limiter interface {
	Wait(ctx context.Context, hostClass string) error
}

// Summarizer produces a summary payload for a stored artifact.
type Summarizer interface {
	SummarizeDocument(ctx context.Context, absPath string) (SummaryMetadata, error)
}
