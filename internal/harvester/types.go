// Package harvester defines core types shared across subsystems.
package harvester

import (
	"time"
)

// Category identifies which discovery source produced a document.
type Category string

// Document source categories persisted in the metadata store.
const (
	CategoryIR  Category = "ir"
	CategorySEC Category = "sec"
)

// Valid reports whether c is a known source category.
func (c Category) Valid() bool {
	return c == CategoryIR || c == CategorySEC
}

// Company is one row of the tracked company universe.
type Company struct {
	Rank   int    `json:"rank"`
	Name   string `json:"company"`
	Ticker string `json:"ticker"`
	// CIK is the SEC-assigned identifier, zero-padded to ten digits.
	// Empty when the company has no identifier on record.
	CIK string `json:"cik,omitempty"`
}

// DocumentRef is a candidate document discovered on an IR page or in a
// filing listing. It lives only between discovery and fetch; persisted
// state is DocumentMetadata.
type DocumentRef struct {
	URL        string
	Text       string
	DocType    string
	SourcePage string
	// Form and Accession are set for SEC filings only. Accession gets
	// its own directory level so a filing's files stay together.
	Form      string
	Accession string
}

// FilingDescriptor summarizes one entry of a company's submission history.
type FilingDescriptor struct {
	AccessionNumber string `json:"accessionNumber"`
	FilingDate      string `json:"filingDate"`
	ReportDate      string `json:"reportDate,omitempty"`
	Form            string `json:"form"`
	PrimaryDocument string `json:"primaryDocument"`
	Size            int64  `json:"size,omitempty"`
}

// FilingFile is one member of a filing's index listing.
type FilingFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// DocumentMetadata is the persisted record for one stored artifact.
// Identity for dedup purposes is ContentHash when set, else URL.
type DocumentMetadata struct {
	URL             string    `json:"url"`
	Ticker          string    `json:"ticker"`
	LinkText        string    `json:"original_link_text,omitempty"`
	DocType         string    `json:"document_type"`
	Form            string    `json:"form_type,omitempty"`
	AccessionNumber string    `json:"accession_number,omitempty"`
	SourcePage      string    `json:"source_page,omitempty"`
	ContentType     string    `json:"content_type,omitempty"`
	ContentHash     string    `json:"content_hash_sha256"`
	Size            int64     `json:"size_bytes"`
	DownloadedAt    time.Time `json:"downloaded_at"`
	Filename        string    `json:"filename"`
	// RelativePath locates the artifact below the storage root.
	RelativePath string `json:"filepath_relative"`
}

// DedupKey returns the identity used by the store to detect duplicates.
func (m DocumentMetadata) DedupKey() string {
	if m.ContentHash != "" {
		return m.ContentHash
	}
	return m.URL
}

// SummaryMetadata records a generated summary for one stored document,
// keyed in the store by the document's normalized relative path.
type SummaryMetadata struct {
	Ticker      string    `json:"ticker,omitempty"`
	Summary     string    `json:"summary"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
	SourcePath  string    `json:"source_path"`
}

// OutcomeStatus is the terminal state of one fetch attempt.
type OutcomeStatus string

// Fetch outcome states. Every reference reaches exactly one of these.
const (
	OutcomeStored         OutcomeStatus = "stored"
	OutcomeAlreadyPresent OutcomeStatus = "already_present"
	OutcomeFailed         OutcomeStatus = "failed"
)

// Outcome is the result of fetching one document reference.
type Outcome struct {
	Status   OutcomeStatus    `json:"status"`
	URL      string           `json:"url"`
	Metadata DocumentMetadata `json:"metadata,omitempty"`
	Reason   FailReason       `json:"reason,omitempty"`
	Err      string           `json:"error,omitempty"`
}

// FailReason distinguishes the failure classes of a fetch attempt.
type FailReason string

// Failure classes reported in Outcome.Reason.
const (
	FailTransport  FailReason = "transport"
	FailHTTPStatus FailReason = "http-status"
	FailFilesystem FailReason = "filesystem"
)

// OutcomeSummary aggregates a batch of outcomes for trigger responses.
type OutcomeSummary struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summarize tallies outcomes by terminal state.
func Summarize(outcomes []Outcome) OutcomeSummary {
	var s OutcomeSummary
	for _, o := range outcomes {
		switch o.Status {
		case OutcomeStored:
			s.Stored++
		case OutcomeAlreadyPresent:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}
	return s
}

// Page is a rendered IR page snapshot.
type Page struct {
	// URL is the address that was requested.
	URL string
	// FinalURL is the address after redirects; link hrefs resolve against it.
	FinalURL string
	HTML     string
}
