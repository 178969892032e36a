// Package store persists document and summary metadata as a single
// JSON snapshot and enforces cross-source deduplication.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/telemetry"
)

// snapshot is the on-disk shape of the store: the three record
// families plus the save timestamp.
type snapshot struct {
	Companies   map[string]harvester.Company            `json:"companies"`
	Documents   map[string][]harvester.DocumentMetadata `json:"documents"`
	Summaries   map[string]harvester.SummaryMetadata    `json:"summaries"`
	LastSavedAt time.Time                               `json:"last_saved_at,omitempty"`
}

// MetadataStore is the process-wide metadata registry. All access goes
// through one mutex; the collection pass is sequential so contention is
// not a concern.
type MetadataStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger

	companies map[string]harvester.Company
	documents map[string][]harvester.DocumentMetadata
	summaries map[string]harvester.SummaryMetadata
	// seen indexes stored documents by (ticker, category, dedup key).
	seen map[string]struct{}
}

// Load opens the snapshot at path. A missing file yields an empty
// store; an unreadable or corrupt file is logged and also yields an
// empty store, so one bad write never wedges collection.
func Load(path string, logger *zap.Logger) *MetadataStore {
	s := &MetadataStore{
		path:      path,
		logger:    logger,
		companies: make(map[string]harvester.Company),
		documents: make(map[string][]harvester.DocumentMetadata),
		summaries: make(map[string]harvester.SummaryMetadata),
		seen:      make(map[string]struct{}),
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("store file unreadable; starting empty", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		logger.Warn("store file corrupt; starting empty", zap.String("path", path), zap.Error(err))
		return s
	}

	if snap.Companies != nil {
		s.companies = snap.Companies
	}
	if snap.Documents != nil {
		s.documents = snap.Documents
	}
	if snap.Summaries != nil {
		s.summaries = snap.Summaries
	}
	for _, docs := range s.documents {
		for _, doc := range docs {
			s.seen[scopedDedupKey(doc)] = struct{}{}
		}
	}
	return s
}

// AddDocument registers a stored document. It is the single place
// duplicates are dropped: within one (ticker, category) pair the same
// content hash, or the same URL when no hash is known, is recorded
// once. The same content under another ticker or category is a
// distinct record. The return reports whether the document was added.
func (s *MetadataStore) AddDocument(meta harvester.DocumentMetadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopedDedupKey(meta)
	if _, dup := s.seen[key]; dup {
		telemetry.ObserveDedupDrop()
		s.logger.Debug("duplicate document dropped",
			zap.String("ticker", meta.Ticker),
			zap.String("url", meta.URL),
		)
		return false
	}
	s.seen[key] = struct{}{}

	ticker := strings.ToUpper(meta.Ticker)
	s.documents[ticker] = append(s.documents[ticker], meta)
	return true
}

// UpsertCompany records or refreshes a company's row in the snapshot.
func (s *MetadataStore) UpsertCompany(company harvester.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.companies[strings.ToUpper(company.Ticker)] = company
}

// Companies returns the recorded company rows sorted by ticker.
func (s *MetadataStore) Companies() []harvester.Company {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]harvester.Company, 0, len(s.companies))
	for _, company := range s.companies {
		out = append(out, company)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Documents returns a ticker's records, optionally filtered by category
// and by identifier. The identifier matches a record's document type,
// form, filename, content hash, or URL. The result is a copy.
func (s *MetadataStore) Documents(ticker string, category harvester.Category, identifier string) []harvester.DocumentMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.documents[strings.ToUpper(ticker)]
	out := make([]harvester.DocumentMetadata, 0, len(docs))
	for _, doc := range docs {
		if category != "" && documentCategory(doc) != category {
			continue
		}
		if identifier != "" && !matchesIdentifier(doc, identifier) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

func matchesIdentifier(doc harvester.DocumentMetadata, identifier string) bool {
	return strings.EqualFold(doc.DocType, identifier) ||
		strings.EqualFold(doc.Form, identifier) ||
		strings.EqualFold(doc.Filename, identifier) ||
		strings.EqualFold(doc.ContentHash, identifier) ||
		doc.URL == identifier
}

// Tickers lists every ticker with at least one record, sorted.
func (s *MetadataStore) Tickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.documents))
	for ticker := range s.documents {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// DocumentCount reports the total number of stored records.
func (s *MetadataStore) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, docs := range s.documents {
		n += len(docs)
	}
	return n
}

// AddSummary records a generated summary keyed by the source document's
// normalized relative path. Re-summarizing replaces the prior entry.
func (s *MetadataStore) AddSummary(meta harvester.SummaryMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizePath(meta.SourcePath)
	meta.SourcePath = key
	if meta.Ticker == "" {
		meta.Ticker = tickerFromPath(key)
	}
	s.summaries[key] = meta
}

// Summaries returns stored summaries, filtered by ticker when given.
// Attribution checks the embedded ticker first, then the leading path
// segment.
func (s *MetadataStore) Summaries(ticker string) []harvester.SummaryMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := strings.ToUpper(ticker)
	out := make([]harvester.SummaryMetadata, 0, len(s.summaries))
	for _, meta := range s.summaries {
		if want != "" {
			have := strings.ToUpper(meta.Ticker)
			if have == "" {
				have = tickerFromPath(meta.SourcePath)
			}
			if have != want {
				continue
			}
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out
}

// Summary looks up one summary by source path.
func (s *MetadataStore) Summary(sourcePath string) (harvester.SummaryMetadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.summaries[normalizePath(sourcePath)]
	return meta, ok
}

// Save writes the snapshot atomically via a temp file rename, so a
// crash mid-write leaves the previous snapshot intact.
func (s *MetadataStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Companies:   s.companies,
		Documents:   s.documents,
		Summaries:   s.summaries,
		LastSavedAt: time.Now().UTC(),
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write store temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}

// scopedDedupKey qualifies a record's dedup key with its ticker and
// category so deduplication never crosses company or source lines.
func scopedDedupKey(meta harvester.DocumentMetadata) string {
	return strings.ToUpper(meta.Ticker) + "|" + string(documentCategory(meta)) + "|" + meta.DedupKey()
}

// documentCategory reads the source category out of the record's
// relative path, whose second segment is always ir or sec.
func documentCategory(doc harvester.DocumentMetadata) harvester.Category {
	parts := strings.Split(normalizePath(doc.RelativePath), "/")
	if len(parts) < 2 {
		return ""
	}
	return harvester.Category(parts[1])
}

func tickerFromPath(p string) string {
	parts := strings.Split(normalizePath(p), "/")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	return strings.ToUpper(parts[0])
}

func normalizePath(p string) string {
	return strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "/")
}
