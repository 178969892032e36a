// Package fetchstore downloads discovered documents and persists them
// under a content-addressed directory layout with JSON sidecars.
package fetchstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/ratelimit"
	"github.com/finharvest/filing-harvester/internal/telemetry"
)

// metaSuffix names the sidecar written next to every stored artifact.
const metaSuffix = ".meta.json"

// Config controls download behavior.
type Config struct {
	Root      string
	UserAgent string
	Timeout   time.Duration
}

// ContentFetcher implements harvester.Fetcher using a Colly collector.
type ContentFetcher struct {
	cfg           Config
	limiter       harvester.Limiter
	logger        *zap.Logger
	baseCollector *colly.Collector
	// now is swapped in tests to pin the date component of file names.
	now func() time.Time
}

// New builds a ContentFetcher rooted at cfg.Root, creating it if needed.
func New(cfg Config, limiter harvester.Limiter, logger *zap.Logger) (*ContentFetcher, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", cfg.Root, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	// colly v2.1.0's Async option enables async regardless of its
	// argument, so the synchronous default is set on the field.
	c := colly.NewCollector()
	c.Async = false
	c.IgnoreRobotsTxt = true

	return &ContentFetcher{
		cfg:           cfg,
		limiter:       limiter,
		logger:        logger,
		baseCollector: c,
		now:           time.Now,
	}, nil
}

// FetchAndStore downloads one reference and persists the body plus a
// metadata sidecar. Every call returns a terminal outcome; it never
// panics or silently drops a reference. A file already on disk for the
// same URL and day short-circuits to AlreadyPresent.
func (f *ContentFetcher) FetchAndStore(ctx context.Context, ticker string, category harvester.Category, ref harvester.DocumentRef) harvester.Outcome {
	outcome := f.fetchAndStore(ctx, ticker, category, ref)
	telemetry.ObserveDocument(string(category), string(outcome.Status), outcome.Metadata.Size)
	return outcome
}

func (f *ContentFetcher) fetchAndStore(ctx context.Context, ticker string, category harvester.Category, ref harvester.DocumentRef) harvester.Outcome {
	rel := relativePath(ticker, category, ref, f.now())

	if meta, ok := f.readExisting(rel); ok {
		f.logger.Debug("document already on disk",
			zap.String("url", ref.URL),
			zap.String("path", rel),
		)
		return harvester.Outcome{
			Status:   harvester.OutcomeAlreadyPresent,
			URL:      ref.URL,
			Metadata: meta,
		}
	}

	if err := f.limiter.Wait(ctx, hostClassFor(ref.URL)); err != nil {
		return failedOutcome(ref.URL, harvester.FailTransport, err)
	}

	body, contentType, status, err := f.download(ctx, ref.URL)
	if err != nil {
		return failedOutcome(ref.URL, harvester.FailTransport, err)
	}
	if status >= 400 {
		return failedOutcome(ref.URL, harvester.FailHTTPStatus,
			fmt.Errorf("unexpected status %d for %s", status, ref.URL))
	}

	rel = upgradeExtension(rel, contentType)
	sum := sha256.Sum256(body)
	meta := harvester.DocumentMetadata{
		URL:             ref.URL,
		Ticker:          strings.ToUpper(ticker),
		LinkText:        ref.Text,
		DocType:         ref.DocType,
		Form:            ref.Form,
		AccessionNumber: ref.Accession,
		SourcePage:      ref.SourcePage,
		ContentType:     contentType,
		ContentHash:     hex.EncodeToString(sum[:]),
		Size:            int64(len(body)),
		DownloadedAt:    f.now().UTC(),
		Filename:        filepath.Base(rel),
		RelativePath:    filepath.ToSlash(rel),
	}

	if err := f.persist(rel, body, meta); err != nil {
		return failedOutcome(ref.URL, harvester.FailFilesystem, err)
	}

	f.logger.Info("document stored",
		zap.String("ticker", meta.Ticker),
		zap.String("category", string(category)),
		zap.String("doc_type", meta.DocType),
		zap.String("path", rel),
		zap.Int64("bytes", meta.Size),
	)
	return harvester.Outcome{
		Status:   harvester.OutcomeStored,
		URL:      ref.URL,
		Metadata: meta,
	}
}

// readExisting reports whether the artifact and a readable sidecar are
// already on disk. The lookup matches on the date and URL hash only,
// since the stored extension may have been upgraded past the URL's. A
// missing or corrupt sidecar forces a refetch.
func (f *ContentFetcher) readExisting(rel string) (harvester.DocumentMetadata, bool) {
	abs := filepath.Join(f.cfg.Root, rel)
	stem := strings.TrimSuffix(abs, filepath.Ext(abs))
	matches, err := filepath.Glob(stem + ".*")
	if err != nil {
		return harvester.DocumentMetadata{}, false
	}
	for _, match := range matches {
		if strings.HasSuffix(match, metaSuffix) {
			continue
		}
		payload, err := os.ReadFile(match + metaSuffix)
		if err != nil {
			continue
		}
		var meta harvester.DocumentMetadata
		if err := json.Unmarshal(payload, &meta); err != nil {
			continue
		}
		return meta, true
	}
	return harvester.DocumentMetadata{}, false
}

func (f *ContentFetcher) persist(rel string, body []byte, meta harvester.DocumentMetadata) error {
	abs := filepath.Join(f.cfg.Root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := os.WriteFile(abs, body, 0o600); err != nil {
		return fmt.Errorf("write document %s: %w", abs, err)
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(abs+metaSuffix, payload, 0o600); err != nil {
		return fmt.Errorf("write sidecar %s: %w", abs+metaSuffix, err)
	}
	return nil
}

// download performs a single GET through a cloned collector.
func (f *ContentFetcher) download(ctx context.Context, rawURL string) (body []byte, contentType string, status int, err error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var fetchErr error
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, e error) {
		fetchErr = e
		if r != nil {
			status = r.StatusCode
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, "", 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		// Colly reports 4xx/5xx through OnError; a captured status code
		// means the transport itself worked.
		if status >= 400 {
			return nil, contentType, status, nil
		}
		if visitErr != nil {
			return nil, "", 0, fmt.Errorf("visit %s: %w", rawURL, visitErr)
		}
		if fetchErr != nil {
			return nil, "", 0, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		return body, contentType, status, nil
	}
}

func failedOutcome(url string, reason harvester.FailReason, err error) harvester.Outcome {
	return harvester.Outcome{
		Status: harvester.OutcomeFailed,
		URL:    url,
		Reason: reason,
		Err:    err.Error(),
	}
}

// hostClassFor picks the shared rate-limit budget for a URL.
func hostClassFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ratelimit.ClassIR
	}
	host := strings.ToLower(parsed.Host)
	switch {
	case host == "data.sec.gov":
		return ratelimit.ClassEdgarData
	case host == "sec.gov" || strings.HasSuffix(host, ".sec.gov"):
		return ratelimit.ClassEdgarArchives
	default:
		return ratelimit.ClassIR
	}
}
