package fetchstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

type passLimiter struct{ classes []string }

func (l *passLimiter) Wait(_ context.Context, hostClass string) error {
	l.classes = append(l.classes, hostClass)
	return nil
}

func newTestFetcher(t *testing.T) (*ContentFetcher, *passLimiter) {
	t.Helper()
	limiter := &passLimiter{}
	f, err := New(Config{
		Root:      t.TempDir(),
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	}, limiter, zap.NewNop())
	require.NoError(t, err)
	f.now = func() time.Time {
		return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return f, limiter
}

func TestFetchAndStoreThenAlreadyPresent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test body"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	ref := harvester.DocumentRef{
		URL:        srv.URL + "/reports/annual",
		Text:       "2024 Annual Report",
		DocType:    "10-K",
		SourcePage: srv.URL,
	}

	first := f.FetchAndStore(context.Background(), "acme", harvester.CategoryIR, ref)
	require.Equal(t, harvester.OutcomeStored, first.Status)
	assert.Equal(t, "ACME", first.Metadata.Ticker)
	assert.Equal(t, "10-K", first.Metadata.DocType)
	assert.NotEmpty(t, first.Metadata.ContentHash)
	assert.Equal(t, int64(len("%PDF-1.4 test body")), first.Metadata.Size)
	// Extensionless URL defaulted to .html, then the Content-Type
	// header upgraded it.
	assert.Equal(t, ".pdf", filepath.Ext(first.Metadata.Filename))

	abs := filepath.Join(f.cfg.Root, filepath.FromSlash(first.Metadata.RelativePath))
	_, err := os.Stat(abs)
	require.NoError(t, err)
	_, err = os.Stat(abs + metaSuffix)
	require.NoError(t, err)

	second := f.FetchAndStore(context.Background(), "acme", harvester.CategoryIR, ref)
	require.Equal(t, harvester.OutcomeAlreadyPresent, second.Status)
	assert.Equal(t, first.Metadata.ContentHash, second.Metadata.ContentHash)
	assert.Equal(t, first.Metadata.RelativePath, second.Metadata.RelativePath)
	assert.Equal(t, 1, hits, "second call must not refetch")
}

func TestFetchAndStoreHashStable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("identical bytes"))
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	a := f.FetchAndStore(context.Background(), "ACME", harvester.CategoryIR,
		harvester.DocumentRef{URL: srv.URL + "/a.pdf", DocType: "Presentation"})
	b := f.FetchAndStore(context.Background(), "ACME", harvester.CategoryIR,
		harvester.DocumentRef{URL: srv.URL + "/b.pdf", DocType: "Presentation"})

	require.Equal(t, harvester.OutcomeStored, a.Status)
	require.Equal(t, harvester.OutcomeStored, b.Status)
	assert.Equal(t, a.Metadata.ContentHash, b.Metadata.ContentHash,
		"identical bytes fingerprint identically regardless of url")
	assert.NotEqual(t, a.Metadata.RelativePath, b.Metadata.RelativePath)
}

func TestFetchAndStoreHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(t)
	out := f.FetchAndStore(context.Background(), "ACME", harvester.CategorySEC,
		harvester.DocumentRef{URL: srv.URL + "/missing.pdf", DocType: "10-K"})

	require.Equal(t, harvester.OutcomeFailed, out.Status)
	assert.Equal(t, harvester.FailHTTPStatus, out.Reason)
	assert.NotEmpty(t, out.Err)
}

func TestFetchAndStoreTransportError(t *testing.T) {
	f, _ := newTestFetcher(t)
	out := f.FetchAndStore(context.Background(), "ACME", harvester.CategoryIR,
		harvester.DocumentRef{URL: "http://127.0.0.1:1/unreachable", DocType: "Presentation"})

	require.Equal(t, harvester.OutcomeFailed, out.Status)
	assert.Equal(t, harvester.FailTransport, out.Reason)
}

func TestRelativePathLayout(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	ir := relativePath("acme", harvester.CategoryIR, harvester.DocumentRef{
		URL:     "https://ir.acme.com/files/deck.pdf",
		DocType: "Presentation",
	}, now)
	assert.Equal(t, "ACME", firstSegment(ir))
	assert.Contains(t, ir, filepath.Join("ACME", "ir", "Presentation"))
	assert.Contains(t, filepath.Base(ir), "20250314_")
	assert.Equal(t, ".pdf", filepath.Ext(ir))

	sec := relativePath("ACME", harvester.CategorySEC, harvester.DocumentRef{
		URL:       "https://www.sec.gov/Archives/edgar/data/123/000012345/doc.htm",
		DocType:   "10-K",
		Form:      "10-K",
		Accession: "0000123450-25-000001",
	}, now)
	assert.Contains(t, sec, filepath.Join("ACME", "sec", "10-K", "0000123450-25-000001"))
	assert.Equal(t, ".htm", filepath.Ext(sec))
}

func TestExtensionFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://x.com/a/report.pdf", ".pdf"},
		{"https://x.com/a/report.PDF", ".pdf"},
		{"https://x.com/file.xlsx?download=1", ".xlsx"},
		{"https://x.com/page", ".html"},
		{"https://x.com/page.aspx", ".html"},
		{"https://x.com/", ".html"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extensionFromURL(tc.url), tc.url)
	}
}

func TestUpgradeExtension(t *testing.T) {
	assert.Equal(t, "a/b.pdf", upgradeExtension("a/b.html", "application/pdf"))
	assert.Equal(t, "a/b.xlsx", upgradeExtension("a/b.html",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, "a/b.html", upgradeExtension("a/b.html", "text/html; charset=utf-8"))
	// URL-derived extensions are never overridden.
	assert.Equal(t, "a/b.htm", upgradeExtension("a/b.htm", "application/pdf"))
	assert.Equal(t, "a/b.pdf", upgradeExtension("a/b.pdf", "text/plain"))
}

func TestHostClassFor(t *testing.T) {
	assert.Equal(t, "edgar-data", hostClassFor("https://data.sec.gov/submissions/CIK0000000001.json"))
	assert.Equal(t, "edgar-archives", hostClassFor("https://www.sec.gov/Archives/edgar/data/1/x.htm"))
	assert.Equal(t, "ir", hostClassFor("https://ir.acme.com/deck.pdf"))
	assert.Equal(t, "ir", hostClassFor("::not a url::"))
}

func firstSegment(p string) string {
	for {
		dir := filepath.Dir(p)
		if dir == "." || dir == string(filepath.Separator) {
			return p
		}
		p = dir
	}
}
