package irscrape

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

type stubRenderer struct {
	page harvester.Page
	err  error
	urls []string
}

func (s *stubRenderer) Render(_ context.Context, url string) (harvester.Page, error) {
	s.urls = append(s.urls, url)
	return s.page, s.err
}

func (s *stubRenderer) Close(context.Context) error { return nil }

type noopLimiter struct{}

func (noopLimiter) Wait(context.Context, string) error { return nil }

const irPageHTML = `<html><body>
<nav><a href="/about">About Us</a><a href="#top">Top</a></nav>
<ul>
  <li><a href="/files/2024-annual-report.pdf">2024 Annual Report</a></li>
  <li><a href="https://cdn.example.com/q3-earnings-release.pdf">Q3 Earnings Release</a></li>
  <li><a href="/files/2024-annual-report.pdf">Annual Report (duplicate)</a></li>
  <li><a href="javascript:void(0)">Quarterly Report</a></li>
  <li><a href="mailto:ir@acme.com">Contact IR</a></li>
  <li><a href="/presentations/investor-deck.pptx#slide1">Investor Deck</a></li>
</ul>
</body></html>`

func TestExtractDocuments(t *testing.T) {
	page := harvester.Page{
		URL:      "https://ir.acme.com",
		FinalURL: "https://ir.acme.com/home",
		HTML:     irPageHTML,
	}

	refs, err := ExtractDocuments(page)
	require.NoError(t, err)
	require.Len(t, refs, 3)

	byURL := make(map[string]harvester.DocumentRef, len(refs))
	for _, ref := range refs {
		byURL[ref.URL] = ref
	}

	annual, ok := byURL["https://ir.acme.com/files/2024-annual-report.pdf"]
	require.True(t, ok, "relative href resolves against the final url")
	assert.Equal(t, "10-K", annual.DocType)
	assert.Equal(t, "2024 Annual Report", annual.Text)
	assert.Equal(t, "https://ir.acme.com/home", annual.SourcePage)

	earnings, ok := byURL["https://cdn.example.com/q3-earnings-release.pdf"]
	require.True(t, ok, "absolute off-host hrefs are kept")
	assert.Equal(t, "Earnings Release", earnings.DocType)

	deck, ok := byURL["https://ir.acme.com/presentations/investor-deck.pptx"]
	require.True(t, ok, "fragment is stripped from the target")
	assert.Equal(t, "Presentation", deck.DocType)
}

func TestExtractDocumentsEmptyPage(t *testing.T) {
	page := harvester.Page{
		URL:      "https://ir.acme.com",
		FinalURL: "https://ir.acme.com",
		HTML:     "<html><body><p>Coming soon</p></body></html>",
	}
	refs, err := ExtractDocuments(page)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestDiscoverRenderFailureYieldsEmptyResult(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("chrome crashed")}
	d := NewDiscoverer(Config{UserAgent: "test-agent"}, renderer, noopLimiter{}, zap.NewNop())
	d.guesser.client = &stubProbe{alive: map[string]bool{}}

	refs, err := d.Discover(context.Background(), harvester.Company{Name: "Acme Corp", Ticker: "ACME"})
	require.NoError(t, err, "a broken render is a best-effort miss")
	assert.Empty(t, refs)
}

func TestDiscoverCanceledContextPropagates(t *testing.T) {
	renderer := &stubRenderer{err: fmt.Errorf("navigate: %w", context.Canceled)}
	d := NewDiscoverer(Config{UserAgent: "test-agent"}, renderer, noopLimiter{}, zap.NewNop())
	d.guesser.client = &stubProbe{alive: map[string]bool{}}

	_, err := d.Discover(context.Background(), harvester.Company{Name: "Acme Corp", Ticker: "ACME"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverUsesGuessedPage(t *testing.T) {
	renderer := &stubRenderer{page: harvester.Page{
		URL:      "https://www.acme.com/investor-relations",
		FinalURL: "https://www.acme.com/investor-relations",
		HTML:     irPageHTML,
	}}
	d := NewDiscoverer(Config{UserAgent: "test-agent"}, renderer, noopLimiter{}, zap.NewNop())
	d.guesser.client = &stubProbe{alive: map[string]bool{}}

	refs, err := d.Discover(context.Background(), harvester.Company{Name: "Acme Corp", Ticker: "ACME"})
	require.NoError(t, err)
	assert.Len(t, refs, 3)
	require.Len(t, renderer.urls, 1)
	assert.Equal(t, "https://www.acme.com/investor-relations", renderer.urls[0])
}
