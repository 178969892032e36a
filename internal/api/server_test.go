package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/collect"
	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/store"
)

type fakeUniverse struct {
	companies []harvester.Company
}

func (u *fakeUniverse) Companies() []harvester.Company { return u.companies }

func (u *fakeUniverse) CompanyByTicker(ticker string) (harvester.Company, bool) {
	for _, c := range u.companies {
		if c.Ticker == ticker {
			return c, true
		}
	}
	return harvester.Company{}, false
}

type fakeDiscoverer struct {
	refs []harvester.DocumentRef
}

func (d *fakeDiscoverer) Discover(context.Context, harvester.Company) ([]harvester.DocumentRef, error) {
	return d.refs, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveCIK(ticker string) (string, error) {
	return "", fmt.Errorf("cik for %s: %w", ticker, harvester.ErrNotFound)
}

func (fakeResolver) ListRecentFilings(context.Context, string, []string, int) ([]harvester.FilingDescriptor, error) {
	return nil, nil
}

func (fakeResolver) FetchFilingIndex(context.Context, string, string) ([]harvester.FilingFile, error) {
	return nil, nil
}

func (fakeResolver) DocumentURL(cik, accession, filename string) string {
	return "https://www.sec.gov/Archives/" + filename
}

type fakeFetcher struct{}

func (fakeFetcher) FetchAndStore(_ context.Context, ticker string, category harvester.Category, ref harvester.DocumentRef) harvester.Outcome {
	return harvester.Outcome{
		Status: harvester.OutcomeStored,
		URL:    ref.URL,
		Metadata: harvester.DocumentMetadata{
			URL:          ref.URL,
			Ticker:       ticker,
			DocType:      ref.DocType,
			ContentHash:  "hash-" + ref.URL,
			RelativePath: ticker + "/" + string(category) + "/" + ref.DocType + "/20250314_x.pdf",
		},
	}
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (s *fakeSummarizer) SummarizeDocument(_ context.Context, absPath string) (harvester.SummaryMetadata, error) {
	if s.err != nil {
		return harvester.SummaryMetadata{}, s.err
	}
	return harvester.SummaryMetadata{
		Summary:     s.summary,
		Model:       "test-model",
		GeneratedAt: time.Now().UTC(),
		SourcePath:  absPath,
	}, nil
}

type fakeRefresher struct {
	updated int
	err     error
	calls   int
}

func (r *fakeRefresher) RefreshCIKs(context.Context) (int, error) {
	r.calls++
	return r.updated, r.err
}

type fixture struct {
	server    *Server
	store     *store.MetadataStore
	refresher *fakeRefresher
	root      string
}

func newFixture(t *testing.T, summarizer harvester.Summarizer) *fixture {
	t.Helper()
	root := t.TempDir()
	s := store.Load(filepath.Join(root, "data_store.json"), zap.NewNop())
	u := &fakeUniverse{companies: []harvester.Company{
		{Rank: 1, Name: "Acme Corp", Ticker: "ACME", CIK: "0000000123"},
	}}
	d := &fakeDiscoverer{refs: []harvester.DocumentRef{
		{URL: "https://ir.acme.com/annual.pdf", DocType: "10-K"},
	}}
	c := collect.New(collect.Config{}, u, d, fakeResolver{}, fakeFetcher{}, s, zap.NewNop())
	refresher := &fakeRefresher{updated: 2}
	return &fixture{
		server:    NewServer(u, c, s, summarizer, refresher, root, zap.NewNop()),
		store:     s,
		refresher: refresher,
		root:      root,
	}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reader).Encode(body))
	}
	req := httptest.NewRequest(method, target, &reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListCompanies(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/v1/companies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Companies []harvester.Company `json:"companies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Companies, 1)
	assert.Equal(t, "ACME", payload.Companies[0].Ticker)
}

func TestGetCompany(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/v1/companies/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var company harvester.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))
	assert.Equal(t, "ACME", company.Ticker)

	rec = f.do(t, http.MethodGet, "/v1/companies/GHOST", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshCIKsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/v1/companies/refresh-ciks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload["updated"])
	assert.Equal(t, 1, f.refresher.calls)

	f.server.refresher = nil
	rec = f.do(t, http.MethodPost, "/v1/companies/refresh-ciks", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCollectIREndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/companies/acme/collect/ir", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Ticker  string                   `json:"ticker"`
		Summary harvester.OutcomeSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ACME", payload.Ticker)
	assert.Equal(t, 1, payload.Summary.Stored)
	assert.Equal(t, 1, f.store.DocumentCount())
}

func TestCollectSECUnknownCIK(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/companies/ACME/collect/sec", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectSECRejectsBadCount(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/companies/ACME/collect/sec?count=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSECOptionsFromQuery(t *testing.T) {
	opts, err := secOptionsFromQuery(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, opts, "no parameters keep the configured defaults")

	opts, err = secOptionsFromQuery(url.Values{
		"forms":     {"10-k, 8-K"},
		"count":     {"3"},
		"fetch_all": {"true"},
	})
	require.NoError(t, err)
	require.NotNil(t, opts)
	assert.Equal(t, []string{"10-K", "8-K"}, opts.FormTypes)
	assert.Equal(t, 3, opts.MaxFilings)
	assert.True(t, opts.FetchAllExhibits)

	_, err = secOptionsFromQuery(url.Values{"count": {"-1"}})
	assert.Error(t, err)
}

func TestCollectUnknownTicker(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/companies/GHOST/collect/ir", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDocumentsFilters(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/companies/ACME/collect/ir", nil).Code)

	rec := f.do(t, http.MethodGet, "/v1/companies/ACME/documents?category=ir", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Documents []harvester.DocumentMetadata `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Documents, 1)

	rec = f.do(t, http.MethodGet, "/v1/companies/ACME/documents?category=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/companies/GHOST/documents", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummarizeDocument(t *testing.T) {
	f := newFixture(t, &fakeSummarizer{summary: "revenue up"})

	rel := filepath.Join("ACME", "ir", "10-K", "report.html")
	abs := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(t, os.WriteFile(abs, []byte("<html><body>x</body></html>"), 0o600))

	rec := f.do(t, http.MethodPost, "/v1/summarize/document", summarizeRequest{Path: "ACME/ir/10-K/report.html"})
	require.Equal(t, http.StatusOK, rec.Code)

	sums := f.store.Summaries("ACME")
	require.Len(t, sums, 1)
	assert.Equal(t, "revenue up", sums[0].Summary)
	assert.Equal(t, "ACME/ir/10-K/report.html", sums[0].SourcePath)
}

func TestSummarizeDocumentPathTraversal(t *testing.T) {
	f := newFixture(t, &fakeSummarizer{summary: "x"})
	rec := f.do(t, http.MethodPost, "/v1/summarize/document", summarizeRequest{Path: "../../etc/passwd"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummarizeUnavailableWithoutSummarizer(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/summarize/document", summarizeRequest{Path: "a.html"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.EqualValues(t, 1, payload["companies"])
	assert.EqualValues(t, 0, payload["documents"])
}
