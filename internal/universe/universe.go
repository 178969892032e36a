// Package universe manages the tracked company list and its regulator
// identifiers.
package universe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

// tickerMappingURL is the SEC's public ticker-to-CIK mapping file.
const tickerMappingURL = "https://www.sec.gov/files/company_tickers.json"

// seed is the built-in universe written when no CSV exists yet.
var seed = []harvester.Company{
	{Rank: 1, Name: "Walmart", Ticker: "WMT", CIK: "0000104169"},
	{Rank: 2, Name: "Amazon", Ticker: "AMZN", CIK: "0001018724"},
	{Rank: 3, Name: "Apple", Ticker: "AAPL", CIK: "0000320193"},
	{Rank: 4, Name: "CVS Health", Ticker: "CVS", CIK: "0000064803"},
	{Rank: 5, Name: "UnitedHealth Group", Ticker: "UNH", CIK: "0000731766"},
}

// Universe is the CSV-backed company list. Lookups are case-insensitive
// on ticker.
type Universe struct {
	mu        sync.RWMutex
	path      string
	companies []harvester.Company
	byTicker  map[string]int
	client    *http.Client
	userAgent string
	// mappingURL defaults to the SEC file; same-package tests point it
	// at a local server.
	mappingURL string
	logger     *zap.Logger
}

// Config controls universe loading and refresh.
type Config struct {
	// Path is the CSV file location; created with the seed if absent.
	Path string
	// UserAgent is sent on SEC mapping-file requests.
	UserAgent string
	// HTTPTimeout bounds the mapping-file download.
	HTTPTimeout time.Duration
}

// Load reads the universe CSV, creating it from the built-in seed when
// it does not exist or is empty.
func Load(cfg Config, logger *zap.Logger) (*Universe, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("universe path is required")
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	u := &Universe{
		path:       cfg.Path,
		client:     &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		mappingURL: tickerMappingURL,
		logger:     logger,
	}

	companies, err := readCSV(cfg.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read universe: %w", err)
		}
		companies = nil
	}
	if len(companies) == 0 {
		companies = append([]harvester.Company(nil), seed...)
		if err := writeCSV(cfg.Path, companies); err != nil {
			return nil, fmt.Errorf("seed universe: %w", err)
		}
		logger.Info("created universe from seed",
			zap.String("path", cfg.Path),
			zap.Int("companies", len(companies)),
		)
	}

	u.replace(companies)
	return u, nil
}

// Companies returns a copy of the universe ordered by rank.
func (u *Universe) Companies() []harvester.Company {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]harvester.Company, len(u.companies))
	copy(out, u.companies)
	return out
}

// CompanyByTicker looks up a company case-insensitively.
func (u *Universe) CompanyByTicker(ticker string) (harvester.Company, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	idx, ok := u.byTicker[strings.ToUpper(ticker)]
	if !ok {
		return harvester.Company{}, false
	}
	return u.companies[idx], true
}

// CIK returns the zero-padded regulator identifier for a ticker.
// harvester.ErrNotFound covers both an unknown ticker and a company
// with no identifier on record.
func (u *Universe) CIK(ticker string) (string, error) {
	company, ok := u.CompanyByTicker(ticker)
	if !ok {
		return "", fmt.Errorf("ticker %s: %w", ticker, harvester.ErrNotFound)
	}
	if company.CIK == "" {
		return "", fmt.Errorf("cik for %s: %w", ticker, harvester.ErrNotFound)
	}
	return padCIK(company.CIK), nil
}

// RefreshCIKs updates identifiers from the SEC's public mapping file
// and rewrites the CSV when anything changed.
func (u *Universe) RefreshCIKs(ctx context.Context) (int, error) {
	mapping, err := u.fetchMapping(ctx)
	if err != nil {
		return 0, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	updated := 0
	for i := range u.companies {
		ticker := strings.ToUpper(u.companies[i].Ticker)
		cik, ok := mapping[ticker]
		if !ok {
			u.logger.Warn("ticker absent from SEC mapping", zap.String("ticker", ticker))
			continue
		}
		if padCIK(u.companies[i].CIK) != cik {
			u.companies[i].CIK = cik
			updated++
		}
	}
	if updated > 0 {
		if err := writeCSV(u.path, u.companies); err != nil {
			return updated, fmt.Errorf("persist universe: %w", err)
		}
	}
	u.logger.Info("cik refresh finished", zap.Int("updated", updated))
	return updated, nil
}

func (u *Universe) fetchMapping(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.mappingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build mapping request: %w", err)
	}
	if u.userAgent != "" {
		req.Header.Set("User-Agent", u.userAgent)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, harvester.NewUpstreamError(u.mappingURL, 0, nil, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, harvester.NewUpstreamError(u.mappingURL, resp.StatusCode, nil, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, harvester.NewUpstreamError(u.mappingURL, resp.StatusCode, body, nil)
	}

	// The file maps arbitrary index keys to {cik_str, ticker, title}.
	var raw map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, harvester.NewUpstreamError(u.mappingURL, resp.StatusCode, body, err)
	}

	mapping := make(map[string]string, len(raw))
	for _, entry := range raw {
		if entry.Ticker == "" || entry.CIK == 0 {
			continue
		}
		mapping[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}
	return mapping, nil
}

func (u *Universe) replace(companies []harvester.Company) {
	sort.SliceStable(companies, func(i, j int) bool {
		return companies[i].Rank < companies[j].Rank
	})
	byTicker := make(map[string]int, len(companies))
	for i, c := range companies {
		byTicker[strings.ToUpper(c.Ticker)] = i
	}
	u.mu.Lock()
	u.companies = companies
	u.byTicker = byTicker
	u.mu.Unlock()
}

func padCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	if cik == "" {
		return ""
	}
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

func readCSV(path string) ([]harvester.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	companies := make([]harvester.Company, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 4 {
			continue
		}
		rank, _ := strconv.Atoi(strings.TrimSpace(row[0]))
		companies = append(companies, harvester.Company{
			Rank:   rank,
			Name:   strings.TrimSpace(row[1]),
			Ticker: strings.ToUpper(strings.TrimSpace(row[2])),
			CIK:    padCIK(row[3]),
		})
	}
	return companies, nil
}

func writeCSV(path string, companies []harvester.Company) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create universe dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create universe csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"rank", "company", "ticker", "cik"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range companies {
		row := []string{strconv.Itoa(c.Rank), c.Name, c.Ticker, c.CIK}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
