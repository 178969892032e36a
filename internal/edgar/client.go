// Package edgar resolves company filings against the SEC EDGAR APIs.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/ratelimit"
)

// CIKSource resolves tickers to zero-padded regulator identifiers.
type CIKSource interface {
	CIK(ticker string) (string, error)
}

// Client talks to data.sec.gov (submissions) and www.sec.gov (archives).
type Client struct {
	http      *http.Client
	ciks      CIKSource
	limiter   harvester.Limiter
	userAgent string
	logger    *zap.Logger

	// Base URLs are variable for tests.
	dataBase    string
	archiveBase string
}

// Config controls EDGAR client behavior.
type Config struct {
	// UserAgent is mandatory under the SEC fair-access policy.
	UserAgent string
	Timeout   time.Duration
}

// New constructs a Client.
func New(cfg Config, ciks CIKSource, limiter harvester.Limiter, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("edgar user agent is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		ciks:        ciks,
		limiter:     limiter,
		userAgent:   cfg.UserAgent,
		logger:      logger,
		dataBase:    "https://data.sec.gov",
		archiveBase: "https://www.sec.gov",
	}, nil
}

// ResolveCIK looks up the locally cached identifier for a ticker.
func (c *Client) ResolveCIK(ticker string) (string, error) {
	cik, err := c.ciks.CIK(ticker)
	if err != nil {
		return "", fmt.Errorf("resolve cik: %w", err)
	}
	return cik, nil
}

// submissionsPayload mirrors the parts of the submissions JSON we read.
// The recent filings block is a set of parallel arrays.
type submissionsPayload struct {
	Filings struct {
		Recent recentFilings `json:"recent"`
	} `json:"filings"`
}

type recentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	ReportDate      []string `json:"reportDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	Size            []int64  `json:"size"`
}

// ListRecentFilings fetches the company's submission history, filters
// to the requested form types preserving the API's reverse-chronological
// order, and truncates to max. The parallel arrays in the payload are
// occasionally inconsistent in length; consumption stops at the first
// out-of-range index and whatever was collected is returned.
func (c *Client) ListRecentFilings(
	ctx context.Context,
	ticker string,
	formTypes []string,
	max int,
) ([]harvester.FilingDescriptor, error) {
	cik, err := c.ResolveCIK(ticker)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.dataBase, cik)
	body, err := c.get(ctx, url, ratelimit.ClassEdgarData)
	if err != nil {
		return nil, err
	}

	var payload submissionsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, harvester.NewUpstreamError(url, 0, body, err)
	}

	wanted := make(map[string]struct{}, len(formTypes))
	for _, ft := range formTypes {
		wanted[strings.ToUpper(ft)] = struct{}{}
	}

	recent := payload.Filings.Recent
	filings := make([]harvester.FilingDescriptor, 0, max)
	for i := range recent.AccessionNumber {
		if i >= len(recent.Form) || i >= len(recent.FilingDate) || i >= len(recent.PrimaryDocument) {
			c.logger.Warn("submissions arrays inconsistent; truncating",
				zap.String("ticker", ticker),
				zap.Int("index", i),
			)
			break
		}
		if len(wanted) > 0 {
			if _, ok := wanted[strings.ToUpper(recent.Form[i])]; !ok {
				continue
			}
		}
		fd := harvester.FilingDescriptor{
			AccessionNumber: recent.AccessionNumber[i],
			FilingDate:      recent.FilingDate[i],
			Form:            recent.Form[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		}
		if i < len(recent.ReportDate) {
			fd.ReportDate = recent.ReportDate[i]
		}
		if i < len(recent.Size) {
			fd.Size = recent.Size[i]
		}
		filings = append(filings, fd)
		if max > 0 && len(filings) >= max {
			break
		}
	}
	return filings, nil
}

// filingIndexPayload mirrors the archive index.json shape. File sizes
// arrive as strings there, unlike the submissions API.
type filingIndexPayload struct {
	Directory struct {
		Item []struct {
			Name string `json:"name"`
			Size string `json:"size"`
		} `json:"item"`
	} `json:"directory"`
}

// FetchFilingIndex lists every file belonging to one filing. Used only
// when fetch-all-exhibits mode is requested.
func (c *Client) FetchFilingIndex(ctx context.Context, ticker, accessionNumber string) ([]harvester.FilingFile, error) {
	cik, err := c.ResolveCIK(ticker)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/Archives/edgar/data/%s/%s/index.json",
		c.archiveBase, unpadCIK(cik), cleanAccession(accessionNumber))
	body, err := c.get(ctx, url, ratelimit.ClassEdgarArchives)
	if err != nil {
		return nil, err
	}

	var payload filingIndexPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, harvester.NewUpstreamError(url, 0, body, err)
	}

	files := make([]harvester.FilingFile, 0, len(payload.Directory.Item))
	for _, item := range payload.Directory.Item {
		if item.Name == "" {
			continue
		}
		size, _ := strconv.ParseInt(item.Size, 10, 64)
		files = append(files, harvester.FilingFile{Name: item.Name, Size: size})
	}
	return files, nil
}

// DocumentURL builds the archive download address for one filing file.
func (c *Client) DocumentURL(cik, accessionNumber, filename string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.archiveBase, unpadCIK(cik), cleanAccession(accessionNumber), filename)
}

// get performs one rate-limited GET and returns the body on 2xx. All
// failures come back as *harvester.UpstreamError.
func (c *Client) get(ctx context.Context, url, hostClass string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, hostClass); err != nil {
		return nil, fmt.Errorf("edgar slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	// Accept-Encoding stays unset so the transport negotiates gzip and
	// decompresses transparently.
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, harvester.NewUpstreamError(url, 0, nil, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, harvester.NewUpstreamError(url, resp.StatusCode, nil, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, harvester.NewUpstreamError(url, resp.StatusCode, body, nil)
	}
	return body, nil
}

// unpadCIK strips leading zeros; archive URLs use the short form.
func unpadCIK(cik string) string {
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// cleanAccession removes the dashes from an accession number.
func cleanAccession(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}
