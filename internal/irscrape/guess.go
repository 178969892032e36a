package irscrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

// probeClient is the minimal HTTP surface used for existence checks.
type probeClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// guesser finds a company's investor-relations page by probing a fixed
// list of conventional URL patterns. This is best effort: a wrong guess
// later yields an empty discovery result, never an error.
type guesser struct {
	client    probeClient
	userAgent string
	logger    *zap.Logger
}

func newGuesser(timeout time.Duration, userAgent string, logger *zap.Logger) *guesser {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &guesser{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// candidateURLs returns the ordered pattern list for a company. Name
// patterns come first; ticker patterns are the fallback tail.
func candidateURLs(company harvester.Company) []string {
	ticker := strings.ToLower(company.Ticker)
	urls := make([]string, 0, 12)

	if name := cleanName(company.Name); name != "" {
		urls = append(urls,
			fmt.Sprintf("https://ir.%s.com", name),
			fmt.Sprintf("https://investor.%s.com", name),
			fmt.Sprintf("https://investors.%s.com", name),
			fmt.Sprintf("https://%s.com/investor-relations", name),
			fmt.Sprintf("https://%s.com/investors", name),
			fmt.Sprintf("https://www.%s.com/investor-relations", name),
			fmt.Sprintf("https://www.%s.com/investors", name),
		)
	}
	urls = append(urls,
		fmt.Sprintf("https://ir.%s.com", ticker),
		fmt.Sprintf("https://investor.%s.com", ticker),
		fmt.Sprintf("https://investors.%s.com", ticker),
		fmt.Sprintf("https://www.%s.com/investor-relations", ticker),
		fmt.Sprintf("https://www.%s.com/investors", ticker),
	)
	return urls
}

// GuessIRPage probes the candidate patterns in order and returns the
// first that answers 2xx. When nothing answers, the penultimate
// ticker-based pattern is returned unverified.
func (g *guesser) GuessIRPage(ctx context.Context, company harvester.Company) string {
	candidates := candidateURLs(company)
	for _, candidate := range candidates {
		if g.probe(ctx, candidate) {
			g.logger.Debug("ir page found",
				zap.String("ticker", company.Ticker),
				zap.String("url", candidate),
			)
			return candidate
		}
	}
	fallback := candidates[len(candidates)-2]
	g.logger.Debug("no ir pattern answered; using fallback",
		zap.String("ticker", company.Ticker),
		zap.String("url", fallback),
	)
	return fallback
}

func (g *guesser) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// cleanName lowercases a display name and strips the characters that
// never appear in hostnames.
func cleanName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "&", "and")
	replacer := strings.NewReplacer(" ", "", ".", "", ",", "", "'", "")
	return replacer.Replace(name)
}
