package irscrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/ratelimit"
)

// Discoverer locates a company's investor-relations page, renders it,
// and extracts classified document links.
type Discoverer struct {
	renderer harvester.Renderer
	guesser  *guesser
	limiter  harvester.Limiter
	logger   *zap.Logger
}

// Config carries the IR scraping knobs.
type Config struct {
	UserAgent    string
	ProbeTimeout time.Duration
}

// NewDiscoverer wires a renderer and rate limiter into a Discoverer.
func NewDiscoverer(cfg Config, renderer harvester.Renderer, limiter harvester.Limiter, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		renderer: renderer,
		guesser:  newGuesser(cfg.ProbeTimeout, cfg.UserAgent, logger),
		limiter:  limiter,
		logger:   logger,
	}
}

// Discover renders the company's IR page and returns every anchor that
// classifies as a financial document. Duplicate targets on the same
// page collapse to the first occurrence.
func (d *Discoverer) Discover(ctx context.Context, company harvester.Company) ([]harvester.DocumentRef, error) {
	pageURL := d.guesser.GuessIRPage(ctx, company)

	if err := d.limiter.Wait(ctx, ratelimit.ClassIR); err != nil {
		return nil, fmt.Errorf("ir rate limit: %w", err)
	}

	page, err := d.renderer.Render(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("render %s: %w", pageURL, err)
		}
		// A wrong guess or a broken site is a best-effort miss, not a
		// company failure.
		d.logger.Warn("ir page render failed; no documents",
			zap.String("ticker", company.Ticker),
			zap.String("page", pageURL),
			zap.Error(err),
		)
		return nil, nil
	}

	refs, err := ExtractDocuments(page)
	if err != nil {
		return nil, err
	}

	d.logger.Info("ir discovery complete",
		zap.String("ticker", company.Ticker),
		zap.String("page", page.FinalURL),
		zap.Int("documents", len(refs)),
	)
	return refs, nil
}

// ExtractDocuments walks the rendered page's anchors and keeps the
// ones whose text or href classifies as a financial document.
// Relative hrefs resolve against the page's final URL so redirects do
// not break links.
func ExtractDocuments(page harvester.Page) ([]harvester.DocumentRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}

	base, err := url.Parse(page.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	seen := make(map[string]struct{})
	var refs []harvester.DocumentRef
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if skipHref(href) {
			return
		}

		text := strings.Join(strings.Fields(sel.Text()), " ")
		docType, ok := Classify(text, href)
		if !ok {
			return
		}

		target, err := base.Parse(href)
		if err != nil {
			return
		}
		target.Fragment = ""
		abs := target.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		refs = append(refs, harvester.DocumentRef{
			URL:        abs,
			Text:       text,
			DocType:    docType,
			SourcePage: page.FinalURL,
		})
	})
	return refs, nil
}

func skipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:")
}
