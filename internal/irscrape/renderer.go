package irscrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/harvester"
)

// ChromedpRenderer renders investor-relations pages with headless
// Chrome. IR sites lean on JavaScript widgets for their document
// lists, so a plain GET rarely sees the links.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	timeout         time.Duration
	userAgent       string
}

// NewChromedpRenderer starts a shared browser process that stays warm
// across renders. Callers must Close it.
func NewChromedpRenderer(navTimeout time.Duration, userAgent string, logger *zap.Logger) (*ChromedpRenderer, error) {
	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(userAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		timeout:         navTimeout,
		userAgent:       userAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *ChromedpRenderer) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render navigates to the URL in a fresh tab and returns the rendered
// DOM. A navigation timeout is not fatal: whatever the page managed to
// load by the deadline is still harvested.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string) (harvester.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	navCtx, cancelNav := context.WithTimeout(tabCtx, r.timeout)
	defer cancelNav()

	stopForward := forwardCancel(ctx, cancelNav)
	defer stopForward()

	final := newFinalURL()
	watchDocumentResponse(tabCtx, final)

	var html string
	err := chromedp.Run(navCtx, chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	})
	if errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("render timed out; reading partial content", zap.String("url", rawURL))
		// The tab context is still alive; grab whatever rendered.
		grabCtx, cancelGrab := context.WithTimeout(tabCtx, 5*time.Second)
		defer cancelGrab()
		err = chromedp.Run(grabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	}
	if err != nil {
		return harvester.Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	return harvester.Page{
		URL:      rawURL,
		FinalURL: final.get(rawURL),
		HTML:     html,
	}, nil
}

type finalURL struct {
	once sync.Once
	url  string
}

func newFinalURL() *finalURL { return &finalURL{} }

func (f *finalURL) get(fallback string) string {
	if f.url == "" {
		return fallback
	}
	return f.url
}

// watchDocumentResponse records the URL of the first top-level document
// response, which is where redirects land.
func watchDocumentResponse(tabCtx context.Context, final *finalURL) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		final.once.Do(func() {
			final.url = resp.Response.URL
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
