package chromedp_renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultPageLoadTimeout = 30 * time.Second

// ChromedpRenderer renders live pages in a shared headless browser
// allocator. Each Render call gets its own tab.
type ChromedpRenderer struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	logger      *zap.Logger
}

// NewChromedpRenderer creates a renderer. The browser process is started
// lazily on the first Render.
func NewChromedpRenderer(pageLoadTimeout time.Duration, logger *zap.Logger) *ChromedpRenderer {
	if pageLoadTimeout <= 0 {
		pageLoadTimeout = defaultPageLoadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(`Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 alttext-preview`),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromedpRenderer{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     pageLoadTimeout,
		logger:      logger,
	}
}

// Render navigates to url and returns the serialized document after scripts ran.
func (r *ChromedpRenderer) Render(ctx context.Context, url string) (string, error) {
	taskCtx, cancel := chromedp.NewContext(r.allocCtx, chromedp.WithLogf(r.logger.Sugar().Debugf))
	defer cancel()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, r.timeout)
	defer cancelTimeout()

	// Caller cancellation also stops the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	var doc string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	)
	if err != nil {
		r.logger.Error("failed to render page", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	r.logger.Info("rendered page", zap.String("url", url), zap.Duration("elapsed", time.Since(start)), zap.Int("bytes", len(doc)))
	return doc, nil
}

// Close shuts the browser down.
func (r *ChromedpRenderer) Close() {
	r.cancelAlloc()
}
