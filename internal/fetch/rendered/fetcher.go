// Package rendered implements the scripted-browser strategy with
// headless Chrome via chromedp.
package rendered

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// Config controls the rendered fetcher.
type Config struct {
	MaxParallel int
	SettleDelay time.Duration
	NavTimeout  time.Duration
}

// Fetcher implements fetch.Getter using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a rendered fetcher backed by a shared browser allocator.
func New(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions("")...)
	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the shared allocator.
func (f *Fetcher) Close() {
	f.allocCancel()
}

func allocatorOptions(proxyURL string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if proxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(proxyURL))
	}
	return opts
}

// Get navigates with a headless browser and returns the rendered DOM.
func (f *Fetcher) Get(ctx context.Context, rawURL string, id harvest.Identity) (fetch.Result, error) {
	if err := f.acquire(ctx); err != nil {
		return fetch.Result{}, err
	}
	defer f.release()

	parent := f.allocator
	if id.ProxyURL != "" {
		// Proxy routing is an allocator-level flag, so proxied fetches
		// get a dedicated browser process.
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(id.ProxyURL)...)
		defer allocCancel()
		parent = allocCtx
	}

	taskCtx, taskCancel := chromedp.NewContext(parent)
	defer taskCancel()

	// The task context descends from the allocator, not from ctx, so
	// cancellation has to be forwarded by hand.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	timeout := f.cfg.NavTimeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until > 0 && until < timeout {
			timeout = until
		}
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.runBrowser(taskCtx, rawURL, id.UserAgent)
	if err != nil {
		return fetch.Result{}, err
	}

	status, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	return fetch.Result{
		StatusCode: status,
		FinalURL:   responseURL,
		Body:       []byte(html),
	}, nil
}

func (f *Fetcher) runBrowser(ctx context.Context, rawURL, userAgent string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetup(userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetup(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
