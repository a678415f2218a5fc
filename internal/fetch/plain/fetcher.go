// Package plain implements the baseline strategy: a single HTTP GET
// through a colly collector.
package plain

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/identity"
)

// Config controls collector behavior.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Fetcher implements fetch.Getter with a fresh collector per request,
// so per-identity proxies never leak across concurrent fetches.
type Fetcher struct {
	cfg Config
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

// Get executes a single HTTP GET using colly.
func (f *Fetcher) Get(ctx context.Context, rawURL string, id harvest.Identity) (fetch.Result, error) {
	collector, err := f.buildCollector(ctx, id)
	if err != nil {
		return fetch.Result{}, err
	}

	var (
		result   fetch.Result
		fetchErr error
	)
	f.configureHooks(collector, identity.BaseHeaders(id), &result, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fetch.Result{}, fmt.Errorf("plain fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return result, fmt.Errorf("plain visit failed: %w", err)
		}
		if fetchErr != nil {
			return result, fmt.Errorf("plain response failed: %w", fetchErr)
		}
		return result, nil
	}
}

func (f *Fetcher) buildCollector(ctx context.Context, id harvest.Identity) (*colly.Collector, error) {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Block walls often answer 403 with a page worth scanning.
	c.ParseHTTPErrorResponse = true
	if f.cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = int(f.cfg.MaxBodyBytes)
	}
	if id.UserAgent != "" {
		c.UserAgent = id.UserAgent
	}

	timeout := f.cfg.Timeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until > 0 && until < timeout {
			timeout = until
		}
	}
	c.SetRequestTimeout(timeout)

	c.WithTransport(newHTTPTransport())
	if id.ProxyURL != "" {
		if err := c.SetProxy(id.ProxyURL); err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
	}
	return c, nil
}

func (f *Fetcher) configureHooks(hooks collectorHooks, headers http.Header, result *fetch.Result, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(key, values[0])
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fetch.Result{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Request != nil && r.Request.URL != nil {
			result.FinalURL = r.Request.URL.String()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.Body = append([]byte(nil), r.Body...)
			if r.Request != nil && r.Request.URL != nil {
				result.FinalURL = r.Request.URL.String()
			}
		}
		*fetchErr = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
