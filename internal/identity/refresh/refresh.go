// Package refresh rebuilds the proxy list from public providers,
// keeping only endpoints that answer a probe request.
package refresh

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"
)

// Provider names one upstream proxy list and the scheme its entries
// speak. Lists are plain text, one host:port per line.
type Provider struct {
	URL    string
	Scheme string
}

// Options tunes a refresh run.
type Options struct {
	Providers     []Provider
	ProbeURL      string
	ProbeTimeout  time.Duration
	Concurrency   int
	MaxCandidates int
	KeepLimit     int
}

// Refresher downloads candidate proxies and probes them concurrently.
type Refresher struct {
	opts   Options
	client *resty.Client
	logger *zap.Logger
}

// New builds a Refresher. Provider downloads retry a couple of times
// with backoff since free proxy lists flake constantly.
func New(opts Options, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}

	client := resty.New().
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Refresher{opts: opts, client: client, logger: logger}
}

// Run downloads every provider list, dedupes the candidates, probes a
// bounded sample, and returns the endpoints that answered.
func (r *Refresher) Run(ctx context.Context) ([]string, error) {
	candidates := r.download(ctx)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no proxy candidates from %d providers", len(r.opts.Providers))
	}
	r.logger.Info("collected proxy candidates", zap.Int("count", len(candidates)))

	if r.opts.MaxCandidates > 0 && len(candidates) > r.opts.MaxCandidates {
		candidates = candidates[:r.opts.MaxCandidates]
	}

	working := r.probeAll(ctx, candidates)
	r.logger.Info("probe pass finished",
		zap.Int("probed", len(candidates)),
		zap.Int("working", len(working)))

	if r.opts.KeepLimit > 0 && len(working) > r.opts.KeepLimit {
		working = working[:r.opts.KeepLimit]
	}
	return working, nil
}

func (r *Refresher) download(ctx context.Context) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.opts.Providers {
		res, err := r.client.R().SetContext(ctx).Get(p.URL)
		if err != nil {
			r.logger.Warn("proxy provider fetch failed", zap.String("url", p.URL), zap.Error(err))
			continue
		}
		if res.StatusCode() != http.StatusOK {
			r.logger.Warn("proxy provider returned non-200",
				zap.String("url", p.URL),
				zap.Int("status", res.StatusCode()))
			continue
		}

		scheme := p.Scheme
		if scheme == "" {
			scheme = "http"
		}
		for _, line := range strings.Split(string(res.Body()), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, ":") {
				continue
			}
			entry := line
			if !strings.Contains(entry, "://") {
				entry = scheme + "://" + entry
			}
			if seen[entry] {
				continue
			}
			seen[entry] = true
			out = append(out, entry)
		}
	}
	return out
}

func (r *Refresher) probeAll(ctx context.Context, candidates []string) []string {
	sem := make(chan struct{}, r.opts.Concurrency)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		working []string
	)
	for _, candidate := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(candidate string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := r.probe(ctx, candidate); err != nil {
				r.logger.Debug("proxy probe failed", zap.String("proxy", candidate), zap.Error(err))
				return
			}
			mu.Lock()
			working = append(working, candidate)
			mu.Unlock()
		}(candidate)
	}
	wg.Wait()
	return working
}

func (r *Refresher) probe(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.ProbeTimeout)
	defer cancel()

	switch u.Scheme {
	case "socks5", "socks5h":
		return r.probeSocks5(ctx, u)
	case "http", "https":
		return r.probeHTTP(ctx, u)
	default:
		// No CONNECT support in the probe for other schemes; a bare
		// TCP dial still filters dead endpoints.
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

func (r *Refresher) probeHTTP(ctx context.Context, u *url.URL) error {
	transport := &http.Transport{
		Proxy:               http.ProxyURL(u),
		TLSHandshakeTimeout: r.opts.ProbeTimeout,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{Transport: transport, Timeout: r.opts.ProbeTimeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.opts.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("probe returned status %d", res.StatusCode)
	}
	return nil
}

func (r *Refresher) probeSocks5(ctx context.Context, u *url.URL) error {
	dialer, err := xproxy.SOCKS5("tcp", u.Host, nil, &net.Dialer{Timeout: r.opts.ProbeTimeout})
	if err != nil {
		return fmt.Errorf("build socks5 dialer: %w", err)
	}

	target, err := url.Parse(r.opts.ProbeURL)
	if err != nil {
		return fmt.Errorf("parse probe url: %w", err)
	}
	addr := target.Host
	if target.Port() == "" {
		port := "80"
		if target.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(target.Hostname(), port)
	}

	conn, err := dialer.(xproxy.ContextDialer).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
