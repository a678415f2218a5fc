// Package bypass implements the hardened-client strategy: a resty
// client whose transport imitates a browser closely enough to pass
// common edge-protection checks.
package bypass

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"

	"github.com/arcadehq/listing-harvester/internal/fetch"
	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/identity"
)

// Config controls the bypass fetcher.
type Config struct {
	Timeout time.Duration
}

// Fetcher implements fetch.Getter with a Cloudflare-aware HTTP client.
type Fetcher struct {
	cfg Config
}

// New creates a bypass fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{cfg: cfg}
}

// Get performs a single request through the hardened client. The
// client is built per call because proxy settings differ per identity.
// Non-2xx responses come back with their bodies and no error so the
// caller can classify them.
func (f *Fetcher) Get(ctx context.Context, rawURL string, id harvest.Identity) (fetch.Result, error) {
	client := resty.New()
	client.SetTimeout(f.timeout(ctx))
	client.SetHeaders(flatten(identity.BaseHeaders(id)))
	if id.ProxyURL != "" {
		// SetProxy asserts the transport is a *http.Transport, so it
		// has to run before the bypass wrapper replaces it.
		client.SetProxy(id.ProxyURL)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	res, err := client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return fetch.Result{}, fmt.Errorf("bypass fetch: %w", err)
	}

	result := fetch.Result{
		StatusCode: res.StatusCode(),
		FinalURL:   rawURL,
		Body:       res.Body(),
	}
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		result.FinalURL = raw.Request.URL.String()
	}
	return result, nil
}

func (f *Fetcher) timeout(ctx context.Context) time.Duration {
	timeout := f.cfg.Timeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until > 0 && until < timeout {
			timeout = until
		}
	}
	return timeout
}

func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}
