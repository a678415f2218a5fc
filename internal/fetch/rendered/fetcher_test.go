package rendered

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

func TestNewLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := New(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	fetcher, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()
	if fetcher.cfg.NavTimeout != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", fetcher.cfg.NavTimeout)
	}
	if fetcher.cfg.SettleDelay != 2*time.Second {
		t.Fatalf("expected default settle delay, got %v", fetcher.cfg.SettleDelay)
	}
	if fetcher.limiter != nil {
		t.Fatal("expected nil limiter when max parallel is unset")
	}
}

func TestAllocatorOptionsAddProxyFlag(t *testing.T) {
	t.Parallel()

	direct := allocatorOptions("")
	proxied := allocatorOptions("socks5://127.0.0.1:9050")
	if len(proxied) != len(direct)+1 {
		t.Fatalf("expected one extra option for proxy, got %d vs %d", len(proxied), len(direct))
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 403,
			URL:    "https://example.com/denied",
		},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 403 || url != "https://example.com/denied" {
		t.Fatalf("unexpected snapshot values: status=%d url=%s", status, url)
	}

	meta = newResponseMeta()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}

	meta = newResponseMeta()
	_, url = meta.snapshotWithFallbacks("https://req", "")
	if url != "https://req" {
		t.Fatalf("expected request url fallback, got %s", url)
	}
}

func TestResponseMetaIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeImage,
		Response: &network.Response{
			Status: 404,
			URL:    "https://example.com/spacer.gif",
		},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	if status != http.StatusOK || url != "https://req" {
		t.Fatalf("image response should not be captured: status=%d url=%s", status, url)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher, err := New(Config{MaxParallel: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer fetcher.Close()

	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := fetcher.acquire(ctx); err == nil {
		t.Fatal("expected error when pool is exhausted")
	}
	fetcher.release()
	if err := fetcher.acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestNoopFetcherError(t *testing.T) {
	t.Parallel()

	fetcher := NewNoop()
	if _, err := fetcher.Get(context.Background(), "https://example.com", harvest.Identity{}); err == nil {
		t.Fatal("expected error from noop fetcher")
	}
}
