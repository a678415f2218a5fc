package identity

import (
	"sync"
	"testing"
)

func TestSelectWithEmptyPoolIsDirect(t *testing.T) {
	t.Parallel()

	p := New(Options{})
	for i := 0; i < 10; i++ {
		id := p.Select()
		if !id.Direct() {
			t.Fatalf("expected direct identity, got proxy %q", id.ProxyURL)
		}
		if id.UserAgent == "" {
			t.Fatal("expected a user agent even with an empty pool")
		}
		if id.Label != "direct" {
			t.Fatalf("expected direct label, got %q", id.Label)
		}
	}
}

func TestSelectRotatesConfiguredProxies(t *testing.T) {
	t.Parallel()

	p := New(Options{Proxies: []string{"http://10.0.0.1:8080", "socks5://10.0.0.2:1080", "  "}})
	if p.ProxyCount() != 2 {
		t.Fatalf("expected blank entries dropped, got %d proxies", p.ProxyCount())
	}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := p.Select()
		if id.Direct() {
			t.Fatal("expected every identity to carry a proxy")
		}
		seen[id.ProxyURL] = true
	}
	if !seen["http://10.0.0.1:8080"] || !seen["socks5://10.0.0.2:1080"] {
		t.Fatalf("expected both proxies selected over 200 draws, saw %v", seen)
	}
}

func TestSelectLabelsProxyByHost(t *testing.T) {
	t.Parallel()

	p := New(Options{Proxies: []string{"socks5://127.0.0.1:9050"}})
	id := p.Select()
	if id.Label != "127.0.0.1" {
		t.Fatalf("expected host label, got %q", id.Label)
	}
}

func TestSelectPrefersDynamicAgent(t *testing.T) {
	t.Parallel()

	p := New(Options{DynamicAgent: func() string { return "probe-agent/1.0" }})
	if got := p.Select().UserAgent; got != "probe-agent/1.0" {
		t.Fatalf("expected dynamic agent, got %q", got)
	}

	// A dynamic provider that comes up empty must not leave the
	// identity without a user agent.
	p = New(Options{DynamicAgent: func() string { return "" }})
	if got := p.Select().UserAgent; got == "" {
		t.Fatal("expected fallback agent when dynamic provider returns nothing")
	}
}

func TestSelectIsSafeForConcurrentUse(t *testing.T) {
	t.Parallel()

	p := New(Options{Proxies: []string{"http://10.0.0.1:8080"}})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if id := p.Select(); id.UserAgent == "" {
					panic("empty user agent")
				}
			}
		}()
	}
	wg.Wait()
}
