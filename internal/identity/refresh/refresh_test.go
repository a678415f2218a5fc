package refresh

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

func listHandler(list string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, list)
	}
}

func TestDownloadPrefixesSchemeAndDedupes(t *testing.T) {
	t.Parallel()

	list := strings.Join([]string{
		"# free proxies",
		"1.2.3.4:8080",
		"",
		"1.2.3.4:8080",
		"5.6.7.8:3128",
		"not-a-proxy",
	}, "\n")
	srv := httptest.NewServer(listHandler(list))
	defer srv.Close()

	r := New(Options{
		Providers: []Provider{
			{URL: srv.URL, Scheme: "http"},
			{URL: srv.URL, Scheme: "socks5"},
		},
	}, nil)

	got := r.download(context.Background())
	want := []string{
		"http://1.2.3.4:8080",
		"http://5.6.7.8:3128",
		"socks5://1.2.3.4:8080",
		"socks5://5.6.7.8:3128",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRunKeepsProxiesThatAnswerProbe(t *testing.T) {
	t.Parallel()

	// The proxy server answers 200 to anything, so it passes the
	// probe; 127.0.0.1:1 refuses connections and must be dropped.
	proxySrv := httptest.NewServer(okHandler())
	defer proxySrv.Close()
	liveAddr := proxySrv.Listener.Addr().String()

	listSrv := httptest.NewServer(listHandler(liveAddr + "\n127.0.0.1:1\n"))
	defer listSrv.Close()

	r := New(Options{
		Providers:    []Provider{{URL: listSrv.URL, Scheme: "http"}},
		ProbeURL:     "http://probe.invalid/ip",
		ProbeTimeout: 2 * time.Second,
		Concurrency:  4,
	}, nil)

	working, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(working) != 1 || working[0] != "http://"+liveAddr {
		t.Fatalf("expected only the live proxy, got %v", working)
	}
}

func TestRunErrorsWithNoCandidates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := New(Options{Providers: []Provider{{URL: srv.URL, Scheme: "http"}}}, nil)
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestRunHonorsKeepLimit(t *testing.T) {
	t.Parallel()

	proxyA := httptest.NewServer(okHandler())
	defer proxyA.Close()
	proxyB := httptest.NewServer(okHandler())
	defer proxyB.Close()

	list := proxyA.Listener.Addr().String() + "\n" + proxyB.Listener.Addr().String() + "\n"
	listSrv := httptest.NewServer(listHandler(list))
	defer listSrv.Close()

	r := New(Options{
		Providers:    []Provider{{URL: listSrv.URL, Scheme: "http"}},
		ProbeURL:     "http://probe.invalid/ip",
		ProbeTimeout: 2 * time.Second,
		KeepLimit:    1,
	}, nil)

	working, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(working) != 1 {
		t.Fatalf("expected keep limit of 1, got %v", working)
	}
}
