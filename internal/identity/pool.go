// Package identity manages the pool of egress identities used for
// outbound fetches: rotating user agents paired with optional proxy
// routes.
package identity

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// AgentFunc produces a user agent string. It may return "" when no
// agent can be produced; callers fall back to the static set.
type AgentFunc func() string

// Options configures a Pool.
type Options struct {
	// Proxies holds full proxy URLs (http, socks4 or socks5 scheme).
	Proxies []string
	// Agents overrides the builtin user agent set when non-empty.
	Agents []string
	// DynamicAgent, when set, is consulted first on every selection.
	DynamicAgent AgentFunc
}

// Pool hands out identities for outbound requests. Selection never
// fails: with no proxies loaded every identity routes direct, and the
// builtin agents guarantee a user agent is always available.
type Pool struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	proxies []string
	agents  []string
	dynamic AgentFunc
}

// New builds a Pool from opts. Blank proxy entries are dropped.
func New(opts Options) *Pool {
	proxies := make([]string, 0, len(opts.Proxies))
	for _, p := range opts.Proxies {
		p = strings.TrimSpace(p)
		if p != "" {
			proxies = append(proxies, p)
		}
	}

	agents := make([]string, 0, len(opts.Agents))
	for _, a := range opts.Agents {
		a = strings.TrimSpace(a)
		if a != "" {
			agents = append(agents, a)
		}
	}
	if len(agents) == 0 {
		agents = append(agents, defaultAgents...)
	}

	return &Pool{
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		proxies: proxies,
		agents:  agents,
		dynamic: opts.DynamicAgent,
	}
}

// Select returns the identity for the next request. Safe for
// concurrent use.
func (p *Pool) Select() harvest.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := harvest.Identity{Label: "direct"}
	if p.dynamic != nil {
		id.UserAgent = strings.TrimSpace(p.dynamic())
	}
	if id.UserAgent == "" {
		id.UserAgent = p.agents[p.rnd.Intn(len(p.agents))]
	}
	if len(p.proxies) > 0 {
		id.ProxyURL = p.proxies[p.rnd.Intn(len(p.proxies))]
		if host := harvest.HostOf(id.ProxyURL); host != "" {
			id.Label = host
		} else {
			id.Label = "proxy"
		}
	}
	return id
}

// ProxyCount reports how many proxy routes the pool holds.
func (p *Pool) ProxyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// defaultAgents is the fallback desktop browser set used when no agent
// file or dynamic provider is configured.
var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}
