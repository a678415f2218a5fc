package identity

import (
	"net/http"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// BaseHeaders returns the browser-shaped request headers for an
// identity. Strategies copy these onto outgoing requests; the rendered
// strategy only needs the user agent since the browser supplies the
// rest itself.
func BaseHeaders(id harvest.Identity) http.Header {
	h := http.Header{}
	h.Set("User-Agent", id.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	// Accept-Encoding stays unset so the transport negotiates gzip and
	// decompresses bodies itself.
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
	return h
}
