package fetch

import (
	"bytes"
	"strings"
)

const renderBodyThreshold = 2048

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// NeedsRender reports whether a fetched body looks like a client-side
// shell that will not yield listing items without a browser. Sources
// consult this to escalate a plain fetch to the rendered strategy.
func NeedsRender(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	if len(body) < renderBodyThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh measures how much of the document sits inside
// script tags; shells are mostly script.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0

	for {
		relStart := strings.Index(lower[pos:], openTag)
		if relStart == -1 {
			break
		}
		start := pos + relStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed tag; count the rest of the document.
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1

		relEnd := strings.Index(lower[contentStart:], closeTag)
		var next int
		if relEnd == -1 {
			next = total
		} else {
			next = contentStart + relEnd + len(closeTag)
		}

		covered += next - start
		pos = next
	}

	if covered == 0 {
		return false
	}
	return covered*100/total >= 25
}
