package fetch

import "strings"

// scanForBlock reports the first configured indicator found in body.
// Matching is case-insensitive; the transport status is irrelevant
// since defenses routinely answer 200 with an interstitial.
func scanForBlock(body []byte, indicators []string) (string, bool) {
	if len(body) == 0 || len(indicators) == 0 {
		return "", false
	}
	lower := strings.ToLower(string(body))
	for _, indicator := range indicators {
		needle := strings.ToLower(strings.TrimSpace(indicator))
		if needle != "" && strings.Contains(lower, needle) {
			return needle, true
		}
	}
	return "", false
}
