package fetch

import "testing"

func TestScanForBlock(t *testing.T) {
	t.Parallel()

	indicators := []string{"captcha", "cloudflare", "access denied"}
	testCases := []struct {
		name   string
		body   string
		reason string
		hit    bool
	}{
		{"clean page", "<html><body>hundreds of games</body></html>", "", false},
		{"captcha lower", "please solve the captcha to continue", "captcha", true},
		{"captcha upper", "CAPTCHA REQUIRED", "captcha", true},
		{"cloudflare interstitial", "Checking your browser... Cloudflare Ray ID", "cloudflare", true},
		{"access denied", "Access Denied: request rejected", "access denied", true},
		{"empty body", "", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reason, hit := scanForBlock([]byte(tc.body), indicators)
			if hit != tc.hit || reason != tc.reason {
				t.Fatalf("scanForBlock(%q) = (%q, %v); want (%q, %v)", tc.body, reason, hit, tc.reason, tc.hit)
			}
		})
	}
}

func TestScanForBlockNoIndicators(t *testing.T) {
	t.Parallel()

	if _, hit := scanForBlock([]byte("captcha"), nil); hit {
		t.Fatal("expected no hit without configured indicators")
	}
}
