package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LoadProxyFile reads one proxy per line from path. Blank lines and #
// comments are skipped, and bare host:port entries default to the http
// scheme. A missing file is not an error; rotation simply has nothing
// to rotate.
func LoadProxyFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read proxies file: %w", err)
	}

	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "://") {
			line = "http://" + line
		}
		u, err := url.Parse(line)
		if err != nil || u.Host == "" {
			continue
		}
		proxies = append(proxies, line)
	}
	return proxies, nil
}

// SaveProxyFile writes proxies to path with an update timestamp header,
// creating the parent directory when needed.
func SaveProxyFile(path string, proxies []string, now time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create proxies dir: %w", err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Updated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Total working proxies: %d\n\n", len(proxies))
	for _, p := range proxies {
		b.WriteString(p)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write proxies file: %w", err)
	}
	return nil
}
