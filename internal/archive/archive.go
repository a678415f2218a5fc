// Package archive persists fetched page bodies through a blob store so a run
// leaves behind the raw HTML it extracted records from.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/arcadehq/listing-harvester/internal/harvest"
)

// shortDigestLen bounds the digest portion of an archive key. Twelve hex
// characters keep keys readable while staying unique within a run.
const shortDigestLen = 12

// Saver implements the fetch engine's page archiver on top of a blob store.
// Keys are laid out as <prefix>/<host>/<digest>.html so one bucket can hold
// snapshots from every site a run touches.
type Saver struct {
	blobs       harvest.BlobStore
	hasher      harvest.Hasher
	prefix      string
	contentType string
}

// New wires a Saver to the given blob store and hasher. An empty prefix
// drops the leading path segment.
func New(blobs harvest.BlobStore, hasher harvest.Hasher, prefix string) *Saver {
	return &Saver{
		blobs:       blobs,
		hasher:      hasher,
		prefix:      strings.Trim(prefix, "/"),
		contentType: "text/html; charset=utf-8",
	}
}

// SavePage hashes the body, writes it under a host-scoped key, and returns
// the blob URI.
func (s *Saver) SavePage(ctx context.Context, pageURL string, body []byte) (string, error) {
	digest, err := s.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page body: %w", err)
	}

	uri, err := s.blobs.PutObject(ctx, s.buildKey(pageURL, digest), s.contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (s *Saver) buildKey(pageURL, digest string) string {
	host := harvest.HostOf(pageURL)
	if host == "" {
		host = "unknown"
	}
	if len(digest) > shortDigestLen {
		digest = digest[:shortDigestLen]
	}
	if s.prefix == "" {
		return fmt.Sprintf("%s/%s.html", host, digest)
	}
	return fmt.Sprintf("%s/%s/%s.html", s.prefix, host, digest)
}
