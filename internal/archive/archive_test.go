package archive

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arcadehq/listing-harvester/internal/hash/sha256"
	"github.com/arcadehq/listing-harvester/internal/storage/memory"
)

type fixedHasher struct {
	digest string
	err    error
}

func (h fixedHasher) Hash([]byte) (string, error) {
	return h.digest, h.err
}

func TestSavePageBuildsHostScopedKey(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	saver := New(blobs, fixedHasher{digest: "abcdef0123456789"}, "pages")

	body := []byte("<html>arcade</html>")
	uri, err := saver.SavePage(context.Background(), "https://Games.Example/play?id=1", body)
	if err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}
	if uri != "memory://pages/games.example/abcdef012345.html" {
		t.Fatalf("unexpected uri %s", uri)
	}

	stored, ok := blobs.Object("pages/games.example/abcdef012345.html")
	if !ok {
		t.Fatal("expected body under host-scoped key")
	}
	if string(stored) != string(body) {
		t.Fatalf("stored body mismatch: %s", stored)
	}
}

func TestSavePageWithoutPrefix(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	saver := New(blobs, fixedHasher{digest: "abcdef0123456789"}, "")

	uri, err := saver.SavePage(context.Background(), "https://games.example/play", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}
	if uri != "memory://games.example/abcdef012345.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
}

func TestSavePageFallsBackToUnknownHost(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	saver := New(blobs, fixedHasher{digest: "abcdef0123456789"}, "pages")

	uri, err := saver.SavePage(context.Background(), "not-a-url", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}
	if uri != "memory://pages/unknown/abcdef012345.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
}

func TestSavePageHashError(t *testing.T) {
	t.Parallel()

	saver := New(memory.NewBlobStore(), fixedHasher{err: errors.New("boom")}, "pages")

	if _, err := saver.SavePage(context.Background(), "https://games.example", []byte("x")); err == nil || !strings.Contains(err.Error(), "hash page body") {
		t.Fatalf("expected hash error, got %v", err)
	}
}

func TestSavePageWithRealHasher(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	hasher := sha256.New()
	saver := New(blobs, hasher, "pages")

	body := []byte("<html>catalog</html>")
	uri, err := saver.SavePage(context.Background(), "https://games.example/all", body)
	if err != nil {
		t.Fatalf("SavePage() error = %v", err)
	}

	digest, err := hasher.Hash(body)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "memory://pages/games.example/" + digest[:12] + ".html"
	if uri != want {
		t.Fatalf("expected %s, got %s", want, uri)
	}
}
