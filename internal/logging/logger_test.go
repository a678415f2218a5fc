// Package logging includes tests for the zap logger helpers.
package logging

import "testing"

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNamedToleratesNil checks the nil-parent fallback path.
func TestNamedToleratesNil(t *testing.T) {
	t.Parallel()

	logger := Named(nil, "fetch")
	if logger == nil {
		t.Fatal("expected a no-op logger, got nil")
	}
	logger.Info("should not panic")

	parent, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	child := Named(parent, "fetch")
	if child == nil {
		t.Fatal("expected a named child logger")
	}
}
