package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/file"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	pg "github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.StateStore = memory.New()
	var _ repo.StateStore = (*file.Store)(nil)
	var _ repo.StateStore = (*sqlite.Store)(nil)
	var _ repo.StateStore = (*pg.Store)(nil)
}

func TestStorageError_MatchesSentinel(t *testing.T) {
	cause := context.DeadlineExceeded
	err := repo.Wrap("put", "T1", cause)

	if !errors.Is(err, repo.ErrStorage) {
		t.Fatalf("want ErrStorage match, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause should unwrap")
	}
	var se *repo.StorageError
	if !errors.As(err, &se) || se.Op != "put" || se.TargetID != "T1" {
		t.Fatalf("unexpected: %+v", se)
	}
	if repo.Wrap("get", "T1", err) != err {
		t.Fatalf("double wrap")
	}
	if repo.Wrap("get", "T1", nil) != nil {
		t.Fatalf("nil should stay nil")
	}
}
