package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// StateStore persists one TargetState per target. Writes for different
// targets are independent; a Put replaces the whole record for its key.
type StateStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, id domain.TargetID) (*domain.TargetState, error)
	Put(ctx context.Context, st domain.TargetState) error
	List(ctx context.Context) ([]domain.TargetState, error)
	Close() error
}

// ErrStorage matches every StorageError via errors.Is.
var ErrStorage = errors.New("storage error")

type StorageError struct {
	Op       string // get | put | list | open
	TargetID domain.TargetID
	Err      error
}

func (e *StorageError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.TargetID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Wrap returns nil for a nil err, otherwise a *StorageError.
func Wrap(op string, id domain.TargetID, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, TargetID: id, Err: err}
}
