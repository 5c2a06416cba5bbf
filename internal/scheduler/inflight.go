package scheduler

import (
	"sync"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// inflight ensures that only one job per target is outstanding at any time.
type inflight struct {
	mu  sync.Mutex
	ids map[domain.TargetID]struct{}
}

func newInflight() *inflight {
	return &inflight{ids: make(map[domain.TargetID]struct{})}
}

// Acquire returns false if the target already has an outstanding job.
func (f *inflight) Acquire(id domain.TargetID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.ids[id]; busy {
		return false
	}
	f.ids[id] = struct{}{}
	return true
}

func (f *inflight) Release(id domain.TargetID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
}

func (f *inflight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
