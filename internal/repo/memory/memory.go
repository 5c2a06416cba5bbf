package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.StateStore = (*Store)(nil)

// Store keeps state in process memory; nothing survives a restart.
type Store struct {
	mu     sync.RWMutex
	states map[domain.TargetID]domain.TargetState
}

func New() *Store {
	return &Store{states: make(map[domain.TargetID]domain.TargetState)}
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.TargetState, error) {
	if err := ctx.Err(); err != nil {
		return nil, repo.Wrap("get", id, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Store) Put(ctx context.Context, st domain.TargetState) error {
	if err := ctx.Err(); err != nil {
		return repo.Wrap("put", st.TargetID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.TargetID] = st
	return nil
}

func (m *Store) List(ctx context.Context) ([]domain.TargetState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TargetState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (m *Store) Close() error { return nil }
