package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.StateStore = (*Store)(nil)

const formatVersion = 1

type document struct {
	Version int                                    `json:"version"`
	Targets map[domain.TargetID]domain.TargetState `json:"targets"`
}

// Store keeps every target's state in one JSON document. Each Put rewrites
// the document through a temp file and rename, so readers never observe a
// partial write.
type Store struct {
	path string
	log  *zap.Logger

	mu     sync.Mutex
	states map[domain.TargetID]domain.TargetState
}

// Open loads path if it exists; a missing file starts empty.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, repo.Wrap("open", "", err)
	}
	s := &Store{path: path, log: log, states: make(map[domain.TargetID]domain.TargetState)}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, repo.Wrap("open", "", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, repo.Wrap("open", "", fmt.Errorf("decode %s: %w", path, err))
	}
	if doc.Version > formatVersion {
		return nil, repo.Wrap("open", "", fmt.Errorf("%s: unsupported version %d", path, doc.Version))
	}
	for id, st := range doc.Targets {
		st.TargetID = id
		s.states[id] = st
	}
	log.Info("state_file_loaded", zap.String("path", path), zap.Int("targets", len(s.states)))
	return s, nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.TargetState, error) {
	if err := ctx.Err(); err != nil {
		return nil, repo.Wrap("get", id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *Store) Put(ctx context.Context, st domain.TargetState) error {
	if err := ctx.Err(); err != nil {
		return repo.Wrap("put", st.TargetID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.states[st.TargetID]
	s.states[st.TargetID] = st
	if err := atomicWriteJSON(s.path, document{Version: formatVersion, Targets: s.states}); err != nil {
		// keep memory in step with disk
		if had {
			s.states[st.TargetID] = prev
		} else {
			delete(s.states, st.TargetID)
		}
		return repo.Wrap("put", st.TargetID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.TargetState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TargetState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out, nil
}

func (s *Store) Close() error { return nil }

// atomicWriteJSON writes data as JSON to a file atomically.
func atomicWriteJSON(filePath string, data any) error {
	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(bs); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	tmp = nil

	return os.Rename(tmpName, filePath)
}
