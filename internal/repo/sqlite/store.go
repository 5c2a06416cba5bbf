package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.StateStore = (*Store)(nil)

// Store implements repo.StateStore on an embedded SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, repo.Wrap("open", "", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, repo.Wrap("open", "", fmt.Errorf("unable to open sqlite database: %w", err))
	}
	// one writer; upserts are per key anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, repo.Wrap("open", "", fmt.Errorf("unable to ping database: %w", err))
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, repo.Wrap("open", "", fmt.Errorf("failed to run migrations: %w", err))
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS target_states (
	target_id            TEXT PRIMARY KEY,
	canonical_status     TEXT NOT NULL,
	last_fingerprint     TEXT NOT NULL DEFAULT '',
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_notified_status TEXT NOT NULL,
	last_notified_at     TEXT NOT NULL DEFAULT '',
	last_transition_at   TEXT NOT NULL DEFAULT '',
	last_checked_at      TEXT NOT NULL DEFAULT '',
	last_remediated_at   TEXT NOT NULL DEFAULT '',
	last_reason          TEXT NOT NULL DEFAULT ''
);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const selectCols = `SELECT target_id, canonical_status, last_fingerprint, consecutive_failures,
	last_notified_status, last_notified_at, last_transition_at, last_checked_at,
	last_remediated_at, last_reason FROM target_states`

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.TargetState, error) {
	st, err := scanState(s.db.QueryRowContext(ctx, selectCols+` WHERE target_id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, repo.Wrap("get", id, err)
	}
	return st, nil
}

func (s *Store) Put(ctx context.Context, st domain.TargetState) error {
	const q = `
INSERT INTO target_states (target_id, canonical_status, last_fingerprint, consecutive_failures,
	last_notified_status, last_notified_at, last_transition_at, last_checked_at,
	last_remediated_at, last_reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(target_id) DO UPDATE SET
	canonical_status     = excluded.canonical_status,
	last_fingerprint     = excluded.last_fingerprint,
	consecutive_failures = excluded.consecutive_failures,
	last_notified_status = excluded.last_notified_status,
	last_notified_at     = excluded.last_notified_at,
	last_transition_at   = excluded.last_transition_at,
	last_checked_at      = excluded.last_checked_at,
	last_remediated_at   = excluded.last_remediated_at,
	last_reason          = excluded.last_reason`
	_, err := s.db.ExecContext(ctx, q,
		string(st.TargetID), string(st.CanonicalStatus), st.LastFingerprint, int64(st.ConsecutiveFailures),
		string(st.LastNotifiedStatus), formatTime(st.LastNotifiedAt), formatTime(st.LastTransitionAt),
		formatTime(st.LastCheckedAt), formatTime(st.LastRemediatedAt), st.LastReason)
	return repo.Wrap("put", st.TargetID, err)
}

func (s *Store) List(ctx context.Context) ([]domain.TargetState, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` ORDER BY target_id`)
	if err != nil {
		return nil, repo.Wrap("list", "", err)
	}
	defer rows.Close()
	var out []domain.TargetState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, repo.Wrap("list", "", err)
		}
		out = append(out, *st)
	}
	return out, repo.Wrap("list", "", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(row scanner) (*domain.TargetState, error) {
	var (
		st                       domain.TargetState
		id, canon, notified      string
		failures                 int64
		notifiedAt, transitionAt string
		checkedAt, remediatedAt  string
	)
	if err := row.Scan(&id, &canon, &st.LastFingerprint, &failures, &notified,
		&notifiedAt, &transitionAt, &checkedAt, &remediatedAt, &st.LastReason); err != nil {
		return nil, err
	}
	st.TargetID = domain.TargetID(id)
	st.CanonicalStatus = domain.Status(canon)
	st.LastNotifiedStatus = domain.Status(notified)
	st.ConsecutiveFailures = uint(failures)
	st.LastNotifiedAt = parseTime(notifiedAt)
	st.LastTransitionAt = parseTime(transitionAt)
	st.LastCheckedAt = parseTime(checkedAt)
	st.LastRemediatedAt = parseTime(remediatedAt)
	return &st, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
