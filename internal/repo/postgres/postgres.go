package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.StateStore = (*Store)(nil)

// Schema is applied by New; safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS target_states (
  target_id            TEXT PRIMARY KEY,
  canonical_status     TEXT NOT NULL,
  last_fingerprint     TEXT NOT NULL DEFAULT '',
  consecutive_failures INTEGER NOT NULL DEFAULT 0,
  last_notified_status TEXT NOT NULL,
  last_notified_at     TIMESTAMPTZ NULL,
  last_transition_at   TIMESTAMPTZ NULL,
  last_checked_at      TIMESTAMPTZ NULL,
  last_remediated_at   TIMESTAMPTZ NULL,
  last_reason          TEXT NOT NULL DEFAULT ''
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, repo.Wrap("open", "", fmt.Errorf("parse dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, repo.Wrap("open", "", fmt.Errorf("pgxpool.New: %w", err))
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, repo.Wrap("open", "", fmt.Errorf("ping: %w", err))
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, repo.Wrap("open", "", fmt.Errorf("apply schema: %w", err))
	}
	log.Info("postgres_store_ready", zap.String("host", cfg.ConnConfig.Host))
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const selectCols = `SELECT target_id, canonical_status, last_fingerprint, consecutive_failures,
       last_notified_status, last_notified_at, last_transition_at, last_checked_at,
       last_remediated_at, last_reason
  FROM target_states`

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.TargetState, error) {
	st, err := scanState(s.pool.QueryRow(ctx, selectCols+` WHERE target_id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (target_id)
		DO UPDATE SET canonical_status=EXCLUDED.canonical_status,
		              last_fingerprint=EXCLUDED.last_fingerprint,
		              consecutive_failures=EXCLUDED.consecutive_failures,
		              last_notified_status=EXCLUDED.last_notified_status,
		              last_notified_at=EXCLUDED.last_notified_at,
		              last_transition_at=EXCLUDED.last_transition_at,
		              last_checked_at=EXCLUDED.last_checked_at,
		              last_remediated_at=EXCLUDED.last_remediated_at,
		              last_reason=EXCLUDED.last_reason
	`
	_, err := s.pool.Exec(ctx, q,
		string(st.TargetID), string(st.CanonicalStatus), st.LastFingerprint, int64(st.ConsecutiveFailures),
		string(st.LastNotifiedStatus), nullTime(st.LastNotifiedAt), nullTime(st.LastTransitionAt),
		nullTime(st.LastCheckedAt), nullTime(st.LastRemediatedAt), st.LastReason)
	return repo.Wrap("put", st.TargetID, err)
}

func (s *Store) List(ctx context.Context) ([]domain.TargetState, error) {
	rows, err := s.pool.Query(ctx, selectCols+` ORDER BY target_id`)
	if err != nil {
		return nil, repo.Wrap("list", "", err)
	}
	defer rows.Close()

	var out []domain.TargetState
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, repo.Wrap("list", "", fmt.Errorf("scan state: %w", err))
		}
		out = append(out, *st)
	}
	return out, repo.Wrap("list", "", rows.Err())
}

func scanState(row pgx.Row) (*domain.TargetState, error) {
	var (
		st                       domain.TargetState
		id, canon, notified      string
		failures                 int64
		notifiedAt, transitionAt *time.Time
		checkedAt, remediatedAt  *time.Time
	)
	if err := row.Scan(&id, &canon, &st.LastFingerprint, &failures, &notified,
		&notifiedAt, &transitionAt, &checkedAt, &remediatedAt, &st.LastReason); err != nil {
		return nil, err
	}
	st.TargetID = domain.TargetID(id)
	st.CanonicalStatus = domain.Status(canon)
	st.LastNotifiedStatus = domain.Status(notified)
	st.ConsecutiveFailures = uint(failures)
	st.LastNotifiedAt = deref(notifiedAt)
	st.LastTransitionAt = deref(transitionAt)
	st.LastCheckedAt = deref(checkedAt)
	st.LastRemediatedAt = deref(remediatedAt)
	return &st, nil
}

// nullTime stores zero times as NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
