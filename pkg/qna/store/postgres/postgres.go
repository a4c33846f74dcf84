// Package postgres stores conversation state in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/cognicore/qnabot/pkg/qna/store"
)

// Supported database/sql driver names.
const (
	DriverPgx = "pgx"
	DriverPQ  = "postgres"
)

// Store implements store.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

// Open connects with the named driver ("pgx" when empty) and ensures the
// schema exists.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = DriverPgx
	}
	if driver != DriverPgx && driver != DriverPQ {
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	st, err := OpenDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// OpenDB reuses an existing *sql.DB.
func OpenDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversation_state (
  conversation_id text PRIMARY KEY,
  active_prompts jsonb NOT NULL DEFAULT '[]',
  last_entry_id text NOT NULL DEFAULT '',
  turns integer NOT NULL DEFAULT 0,
  version bigint NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_conversation_state_updated ON conversation_state (updated_at);
`
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, conversationID string) (store.State, bool, error) {
	var (
		st      store.State
		prompts []byte
	)
	err := s.db.QueryRowContext(ctx, `
SELECT active_prompts, last_entry_id, turns, version, updated_at
FROM conversation_state WHERE conversation_id = $1`, conversationID).
		Scan(&prompts, &st.LastEntryID, &st.Turns, &st.Version, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.State{}, false, nil
		}
		return store.State{}, false, store.Wrap("get", conversationID, err)
	}
	if err := json.Unmarshal(prompts, &st.ActivePrompts); err != nil {
		return store.State{}, false, store.Wrap("get", conversationID, err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, true, nil
}

// Put writes st inside a transaction. Creates rely on the primary key,
// updates lock the row and compare versions.
func (s *Store) Put(ctx context.Context, conversationID string, st store.State) (store.State, error) {
	prompts := st.ActivePrompts
	if prompts == nil {
		prompts = []string{}
	}
	promptsJSON, err := json.Marshal(prompts)
	if err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}
	defer tx.Rollback()

	next := st.Clone()
	next.Version = st.Version + 1

	switch {
	case st.Version == store.AnyVersion:
		if err := tx.QueryRowContext(ctx, `
INSERT INTO conversation_state (conversation_id, active_prompts, last_entry_id, turns, version, updated_at)
VALUES ($1, $2::jsonb, $3, $4, 1, now())
ON CONFLICT (conversation_id) DO UPDATE SET
	active_prompts = EXCLUDED.active_prompts,
	last_entry_id = EXCLUDED.last_entry_id,
	turns = EXCLUDED.turns,
	version = conversation_state.version + 1,
	updated_at = EXCLUDED.updated_at
RETURNING version`,
			conversationID, string(promptsJSON), st.LastEntryID, st.Turns).Scan(&next.Version); err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
	case st.Version == 0:
		res, err := tx.ExecContext(ctx, `
INSERT INTO conversation_state (conversation_id, active_prompts, last_entry_id, turns, version, updated_at)
VALUES ($1, $2::jsonb, $3, $4, 1, now())
ON CONFLICT (conversation_id) DO NOTHING`,
			conversationID, string(promptsJSON), st.LastEntryID, st.Turns)
		if err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
		if rows == 0 {
			current, err := currentVersion(ctx, tx, conversationID)
			if err != nil {
				return store.State{}, store.Wrap("put", conversationID, err)
			}
			return store.State{}, store.Conflict(conversationID, 0, current)
		}
	default:
		current, err := currentVersion(ctx, tx, conversationID)
		if err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
		if current != st.Version {
			return store.State{}, store.Conflict(conversationID, st.Version, current)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE conversation_state
SET active_prompts = $1::jsonb, last_entry_id = $2, turns = $3, version = $4, updated_at = now()
WHERE conversation_id = $5`,
			string(promptsJSON), st.LastEntryID, st.Turns, next.Version, conversationID); err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT updated_at FROM conversation_state WHERE conversation_id = $1`, conversationID).
		Scan(&next.UpdatedAt); err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}
	if err := tx.Commit(); err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}
	next.UpdatedAt = next.UpdatedAt.UTC()
	return next, nil
}

// currentVersion locks the row and returns its version, 0 when missing.
func currentVersion(ctx context.Context, q queryRower, conversationID string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx,
		`SELECT version FROM conversation_state WHERE conversation_id = $1 FOR UPDATE`, conversationID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE conversation_id = $1`, conversationID)
	return store.Wrap("delete", conversationID, err)
}

// PurgeBefore drops conversations last updated before t.
func (s *Store) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE updated_at < $1`, t)
	if err != nil {
		return 0, store.Wrap("purge", "", err)
	}
	return res.RowsAffected()
}
