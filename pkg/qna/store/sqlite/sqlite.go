package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/qnabot/pkg/qna/store"
)

// sqliteStore implements store.Store using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// conversation_state table if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One writer at a time; CAS statements never block each other.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS conversation_state (
	conversation_id TEXT PRIMARY KEY,
	active_prompts TEXT NOT NULL DEFAULT '[]',
	last_entry_id TEXT NOT NULL DEFAULT '',
	turns INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_state_updated ON conversation_state(updated_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Get returns the state for a conversation.
func (s *sqliteStore) Get(ctx context.Context, conversationID string) (store.State, bool, error) {
	var (
		st      store.State
		prompts string
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT active_prompts, last_entry_id, turns, version, updated_at
FROM conversation_state WHERE conversation_id = ?`, conversationID).
		Scan(&prompts, &st.LastEntryID, &st.Turns, &st.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return store.State{}, false, nil
	}
	if err != nil {
		return store.State{}, false, store.Wrap("get", conversationID, err)
	}

	if err := json.Unmarshal([]byte(prompts), &st.ActivePrompts); err != nil {
		return store.State{}, false, store.Wrap("get", conversationID, err)
	}
	st.UpdatedAt = time.Unix(0, updated).UTC()
	return st, true, nil
}

// Put writes st when the stored version still equals st.Version.
func (s *sqliteStore) Put(ctx context.Context, conversationID string, st store.State) (store.State, error) {
	prompts := st.ActivePrompts
	if prompts == nil {
		prompts = []string{}
	}
	promptsJSON, err := json.Marshal(prompts)
	if err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}

	now := time.Now().UTC()
	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = now

	if st.Version == store.AnyVersion {
		err = s.db.QueryRowContext(ctx, `
INSERT INTO conversation_state (conversation_id, active_prompts, last_entry_id, turns, version, updated_at)
VALUES (?, ?, ?, ?, 1, ?)
ON CONFLICT(conversation_id) DO UPDATE SET
	active_prompts = excluded.active_prompts,
	last_entry_id = excluded.last_entry_id,
	turns = excluded.turns,
	version = conversation_state.version + 1,
	updated_at = excluded.updated_at
RETURNING version`,
			conversationID, string(promptsJSON), st.LastEntryID, st.Turns, now.UnixNano()).
			Scan(&next.Version)
		if err != nil {
			return store.State{}, store.Wrap("put", conversationID, err)
		}
		return next, nil
	}

	var res sql.Result
	if st.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
INSERT INTO conversation_state (conversation_id, active_prompts, last_entry_id, turns, version, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(conversation_id) DO NOTHING`,
			conversationID, string(promptsJSON), st.LastEntryID, st.Turns, next.Version, now.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, `
UPDATE conversation_state
SET active_prompts = ?, last_entry_id = ?, turns = ?, version = ?, updated_at = ?
WHERE conversation_id = ? AND version = ?`,
			string(promptsJSON), st.LastEntryID, st.Turns, next.Version, now.UnixNano(),
			conversationID, st.Version)
	}
	if err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}
	if rows == 0 {
		return store.State{}, store.Conflict(conversationID, st.Version, s.storedVersion(ctx, conversationID))
	}
	return next, nil
}

// storedVersion is best effort and only feeds conflict messages.
func (s *sqliteStore) storedVersion(ctx context.Context, conversationID string) int64 {
	var v int64
	_ = s.db.QueryRowContext(ctx,
		"SELECT version FROM conversation_state WHERE conversation_id = ?", conversationID).Scan(&v)
	return v
}

// Delete removes a conversation.
func (s *sqliteStore) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM conversation_state WHERE conversation_id = ?", conversationID)
	return store.Wrap("delete", conversationID, err)
}

// PurgeBefore drops conversations last updated before t.
func (s *sqliteStore) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversation_state WHERE updated_at < ?", t.UnixNano())
	if err != nil {
		return 0, store.Wrap("purge", "", err)
	}
	return res.RowsAffected()
}
