package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
	"github.com/cognicore/qnabot/pkg/qna/store"
	"github.com/cognicore/qnabot/pkg/qna/store/storetest"
)

// Set QNA_TEST_POSTGRES_DSN to run against a live database. The
// conversation_state table is emptied before every subtest.
func openTest(t *testing.T, driver string) func(t *testing.T) store.Store {
	dsn := os.Getenv("QNA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QNA_TEST_POSTGRES_DSN not set")
	}
	return func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		st, err := Open(ctx, driver, dsn)
		if err != nil {
			t.Fatalf("Open(%s): %v", driver, err)
		}
		if _, err := st.db.ExecContext(ctx, "DELETE FROM conversation_state"); err != nil {
			t.Fatalf("reset table: %v", err)
		}
		t.Cleanup(func() { st.Close() })
		return st
	}
}

func TestPostgresContractPgx(t *testing.T) {
	storetest.Run(t, openTest(t, DriverPgx))
}

func TestPostgresContractPQ(t *testing.T) {
	storetest.Run(t, openTest(t, DriverPQ))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", ""); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestCurrentVersionReportsQueryErrors(t *testing.T) {
	db, err := sql.Open(DriverPgx, "postgres://qna@127.0.0.1:1/qna")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.Close()

	v, err := currentVersion(context.Background(), db, "c1")
	if err == nil {
		t.Fatalf("expected an error from a closed pool, got version %d", v)
	}

	wrapped := store.Wrap("put", "c1", err)
	if store.IsConflict(wrapped) {
		t.Errorf("query failure must not look like a version conflict: %v", wrapped)
	}
	if !errors.Is(wrapped, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", wrapped)
	}

	st := &Store{db: db}
	_, err = st.Put(context.Background(), "c1", store.State{Version: 2})
	if store.IsConflict(err) || !errors.Is(err, internalerr.ErrStoreUnavailable) {
		t.Errorf("expected store unavailable from Put, got %v", err)
	}
}
