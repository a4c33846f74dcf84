// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
	"github.com/cognicore/qnabot/pkg/qna/store"
)

// Run exercises the store contract against stores produced by open. Each
// subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		st := open(t)
		_, ok, err := st.Get(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Error("missing conversation should not be found")
		}
	})

	t.Run("PutAndGet", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		saved, err := st.Put(ctx, "c1", store.State{
			ActivePrompts: []string{"e2", "e3"},
			LastEntryID:   "e1",
			Turns:         1,
		})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if saved.Version != 1 {
			t.Errorf("expected version 1, got %d", saved.Version)
		}
		if saved.UpdatedAt.IsZero() {
			t.Error("UpdatedAt should be set")
		}

		got, ok, err := st.Get(ctx, "c1")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if !reflect.DeepEqual(got.ActivePrompts, []string{"e2", "e3"}) {
			t.Errorf("prompts mismatch: %v", got.ActivePrompts)
		}
		if got.LastEntryID != "e1" || got.Turns != 1 || got.Version != 1 {
			t.Errorf("unexpected state %+v", got)
		}
	})

	t.Run("RootStateRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		if _, err := st.Put(ctx, "c1", store.State{}); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, ok, err := st.Get(ctx, "c1")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if !got.AtRoot() {
			t.Errorf("expected root state, got prompts %v", got.ActivePrompts)
		}
	})

	t.Run("VersionConflict", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		first, err := st.Put(ctx, "c1", store.State{LastEntryID: "a"})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}

		// A second create must fail.
		_, err = st.Put(ctx, "c1", store.State{LastEntryID: "b"})
		if !errors.Is(err, store.ErrVersionConflict) {
			t.Fatalf("expected version conflict on duplicate create, got %v", err)
		}
		if errors.Is(err, internalerr.ErrStoreUnavailable) {
			t.Error("conflict should not be reported as store unavailable")
		}

		// Stale version must fail and leave the record alone.
		stale := first
		stale.Version = 0
		stale.LastEntryID = "stale"
		if _, err := st.Put(ctx, "c1", stale); !errors.Is(err, store.ErrVersionConflict) {
			t.Fatalf("expected version conflict for stale write, got %v", err)
		}

		got, _, err := st.Get(ctx, "c1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.LastEntryID != "a" || got.Version != 1 {
			t.Errorf("conflicting writes should not change state, got %+v", got)
		}

		// Update from the current version succeeds.
		first.LastEntryID = "c"
		next, err := st.Put(ctx, "c1", first)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if next.Version != 2 {
			t.Errorf("expected version 2, got %d", next.Version)
		}
	})

	t.Run("PutMissingWithVersion", func(t *testing.T) {
		st := open(t)
		_, err := st.Put(context.Background(), "ghost", store.State{Version: 3})
		if !errors.Is(err, store.ErrVersionConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("OverwriteAnyVersion", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		created, err := st.Put(ctx, "c1", store.State{Version: store.AnyVersion, LastEntryID: "a", Turns: 1})
		if err != nil {
			t.Fatalf("Put on missing record: %v", err)
		}
		if created.Version != 1 {
			t.Errorf("expected version 1, got %d", created.Version)
		}

		if _, err := st.Put(ctx, "c1", store.State{Version: 1, LastEntryID: "b", Turns: 2}); err != nil {
			t.Fatalf("Put: %v", err)
		}

		saved, err := st.Put(ctx, "c1", store.State{
			Version:       store.AnyVersion,
			ActivePrompts: []string{"e9"},
			LastEntryID:   "z",
			Turns:         1,
		})
		if store.IsConflict(err) {
			t.Fatalf("overwrite should ignore the stored version, got %v", err)
		}
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if saved.Version != 3 {
			t.Errorf("expected version 3, got %d", saved.Version)
		}

		got, ok, err := st.Get(ctx, "c1")
		if err != nil || !ok {
			t.Fatalf("Get: ok=%v err=%v", ok, err)
		}
		if got.Version != 3 || got.LastEntryID != "z" || got.Turns != 1 ||
			!reflect.DeepEqual(got.ActivePrompts, []string{"e9"}) {
			t.Errorf("unexpected state after overwrite %+v", got)
		}
	})

	t.Run("ConcurrentWritersOneWins", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		base, err := st.Put(ctx, "c1", store.State{})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := base
				next.Turns = base.Turns + 1
				_, err := st.Put(ctx, "c1", next)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, store.ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 || conflicts != writers-1 {
			t.Errorf("expected 1 win and %d conflicts, got %d and %d", writers-1, wins, conflicts)
		}
	})

	t.Run("DeleteAndPurge", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		for _, id := range []string{"a", "b", "c"} {
			if _, err := st.Put(ctx, id, store.State{}); err != nil {
				t.Fatalf("Put %s: %v", id, err)
			}
		}
		if err := st.Delete(ctx, "a"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, ok, _ := st.Get(ctx, "a"); ok {
			t.Error("deleted conversation still present")
		}

		n, err := st.PurgeBefore(ctx, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("PurgeBefore: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 purged, got %d", n)
		}
		if _, ok, _ := st.Get(ctx, "b"); ok {
			t.Error("purged conversation still present")
		}
	})
}
