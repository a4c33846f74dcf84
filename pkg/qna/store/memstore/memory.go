package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/cognicore/qnabot/pkg/qna/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	states map[string]store.State
	now    func() time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		states: make(map[string]store.State),
		now:    time.Now,
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Get returns the state for a conversation.
func (s *Store) Get(ctx context.Context, conversationID string) (store.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.State{}, false, store.Wrap("get", conversationID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[conversationID]
	if !ok {
		return store.State{}, false, nil
	}
	return st.Clone(), true, nil
}

// Put stores st if the stored version still equals st.Version.
func (s *Store) Put(ctx context.Context, conversationID string, st store.State) (store.State, error) {
	if err := ctx.Err(); err != nil {
		return store.State{}, store.Wrap("put", conversationID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.states[conversationID]
	var stored int64
	if ok {
		stored = current.Version
	}
	if st.Version != store.AnyVersion && stored != st.Version {
		return store.State{}, store.Conflict(conversationID, st.Version, stored)
	}

	next := st.Clone()
	next.Version = stored + 1
	next.UpdatedAt = s.now().UTC()
	s.states[conversationID] = next
	return next.Clone(), nil
}

// Delete removes a conversation.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, conversationID)
	return nil
}

// PurgeBefore drops conversations last updated before t.
func (s *Store) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, st := range s.states {
		if st.UpdatedAt.Before(t) {
			delete(s.states, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
