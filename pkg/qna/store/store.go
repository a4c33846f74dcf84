// Package store persists per-conversation dialog state.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
)

// ErrVersionConflict is returned by Put when the stored version differs from
// the version the caller read.
var ErrVersionConflict = errors.New("conversation state version conflict")

// AnyVersion as State.Version makes Put overwrite whatever is stored.
const AnyVersion int64 = -1

// Store is the persistence contract for conversation state.
//
// Put is a compare-and-set: it succeeds only when the stored version equals
// st.Version (0 means the record must not exist yet) and returns the stored
// state with the version incremented. With AnyVersion the write is
// unconditional and the stored version is still incremented.
type Store interface {
	Get(ctx context.Context, conversationID string) (State, bool, error)
	Put(ctx context.Context, conversationID string, st State) (State, error)

	// Expiry helpers for hosts; the dialog never deletes state.
	Delete(ctx context.Context, conversationID string) error
	PurgeBefore(ctx context.Context, t time.Time) (int64, error)

	Close() error
}

// State is the per-conversation record
type State struct {
	ActivePrompts []string // empty means the conversation is at root
	LastEntryID   string
	Version       int64
	Turns         int
	UpdatedAt     time.Time
}

// AtRoot reports whether no follow-up prompts are active.
func (s State) AtRoot() bool { return len(s.ActivePrompts) == 0 }

// Clone returns a deep copy.
func (s State) Clone() State {
	s.ActivePrompts = slices.Clone(s.ActivePrompts)
	return s
}

// Error is a storage failure for one operation.
type Error struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.ConversationID, e.Err)
}

// Unwrap exposes the cause and, unless it is a version conflict,
// internalerr.ErrStoreUnavailable.
func (e *Error) Unwrap() []error {
	if errors.Is(e.Err, ErrVersionConflict) {
		return []error{e.Err}
	}
	return []error{internalerr.ErrStoreUnavailable, e.Err}
}

// Wrap builds an *Error, returning nil for a nil cause.
func Wrap(op, conversationID string, err error) error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return err
	}
	return &Error{Op: op, ConversationID: conversationID, Err: err}
}

// Conflict builds the error Put returns on a version mismatch.
func Conflict(conversationID string, want, got int64) error {
	return &Error{
		Op:             "put",
		ConversationID: conversationID,
		Err:            fmt.Errorf("%w: expected version %d, stored %d", ErrVersionConflict, want, got),
	}
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
