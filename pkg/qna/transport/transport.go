// Package transport delivers user text to the dialog and turns failures into
// an apology the user can read.
package transport

import (
	"context"
	"log/slog"

	"github.com/cognicore/qnabot/pkg/qna/dialog"
	"github.com/cognicore/qnabot/pkg/qna/store"
)

const (
	DefaultApologyText = "Something went wrong. Please forgive me."
	DefaultMaxAttempts = 3
)

// Turner runs one dialog turn; *qna.Bot and *dialog.Controller satisfy it.
type Turner interface {
	Turn(ctx context.Context, conversationID, text string) (dialog.Response, error)
}

// Options configures a Transport
type Options struct {
	MaxAttempts  int
	ApologyText  string
	ExposeErrors bool // append the error message to the apology
	Logger       *slog.Logger
}

// Transport applies retry and apology policy around a Turner.
type Transport struct {
	turner Turner
	opts   Options
	log    *slog.Logger
}

// Reply is what the user sees, plus the turn details when it succeeded.
type Reply struct {
	Text     string
	Response dialog.Response
	Err      error
	Attempts int
}

// New creates a Transport.
func New(turner Turner, opts Options) *Transport {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.ApologyText == "" {
		opts.ApologyText = DefaultApologyText
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Transport{turner: turner, opts: opts, log: opts.Logger}
}

// Deliver runs a turn and returns the text to show the user.
func (t *Transport) Deliver(ctx context.Context, conversationID, text string) string {
	return t.Handle(ctx, conversationID, text).Text
}

// Handle runs a turn, retrying version conflicts. Any other failure is
// logged with the original input and answered with the apology text.
func (t *Transport) Handle(ctx context.Context, conversationID, text string) Reply {
	var (
		resp     dialog.Response
		err      error
		attempts int
	)
	for attempts = 1; attempts <= t.opts.MaxAttempts; attempts++ {
		resp, err = t.turner.Turn(ctx, conversationID, text)
		if err == nil {
			return Reply{Text: resp.Text, Response: resp, Attempts: attempts}
		}
		if !store.IsConflict(err) || ctx.Err() != nil {
			break
		}
		t.log.Debug("turn conflicted, retrying", "conversation", conversationID, "attempt", attempts)
	}
	attempts = min(attempts, t.opts.MaxAttempts)

	t.log.Error("turn failed",
		"conversation", conversationID,
		"input", text,
		"attempts", attempts,
		"error", err,
		"telegram", true)

	reply := t.opts.ApologyText
	if t.opts.ExposeErrors {
		reply += " Exception: " + err.Error()
	}
	return Reply{Text: reply, Err: err, Attempts: attempts}
}
