// Package qna is the entry point for embedding the answering engine: it wires
// a knowledge base, a scorer and a conversation store into a turn handler.
package qna

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cognicore/qnabot/pkg/qna/dialog"
	"github.com/cognicore/qnabot/pkg/qna/internalerr"
	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/match"
	"github.com/cognicore/qnabot/pkg/qna/rank"
	"github.com/cognicore/qnabot/pkg/qna/store"
)

// Bot is the main answering facade
type Bot struct {
	holder *kb.Holder
	store  store.Store
	dialog *dialog.Controller
	log    *slog.Logger
}

// Options configures a Bot instance
type Options struct {
	Holder        *kb.Holder
	Store         store.Store
	Scorer        rank.Scorer
	MinConfidence float64
	FallbackText  string
	TopN          int
	Parallelism   int
	Logger        *slog.Logger
}

// New creates a Bot with the given dependencies
func New(opts Options) (*Bot, error) {
	if opts.Scorer == nil {
		return nil, fmt.Errorf("%w: scorer is required", internalerr.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctrl, err := dialog.New(dialog.Options{
		Holder:        opts.Holder,
		Store:         opts.Store,
		Engine:        match.New(match.Options{Scorer: opts.Scorer, Parallelism: opts.Parallelism}),
		MinConfidence: opts.MinConfidence,
		FallbackText:  opts.FallbackText,
		TopN:          opts.TopN,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Bot{
		holder: opts.Holder,
		store:  opts.Store,
		dialog: ctrl,
		log:    opts.Logger,
	}, nil
}

// Close cleanly shuts down the Bot
func (b *Bot) Close() error {
	return b.store.Close()
}

// Turn handles one message for a conversation.
func (b *Bot) Turn(ctx context.Context, conversationID, text string) (dialog.Response, error) {
	return b.dialog.Turn(ctx, conversationID, text)
}

// Reload atomically replaces the knowledge base. Turns already running keep
// the snapshot they started with.
func (b *Bot) Reload(next *kb.KnowledgeBase) error {
	if next == nil {
		return fmt.Errorf("%w: nil knowledge base", internalerr.ErrInvalidInput)
	}
	prev := b.holder.Swap(next)

	prevVersion := ""
	if prev != nil {
		prevVersion = prev.Version()
	}
	b.log.Info("knowledge base reloaded",
		"previous", prevVersion,
		"current", next.Version(),
		"entries", next.Len())
	return nil
}

// KnowledgeBase returns the current snapshot.
func (b *Bot) KnowledgeBase() *kb.KnowledgeBase {
	return b.holder.Current()
}

// State returns the stored state of a conversation.
func (b *Bot) State(ctx context.Context, conversationID string) (store.State, bool, error) {
	return b.store.Get(ctx, conversationID)
}

// Forget removes a conversation's state.
func (b *Bot) Forget(ctx context.Context, conversationID string) error {
	return b.store.Delete(ctx, conversationID)
}
