// Package dialog runs the per-conversation turn state machine.
//
// A conversation is either at ROOT, where text is matched against the whole
// knowledge base, or IN_PROMPT, where the follow-ups offered by the previous
// answer are tried first. When no follow-up matches, the turn falls back to
// the whole knowledge base so a user is never stuck in a dead-end prompt.
package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/match"
	"github.com/cognicore/qnabot/pkg/qna/store"
)

// Mode names the state machine position of a conversation.
type Mode string

const (
	ModeRoot     Mode = "ROOT"
	ModeInPrompt Mode = "IN_PROMPT"
)

// Scope says which candidate set produced the answer.
type Scope string

const (
	ScopeNone   Scope = ""
	ScopePrompt Scope = "prompt"
	ScopeRoot   Scope = "root"
)

const (
	DefaultFallbackText = "Sorry, I don't have an answer for that."
	DefaultTopN         = 3
)

// Suggestion is a follow-up offered for the next turn.
type Suggestion struct {
	EntryID  string
	Question string
}

// Response describes the outcome of one turn
type Response struct {
	TurnID         string
	ConversationID string
	Text           string
	Matched        bool
	EntryID        string
	Score          float64
	Scope          Scope
	Suggestions    []Suggestion
	Mode           Mode
	Candidates     []match.Result // top ranked results of the answering scope
	State          store.State    // state as persisted by this turn
}

// Options configures a Controller
type Options struct {
	Holder        *kb.Holder
	Store         store.Store
	Engine        *match.Engine
	MinConfidence float64
	FallbackText  string
	TopN          int
	Logger        *slog.Logger
}

// Controller executes turns. It is safe for concurrent use; turns racing
// on the same conversation are serialized by the store's version check.
type Controller struct {
	holder        *kb.Holder
	store         store.Store
	engine        *match.Engine
	minConfidence float64
	fallback      string
	topN          int
	log           *slog.Logger
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Holder == nil || opts.Store == nil || opts.Engine == nil {
		return nil, fmt.Errorf("%w: dialog needs a knowledge base holder, store and engine", internalerr.ErrInvalidConfig)
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		return nil, fmt.Errorf("%w: min confidence %f outside [0,1]", internalerr.ErrInvalidConfig, opts.MinConfidence)
	}
	if opts.FallbackText == "" {
		opts.FallbackText = DefaultFallbackText
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		holder:        opts.Holder,
		store:         opts.Store,
		engine:        opts.Engine,
		minConfidence: opts.MinConfidence,
		fallback:      opts.FallbackText,
		topN:          opts.TopN,
		log:           opts.Logger,
	}, nil
}

// Turn handles one user message. The state is read once and written once.
// A read failure is logged and treated as a fresh conversation whose state
// overwrites the stored one; a write failure is returned as a *store.Error
// and the stored state is unchanged.
func (c *Controller) Turn(ctx context.Context, conversationID, text string) (Response, error) {
	start := time.Now()

	if strings.TrimSpace(conversationID) == "" {
		return Response{}, fmt.Errorf("%w: empty conversation id", internalerr.ErrInvalidInput)
	}
	base := c.holder.Current()
	if base == nil {
		return Response{}, fmt.Errorf("%w: no knowledge base loaded", internalerr.ErrInvalidConfig)
	}

	prev, found, err := c.store.Get(ctx, conversationID)
	readFailed := err != nil
	if readFailed {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		c.log.Warn("conversation state unavailable, starting at root",
			"conversation", conversationID, "error", err)
		found = false
	}
	if !found {
		prev = store.State{}
	}

	var (
		results []match.Result
		scope   = ScopeNone
	)

	if !prev.AtRoot() {
		results, err = c.engine.Resolve(ctx, text, base.Subset(prev.ActivePrompts), c.minConfidence)
		if err != nil {
			return Response{}, err
		}
		if len(results) > 0 {
			scope = ScopePrompt
		}
	}
	if len(results) == 0 {
		results, err = c.engine.Resolve(ctx, text, base.All(), c.minConfidence)
		if err != nil {
			return Response{}, err
		}
		if len(results) > 0 {
			scope = ScopeRoot
		}
	}

	next := prev.Clone()
	next.Turns++
	next.ActivePrompts = nil
	if readFailed {
		// The stored version is unknown, so the write replaces the record.
		next.Version = store.AnyVersion
	}

	best, matched := match.Best(results)
	if matched {
		next.LastEntryID = best.EntryID
		if len(best.FollowUps) > 0 {
			next.ActivePrompts = append([]string(nil), best.FollowUps...)
		}
	}

	saved, err := c.store.Put(ctx, conversationID, next)
	if err != nil {
		return Response{}, store.Wrap("put", conversationID, err)
	}

	resp := Response{
		TurnID:         ulid.Make().String(),
		ConversationID: conversationID,
		Text:           c.fallback,
		Matched:        matched,
		Scope:          scope,
		Mode:           ModeRoot,
		State:          saved,
	}
	if matched {
		resp.Text = best.Answer
		resp.EntryID = best.EntryID
		resp.Score = best.Score
		resp.Suggestions = suggestions(base, best.FollowUps)
		resp.Candidates = results[:min(len(results), c.topN)]
	}
	if !saved.AtRoot() {
		resp.Mode = ModeInPrompt
	}

	c.log.Debug("turn",
		"conversation", conversationID,
		"turn_id", resp.TurnID,
		"matched", matched,
		"entry", resp.EntryID,
		"score", resp.Score,
		"scope", string(scope),
		"mode", string(resp.Mode),
		"duration", time.Since(start))

	return resp, nil
}

// suggestions lists follow-ups in their declared order, each shown with its
// first phrasing.
func suggestions(base *kb.KnowledgeBase, ids []string) []Suggestion {
	out := make([]Suggestion, 0, len(ids))
	for _, id := range ids {
		e, ok := base.Lookup(id)
		if !ok {
			continue
		}
		s := Suggestion{EntryID: id}
		if len(e.Questions) > 0 {
			s.Question = e.Questions[0]
		}
		out = append(out, s)
	}
	return out
}
