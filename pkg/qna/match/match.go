// Package match ranks knowledge-base entries against user text.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/qnabot/pkg/qna/internalerr"
	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/rank"
)

// DefaultParallelism bounds concurrent Scorer calls per Resolve.
const DefaultParallelism = 8

// Result is one ranked candidate answer
type Result struct {
	EntryID   string
	Score     float64
	Answer    string
	FollowUps []string
	Question  string // best-matching phrasing
	Ordinal   int
	Metadata  map[string]string
}

// ScoringError reports a Scorer failure for a specific entry.
type ScoringError struct {
	EntryID  string
	Question string
	Err      error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("score entry %q: %v", e.EntryID, e.Err)
}

// Unwrap returns the scorer error.
func (e *ScoringError) Unwrap() []error {
	return []error{internalerr.ErrScoring, e.Err}
}

// Engine resolves queries against candidate entries
type Engine struct {
	scorer      rank.Scorer
	parallelism int
}

// Options configures an Engine
type Options struct {
	Scorer      rank.Scorer
	Parallelism int
}

// New creates an Engine with the given scorer
func New(opts Options) *Engine {
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &Engine{
		scorer:      opts.Scorer,
		parallelism: opts.Parallelism,
	}
}

type scored struct {
	entry    kb.Entry
	position int
	score    float64
	question string
}

// Resolve scores every candidate by its best phrasing, drops those below
// minConfidence and returns the rest ordered by score descending. Equal
// scores keep knowledge-base load order. An empty result means no match.
func (e *Engine) Resolve(ctx context.Context, query string, candidates []kb.Entry, minConfidence float64) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	results := make([]scored, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for i, entry := range candidates {
		g.Go(func() error {
			best, question, err := e.bestScore(gctx, query, entry)
			if err != nil {
				return err
			}
			results[i] = scored{entry: entry, position: i, score: best, question: question}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r.score >= minConfidence {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		if kept[i].entry.Ordinal != kept[j].entry.Ordinal {
			return kept[i].entry.Ordinal < kept[j].entry.Ordinal
		}
		return kept[i].position < kept[j].position
	})

	out := make([]Result, len(kept))
	for i, r := range kept {
		out[i] = Result{
			EntryID:   r.entry.ID,
			Score:     r.score,
			Answer:    r.entry.Answer,
			FollowUps: r.entry.FollowUps,
			Question:  r.question,
			Ordinal:   r.entry.Ordinal,
			Metadata:  r.entry.Metadata,
		}
	}
	return out, nil
}

// bestScore returns the highest score across the entry's phrasings. The first
// phrasing wins ties.
func (e *Engine) bestScore(ctx context.Context, query string, entry kb.Entry) (float64, string, error) {
	best := -1.0
	var bestQuestion string

	for _, q := range entry.Questions {
		if err := ctx.Err(); err != nil {
			return 0, "", err
		}

		s, err := e.scorer.Score(ctx, query, q)
		if err != nil {
			if ctx.Err() != nil {
				return 0, "", ctx.Err()
			}
			return 0, "", &ScoringError{EntryID: entry.ID, Question: q, Err: err}
		}
		if math.IsNaN(s) {
			return 0, "", &ScoringError{EntryID: entry.ID, Question: q, Err: fmt.Errorf("score is NaN")}
		}
		s = math.Max(0, math.Min(1, s))

		if s > best {
			best = s
			bestQuestion = q
		}
	}

	if best < 0 {
		best = 0
	}
	return best, bestQuestion, nil
}

// Best returns the top result, if any.
func Best(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	return results[0], true
}
