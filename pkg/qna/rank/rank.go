package rank

import (
	"context"

	"github.com/cognicore/qnabot/pkg/qna/ingest"
	"github.com/cognicore/qnabot/pkg/qna/kb"
)

// Scorer rates how well query matches one question phrasing.
//
// Implementations must be deterministic for identical inputs, safe for
// concurrent use and return a value in [0,1] where higher means a stronger
// match.
type Scorer interface {
	Score(ctx context.Context, query, question string) (float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, query, question string) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, query, question string) (float64, error) {
	return f(ctx, query, question)
}

// Weights defines the lexical scoring weights
type Weights struct {
	Jaccard  float64 // token set overlap
	Coverage float64 // share of question tokens present in the query
	Bigram   float64 // adjacent-pair overlap
	Exact    float64 // normalized query equals the phrasing
}

// DefaultWeights favours token overlap and coverage.
func DefaultWeights() Weights {
	return Weights{
		Jaccard:  0.4,
		Coverage: 0.4,
		Bigram:   0.1,
		Exact:    0.1,
	}
}

func (w Weights) sum() float64 {
	return w.Jaccard + w.Coverage + w.Bigram + w.Exact
}

// Lexical scores by token overlap after tokenizer normalization.
//
// score = (α·jaccard + β·coverage + γ·bigram + δ·exact) / (α+β+γ+δ)
type Lexical struct {
	tokenizer *ingest.Tokenizer
	weights   Weights
}

// NewLexical creates a lexical scorer. A nil tokenizer uses one without
// stopwords; non-positive weights fall back to DefaultWeights.
func NewLexical(tokenizer *ingest.Tokenizer, w Weights) *Lexical {
	if tokenizer == nil {
		tokenizer = ingest.NewTokenizer(nil)
	}
	if w.sum() <= 0 || w.Jaccard < 0 || w.Coverage < 0 || w.Bigram < 0 || w.Exact < 0 {
		w = DefaultWeights()
	}
	return &Lexical{tokenizer: tokenizer, weights: w}
}

// Score implements Scorer.
func (l *Lexical) Score(ctx context.Context, query, question string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.ScoreWithBreakdown(query, question).Total, nil
}

// Breakdown provides the weighted components of a lexical score
type Breakdown struct {
	Jaccard  float64
	Coverage float64
	Bigram   float64
	Exact    float64
	Total    float64
}

// ScoreWithBreakdown calculates the score with its weighted components.
func (l *Lexical) ScoreWithBreakdown(query, question string) Breakdown {
	qTokens := l.tokenizer.Tokenize(query)
	cTokens := l.tokenizer.Tokenize(question)
	if len(qTokens) == 0 || len(cTokens) == 0 {
		return Breakdown{}
	}

	jac := jaccard(qTokens, cTokens)
	cov := coverage(qTokens, cTokens)

	qBigrams := ingest.Bigrams(qTokens)
	cBigrams := ingest.Bigrams(cTokens)
	bigram := jac
	if len(qBigrams) > 0 || len(cBigrams) > 0 {
		bigram = jaccard(qBigrams, cBigrams)
	}

	exact := 0.0
	if kb.NormalizeQuestion(query) == kb.NormalizeQuestion(question) {
		exact = 1
	}

	sum := l.weights.sum()
	b := Breakdown{
		Jaccard:  l.weights.Jaccard * jac / sum,
		Coverage: l.weights.Coverage * cov / sum,
		Bigram:   l.weights.Bigram * bigram / sum,
		Exact:    l.weights.Exact * exact / sum,
	}
	b.Total = clamp(b.Jaccard + b.Coverage + b.Bigram + b.Exact)
	return b
}

// jaccard calculates Jaccard similarity between two string slices
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	aSet := toSet(a)
	bSet := toSet(b)

	intersection := 0
	for s := range aSet {
		if _, ok := bSet[s]; ok {
			intersection++
		}
	}

	union := len(aSet) + len(bSet) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// coverage is the fraction of distinct question tokens found in the query.
func coverage(query, question []string) float64 {
	qSet := toSet(query)
	cSet := toSet(question)
	if len(cSet) == 0 {
		return 0
	}
	hit := 0
	for s := range cSet {
		if _, ok := qSet[s]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(cSet))
}

func toSet(in []string) map[string]struct{} {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	return set
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
