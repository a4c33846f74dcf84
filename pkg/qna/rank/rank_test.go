package rank

import (
	"context"
	"math"
	"testing"

	"github.com/cognicore/qnabot/pkg/qna/ingest"
)

func newTestLexical() *Lexical {
	return NewLexical(ingest.NewTokenizer([]string{"what", "are", "your", "is", "the"}), DefaultWeights())
}

func TestLexicalExactMatch(t *testing.T) {
	scorer := newTestLexical()

	score, err := scorer.Score(context.Background(), "Weekend Hours", "weekend hours")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("exact phrasing should score 1, got %f", score)
	}
}

func TestLexicalStopwordsIgnored(t *testing.T) {
	scorer := newTestLexical()

	b := scorer.ScoreWithBreakdown("what are your hours", "hours")
	if b.Exact != 0 {
		t.Errorf("exact component should be 0, got %f", b.Exact)
	}
	if math.Abs(b.Total-0.9) > 1e-9 {
		t.Errorf("expected 0.9, got %f (%+v)", b.Total, b)
	}
}

func TestLexicalNoOverlap(t *testing.T) {
	scorer := newTestLexical()

	score, _ := scorer.Score(context.Background(), "unrelated gibberish", "weekend hours")
	if score != 0 {
		t.Errorf("expected 0, got %f", score)
	}
}

func TestLexicalBlankQuery(t *testing.T) {
	scorer := newTestLexical()

	score, err := scorer.Score(context.Background(), "   ", "hours")
	if err != nil {
		t.Fatalf("blank query should not error: %v", err)
	}
	if score != 0 {
		t.Errorf("blank query should score 0, got %f", score)
	}
}

func TestLexicalRange(t *testing.T) {
	scorer := newTestLexical()
	pairs := [][2]string{
		{"weekend hours", "hours"},
		{"hours hours hours", "hours"},
		{"open on the weekend", "weekend hours"},
		{"price of a ticket", "ticket price"},
	}

	for _, p := range pairs {
		score, err := scorer.Score(context.Background(), p[0], p[1])
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if score < 0 || score > 1 {
			t.Errorf("score for %q/%q out of range: %f", p[0], p[1], score)
		}
	}
}

func TestLexicalDeterministic(t *testing.T) {
	scorer := newTestLexical()
	first, _ := scorer.Score(context.Background(), "weekend opening hours", "weekend hours")
	for i := 0; i < 10; i++ {
		again, _ := scorer.Score(context.Background(), "weekend opening hours", "weekend hours")
		if again != first {
			t.Fatalf("score changed between calls: %f vs %f", first, again)
		}
	}
}

func TestLexicalCancelledContext(t *testing.T) {
	scorer := newTestLexical()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := scorer.Score(ctx, "hours", "hours"); err == nil {
		t.Error("expected context error")
	}
}

func TestNewLexicalInvalidWeights(t *testing.T) {
	scorer := NewLexical(nil, Weights{Jaccard: -1, Coverage: 1})
	if scorer.weights != DefaultWeights() {
		t.Errorf("negative weights should fall back to defaults, got %+v", scorer.weights)
	}
}

func TestJaccard(t *testing.T) {
	if got := jaccard([]string{"a", "b"}, []string{"b", "c"}); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Errorf("expected 1/3, got %f", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Errorf("empty sets should be 0, got %f", got)
	}
}

func TestScorerFunc(t *testing.T) {
	var s Scorer = ScorerFunc(func(ctx context.Context, query, question string) (float64, error) {
		return 0.5, nil
	})
	if got, _ := s.Score(context.Background(), "a", "b"); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
}
