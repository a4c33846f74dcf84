package rank

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/singleflight"

	"github.com/cognicore/qnabot/pkg/qna/kb"
)

const (
	maxCachedQueries = 1024
	embedTimeout     = 30 * time.Second
)

// Embedder produces vector embeddings. embeddings.Embedder from langchaingo
// satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Embedding scores by cosine similarity of embeddings, mapped to [0,1].
// Question vectors are cached for the life of the scorer; query vectors are
// cached in a bounded map so one turn embeds its text once.
type Embedding struct {
	embedder Embedder

	mu        sync.RWMutex
	questions map[string][]float32
	queries   map[string][]float32

	group singleflight.Group
}

// NewEmbedding creates an embedding scorer.
func NewEmbedding(e Embedder) *Embedding {
	return &Embedding{
		embedder:  e,
		questions: make(map[string][]float32),
		queries:   make(map[string][]float32),
	}
}

// NewOpenAIEmbedder builds an OpenAI-compatible embedder.
func NewOpenAIEmbedder(baseURL, token, model string) (Embedder, error) {
	opts := []openai.Option{openai.WithToken(token)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if model != "" {
		opts = append(opts, openai.WithEmbeddingModel(model))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embedder, nil
}

// Warm embeds every question of base that is not cached yet, in one batch.
func (e *Embedding) Warm(ctx context.Context, base *kb.KnowledgeBase) error {
	var missing []string
	seen := make(map[string]struct{})

	e.mu.RLock()
	for _, entry := range base.All() {
		for _, q := range entry.Questions {
			if _, ok := e.questions[q]; ok {
				continue
			}
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			missing = append(missing, q)
		}
	}
	e.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, missing)
	if err != nil {
		return fmt.Errorf("embed questions: %w", err)
	}
	if len(vectors) != len(missing) {
		return fmt.Errorf("embed questions: got %d vectors for %d texts", len(vectors), len(missing))
	}

	e.mu.Lock()
	for i, q := range missing {
		e.questions[q] = vectors[i]
	}
	e.mu.Unlock()
	return nil
}

// Score implements Scorer.
func (e *Embedding) Score(ctx context.Context, query, question string) (float64, error) {
	qv, err := e.queryVector(ctx, query)
	if err != nil {
		return 0, err
	}
	cv, err := e.questionVector(ctx, question)
	if err != nil {
		return 0, err
	}

	cos, err := cosine(qv, cv)
	if err != nil {
		return 0, err
	}
	return clamp((cos + 1) / 2), nil
}

func (e *Embedding) questionVector(ctx context.Context, question string) ([]float32, error) {
	e.mu.RLock()
	v, ok := e.questions[question]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}

	return e.shared(ctx, "q\x00"+question, func(ctx context.Context) ([]float32, error) {
		vectors, err := e.embedder.EmbedDocuments(ctx, []string{question})
		if err != nil {
			return nil, fmt.Errorf("embed question: %w", err)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
		}
		e.mu.Lock()
		e.questions[question] = vectors[0]
		e.mu.Unlock()
		return vectors[0], nil
	})
}

func (e *Embedding) queryVector(ctx context.Context, query string) ([]float32, error) {
	e.mu.RLock()
	v, ok := e.queries[query]
	e.mu.RUnlock()
	if ok {
		return v, nil
	}

	return e.shared(ctx, "u\x00"+query, func(ctx context.Context) ([]float32, error) {
		vec, err := e.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		e.mu.Lock()
		if len(e.queries) >= maxCachedQueries {
			e.queries = make(map[string][]float32)
		}
		e.queries[query] = vec
		e.mu.Unlock()
		return vec, nil
	})
}

// shared runs embed once per key for all concurrent callers. The embed call
// is detached from the caller that started it and bounded by embedTimeout;
// each caller stops waiting when its own ctx is done.
func (e *Embedding) shared(ctx context.Context, key string, embed func(context.Context) ([]float32, error)) ([]float32, error) {
	ch := e.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), embedTimeout)
		defer cancel()
		return embed(callCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
