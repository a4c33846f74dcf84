package config

import (
	"context"

	"github.com/samber/oops"

	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/rank"
)

// NewScorer builds the scorer selected by match.scorer. An embedding scorer
// is warmed with base so the first turn does not embed every question.
func NewScorer(ctx context.Context, cfg *Config, comp *Components, base *kb.KnowledgeBase) (rank.Scorer, error) {
	switch cfg.Match.Scorer {
	case "embedding":
		embedder, err := rank.NewOpenAIEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Token, cfg.Embedding.Model)
		if err != nil {
			return nil, oops.In("scorer").With("model", cfg.Embedding.Model).Wrap(err)
		}
		scorer := rank.NewEmbedding(embedder)
		if base != nil {
			if err := scorer.Warm(ctx, base); err != nil {
				return nil, oops.In("scorer").With("kb_version", base.Version()).Wrapf(err, "failed to embed knowledge base")
			}
		}
		return scorer, nil
	default:
		return rank.NewLexical(comp.Tokenizer, cfg.Match.RankWeights()), nil
	}
}
