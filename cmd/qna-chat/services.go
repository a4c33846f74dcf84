package main

import (
	"context"
	"log/slog"

	"github.com/samber/do"
	"github.com/samber/oops"

	"github.com/cognicore/qnabot/pkg/qna"
	"github.com/cognicore/qnabot/pkg/qna/config"
	"github.com/cognicore/qnabot/pkg/qna/kb"
	"github.com/cognicore/qnabot/pkg/qna/rank"
	"github.com/cognicore/qnabot/pkg/qna/store"
	"github.com/cognicore/qnabot/pkg/qna/store/memstore"
	"github.com/cognicore/qnabot/pkg/qna/store/postgres"
	"github.com/cognicore/qnabot/pkg/qna/store/sqlite"
	"github.com/cognicore/qnabot/pkg/qna/transport"
)

var _ do.Shutdownable = (*stateStore)(nil)

// stateStore closes the configured store when the injector shuts down.
type stateStore struct {
	store.Store
}

func (s *stateStore) Shutdown() error {
	return s.Close()
}

// newInjector registers every service of the chat host. cfg and ctx are
// provided as values; the rest is built lazily on first use.
func newInjector(ctx context.Context, cfg *config.Config) *do.Injector {
	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)

	do.Provide(di, newComponents)
	do.Provide(di, newHolder)
	do.Provide(di, newScorer)
	do.Provide(di, newStateStore)
	do.Provide(di, newBot)
	do.Provide(di, newTransport)
	return di
}

func newComponents(di *do.Injector) (*config.Components, error) {
	loader := config.NewLoader(do.MustInvoke[*config.Config](di))
	comp, err := loader.Load()
	if err != nil {
		return nil, oops.In("components").Wrap(err)
	}
	return comp, nil
}

func newHolder(di *do.Injector) (*kb.Holder, error) {
	cfg := do.MustInvoke[*config.Config](di)

	base, err := config.LoadKnowledgeBase(cfg.KB.Path)
	if err != nil {
		return nil, oops.In("kb").With("path", cfg.KB.Path).Wrapf(err, "failed to load knowledge base")
	}
	slog.Info("knowledge base loaded", "path", cfg.KB.Path, "entries", base.Len(), "version", base.Version())
	return kb.NewHolder(base), nil
}

func newScorer(di *do.Injector) (rank.Scorer, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	comp, err := do.Invoke[*config.Components](di)
	if err != nil {
		return nil, err
	}
	holder, err := do.Invoke[*kb.Holder](di)
	if err != nil {
		return nil, err
	}
	return config.NewScorer(ctx, cfg, comp, holder.Current())
}

func newStateStore(di *do.Injector) (*stateStore, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, oops.In("store").With("driver", cfg.Store.Driver).Wrapf(err, "failed to open store")
	}
	return &stateStore{Store: st}, nil
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.OpenSQLite(ctx, cfg.Path)
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDriver, cfg.DSN)
	default:
		return memstore.New(), nil
	}
}

func newBot(di *do.Injector) (*qna.Bot, error) {
	cfg := do.MustInvoke[*config.Config](di)

	holder, err := do.Invoke[*kb.Holder](di)
	if err != nil {
		return nil, err
	}
	scorer, err := do.Invoke[rank.Scorer](di)
	if err != nil {
		return nil, err
	}
	st, err := do.Invoke[*stateStore](di)
	if err != nil {
		return nil, err
	}

	return qna.New(qna.Options{
		Holder:        holder,
		Store:         st.Store,
		Scorer:        scorer,
		MinConfidence: cfg.Match.Threshold(),
		FallbackText:  cfg.Dialog.FallbackText,
		TopN:          cfg.Match.TopN,
		Parallelism:   cfg.Match.Parallelism,
		Logger:        slog.Default().With("component", "dialog"),
	})
}

func newTransport(di *do.Injector) (*transport.Transport, error) {
	cfg := do.MustInvoke[*config.Config](di)

	bot, err := do.Invoke[*qna.Bot](di)
	if err != nil {
		return nil, err
	}
	return transport.New(bot, transport.Options{
		MaxAttempts:  cfg.Dialog.MaxAttempts,
		ApologyText:  cfg.Dialog.ApologyText,
		ExposeErrors: cfg.Dialog.ExposeErrors,
	}), nil
}
