package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ctrise/grantmatch/internal/annotate"
	"github.com/ctrise/grantmatch/internal/cache"
	"github.com/ctrise/grantmatch/internal/pipeline"
	"github.com/ctrise/grantmatch/internal/rank"
	"github.com/ctrise/grantmatch/internal/source"
	"github.com/ctrise/grantmatch/internal/table"
	anthropicpkg "github.com/ctrise/grantmatch/pkg/anthropic"
	"github.com/ctrise/grantmatch/pkg/grantsgov"
	"github.com/ctrise/grantmatch/pkg/jina"
	"github.com/ctrise/grantmatch/pkg/perplexity"
)

// env holds the initialized clients, table, and pipeline shared by the
// refresh/analyze/serve commands.
type env struct {
	Table    *table.Table
	Pipeline *pipeline.Pipeline
	Search   *source.SearchSource // nil unless perplexity is configured
	Cache    *cache.EmbeddingCache
}

// Close releases resources held by the environment.
func (e *env) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initEnv validates config for the given mode and wires everything up.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tab, err := table.Load(cfg.Table.Path)
	if err != nil {
		return nil, err
	}

	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithModel(cfg.Jina.Model),
	)

	rankOpts := []rank.Option{
		rank.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Jina.RPS), 1)),
	}

	var embCache *cache.EmbeddingCache
	if cfg.Cache.Path != "" {
		embCache, err = cache.Open(cfg.Cache.Path)
		if err != nil {
			zap.L().Warn("embedding cache unavailable, continuing without it", zap.Error(err))
		} else if err := embCache.Migrate(ctx); err != nil {
			zap.L().Warn("embedding cache migration failed, continuing without it", zap.Error(err))
			_ = embCache.Close()
			embCache = nil
		} else {
			rankOpts = append(rankOpts, rank.WithCache(embCache, cfg.Jina.Model))
		}
	}

	ranker := rank.New(jinaClient, rankOpts...)

	var annotator *annotate.Annotator
	if cfg.Anthropic.Key != "" {
		annotator = annotate.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	} else {
		zap.L().Debug("GRANTMATCH_ANTHROPIC_KEY not set, rationale generation disabled")
	}

	var searchSrc *source.SearchSource
	if cfg.Perplexity.Key != "" {
		pplx := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		searchSrc = source.NewSearch(pplx, cfg.Mission.Focus)
	}

	src, err := selectSource(searchSrc)
	if err != nil {
		if embCache != nil {
			_ = embCache.Close()
		}
		return nil, err
	}

	return &env{
		Table:    tab,
		Pipeline: pipeline.New(src, ranker, annotator, tab, cfg.Mission.Text),
		Search:   searchSrc,
		Cache:    embCache,
	}, nil
}

// selectSource picks the configured discovery strategy. searchSrc may be
// nil when no perplexity key is set; modes that never fetch batches
// (analyze, serve) tolerate a nil source.
func selectSource(searchSrc *source.SearchSource) (source.Source, error) {
	switch cfg.Source.Strategy {
	case "search":
		if searchSrc == nil {
			return nil, nil
		}
		return searchSrc, nil
	case "generative":
		return source.NewGenerative(
			anthropicpkg.NewClient(cfg.Anthropic.Key),
			cfg.Anthropic.Model,
			cfg.Mission.Focus,
		), nil
	case "registry":
		return source.NewRegistry(
			grantsgov.NewClient(grantsgov.WithBaseURL(cfg.GrantsGov.BaseURL)),
			cfg.Source.Keyword,
		), nil
	default:
		return nil, eris.Errorf("unknown source strategy %q", cfg.Source.Strategy)
	}
}
