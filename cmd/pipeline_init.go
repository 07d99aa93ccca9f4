package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scrimworks/vendorvet/internal/discovery"
	"github.com/scrimworks/vendorvet/internal/ledger"
	"github.com/scrimworks/vendorvet/internal/vetting"
	anthropicpkg "github.com/scrimworks/vendorvet/pkg/anthropic"
	"github.com/scrimworks/vendorvet/pkg/babel"
	"github.com/scrimworks/vendorvet/pkg/perplexity"
)

// pipelineEnv holds the ledger, clients, and both pipelines needed by the
// vet/discover/serve commands.
type pipelineEnv struct {
	Ledger    ledger.Ledger
	Executor  *anthropicpkg.Executor
	Vetting   *vetting.Pipeline
	Discovery *discovery.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Ledger != nil {
		_ = pe.Ledger.Close()
	}
}

func initLedger(ctx context.Context) (ledger.Ledger, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "vendorvet.db"
		}
		return ledger.NewSQLite(dsn)
	case "postgres":
		return ledger.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipelines sets up the ledger, all API clients, and both pipelines.
// Callers should defer env.Close().
func initPipelines(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initLedger(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	exec := anthropicpkg.NewExecutor(anthropicClient, anthropicpkg.Models{
		Lite:     cfg.Anthropic.HaikuModel,
		Standard: cfg.Anthropic.SonnetModel,
		Deep:     cfg.Anthropic.OpusModel,
	}, anthropicpkg.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)))

	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
	)
	search := perplexity.NewSearcher(perplexityClient,
		perplexity.WithRateLimit(cfg.Perplexity.RPS),
		perplexity.WithSearchModels(perplexity.SearchModels{
			Lite: cfg.Perplexity.LiteModel,
			Deep: cfg.Perplexity.DeepModel,
		}),
	)

	vetOpts := []vetting.PipelineOption{
		vetting.WithLedger(st),
		vetting.WithConcurrency(cfg.Vetting.Concurrency),
		vetting.WithTaskTimeout(cfg.Vetting.TaskTimeout()),
	}

	// Babel document search is optional. Vetting research degrades to
	// web search only when credentials are absent.
	if cfg.Babel.Enabled() {
		var babelOpts []babel.Option
		if cfg.Babel.AuthURL != "" {
			babelOpts = append(babelOpts, babel.WithAuthURL(cfg.Babel.AuthURL))
		}
		if cfg.Babel.SearchURL != "" {
			babelOpts = append(babelOpts, babel.WithSearchURL(cfg.Babel.SearchURL))
		}
		babelClient := babel.NewClient(babel.Credentials{
			APIKey:   cfg.Babel.APIKey,
			Username: cfg.Babel.Username,
			Password: cfg.Babel.Password,
		}, babelOpts...)
		vetOpts = append(vetOpts, vetting.WithDocumentSearcher(babelClient))
		zap.L().Info("babel document search enabled")
	} else {
		zap.L().Debug("babel credentials not set, document search disabled")
	}

	vet := vetting.NewPipeline(exec, search, vetOpts...)
	disc := discovery.NewPipeline(exec, search, st,
		discovery.WithVerifyConcurrency(cfg.Discovery.VerifyConcurrency),
		discovery.WithTaskTimeout(cfg.Discovery.TaskTimeout()),
	)

	return &pipelineEnv{
		Ledger:    st,
		Executor:  exec,
		Vetting:   vet,
		Discovery: disc,
	}, nil
}
