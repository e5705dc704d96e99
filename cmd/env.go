package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tastebase/capture-cli/internal/cost"
	"github.com/tastebase/capture-cli/internal/extract"
	"github.com/tastebase/capture-cli/internal/ledger"
	"github.com/tastebase/capture-cli/internal/photo"
	"github.com/tastebase/capture-cli/internal/provider"
	"github.com/tastebase/capture-cli/internal/refdb"
	anthropicpkg "github.com/tastebase/capture-cli/pkg/anthropic"
	openrouterpkg "github.com/tastebase/capture-cli/pkg/openrouter"
)

// extractEnv holds the initialized stores, provider registry, and
// orchestrator shared by the extract and serve commands.
type extractEnv struct {
	Ledger       ledger.Store
	Refdb        refdb.Store
	Matcher      *refdb.Matcher
	Registry     *provider.Registry
	Orchestrator *extract.Orchestrator
	PhotoOpts    photo.Options
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Refdb != nil {
		_ = e.Refdb.Close()
	}
	if e.Ledger != nil {
		_ = e.Ledger.Close()
	}
}

// initLedger opens the extraction ledger per config and migrates it.
func initLedger(ctx context.Context) (ledger.Store, error) {
	var (
		st  ledger.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "capture.db"
		}
		st, err = ledger.NewSQLite(dsn)
	case "postgres":
		st, err = ledger.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate ledger")
	}
	return st, nil
}

// initRefdb opens the wine reference catalog per config and migrates it.
// It shares the configured database with the ledger, under its own tables.
func initRefdb(ctx context.Context) (refdb.Store, error) {
	var (
		st  refdb.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "capture.db"
		}
		st, err = refdb.NewSQLite(dsn)
	case "postgres":
		st, err = refdb.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate refdb")
	}
	return st, nil
}

// initExtract sets up the stores, registers all providers, and builds the
// orchestrator. Callers should defer env.Close().
func initExtract(ctx context.Context) (*extractEnv, error) {
	led, err := initLedger(ctx)
	if err != nil {
		return nil, err
	}

	ref, err := initRefdb(ctx)
	if err != nil {
		_ = led.Close()
		return nil, err
	}

	// Every provider is registered; ones missing credentials or binaries
	// report themselves unavailable and fail attempts without being called.
	reg := provider.NewRegistry()

	var anthClient anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		anthClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("CAPTURE_ANTHROPIC_KEY not set, anthropic provider unavailable")
	}
	reg.Register(provider.NewAnthropicProvider(anthClient, cfg.Anthropic.Model))

	var orClient openrouterpkg.Client
	if cfg.OpenRouter.Key != "" {
		orClient = openrouterpkg.NewClient(cfg.OpenRouter.Key)
	} else {
		zap.L().Debug("CAPTURE_OPENROUTER_KEY not set, openrouter provider unavailable")
	}
	reg.Register(provider.NewOpenRouterProvider(orClient, cfg.OpenRouter.Model))

	reg.Register(provider.NewTesseractProvider(cfg.Tesseract.Path, cfg.Tesseract.Languages, cfg.Tesseract.TessdataDir))

	rates, err := cost.LoadRates(cfg.Pricing.RatesPath)
	if err != nil {
		_ = ref.Close()
		_ = led.Close()
		return nil, eris.Wrap(err, "load pricing table")
	}

	matcher := refdb.NewMatcher(ref, cfg.Match.SimilarityThreshold, cfg.Match.MaxCandidates)

	orch := extract.NewOrchestrator(reg, led, matcher, cost.NewCalculator(rates), extract.Options{
		DefaultProvider:  cfg.Extract.DefaultProvider,
		FallbackEnabled:  cfg.Extract.FallbackEnabled,
		FallbackProvider: cfg.Extract.FallbackProvider,
		Timeout:          time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
	})

	zap.L().Info("extraction environment ready",
		zap.Strings("providers", reg.Names()),
		zap.String("default_provider", cfg.Extract.DefaultProvider),
		zap.String("store_driver", cfg.Store.Driver),
	)

	return &extractEnv{
		Ledger:       led,
		Refdb:        ref,
		Matcher:      matcher,
		Registry:     reg,
		Orchestrator: orch,
		PhotoOpts: photo.Options{
			MaxEdge:     cfg.Image.MaxEdge,
			JPEGQuality: cfg.Image.JPEGQuality,
		},
	}, nil
}
