package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/cache"
	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/orchestrator"
	"github.com/ppiankov/claimledger/internal/worker"
)

// app is the wiring shared by the commands of one invocation
type app struct {
	cfg     *model.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newApp() (*app, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		logger:  newLogger(os.Stderr, verbose),
		metrics: metrics.New(),
	}, nil
}

// brain opens an existing knowledge base
func (a *app) brain(name string) (*brain.Brain, error) {
	b, err := brain.New(a.cfg.BrainsDir, name)
	if err != nil {
		return nil, err
	}
	if !b.Exists() {
		return nil, fmt.Errorf("brain %q in %s: %w", name, a.cfg.BrainsDir, brain.ErrNotFound)
	}
	return b, nil
}

// store opens the ledger of an existing knowledge base
func (a *app) store(name string) (*ledger.Store, error) {
	b, err := a.brain(name)
	if err != nil {
		return nil, err
	}
	return ledger.New(b,
		ledger.WithProvenance(a.cfg.Claims.Provenance),
		ledger.WithLogger(a.logger),
		ledger.WithMetrics(a.metrics),
	), nil
}

// providers builds language-model providers from the llm config, with
// per-call provider and model overrides. Every provider shares one
// response cache and one rate limiter.
func (a *app) providers() orchestrator.ProviderFactory {
	responses := cache.New(a.cfg.Cache)
	limiter := worker.NewLimiter(a.cfg.RateLimiting.RequestsPerSecond, a.cfg.RateLimiting.BurstSize)

	return func(provider, modelName string) (llm.Provider, error) {
		lc := a.cfg.LLM
		if provider != "" && provider != lc.Provider {
			// the configured key and endpoint belong to the configured provider
			lc.Provider, lc.APIKey, lc.BaseURL = provider, "", ""
		}
		if modelName != "" {
			lc.Model = modelName
		}

		pc := llm.ConfigFromModel(lc)
		p, err := llm.NewProvider(pc)
		if err != nil {
			return nil, err
		}
		observed := llm.Observed(p, a.metrics, a.logger)
		return llm.Cached(llm.RateLimited(observed, limiter), responses, a.cfg.Cache.DiskTTL, pc.Model), nil
	}
}

// orchestrator builds the multi-source orchestrator from config
func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.cfg.BrainsDir, a.providers(),
		orchestrator.WithVersioning(a.cfg.Claims.Versioning),
		orchestrator.WithWorkers(a.cfg.MultiQuery.Workers),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithLogger(a.logger),
	)
}

// flushMetrics writes the textfile export when one is configured
func (a *app) flushMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to write metrics textfile", "path", a.cfg.Metrics.Textfile, "error", err)
	}
}
