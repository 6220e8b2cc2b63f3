// Package orchestrator fans a question out to several knowledge bases,
// synthesizes one answer from their findings, flags cross-source conflicts
// among the cited claims, and reports how well the answer is traced.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/query"
	"github.com/ppiankov/claimledger/internal/worker"
)

// NoFilesExcerpt is the answer excerpt of a source where no file was selected
const NoFilesExcerpt = "No relevant files found for this brain."

// ProviderFactory builds the provider for one request. Empty arguments
// select the configured defaults.
type ProviderFactory func(provider, model string) (llm.Provider, error)

// Request is one multi-source query
type Request struct {
	Question          string
	SourceNames       []string
	Provider          string
	Model             string
	IncludeClaimTrace bool
	IncludeConflicts  bool
	MaxSources        int
	MaxFilesPerSource int
}

// Orchestrator runs multi-source queries over the knowledge bases in one directory
type Orchestrator struct {
	brainsDir  string
	providers  ProviderFactory
	versioning bool
	pool       *worker.Pool
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithVersioning toggles ledger-backed tracing. When off every source is degraded.
func WithVersioning(enabled bool) Option {
	return func(o *Orchestrator) { o.versioning = enabled }
}

// WithWorkers sets how many sources are queried at once
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.pool = worker.NewPool(n) }
}

// WithMetrics sets the metrics recorder
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator over the knowledge bases under brainsDir
func New(brainsDir string, providers ProviderFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		brainsDir:  brainsDir,
		providers:  providers,
		versioning: true,
		pool:       worker.NewPool(1),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sourceResult is one source's contribution plus the trace kept for
// conflict detection after the caller's trace preference is applied
type sourceResult struct {
	result  model.PerBrainResult
	trace   []model.ClaimTraceItem
	warning string
}

// Query answers req across its sources
func (o *Orchestrator) Query(ctx context.Context, req Request) (*model.MultiBrainQueryResult, error) {
	result, err := o.query(ctx, req)
	o.metrics.MultiQuery(result, err)
	return result, err
}

func (o *Orchestrator) query(ctx context.Context, req Request) (*model.MultiBrainQueryResult, error) {
	names, warnings, err := validate(req)
	if err != nil {
		return nil, err
	}

	brains, err := o.resolve(names)
	if err != nil {
		return nil, err
	}

	provider, err := o.providers(req.Provider, req.Model)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	querier := query.New(provider, query.WithModel(req.Model), query.WithLogger(o.logger))

	o.logger.Info("multi-source query", "sources", names, "workers", o.pool.Workers())

	sources, err := o.collect(ctx, querier, brains, req.Question, req.MaxFilesPerSource)
	if err != nil {
		return nil, err
	}

	perBrain := make([]model.PerBrainResult, len(sources))
	for i, s := range sources {
		perBrain[i] = s.result
		if s.warning != "" {
			warnings = append(warnings, s.warning)
		}
	}

	answer, confidence, err := synthesize(ctx, provider, req.Model, req.Question, perBrain)
	if err != nil {
		return nil, err
	}

	conflicts := []model.ConflictItem{}
	if req.IncludeConflicts {
		conflicts = o.classifyConflicts(ctx, provider, req.Model, req.Question, sources)
	}

	if !req.IncludeClaimTrace {
		for i := range perBrain {
			perBrain[i].ClaimTrace = []model.ClaimTraceItem{}
		}
	}

	return &model.MultiBrainQueryResult{
		Answer:       answer,
		Confidence:   confidence,
		PerBrain:     perBrain,
		Conflicts:    conflicts,
		Sources:      uniqueSources(perBrain),
		Traceability: summarizeTraceability(perBrain),
		QueryRunID:   ledger.GenerateRunID(ledger.RunTypeMultiQuery, strings.Join(names[:min(3, len(names))], "_")),
		Warnings:     warnings,
	}, nil
}

// validate checks limits, trims and deduplicates names, and caps them at MaxSources
func validate(req Request) ([]string, []string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, nil, inputError(ReasonEmptyQuestion, "Question is required.")
	}
	if len(req.SourceNames) == 0 {
		return nil, nil, inputError(ReasonNoSources, "At least one brain name is required.")
	}
	if req.MaxSources <= 0 || req.MaxFilesPerSource <= 0 {
		return nil, nil, inputError(ReasonInvalidLimits, "max_brains and max_files_per_brain must be > 0.")
	}

	seen := make(map[string]struct{}, len(req.SourceNames))
	var names []string
	for _, raw := range req.SourceNames {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, nil, inputError(ReasonNoValidSources, "No valid brain names provided.")
	}

	warnings := []string{}
	if len(names) > req.MaxSources {
		warnings = append(warnings, fmt.Sprintf("Received %d brains; truncated to max_brains=%d.", len(names), req.MaxSources))
		names = names[:req.MaxSources]
	}
	return names, warnings, nil
}

// resolve opens every named knowledge base, reporting all missing ones at once
func (o *Orchestrator) resolve(names []string) ([]*brain.Brain, error) {
	brains := make([]*brain.Brain, 0, len(names))
	var missing []string
	for _, name := range names {
		b, err := brain.New(o.brainsDir, name)
		if err != nil {
			return nil, inputError(ReasonInvalidSourceName, "Invalid brain name %q: %v", name, err)
		}
		if !b.Exists() {
			missing = append(missing, name)
			continue
		}
		brains = append(brains, b)
	}
	if len(missing) > 0 {
		return nil, &SourceNotFoundError{Missing: missing}
	}
	return brains, nil
}

// collect queries every source on the worker pool. Results keep input order.
func (o *Orchestrator) collect(ctx context.Context, q *query.Querier, brains []*brain.Brain, question string, maxFiles int) ([]sourceResult, error) {
	results := worker.Map(ctx, o.pool, brains, func(ctx context.Context, b *brain.Brain) (sourceResult, error) {
		return o.collectSource(ctx, q, b, question, maxFiles)
	})

	out := make([]sourceResult, len(results))
	for i, r := range results {
		if r.Error != nil {
			return nil, fmt.Errorf("source %s: %w", r.Item.Name(), r.Error)
		}
		out[i] = r.Value
	}
	return out, nil
}

func (o *Orchestrator) collectSource(ctx context.Context, q *query.Querier, b *brain.Brain, question string, maxFiles int) (sourceResult, error) {
	sel, err := q.SelectRelevantFiles(ctx, b, question)
	if err != nil {
		return sourceResult{}, err
	}

	var out sourceResult
	files := sel.Files
	if len(files) > maxFiles {
		out.warning = fmt.Sprintf("Brain '%s' selected %d files; truncated to %d.", b.Name(), len(files), maxFiles)
		files = files[:maxFiles]
	}

	if len(files) == 0 {
		out.result = model.PerBrainResult{
			BrainName:     b.Name(),
			AnswerExcerpt: NoFilesExcerpt,
			Confidence:    model.ConfidenceNone,
			Sources:       []string{},
			ClaimTrace:    []model.ClaimTraceItem{},
			TraceDegraded: true,
		}
		return out, nil
	}

	store := ledger.New(b, ledger.WithLogger(o.logger), ledger.WithMetrics(o.metrics))
	if o.versioning && store.HasClaims() {
		audit, err := q.AnswerWithAudit(ctx, store, question, files)
		if err != nil {
			return sourceResult{}, err
		}
		out.trace = audit.ClaimTrace
		out.result = model.PerBrainResult{
			BrainName:              b.Name(),
			AnswerExcerpt:          audit.Answer,
			Confidence:             audit.Confidence,
			Sources:                prefixSources(b.Name(), audit.Sources),
			ClaimTrace:             audit.ClaimTrace,
			TraceDegraded:          false,
			TraceCompletenessRatio: audit.TraceCompleteness.CompletenessRatio,
		}
		return out, nil
	}

	result, err := q.AnswerFromBrain(ctx, b, question, files)
	if err != nil {
		return sourceResult{}, err
	}
	paths := result.Sources
	if len(paths) == 0 {
		paths = files
	}
	out.result = model.PerBrainResult{
		BrainName:     b.Name(),
		AnswerExcerpt: result.Answer,
		Confidence:    result.Confidence,
		Sources:       prefixSources(b.Name(), paths),
		ClaimTrace:    []model.ClaimTraceItem{},
		TraceDegraded: true,
	}
	return out, nil
}

func prefixSources(brainName string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = brainName + ":" + p
	}
	return out
}

func uniqueSources(perBrain []model.PerBrainResult) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, item := range perBrain {
		for _, src := range item.Sources {
			if _, ok := seen[src]; ok {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}
