// Package query answers questions against a single knowledge base: the
// model picks the relevant files, related files are pulled in through the
// link graph, and the answer is optionally audited against the ledger.
package query

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/model"
)

// MaxSelectedFiles is the selection size requested from the model
const MaxSelectedFiles = 10

// ExpansionDepth is the number of link hops followed from selected files
const ExpansionDepth = 1

const selectionSystemPrompt = `You are a knowledge navigator. Given a question and a brain structure,
select which files would be most relevant to answer the question.

Only select files that are likely to contain relevant information.
You can select up to 10 files.`

const selectionSchema = `{"files": ["relative/path.md", ...], "reasoning": "why these files"}`

const answerSystemPrompt = `You answer questions using only the knowledge base files provided.
Cite the files you relied on in square brackets, e.g. [facts/reactor.md].
If the files do not contain the answer, say so and use confidence "none".
Never invent facts that are not supported by the files.`

const answerSchema = `{"answer": "the answer", "sources": ["relative/path.md", ...], "confidence": "high|medium|low|uncertain|none"}`

// Querier runs single-source queries through a language model
type Querier struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger
}

// Option configures a Querier
type Option func(*Querier)

// WithModel overrides the provider's configured model
func WithModel(m string) Option {
	return func(q *Querier) { q.model = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(q *Querier) { q.logger = l }
}

// New creates a Querier backed by provider
func New(provider llm.Provider, opts ...Option) *Querier {
	q := &Querier{
		provider: provider,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Provider returns the underlying provider
func (q *Querier) Provider() llm.Provider { return q.provider }

// Model returns the model override, empty when the provider default is used
func (q *Querier) Model() string { return q.model }

type answerPayload struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence string   `json:"confidence"`
}

// SelectRelevantFiles asks the model which files of b can answer question.
// Paths the model invents are dropped; an empty knowledge base yields an
// empty selection without a model call.
func (q *Querier) SelectRelevantFiles(ctx context.Context, b *brain.Brain, question string) (model.FileSelection, error) {
	files, err := b.ListFiles()
	if err != nil {
		return model.FileSelection{}, err
	}
	if len(files) == 0 {
		return model.FileSelection{Files: []string{}}, nil
	}

	userPrompt := fmt.Sprintf("## Question\n%s\n\n## Available Files\n%s\nWhich files should I read to answer this question?\n",
		question, groupByDirectory(files))

	var sel model.FileSelection
	err = q.provider.Generate(ctx, llm.Request{
		Purpose:      llm.PurposeFileSelection,
		SystemPrompt: selectionSystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       selectionSchema,
		Model:        q.model,
		Temperature:  0.3,
		Cacheable:    true,
	}, &sel)
	if err != nil {
		return model.FileSelection{}, fmt.Errorf("select files in %s: %w", b.Name(), err)
	}

	known := make(map[string]struct{}, len(files))
	for _, f := range files {
		known[f] = struct{}{}
	}
	kept := make([]string, 0, len(sel.Files))
	seen := make(map[string]struct{}, len(sel.Files))
	for _, f := range sel.Files {
		f = strings.TrimPrefix(strings.TrimSpace(f), "./")
		if _, ok := known[f]; !ok {
			q.logger.Debug("dropping unknown file from selection", "brain", b.Name(), "file", f)
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		kept = append(kept, f)
	}
	sel.Files = kept
	return sel, nil
}

// AnswerFromBrain answers question from the selected files of b plus the
// files they link to.
func (q *Querier) AnswerFromBrain(ctx context.Context, b *brain.Brain, question string, selected []string) (model.QueryResult, error) {
	expanded := ExpandRelated(b, selected, ExpansionDepth)
	if added := len(expanded) - len(selected); added > 0 {
		q.logger.Debug("graph expansion added related files", "brain", b.Name(), "added", added)
	}

	var contents strings.Builder
	for _, f := range expanded {
		content, err := b.ReadFile(f)
		if err != nil || content == "" {
			continue
		}
		fmt.Fprintf(&contents, "\n### %s\n%s\n", f, content)
	}

	userPrompt := fmt.Sprintf("## Question\n%s\n\n## Relevant Knowledge Base Files\n%s\n## Original Objective Response (for context)\n%s\n\n---\n\nPlease answer the question using the information from these files.\n",
		question, contents.String(), b.Response())

	var payload answerPayload
	err := q.provider.Generate(ctx, llm.Request{
		Purpose:      llm.PurposeAnswer,
		SystemPrompt: answerSystemPrompt,
		UserPrompt:   userPrompt,
		Schema:       answerSchema,
		Model:        q.model,
		Temperature:  0.5,
	}, &payload)
	if err != nil {
		return model.QueryResult{}, fmt.Errorf("answer from %s: %w", b.Name(), err)
	}

	return model.QueryResult{
		Answer:     strings.TrimSpace(payload.Answer),
		Sources:    nonEmpty(payload.Sources),
		Confidence: model.ConfidenceOr(payload.Confidence, model.ConfidenceUncertain),
	}, nil
}

// AnswerWithAudit answers question from selected and traces the answer
// back to ledger claims. The whole exchange is recorded as a query run.
func (q *Querier) AnswerWithAudit(ctx context.Context, store *ledger.Store, question string, selected []string) (*model.QueryAuditResult, error) {
	runID, err := store.StartRun(ledger.RunOptions{
		RunType:   ledger.RunTypeQuery,
		Objective: question,
		Provider:  q.provider.Name(),
		Model:     q.model,
		Metadata:  map[string]any{"selected_files": selected},
	})
	if err != nil {
		return nil, err
	}

	audit, err := q.answerAndAudit(ctx, store, question, selected, runID)
	if err != nil {
		if ferr := store.FinishRun(runID, ledger.RunTypeQuery, model.RunStatusFailed, err.Error()); ferr != nil {
			q.logger.Warn("finish run failed", "run_id", runID, "error", ferr)
		}
		return nil, err
	}
	if err := store.FinishRun(runID, ledger.RunTypeQuery, model.RunStatusCompleted, ""); err != nil {
		return nil, err
	}
	return audit, nil
}

func (q *Querier) answerAndAudit(ctx context.Context, store *ledger.Store, question string, selected []string, runID string) (*model.QueryAuditResult, error) {
	result, err := q.AnswerFromBrain(ctx, store.Brain(), question, selected)
	if err != nil {
		return nil, err
	}
	return store.BuildQueryAudit(question, result, selected, runID)
}

// groupByDirectory renders files as "### dir/" sections, root files under "root/"
func groupByDirectory(files []string) string {
	groups := make(map[string][]string)
	for _, f := range files {
		dir := "root"
		if i := strings.Index(f, "/"); i >= 0 {
			dir = f[:i]
		}
		groups[dir] = append(groups[dir], f)
	}

	dirs := make([]string, 0, len(groups))
	for d := range groups {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var sb strings.Builder
	for _, d := range dirs {
		fmt.Fprintf(&sb, "\n### %s/\n", d)
		for _, f := range groups[d] {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}
	return sb.String()
}

func nonEmpty(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, path.Clean(p))
		}
	}
	return out
}
