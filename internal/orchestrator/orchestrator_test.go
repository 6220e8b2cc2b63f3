package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/llm/llmtest"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/model"
)

const question = "Does policy iteration converge?"

// seedBrain creates a knowledge base with facts/a.md. When tracked, the file
// is reconciled into the ledger so the source is ledger-backed.
func seedBrain(t *testing.T, dir, name, content string, tracked bool) {
	t.Helper()
	b, err := brain.New(dir, name)
	require.NoError(t, err)
	require.NoError(t, b.Initialize("study " + name))
	require.NoError(t, b.WriteFile("facts/a.md", content))
	if tracked {
		store := ledger.New(b, ledger.WithProvenance(model.ProvenanceOff))
		_, err := store.TrackFileClaims("facts/a.md", content, "track_seed")
		require.NoError(t, err)
	}
}

func scriptedFake() *llmtest.Fake {
	f := llmtest.New()
	f.Responses[llm.PurposeFileSelection] = `{"files": ["facts/a.md"], "reasoning": "only file"}`
	f.Responses[llm.PurposeAnswer] = `{"answer": "Policy iteration converges.", "sources": [], "confidence": "high"}`
	f.Responses[llm.PurposeSynthesis] = `{"answer": "Both sources agree it converges.", "confidence": "medium"}`
	f.Responses[llm.PurposeConflicts] = `{"items": [{"pair_id": "alpha__beta__1", "topic": "Convergence", "classification": "REFUTE", "rationale": "speed vs guarantee"}]}`
	return f
}

func newOrchestrator(dir string, fake llm.Provider, opts ...Option) *Orchestrator {
	factory := func(provider, model string) (llm.Provider, error) { return fake, nil }
	return New(dir, factory, opts...)
}

func baseRequest(names ...string) Request {
	return Request{
		Question:          question,
		SourceNames:       names,
		IncludeClaimTrace: true,
		IncludeConflicts:  true,
		MaxSources:        5,
		MaxFilesPerSource: 12,
	}
}

func TestQuery_DetectsConflictCandidates(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", true)
	fake := scriptedFake()

	result, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha", "beta"))
	require.NoError(t, err)

	require.Len(t, result.PerBrain, 2)
	for _, pb := range result.PerBrain {
		assert.False(t, pb.TraceDegraded, pb.BrainName)
		require.Len(t, pb.ClaimTrace, 1, pb.BrainName)
	}

	require.Len(t, result.Conflicts, 1)
	c := result.Conflicts[0]
	assert.Equal(t, "Convergence", c.Topic)
	assert.Equal(t, model.ConflictRefute, c.Classification)
	assert.Equal(t, []string{"alpha", "beta"}, c.BrainsInvolved)
	assert.Equal(t, []string{
		"alpha:" + result.PerBrain[0].ClaimTrace[0].ClaimID,
		"beta:" + result.PerBrain[1].ClaimTrace[0].ClaimID,
	}, c.Evidence)
	assert.Equal(t, "speed vs guarantee", c.Rationale)

	reqs := fake.Requests()
	var classify llm.Request
	for _, r := range reqs {
		if r.Purpose == llm.PurposeConflicts {
			classify = r
		}
	}
	assert.Contains(t, classify.UserPrompt, "PAIR_ID: alpha__beta__1\nBRAIN_A: alpha\nCLAIM_A: Policy iteration converges quickly\n")
	assert.Equal(t, 0.0, classify.Temperature)

	assert.Equal(t, "Both sources agree it converges.", result.Answer)
	assert.Equal(t, model.ConfidenceMedium, result.Confidence)
	assert.Equal(t, []string{"alpha:facts/a.md", "beta:facts/a.md"}, result.Sources)
	assert.True(t, strings.HasPrefix(result.QueryRunID, "multiquery_alpha_beta_"))
	assert.Empty(t, result.Warnings)
}

func TestQuery_TruncatesSources(t *testing.T) {
	dir := t.TempDir()
	names := make([]string, 0, 6)
	for i := 1; i <= 6; i++ {
		name := fmt.Sprintf("kb%d", i)
		names = append(names, name)
		if i <= 5 {
			seedBrain(t, dir, name, "- Some plain fact about things\n", false)
		}
	}
	fake := scriptedFake()

	result, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest(names...))
	require.NoError(t, err)

	require.Len(t, result.PerBrain, 5)
	assert.Equal(t, []string{"Received 6 brains; truncated to max_brains=5."}, result.Warnings)
	assert.Equal(t, 5, fake.Count(llm.PurposeFileSelection))
	assert.True(t, strings.HasPrefix(result.QueryRunID, "multiquery_kb1_kb2_kb3_"))
}

func TestQuery_DegradedAggregation(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", false)

	result, err := newOrchestrator(dir, scriptedFake()).Query(context.Background(), baseRequest("alpha", "beta"))
	require.NoError(t, err)

	beta := result.PerBrain[1]
	assert.True(t, beta.TraceDegraded)
	assert.Equal(t, 0.0, beta.TraceCompletenessRatio)
	assert.Equal(t, model.ConfidenceHigh, beta.Confidence)
	assert.Equal(t, []string{"beta:facts/a.md"}, beta.Sources)

	assert.Equal(t, model.TraceabilitySummary{
		BrainsWithClaims:         1,
		BrainsWithoutClaims:      1,
		OverallCompletenessRatio: 0.5,
		DegradedBrains:           []string{"beta"},
	}, result.Traceability)
	assert.Empty(t, result.Conflicts)
}

func TestQuery_VersioningOffDegradesEverySource(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	fake := scriptedFake()

	result, err := newOrchestrator(dir, fake, WithVersioning(false)).Query(context.Background(), baseRequest("alpha"))
	require.NoError(t, err)

	assert.True(t, result.PerBrain[0].TraceDegraded)
	assert.Equal(t, []string{"alpha"}, result.Traceability.DegradedBrains)

	b, err := brain.New(dir, "alpha")
	require.NoError(t, err)
	runs, err := ledger.New(b).ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestQuery_NoRelevantFilesPlaceholder(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	fake := scriptedFake()
	fake.Responses[llm.PurposeFileSelection] = `{"files": []}`

	result, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha"))
	require.NoError(t, err)

	pb := result.PerBrain[0]
	assert.Equal(t, NoFilesExcerpt, pb.AnswerExcerpt)
	assert.Equal(t, model.ConfidenceNone, pb.Confidence)
	assert.True(t, pb.TraceDegraded)
	assert.Empty(t, pb.Sources)
	assert.Equal(t, 0, fake.Count(llm.PurposeAnswer))
	assert.Equal(t, 1, fake.Count(llm.PurposeSynthesis))
}

func TestQuery_FileTruncationWarning(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	b, err := brain.New(dir, "alpha")
	require.NoError(t, err)
	require.NoError(t, b.WriteFile("facts/b.md", "- Another fact worth reading\n"))

	fake := scriptedFake()
	fake.Responses[llm.PurposeFileSelection] = `{"files": ["facts/a.md", "facts/b.md"]}`

	req := baseRequest("alpha")
	req.MaxFilesPerSource = 1
	result, err := newOrchestrator(dir, fake).Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"Brain 'alpha' selected 2 files; truncated to 1."}, result.Warnings)
	assert.Equal(t, []string{"alpha:facts/a.md"}, result.PerBrain[0].Sources)
}

func TestQuery_ExcludeClaimTraceKeepsRatios(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", true)

	req := baseRequest("alpha", "beta")
	req.IncludeClaimTrace = false
	result, err := newOrchestrator(dir, scriptedFake()).Query(context.Background(), req)
	require.NoError(t, err)

	for _, pb := range result.PerBrain {
		assert.NotNil(t, pb.ClaimTrace)
		assert.Empty(t, pb.ClaimTrace)
		assert.Equal(t, 1.0, pb.TraceCompletenessRatio)
	}
	// conflicts still see the audited traces
	assert.Len(t, result.Conflicts, 1)
}

func TestQuery_ClassificationFailsSoft(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", true)
	fake := scriptedFake()
	fake.Errors[llm.PurposeConflicts] = errors.New("classifier offline")

	result, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha", "beta"))
	require.NoError(t, err)
	assert.NotNil(t, result.Conflicts)
	assert.Empty(t, result.Conflicts)
}

func TestQuery_UnknownClassificationIsAmbiguous(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", true)
	fake := scriptedFake()
	fake.Responses[llm.PurposeConflicts] = `{"items": [{"pair_id": "alpha__beta__1", "topic": "", "classification": "contradicts"}, {"pair_id": "nope", "classification": "support"}]}`

	result, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha", "beta"))
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, model.ConflictAmbiguous, result.Conflicts[0].Classification)
	assert.Equal(t, DefaultConflictTopic, result.Conflicts[0].Topic)
}

func TestQuery_ConflictsDisabled(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", true)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", true)
	fake := scriptedFake()

	req := baseRequest("alpha", "beta")
	req.IncludeConflicts = false
	result, err := newOrchestrator(dir, fake).Query(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, 0, fake.Count(llm.PurposeConflicts))
}

func TestQuery_SynthesisFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	fake := scriptedFake()
	fake.Errors[llm.PurposeSynthesis] = errors.New("synthesis down")

	_, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis down")
	assert.Equal(t, 1, fake.Count(llm.PurposeSynthesis))
}

func TestQuery_SourceErrorNamesSource(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	fake := scriptedFake()
	fake.Errors[llm.PurposeAnswer] = errors.New("answer down")

	_, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source alpha")
}

func TestQuery_MissingSources(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	fake := scriptedFake()

	_, err := newOrchestrator(dir, fake).Query(context.Background(), baseRequest("ghost", "alpha", "phantom"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotFound)

	var notFound *SourceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"ghost", "phantom"}, notFound.Missing)
	assert.Equal(t, "Brains not found: ghost, phantom", err.Error())
	assert.Empty(t, fake.Requests())
}

func TestQuery_InputErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		reason Reason
		msg    string
	}{
		{name: "empty question", mutate: func(r *Request) { r.Question = "   " }, reason: ReasonEmptyQuestion, msg: "Question is required."},
		{name: "no sources", mutate: func(r *Request) { r.SourceNames = nil }, reason: ReasonNoSources, msg: "At least one brain name is required."},
		{name: "zero max sources", mutate: func(r *Request) { r.MaxSources = 0 }, reason: ReasonInvalidLimits, msg: "max_brains and max_files_per_brain must be > 0."},
		{name: "negative max files", mutate: func(r *Request) { r.MaxFilesPerSource = -1 }, reason: ReasonInvalidLimits, msg: "max_brains and max_files_per_brain must be > 0."},
		{name: "blank names", mutate: func(r *Request) { r.SourceNames = []string{" ", ""} }, reason: ReasonNoValidSources, msg: "No valid brain names provided."},
		{name: "path name", mutate: func(r *Request) { r.SourceNames = []string{"../etc"} }, reason: ReasonInvalidSourceName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest("alpha")
			tt.mutate(&req)
			fake := scriptedFake()

			_, err := newOrchestrator(t.TempDir(), fake).Query(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.reason, inputErr.Reason)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
			assert.Empty(t, fake.Requests())
		})
	}
}

func TestQuery_DeduplicatesNames(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	seedBrain(t, dir, "beta", "- Policy iteration convergence is guaranteed\n", false)

	result, err := newOrchestrator(dir, scriptedFake()).Query(context.Background(), baseRequest("alpha", " alpha ", "beta", "alpha"))
	require.NoError(t, err)
	require.Len(t, result.PerBrain, 2)
	assert.Equal(t, "alpha", result.PerBrain[0].BrainName)
	assert.Equal(t, "beta", result.PerBrain[1].BrainName)
}

func TestQuery_ParallelKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	names := []string{"kb1", "kb2", "kb3", "kb4"}
	for _, name := range names {
		seedBrain(t, dir, name, "- Policy iteration converges quickly\n", true)
	}

	sequential, err := newOrchestrator(dir, scriptedFake()).Query(context.Background(), baseRequest(names...))
	require.NoError(t, err)
	parallel, err := newOrchestrator(dir, scriptedFake(), WithWorkers(4)).Query(context.Background(), baseRequest(names...))
	require.NoError(t, err)

	for i := range names {
		assert.Equal(t, names[i], parallel.PerBrain[i].BrainName)
		assert.Equal(t, sequential.PerBrain[i].Sources, parallel.PerBrain[i].Sources)
		assert.Equal(t, sequential.PerBrain[i].TraceCompletenessRatio, parallel.PerBrain[i].TraceCompletenessRatio)
	}
	assert.Equal(t, sequential.Sources, parallel.Sources)
}

func TestQuery_RecordsMetrics(t *testing.T) {
	dir := t.TempDir()
	seedBrain(t, dir, "alpha", "- Policy iteration converges quickly\n", false)
	rec := metrics.New()

	_, err := newOrchestrator(dir, scriptedFake(), WithMetrics(rec)).Query(context.Background(), baseRequest("alpha"))
	require.NoError(t, err)
	_, err = newOrchestrator(dir, scriptedFake(), WithMetrics(rec)).Query(context.Background(), Request{})
	require.Error(t, err)

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "claimledger_multi_queries_total" {
			found = true
			assert.Len(t, mf.GetMetric(), 2)
		}
	}
	assert.True(t, found)
}
