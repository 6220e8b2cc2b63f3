package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimledger/internal/model"
)

func TestRecorder_ClaimEvents(t *testing.T) {
	r := New()

	r.ClaimEvents("alpha", model.EventClaimCreated, 3)
	r.ClaimEvents("alpha", model.EventClaimCreated, 0)
	r.ClaimEvents("alpha", model.EventClaimSuperseded, 1)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.claimEvents.WithLabelValues("alpha", "claim_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.claimEvents.WithLabelValues("alpha", "claim_superseded")))
}

func TestRecorder_LLMRequestOutcome(t *testing.T) {
	r := New()

	r.LLMRequest("openai", "synthesis", nil, time.Second)
	r.LLMRequest("openai", "synthesis", errors.New("boom"), time.Second)
	r.LLMRequest("openai", "synthesis", errors.New("boom"), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("openai", "synthesis", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("openai", "synthesis", "error")))
}

func TestRecorder_MultiQuery(t *testing.T) {
	r := New()
	result := &model.MultiBrainQueryResult{
		Traceability: model.TraceabilitySummary{
			OverallCompletenessRatio: 0.5,
			DegradedBrains:           []string{"a", "b"},
		},
	}

	r.MultiQuery(result, nil)
	r.MultiQuery(nil, errors.New("input"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.degradedSources))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	r.ClaimEvents("a", model.EventClaimCreated, 1)
	r.ObserveTrack("a", time.Second)
	r.LLMRequest("p", "q", nil, time.Second)
	r.MultiQuery(nil, nil)

	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ClaimEvents("alpha", model.EventProvenanceWarning, 2)
	path := filepath.Join(t.TempDir(), "claimledger.prom")

	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data),
		`claimledger_claim_events_total{brain="alpha",event_type="provenance_warning"} 2`))
}
