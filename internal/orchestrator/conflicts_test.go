package orchestrator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/claimledger/internal/model"
)

func traced(id, text string) model.ClaimTraceItem {
	return model.ClaimTraceItem{ClaimID: id, ClaimText: text}
}

func source(name string, trace ...model.ClaimTraceItem) sourceResult {
	return sourceResult{result: model.PerBrainResult{BrainName: name}, trace: trace}
}

func TestBuildConflictCandidates(t *testing.T) {
	sources := []sourceResult{
		source("alpha",
			traced("clm_a1", "Policy iteration converges quickly"),
			traced("clm_a2", "Value iteration policy sweeps"),
		),
		source("beta",
			traced("clm_b1", "Policy iteration convergence is guaranteed"),
			traced("clm_b2", "policy   ITERATION converges quickly"),
		),
	}

	got := buildConflictCandidates(sources)
	var ids []string
	for _, c := range got {
		ids = append(ids, c.pairID+"="+c.claimA.ClaimID+"/"+c.claimB.ClaimID)
	}
	// identical text (after normalization) is never a candidate
	want := []string{"alpha__beta__1=clm_a1/clm_b1", "alpha__beta__2=clm_a2/clm_b1"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildConflictCandidates_TieBreakByClaimID(t *testing.T) {
	sources := []sourceResult{
		source("alpha",
			traced("clm_z", "reactor output doubles"),
			traced("clm_m", "reactor output halves"),
			traced("clm_a", "reactor output stable"),
		),
		source("beta", traced("clm_b", "reactor output varies")),
	}

	got := buildConflictCandidates(sources)
	if len(got) != maxPairsPerSourcePair {
		t.Fatalf("expected %d candidates, got %d", maxPairsPerSourcePair, len(got))
	}
	if got[0].claimA.ClaimID != "clm_a" || got[1].claimA.ClaimID != "clm_m" {
		t.Errorf("expected lexical tie-break, got %s then %s", got[0].claimA.ClaimID, got[1].claimA.ClaimID)
	}
}

func TestBuildConflictCandidates_Bounds(t *testing.T) {
	var many []model.ClaimTraceItem
	for i := range 10 {
		many = append(many, traced(string(rune('a'+i)), "shared tokens everywhere"))
	}
	sources := []sourceResult{
		source("alpha", many...),
		source("beta", traced("x", "shared tokens elsewhere")),
		source("gamma"),
	}

	got := buildConflictCandidates(sources)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates for the only traced pair, got %d", len(got))
	}
	for _, c := range got {
		if c.brainA != "alpha" || c.brainB != "beta" {
			t.Errorf("unexpected pair %s/%s", c.brainA, c.brainB)
		}
	}
}

func TestBuildConflictCandidates_NeedsTwoSharedTokens(t *testing.T) {
	sources := []sourceResult{
		source("alpha", traced("a", "Policy iteration converges")),
		source("beta", traced("b", "Policy convergence is guaranteed")),
	}
	if got := buildConflictCandidates(sources); len(got) != 0 {
		t.Errorf("expected no candidates with one shared token, got %d", len(got))
	}
}

func TestSummarizeTraceability(t *testing.T) {
	tests := []struct {
		name     string
		perBrain []model.PerBrainResult
		want     model.TraceabilitySummary
	}{
		{
			name: "empty",
			want: model.TraceabilitySummary{DegradedBrains: []string{}},
		},
		{
			name: "mixed",
			perBrain: []model.PerBrainResult{
				{BrainName: "a", TraceCompletenessRatio: 1},
				{BrainName: "b", TraceCompletenessRatio: 0.5},
				{BrainName: "c", TraceDegraded: true},
			},
			want: model.TraceabilitySummary{
				BrainsWithClaims:         2,
				BrainsWithoutClaims:      1,
				OverallCompletenessRatio: 0.5,
				DegradedBrains:           []string{"c"},
			},
		},
		{
			name: "degraded with low ratio still degraded",
			perBrain: []model.PerBrainResult{
				{BrainName: "a", TraceCompletenessRatio: 1},
				{BrainName: "b", TraceCompletenessRatio: 0.3333},
				{BrainName: "c", TraceDegraded: true},
			},
			want: model.TraceabilitySummary{
				BrainsWithClaims:         2,
				BrainsWithoutClaims:      1,
				OverallCompletenessRatio: 0.4444,
				DegradedBrains:           []string{"c"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, summarizeTraceability(tt.perBrain)); diff != "" {
				t.Errorf("summary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
