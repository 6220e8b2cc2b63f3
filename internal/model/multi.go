package model

// PerBrainResult is the contribution of one knowledge base to a multi-source answer
type PerBrainResult struct {
	BrainName              string           `json:"brain_name"`
	AnswerExcerpt          string           `json:"answer_excerpt"`
	Confidence             Confidence       `json:"confidence"`
	Sources                []string         `json:"sources"` // prefixed "brain:path"
	ClaimTrace             []ClaimTraceItem `json:"claim_trace"`
	TraceDegraded          bool             `json:"trace_degraded"` // no ledger backing
	TraceCompletenessRatio float64          `json:"trace_completeness_ratio"`
}

// ConflictClassification labels the relation between two claims from different sources
type ConflictClassification string

const (
	ConflictSupport   ConflictClassification = "support"
	ConflictRefute    ConflictClassification = "refute"
	ConflictAmbiguous ConflictClassification = "ambiguous"
)

// NormalizeConflictClassification maps unrecognized labels to ambiguous.
func NormalizeConflictClassification(raw string) ConflictClassification {
	switch c := ConflictClassification(normalizeLabel(raw)); c {
	case ConflictSupport, ConflictRefute, ConflictAmbiguous:
		return c
	}
	return ConflictAmbiguous
}

// ConflictItem is one classified cross-source claim pair
type ConflictItem struct {
	Topic          string                 `json:"topic"`
	BrainsInvolved []string               `json:"brains_involved"`
	Classification ConflictClassification `json:"classification"`
	Evidence       []string               `json:"evidence"` // "brain:claim_id"
	Rationale      string                 `json:"rationale,omitempty"`
}

// TraceabilitySummary rolls up how well-traced a multi-source answer is
type TraceabilitySummary struct {
	BrainsWithClaims         int      `json:"brains_with_claims"`
	BrainsWithoutClaims      int      `json:"brains_without_claims"`
	OverallCompletenessRatio float64  `json:"overall_completeness_ratio"`
	DegradedBrains           []string `json:"degraded_brains"`
}

// MultiBrainQueryResult is the orchestrated answer across knowledge bases
type MultiBrainQueryResult struct {
	Answer       string              `json:"answer"`
	Confidence   Confidence          `json:"confidence"`
	PerBrain     []PerBrainResult    `json:"per_brain"`
	Conflicts    []ConflictItem      `json:"conflicts"`
	Sources      []string            `json:"sources"`
	Traceability TraceabilitySummary `json:"traceability"`
	QueryRunID   string              `json:"query_run_id"`
	Warnings     []string            `json:"warnings"`
}
