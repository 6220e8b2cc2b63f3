package model

// QueryResult is a single-source answer produced by the language model
type QueryResult struct {
	Answer     string     `json:"answer"`
	Sources    []string   `json:"sources"` // brain files used to answer
	Confidence Confidence `json:"confidence"`
}

// FileSelection is the model's choice of files to read for a question
type FileSelection struct {
	Files     []string `json:"files"`
	Reasoning string   `json:"reasoning"`
}

// ClaimTraceItem is one ledger claim cited in support of an answer
type ClaimTraceItem struct {
	ClaimID       string     `json:"claim_id"`
	FilePath      string     `json:"file_path"`
	ClaimText     string     `json:"claim_text"`
	EvidenceQuote string     `json:"evidence_quote"`
	SourceLocator string     `json:"source_locator"`
	Confidence    Confidence `json:"confidence"`
	UserOverride  bool       `json:"user_override"`
}

// QueryTraceCompleteness reports how many answer statements resolve to traced claims
type QueryTraceCompleteness struct {
	TotalStatements   int     `json:"total_statements"`
	LinkedStatements  int     `json:"linked_statements"`
	CompletenessRatio float64 `json:"completeness_ratio"` // always within [0, 1]
}

// QueryAuditResult is an answer together with its claim trace
type QueryAuditResult struct {
	Answer            string                 `json:"answer"`
	Sources           []string               `json:"sources"`
	Confidence        Confidence             `json:"confidence"`
	ClaimTrace        []ClaimTraceItem       `json:"claim_trace"`
	TraceCompleteness QueryTraceCompleteness `json:"trace_completeness"`
	QueryRunID        string                 `json:"query_run_id"`
}
