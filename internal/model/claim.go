package model

import (
	"strings"
	"time"
)

// ClaimStatus is the lifecycle state of a claim snapshot.
// Transitions only move forward: active -> superseded -> deleted.
type ClaimStatus string

const (
	ClaimStatusActive     ClaimStatus = "active"
	ClaimStatusSuperseded ClaimStatus = "superseded"
	ClaimStatusDeleted    ClaimStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusActive, ClaimStatusSuperseded, ClaimStatusDeleted:
		return true
	}
	return false
}

// rank orders statuses so callers can refuse backward transitions.
func (s ClaimStatus) rank() int {
	switch s {
	case ClaimStatusActive:
		return 0
	case ClaimStatusSuperseded:
		return 1
	case ClaimStatusDeleted:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s ClaimStatus) CanTransitionTo(next ClaimStatus) bool {
	return next.Valid() && s.Valid() && next.rank() >= s.rank()
}

// ParseClaimStatus parses a status name, case-insensitively.
func ParseClaimStatus(raw string) (ClaimStatus, bool) {
	s := ClaimStatus(normalizeLabel(raw))
	return s, s.Valid()
}

// Confidence is the confidence level attached to claims and answers
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceUncertain Confidence = "uncertain"
	ConfidenceNone      Confidence = "none" // no answer could be generated
)

// ParseConfidence parses a confidence level, case-insensitively.
func ParseConfidence(raw string) (Confidence, bool) {
	c := Confidence(normalizeLabel(raw))
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceUncertain, ConfidenceNone:
		return c, true
	}
	return "", false
}

// ConfidenceOr parses raw and falls back to def for unknown values.
func ConfidenceOr(raw string, def Confidence) Confidence {
	if c, ok := ParseConfidence(raw); ok {
		return c
	}
	return def
}

// ClaimSnapshot is the materialized, current view of one claim
type ClaimSnapshot struct {
	ClaimID              string      `json:"claim_id"`    // content-addressed, stable across passes
	RevisionID           string      `json:"revision_id"` // changes whenever content changes
	Status               ClaimStatus `json:"status"`
	BrainName            string      `json:"brain_name"`
	FilePath             string      `json:"file_path"`
	ClaimText            string      `json:"claim_text"`
	EvidenceQuote        string      `json:"evidence_quote"`
	SourceLocator        string      `json:"source_locator"` // chapter/section label or "unknown"
	Confidence           Confidence  `json:"confidence"`
	Tags                 []string    `json:"tags"`
	RelatedClaimIDs      []string    `json:"related_claim_ids"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	CreatedByRun         string      `json:"created_by_run"`
	UpdatedByRun         string      `json:"updated_by_run"`
	SupersedesRevisionID *string     `json:"supersedes_revision_id"`
	UserOverride         bool        `json:"user_override"` // owning file is user-editable
}

// HasTag reports whether the snapshot carries tag.
func (c ClaimSnapshot) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EventType names a ledger audit event
type EventType string

const (
	EventClaimCreated       EventType = "claim_created"
	EventClaimSuperseded    EventType = "claim_superseded"
	EventClaimCitedInAnswer EventType = "claim_cited_in_answer"
	EventProvenanceWarning  EventType = "provenance_warning"
)

// ClaimEvent is an append-only audit record. It is never mutated once written.
type ClaimEvent struct {
	EventID    string         `json:"event_id"`
	EventType  EventType      `json:"event_type"`
	Timestamp  time.Time      `json:"timestamp"`
	BrainName  string         `json:"brain_name"`
	RunID      string         `json:"run_id"`
	ClaimID    string         `json:"claim_id,omitempty"`
	RevisionID string         `json:"revision_id,omitempty"`
	FilePath   string         `json:"file_path,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// RunStatus values recorded in the run log
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunRecord describes one ingestion/enrichment/query execution
type RunRecord struct {
	RunID      string         `json:"run_id"`
	RunType    string         `json:"run_type"`
	BrainName  string         `json:"brain_name"`
	Objective  string         `json:"objective,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Model      string         `json:"model,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TrackSummary counts the outcome of reconciling one file against the ledger
type TrackSummary struct {
	Created    int `json:"created"`
	Unchanged  int `json:"unchanged"`
	Superseded int `json:"superseded"`
	Warnings   int `json:"warnings"`
}

func normalizeLabel(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
