package ledger

import (
	"maps"
	"slices"
	"time"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/extract"
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
)

// SupersededNotPresent is the reason recorded when a re-extraction drops a claim
const SupersededNotPresent = "not_present_in_latest_file_revision"

// ClaimID derives the content-addressed id of a claim extracted from filePath
func ClaimID(brainName, filePath string, c extract.Candidate) string {
	return "clm_" + textutil.ShortHash(brainName, filePath, c.Text, c.EvidenceQuote, c.SourceLocator)
}

// successorID derives the id that replaces a retired claim when the same
// content is extracted again.
func successorID(claimID, revisionID string) string {
	return "clm_" + textutil.ShortHash(claimID, revisionID)
}

func revisionID(claimID, runID string, at time.Time) string {
	return "rev_" + textutil.ShortHash(claimID, runID, at.Format(time.RFC3339Nano))
}

// resolveClaimID follows the successor chain from id until it reaches an
// active or unused id, so a retired snapshot is never reactivated. It also
// returns the last retired snapshot passed on the way, if any.
func resolveClaimID(current map[string]model.ClaimSnapshot, id string) (string, *model.ClaimSnapshot) {
	var retired *model.ClaimSnapshot
	for range len(current) + 1 {
		c, ok := current[id]
		if !ok || c.Status == model.ClaimStatusActive {
			return id, retired
		}
		retired = &c
		id = successorID(c.ClaimID, c.RevisionID)
	}
	return id, retired
}

// TrackFileClaims reconciles the claims extracted from content against the
// active claims recorded for filePath: matching claims are refreshed in
// place, new ones are created, and those no longer present are superseded.
//
// In strict provenance mode a *ProvenanceError is returned alongside the
// summary when extraction raised warnings. The snapshot is written first.
func (s *Store) TrackFileClaims(filePath, content, runID string) (model.TrackSummary, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveTrack(s.brain.Name(), time.Since(start)) }()

	var (
		summary  model.TrackSummary
		warnings []string
	)

	err := s.withLock(func() error {
		current, err := s.loadCurrentClaims()
		if err != nil {
			return err
		}

		activeForFile := make(map[string]model.ClaimSnapshot)
		for id, c := range current {
			if c.FilePath == filePath && c.Status == model.ClaimStatusActive {
				activeForFile[id] = c
			}
		}

		result := s.extractor.Extract(content)
		warnings = result.Warnings
		now := s.now()
		present := make(map[string]bool, len(result.Claims))

		for _, cand := range result.Claims {
			id, retired := resolveClaimID(current, ClaimID(s.brain.Name(), filePath, cand))
			if present[id] {
				continue
			}
			present[id] = true

			if existing, ok := current[id]; ok {
				existing.ClaimText = cand.Text
				existing.EvidenceQuote = cand.EvidenceQuote
				existing.SourceLocator = cand.SourceLocator
				existing.Confidence = result.Confidence
				existing.Tags = nonNil(result.Tags)
				existing.UpdatedAt = now
				existing.UpdatedByRun = runID
				current[id] = existing
				summary.Unchanged++
				continue
			}

			snap := model.ClaimSnapshot{
				ClaimID:         id,
				RevisionID:      revisionID(id, runID, now),
				Status:          model.ClaimStatusActive,
				BrainName:       s.brain.Name(),
				FilePath:        filePath,
				ClaimText:       cand.Text,
				EvidenceQuote:   cand.EvidenceQuote,
				SourceLocator:   cand.SourceLocator,
				Confidence:      result.Confidence,
				Tags:            nonNil(result.Tags),
				RelatedClaimIDs: []string{},
				CreatedAt:       now,
				UpdatedAt:       now,
				CreatedByRun:    runID,
				UpdatedByRun:    runID,
				UserOverride:    brain.IsUserArea(filePath),
			}
			payload := map[string]any{
				"claim_text":     snap.ClaimText,
				"source_locator": snap.SourceLocator,
				"user_override":  snap.UserOverride,
			}
			if retired != nil {
				rev := retired.RevisionID
				snap.SupersedesRevisionID = &rev
				payload["supersedes_claim_id"] = retired.ClaimID
			}
			current[id] = snap
			summary.Created++

			if err := s.emit(model.ClaimEvent{
				EventType:  model.EventClaimCreated,
				RunID:      runID,
				ClaimID:    id,
				RevisionID: snap.RevisionID,
				FilePath:   filePath,
				Payload:    payload,
			}); err != nil {
				return err
			}
		}

		for _, id := range slices.Sorted(maps.Keys(activeForFile)) {
			old := activeForFile[id]
			if present[id] {
				continue
			}
			if !old.Status.CanTransitionTo(model.ClaimStatusSuperseded) {
				continue
			}
			old.Status = model.ClaimStatusSuperseded
			old.UpdatedAt = now
			old.UpdatedByRun = runID
			current[id] = old
			summary.Superseded++

			if err := s.emit(model.ClaimEvent{
				EventType:  model.EventClaimSuperseded,
				RunID:      runID,
				ClaimID:    id,
				RevisionID: old.RevisionID,
				FilePath:   filePath,
				Payload:    map[string]any{"reason": SupersededNotPresent},
			}); err != nil {
				return err
			}
		}

		if err := s.saveCurrentClaims(current); err != nil {
			return err
		}

		if s.provenance == model.ProvenanceOff {
			return nil
		}
		for _, w := range warnings {
			if err := s.emit(model.ClaimEvent{
				EventType: model.EventProvenanceWarning,
				RunID:     runID,
				FilePath:  filePath,
				Payload:   map[string]any{"message": w},
			}); err != nil {
				return err
			}
			summary.Warnings++
		}
		return nil
	})
	if err != nil {
		return summary, err
	}

	s.logger.Debug("tracked file claims",
		"brain", s.brain.Name(),
		"file", filePath,
		"run_id", runID,
		"created", summary.Created,
		"unchanged", summary.Unchanged,
		"superseded", summary.Superseded,
		"warnings", summary.Warnings,
	)

	if s.provenance == model.ProvenanceStrict && len(warnings) > 0 {
		return summary, &ProvenanceError{FilePath: filePath, Warning: warnings[0], Summary: summary}
	}
	return summary, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
