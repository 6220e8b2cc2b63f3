package ledger

import (
	"errors"

	"github.com/ppiankov/claimledger/internal/model"
)

// FileResult is the outcome of reconciling one file inside a track run
type FileResult struct {
	FilePath string
	Summary  model.TrackSummary
	Err      error
}

// TrackFiles reconciles each knowledge-base-relative path under a single
// track run. A failing file does not stop the others; the run is marked
// failed with the first error. The returned error is reserved for run log
// failures.
func (s *Store) TrackFiles(paths []string, objective string) (string, []FileResult, error) {
	runID, err := s.StartRun(RunOptions{
		RunType:   RunTypeTrack,
		Objective: objective,
		Metadata:  map[string]any{"files": len(paths)},
	})
	if err != nil {
		return "", nil, err
	}

	results := make([]FileResult, 0, len(paths))
	var firstErr error
	for _, p := range paths {
		res := FileResult{FilePath: p}
		content, err := s.brain.ReadFile(p)
		if err == nil {
			res.Summary, err = s.TrackFileClaims(p, content, runID)
		}
		if err != nil {
			res.Err = err
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, res)
	}

	status, errText := model.RunStatusCompleted, ""
	if firstErr != nil {
		status, errText = model.RunStatusFailed, firstErr.Error()
	}
	if err := s.FinishRun(runID, RunTypeTrack, status, errText); err != nil {
		return runID, results, err
	}
	return runID, results, nil
}

// ProvenanceFailures returns the strict-mode provenance errors among results
func ProvenanceFailures(results []FileResult) []*ProvenanceError {
	var out []*ProvenanceError
	for _, r := range results {
		var perr *ProvenanceError
		if errors.As(r.Err, &perr) {
			out = append(out, perr)
		}
	}
	return out
}
