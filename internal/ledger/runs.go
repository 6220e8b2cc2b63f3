package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
)

// Run types recorded by this module
const (
	RunTypeTrack      = "track"
	RunTypeQuery      = "query"
	RunTypeMultiQuery = "multiquery"
)

// GenerateRunID returns a fresh identifier of the form <type>_<brain>_<hash>
func GenerateRunID(runType, brainName string) string {
	stamp := time.Now().Format("20060102150405.000000")
	return fmt.Sprintf("%s_%s_%s", runType, brainName, textutil.ShortHash(runType, brainName, stamp, uuid.NewString()))
}

// RunOptions describes a run being started
type RunOptions struct {
	RunType   string
	Objective string
	Provider  string
	Model     string
	Metadata  map[string]any
}

// StartRun appends a running record to the run log and returns its id
func (s *Store) StartRun(opts RunOptions) (string, error) {
	runID := GenerateRunID(opts.RunType, s.brain.Name())
	record := model.RunRecord{
		RunID:     runID,
		RunType:   opts.RunType,
		BrainName: s.brain.Name(),
		Objective: opts.Objective,
		Provider:  opts.Provider,
		Model:     opts.Model,
		StartedAt: s.now(),
		Status:    model.RunStatusRunning,
		Metadata:  opts.Metadata,
	}

	if err := s.withLock(func() error { return s.appendJSONL(RunsFile, record) }); err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

// FinishRun appends the terminal record of a run. errText is empty on success.
func (s *Store) FinishRun(runID, runType, status, errText string) error {
	now := s.now()
	record := model.RunRecord{
		RunID:      runID,
		RunType:    runType,
		BrainName:  s.brain.Name(),
		StartedAt:  now,
		FinishedAt: &now,
		Status:     status,
		Error:      errText,
	}

	return s.withLock(func() error {
		if started, ok := s.findRun(runID); ok {
			record.StartedAt = started.StartedAt
			record.Objective = started.Objective
			record.Provider = started.Provider
			record.Model = started.Model
		}
		if err := s.appendJSONL(RunsFile, record); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		return nil
	})
}

// ListRuns returns the latest record of every run, in the order runs were started
func (s *Store) ListRuns() ([]model.RunRecord, error) {
	var (
		order  []string
		latest = make(map[string]model.RunRecord)
	)
	err := s.readJSONL(RunsFile, func(line []byte) error {
		var r model.RunRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		if _, seen := latest[r.RunID]; !seen {
			order = append(order, r.RunID)
		}
		latest[r.RunID] = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	runs := make([]model.RunRecord, 0, len(order))
	for _, id := range order {
		runs = append(runs, latest[id])
	}
	return runs, nil
}

// findRun returns the first record logged for runID
func (s *Store) findRun(runID string) (model.RunRecord, bool) {
	var (
		found model.RunRecord
		ok    bool
	)
	_ = s.readJSONL(RunsFile, func(line []byte) error {
		if ok {
			return nil
		}
		var r model.RunRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		if r.RunID == runID {
			found, ok = r, true
		}
		return nil
	})
	return found, ok
}
