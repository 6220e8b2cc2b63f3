package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/model"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	b, err := brain.New(t.TempDir(), "alpha")
	require.NoError(t, err)
	require.NoError(t, b.Initialize("test objective"))

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return New(b, append([]Option{WithClock(tick)}, opts...)...)
}

func countEvents(t *testing.T, s *Store, eventType model.EventType) int {
	t.Helper()
	events, err := s.Events()
	require.NoError(t, err)
	n := 0
	for _, ev := range events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func writeMeta(t *testing.T, s *Store, rel, content string) {
	t.Helper()
	path := filepath.Join(s.Brain().Path(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestListClaims_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)

	_, err := s.TrackFileClaims("facts/a.md", "---\ntags: [physics]\n---\n- The reactor starts at dawn\n", "r1")
	require.NoError(t, err)
	_, err = s.TrackFileClaims("facts/b.md", "- Turbines spin after the reactor\n- Coolant flows through the core\n", "r1")
	require.NoError(t, err)

	all, err := s.ListClaims(ClaimFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "facts/b.md", all[0].FilePath, "most recently updated first")
	assert.Equal(t, "facts/a.md", all[2].FilePath)

	byFile, err := s.ListClaims(ClaimFilter{FilePath: "facts/a.md"})
	require.NoError(t, err)
	assert.Len(t, byFile, 1)

	byTag, err := s.ListClaims(ClaimFilter{Tag: "physics"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "The reactor starts at dawn", byTag[0].ClaimText)

	byQuery, err := s.ListClaims(ClaimFilter{Query: "REACTOR"})
	require.NoError(t, err)
	assert.Len(t, byQuery, 2)

	superseded, err := s.ListClaims(ClaimFilter{Status: model.ClaimStatusSuperseded})
	require.NoError(t, err)
	assert.Empty(t, superseded)

	page, err := s.ListClaims(ClaimFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ClaimID, page[0].ClaimID)

	beyond, err := s.ListClaims(ClaimFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestGetClaim_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetClaim("clm_missing")

	assert.True(t, errors.Is(err, ErrClaimNotFound))
}

func TestGetClaimHistory_Chronological(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TrackFileClaims("facts/a.md", "- Bravo claim goes away soon\n", "r1")
	require.NoError(t, err)
	claims, err := s.ListClaims(ClaimFilter{})
	require.NoError(t, err)
	id := claims[0].ClaimID

	_, err = s.TrackFileClaims("facts/a.md", "- Charlie claim replaces it\n", "r2")
	require.NoError(t, err)

	history, err := s.GetClaimHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.EventClaimCreated, history[0].EventType)
	assert.Equal(t, model.EventClaimSuperseded, history[1].EventType)
	assert.True(t, history[0].Timestamp.Before(history[1].Timestamp))
	assert.Equal(t, "alpha", history[1].BrainName)
	assert.Equal(t, "r2", history[1].RunID)
}

func TestHasClaims(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.HasClaims())

	_, err := s.TrackFileClaims("facts/a.md", "- The reactor starts at dawn\n", "r1")
	require.NoError(t, err)

	assert.True(t, s.HasClaims())
}

func TestLoad_SkipsCorruptEventLines(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TrackFileClaims("facts/a.md", "- The reactor starts at dawn\n", "r1")
	require.NoError(t, err)

	f, err := os.OpenFile(filepath.Join(s.Brain().Path(), EventsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = s.TrackFileClaims("facts/a.md", "- Something else entirely here\n", "r2")
	require.NoError(t, err)

	events, err := s.Events()
	require.NoError(t, err)
	// created, warnings(2), created, superseded, warnings(2)
	assert.Len(t, events, 7)
}

func TestLoad_MalformedSnapshotDocument(t *testing.T) {
	s := newTestStore(t)
	writeMeta(t, s, CurrentFile, "{\"claims\": [1, 2")

	claims, err := s.ListClaims(ClaimFilter{})

	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.False(t, s.HasClaims())
}

func TestLoad_SkipsMalformedSnapshotEntries(t *testing.T) {
	s := newTestStore(t)
	writeMeta(t, s, CurrentFile, `{
  "updated_at": "2026-01-01T00:00:00Z",
  "claims": {
    "clm_good": {"claim_id": "clm_good", "status": "active", "file_path": "facts/a.md", "claim_text": "ok"},
    "clm_bad_status": {"claim_id": "clm_bad_status", "status": "zombie"},
    "clm_bad_shape": "nope"
  }
}`)

	claims, err := s.ListClaims(ClaimFilter{})

	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "clm_good", claims[0].ClaimID)
}

func TestRuns_StartFinishList(t *testing.T) {
	s := newTestStore(t)

	runID, err := s.StartRun(RunOptions{RunType: RunTypeQuery, Objective: "why", Provider: "openai", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Regexp(t, `^query_alpha_[0-9a-f]{12}$`, runID)

	require.NoError(t, s.FinishRun(runID, RunTypeQuery, model.RunStatusCompleted, ""))

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, model.RunStatusCompleted, r.Status)
	assert.Equal(t, "openai", r.Provider)
	require.NotNil(t, r.FinishedAt)
	assert.True(t, r.StartedAt.Before(*r.FinishedAt), "started_at comes from the start record")
}

func TestGenerateRunID_Unique(t *testing.T) {
	a := GenerateRunID(RunTypeTrack, "alpha")
	b := GenerateRunID(RunTypeTrack, "alpha")

	assert.NotEqual(t, a, b)
}
