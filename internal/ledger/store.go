// Package ledger is the claim provenance ledger of one knowledge base: an
// append-only event log, a materialized snapshot of current claims, and a
// run log, all under meta/ and guarded by a single exclusive file lock.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/claimledger/internal/brain"
	"github.com/ppiankov/claimledger/internal/extract"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/model"
)

// Ledger files, relative to the knowledge base root
const (
	EventsFile  = brain.MetaDir + "/claims_events.jsonl"
	CurrentFile = brain.MetaDir + "/claims_current.json"
	RunsFile    = brain.MetaDir + "/runs.jsonl"
	LockFile    = brain.MetaDir + "/claims.lock"
)

// DefaultListLimit applies when ClaimFilter.Limit is not positive
const DefaultListLimit = 100

// maxLineBytes bounds a single JSONL record
const maxLineBytes = 16 << 20

// Store reads and mutates the ledger of one knowledge base
type Store struct {
	brain      *brain.Brain
	extractor  extract.Extractor
	provenance model.ProvenanceMode
	now        func() time.Time
	newEventID func() string
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// Option configures a Store
type Option func(*Store)

// WithExtractor replaces the markdown claim extractor
func WithExtractor(e extract.Extractor) Option {
	return func(s *Store) { s.extractor = e }
}

// WithProvenance sets the provenance enforcement mode (default warn)
func WithProvenance(mode model.ProvenanceMode) Option {
	return func(s *Store) { s.provenance = mode }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records ledger events on r
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// New creates a Store for b. It does not touch the filesystem.
func New(b *brain.Brain, opts ...Option) *Store {
	s := &Store{
		brain:      b,
		extractor:  extract.NewMarkdownExtractor(),
		provenance: model.ProvenanceWarn,
		now:        time.Now,
		newEventID: func() string { return "evt_" + uuid.Must(uuid.NewV7()).String() },
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Brain returns the knowledge base this store belongs to
func (s *Store) Brain() *brain.Brain { return s.brain }

// ClaimFilter narrows ListClaims. Zero values match everything.
type ClaimFilter struct {
	FilePath string
	Status   model.ClaimStatus
	Tag      string
	Query    string // case-insensitive substring of claim text or evidence quote
	Limit    int
	Offset   int
}

// ListClaims returns matching snapshots, most recently updated first
func (s *Store) ListClaims(filter ClaimFilter) ([]model.ClaimSnapshot, error) {
	current, err := s.loadCurrentClaims()
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(filter.Query)
	claims := make([]model.ClaimSnapshot, 0, len(current))
	for _, c := range current {
		if filter.FilePath != "" && c.FilePath != filter.FilePath {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !c.HasTag(filter.Tag) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(c.ClaimText), term) &&
			!strings.Contains(strings.ToLower(c.EvidenceQuote), term) {
			continue
		}
		claims = append(claims, c)
	}

	sort.Slice(claims, func(i, j int) bool {
		if !claims[i].UpdatedAt.Equal(claims[j].UpdatedAt) {
			return claims[i].UpdatedAt.After(claims[j].UpdatedAt)
		}
		return claims[i].ClaimID < claims[j].ClaimID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := max(filter.Offset, 0)
	if offset >= len(claims) {
		return []model.ClaimSnapshot{}, nil
	}
	end := min(offset+limit, len(claims))
	return claims[offset:end], nil
}

// GetClaim returns the current snapshot of one claim
func (s *Store) GetClaim(claimID string) (model.ClaimSnapshot, error) {
	current, err := s.loadCurrentClaims()
	if err != nil {
		return model.ClaimSnapshot{}, err
	}
	c, ok := current[claimID]
	if !ok {
		return model.ClaimSnapshot{}, fmt.Errorf("%s: %w", claimID, ErrClaimNotFound)
	}
	return c, nil
}

// GetClaimHistory returns every event recorded for a claim, oldest first
func (s *Store) GetClaimHistory(claimID string) ([]model.ClaimEvent, error) {
	events, err := s.loadEvents()
	if err != nil {
		return nil, err
	}

	history := make([]model.ClaimEvent, 0)
	for _, ev := range events {
		if ev.ClaimID == claimID {
			history = append(history, ev)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}

// Events returns the whole event log in append order
func (s *Store) Events() ([]model.ClaimEvent, error) {
	return s.loadEvents()
}

// HasClaims reports whether the ledger holds at least one snapshot
func (s *Store) HasClaims() bool {
	current, err := s.loadCurrentClaims()
	return err == nil && len(current) > 0
}

// withLock runs fn while holding the knowledge base's exclusive ledger lock
func (s *Store) withLock(fn func() error) error {
	release, err := acquireLock(filepath.Join(s.brain.Path(), filepath.FromSlash(LockFile)))
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (s *Store) path(rel string) string {
	return filepath.Join(s.brain.Path(), filepath.FromSlash(rel))
}

type currentDocument struct {
	UpdatedAt time.Time                  `json:"updated_at"`
	Claims    map[string]json.RawMessage `json:"claims"`
}

// loadCurrentClaims reads the snapshot document. A missing or malformed
// document loads as empty; individual malformed entries are skipped.
func (s *Store) loadCurrentClaims() (map[string]model.ClaimSnapshot, error) {
	claims := make(map[string]model.ClaimSnapshot)

	data, err := os.ReadFile(s.path(CurrentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return claims, nil
		}
		return nil, fmt.Errorf("read %s: %w", CurrentFile, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return claims, nil
	}

	var doc currentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("ignoring malformed claim snapshot", "brain", s.brain.Name(), "error", err)
		return claims, nil
	}

	for id, raw := range doc.Claims {
		var c model.ClaimSnapshot
		if err := json.Unmarshal(raw, &c); err != nil || !c.Status.Valid() {
			s.logger.Warn("skipping malformed claim entry", "brain", s.brain.Name(), "claim_id", id)
			continue
		}
		if c.ClaimID == "" {
			c.ClaimID = id
		}
		claims[id] = c
	}
	return claims, nil
}

// saveCurrentClaims replaces the snapshot document as a whole
func (s *Store) saveCurrentClaims(claims map[string]model.ClaimSnapshot) error {
	doc := struct {
		UpdatedAt time.Time                      `json:"updated_at"`
		Claims    map[string]model.ClaimSnapshot `json:"claims"`
	}{
		UpdatedAt: s.now(),
		Claims:    claims,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}
	if err := brain.WriteAtomic(s.path(CurrentFile), data); err != nil {
		return fmt.Errorf("save %s: %w", CurrentFile, err)
	}
	return nil
}

// appendJSONL appends one record as a single line; prior lines are never touched
func (s *Store) appendJSONL(rel string, record any) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	target := s.path(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create meta dir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", rel, err)
	}
	return nil
}

// readJSONL decodes each line of rel with decode, skipping lines it rejects
func (s *Store) readJSONL(rel string, decode func([]byte) error) error {
	f, err := os.Open(s.path(rel))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := decode(line); err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed ledger lines", "brain", s.brain.Name(), "file", rel, "count", skipped)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", rel, err)
	}
	return nil
}

func (s *Store) loadEvents() ([]model.ClaimEvent, error) {
	var events []model.ClaimEvent
	err := s.readJSONL(EventsFile, func(line []byte) error {
		var ev model.ClaimEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// emit appends one event. Callers hold the lock.
func (s *Store) emit(ev model.ClaimEvent) error {
	ev.EventID = s.newEventID()
	ev.Timestamp = s.now()
	ev.BrainName = s.brain.Name()
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	if err := s.appendJSONL(EventsFile, ev); err != nil {
		return err
	}
	s.metrics.ClaimEvents(s.brain.Name(), ev.EventType, 1)
	return nil
}
