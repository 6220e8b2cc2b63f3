package ledger

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
)

// MaxTracePerFile caps how many claims one source file contributes to a trace
const MaxTracePerFile = 3

var (
	statementSplit = regexp.MustCompile(`[\n.!?]+`)
	fileCitation   = regexp.MustCompile(`\[([^\]]+\.md)\]`)
	questionWeight = 2
)

const citationDot = "\x00"

type scoredClaim struct {
	score int
	claim model.ClaimSnapshot
}

// BuildQueryAudit traces an answer back to the active ledger claims of the
// files it used, records a citation event per traced claim, and scores how
// many answer statements the trace backs.
func (s *Store) BuildQueryAudit(question string, answer model.QueryResult, defaultSources []string, runID string) (*model.QueryAuditResult, error) {
	sources := answer.Sources
	if len(sources) == 0 {
		sources = defaultSources
	}

	current, err := s.loadCurrentClaims()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(sources))
	for _, src := range sources {
		wanted[src] = true
	}

	questionTokens := textutil.Tokenize(question)
	answerTokens := textutil.Tokenize(answer.Answer)

	var scored []scoredClaim
	for _, c := range current {
		if c.Status != model.ClaimStatusActive || !wanted[c.FilePath] {
			continue
		}
		tokens := textutil.Tokenize(c.ClaimText + " " + c.EvidenceQuote)
		score := questionWeight*textutil.Overlap(tokens, questionTokens) + textutil.Overlap(tokens, answerTokens)
		scored = append(scored, scoredClaim{score: score, claim: c})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].claim.ClaimID < scored[j].claim.ClaimID
	})

	trace := make([]model.ClaimTraceItem, 0)
	seen := make(map[string]bool)
	perFile := make(map[string]int)
	for _, sc := range scored {
		c := sc.claim
		if perFile[c.FilePath] >= MaxTracePerFile || seen[c.ClaimID] {
			continue
		}
		trace = append(trace, model.ClaimTraceItem{
			ClaimID:       c.ClaimID,
			FilePath:      c.FilePath,
			ClaimText:     c.ClaimText,
			EvidenceQuote: c.EvidenceQuote,
			SourceLocator: c.SourceLocator,
			Confidence:    c.Confidence,
			UserOverride:  c.UserOverride,
		})
		seen[c.ClaimID] = true
		perFile[c.FilePath]++
	}

	if len(trace) > 0 {
		err := s.withLock(func() error {
			for _, item := range trace {
				if err := s.emit(model.ClaimEvent{
					EventType: model.EventClaimCitedInAnswer,
					RunID:     runID,
					ClaimID:   item.ClaimID,
					FilePath:  item.FilePath,
					Payload: map[string]any{
						"question":       question,
						"source_locator": item.SourceLocator,
					},
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &model.QueryAuditResult{
		Answer:            answer.Answer,
		Sources:           sources,
		Confidence:        answer.Confidence,
		ClaimTrace:        trace,
		TraceCompleteness: TraceCompleteness(answer.Answer, trace),
		QueryRunID:        runID,
	}, nil
}

// TraceCompleteness splits answer into statements and counts those backed
// by the trace. A statement with explicit [file.md] citations is linked when
// one of them names a traced file; an uncited statement is linked whenever
// the trace is non-empty.
func TraceCompleteness(answer string, trace []model.ClaimTraceItem) model.QueryTraceCompleteness {
	tracedFiles := make(map[string]bool, len(trace))
	for _, item := range trace {
		tracedFiles[item.FilePath] = true
	}

	// dots inside [file.md] citations are not statement boundaries
	masked := fileCitation.ReplaceAllStringFunc(answer, func(c string) string {
		return strings.ReplaceAll(c, ".", citationDot)
	})

	var total, linked int
	for _, stmt := range statementSplit.Split(masked, -1) {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		stmt = strings.ReplaceAll(stmt, citationDot, ".")
		total++

		citations := fileCitation.FindAllStringSubmatch(stmt, -1)
		if len(citations) == 0 {
			if len(trace) > 0 {
				linked++
			}
			continue
		}
		for _, m := range citations {
			if tracedFiles[m[1]] {
				linked++
				break
			}
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = textutil.Round4(float64(linked) / float64(total))
	}
	return model.QueryTraceCompleteness{
		TotalStatements:   total,
		LinkedStatements:  linked,
		CompletenessRatio: ratio,
	}
}
