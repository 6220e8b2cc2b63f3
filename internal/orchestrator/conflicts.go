package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
)

const (
	// maxClaimsPerSource bounds how many traced claims of a source are compared
	maxClaimsPerSource = 8

	// maxPairsPerSourcePair bounds candidates per pair of sources
	maxPairsPerSourcePair = 2

	// minSharedTokens is the overlap a claim pair needs to be compared at all
	minSharedTokens = 2

	// DefaultConflictTopic is used when the classifier returns no topic
	DefaultConflictTopic = "Cross-brain claim comparison"
)

const conflictSystemPrompt = "You are a contradiction classifier for multi-source knowledge. " +
	"Classify each claim pair as support, refute, or ambiguous."

const conflictSchema = `{"items": [{"pair_id": "PAIR_ID", "topic": "short topic", "classification": "support|refute|ambiguous", "rationale": "one sentence"}]}`

type conflictCandidate struct {
	pairID  string
	brainA  string
	brainB  string
	claimA  model.ClaimTraceItem
	claimB  model.ClaimTraceItem
	overlap int
}

type conflictDecision struct {
	PairID         string `json:"pair_id"`
	Topic          string `json:"topic"`
	Classification string `json:"classification"`
	Rationale      string `json:"rationale"`
}

type conflictBatch struct {
	Items []conflictDecision `json:"items"`
}

// buildConflictCandidates pairs the traced claims of every two sources by
// shared tokens. Each source pair keeps its best pairs, ties broken by claim ids.
func buildConflictCandidates(sources []sourceResult) []conflictCandidate {
	var candidates []conflictCandidate

	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			first, second := sources[i], sources[j]
			claimsA := first.trace[:min(maxClaimsPerSource, len(first.trace))]
			claimsB := second.trace[:min(maxClaimsPerSource, len(second.trace))]
			if len(claimsA) == 0 || len(claimsB) == 0 {
				continue
			}

			var scored []conflictCandidate
			for _, a := range claimsA {
				tokensA := textutil.Tokenize(a.ClaimText)
				for _, b := range claimsB {
					if a.ClaimID == b.ClaimID {
						continue
					}
					overlap := textutil.Overlap(tokensA, textutil.Tokenize(b.ClaimText))
					if overlap < minSharedTokens {
						continue
					}
					if textutil.Normalize(a.ClaimText) == textutil.Normalize(b.ClaimText) {
						continue
					}
					scored = append(scored, conflictCandidate{
						brainA:  first.result.BrainName,
						brainB:  second.result.BrainName,
						claimA:  a,
						claimB:  b,
						overlap: overlap,
					})
				}
			}

			sort.Slice(scored, func(x, y int) bool {
				if scored[x].overlap != scored[y].overlap {
					return scored[x].overlap > scored[y].overlap
				}
				if scored[x].claimA.ClaimID != scored[y].claimA.ClaimID {
					return scored[x].claimA.ClaimID < scored[y].claimA.ClaimID
				}
				return scored[x].claimB.ClaimID < scored[y].claimB.ClaimID
			})

			for idx, c := range scored[:min(maxPairsPerSourcePair, len(scored))] {
				c.pairID = fmt.Sprintf("%s__%s__%d", c.brainA, c.brainB, idx+1)
				candidates = append(candidates, c)
			}
		}
	}

	return candidates
}

// classifyConflicts labels every candidate pair in one model call. Any
// failure yields an empty list; conflicts never fail the query.
func (o *Orchestrator) classifyConflicts(ctx context.Context, p llm.Provider, modelName, question string, sources []sourceResult) []model.ConflictItem {
	conflicts := []model.ConflictItem{}

	candidates := buildConflictCandidates(sources)
	if len(candidates) == 0 {
		return conflicts
	}

	var pairs strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&pairs, "PAIR_ID: %s\nBRAIN_A: %s\nCLAIM_A: %s\nEVIDENCE_A: %s\nBRAIN_B: %s\nCLAIM_B: %s\nEVIDENCE_B: %s\n\n",
			c.pairID, c.brainA, c.claimA.ClaimText, c.claimA.EvidenceQuote,
			c.brainB, c.claimB.ClaimText, c.claimB.EvidenceQuote)
	}

	var batch conflictBatch
	err := p.Generate(ctx, llm.Request{
		Purpose:      llm.PurposeConflicts,
		SystemPrompt: conflictSystemPrompt,
		UserPrompt:   fmt.Sprintf("Question: %s\n\nClassify these claim pairs:\n\n%sRespond with topic and classification for each pair.", question, pairs.String()),
		Schema:       conflictSchema,
		Model:        modelName,
		Temperature:  0,
		Cacheable:    true,
	}, &batch)
	if err != nil {
		o.logger.Warn("conflict classification failed", "candidates", len(candidates), "error", err)
		return conflicts
	}

	decisions := make(map[string]conflictDecision, len(batch.Items))
	for _, d := range batch.Items {
		if _, dup := decisions[d.PairID]; !dup {
			decisions[d.PairID] = d
		}
	}

	for _, c := range candidates {
		d, ok := decisions[c.pairID]
		if !ok {
			continue
		}
		topic := strings.TrimSpace(d.Topic)
		if topic == "" {
			topic = DefaultConflictTopic
		}
		conflicts = append(conflicts, model.ConflictItem{
			Topic:          topic,
			BrainsInvolved: []string{c.brainA, c.brainB},
			Classification: model.NormalizeConflictClassification(d.Classification),
			Evidence: []string{
				c.brainA + ":" + c.claimA.ClaimID,
				c.brainB + ":" + c.claimB.ClaimID,
			},
			Rationale: strings.TrimSpace(d.Rationale),
		})
	}
	return conflicts
}
