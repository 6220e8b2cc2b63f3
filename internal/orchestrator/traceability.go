package orchestrator

import (
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/textutil"
)

// summarizeTraceability averages the per-source completeness ratios. A
// source is degraded when it has no ledger backing, whatever its ratio.
func summarizeTraceability(perBrain []model.PerBrainResult) model.TraceabilitySummary {
	summary := model.TraceabilitySummary{DegradedBrains: []string{}}
	if len(perBrain) == 0 {
		return summary
	}

	var total float64
	for _, item := range perBrain {
		total += item.TraceCompletenessRatio
		if item.TraceDegraded {
			summary.BrainsWithoutClaims++
			summary.DegradedBrains = append(summary.DegradedBrains, item.BrainName)
		} else {
			summary.BrainsWithClaims++
		}
	}
	summary.OverallCompletenessRatio = textutil.Round4(total / float64(len(perBrain)))
	return summary
}
