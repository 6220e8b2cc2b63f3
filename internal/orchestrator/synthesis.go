package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/claimledger/internal/llm"
	"github.com/ppiankov/claimledger/internal/model"
)

// NoSourcesAnswer is returned without a model call when there is nothing to synthesize
const NoSourcesAnswer = "I couldn't find relevant information across the selected brains."

const synthesisSystemPrompt = "You are a rigorous synthesis engine. Combine the per-brain findings into one coherent answer. " +
	"Cite where claims come from using brain names and preserve uncertainty when evidence is weak."

const synthesisSchema = `{"answer": "unified answer", "confidence": "high|medium|low|uncertain|none"}`

type synthesisPayload struct {
	Answer     string `json:"answer"`
	Confidence string `json:"confidence"`
}

// synthesize combines the per-source findings into one answer. Failures are
// returned as-is; there is no fallback answer.
func synthesize(ctx context.Context, p llm.Provider, modelName, question string, perBrain []model.PerBrainResult) (string, model.Confidence, error) {
	if len(perBrain) == 0 {
		return NoSourcesAnswer, model.ConfidenceNone, nil
	}

	var findings strings.Builder
	for _, item := range perBrain {
		sources := strings.Join(item.Sources, ", ")
		if sources == "" {
			sources = "none"
		}
		fmt.Fprintf(&findings, "## Brain: %s\nConfidence: %s\nSources: %s\nAnswer: %s\n\n",
			item.BrainName, item.Confidence, sources, item.AnswerExcerpt)
	}

	var payload synthesisPayload
	err := p.Generate(ctx, llm.Request{
		Purpose:      llm.PurposeSynthesis,
		SystemPrompt: synthesisSystemPrompt,
		UserPrompt:   fmt.Sprintf("Question: %s\n\nPer-brain findings:\n%s\nProvide a unified answer and confidence.", question, findings.String()),
		Schema:       synthesisSchema,
		Model:        modelName,
		Temperature:  0.2,
	}, &payload)
	if err != nil {
		return "", "", fmt.Errorf("synthesize answer: %w", err)
	}

	return strings.TrimSpace(payload.Answer), model.ConfidenceOr(payload.Confidence, model.ConfidenceUncertain), nil
}
