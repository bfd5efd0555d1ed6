package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/datamill/askdb/internal/openai"
)

const (
	summaryMaxTokens = 1000
	// maxRowsForPrompt caps the sample embedded in the summarization
	// prompt; the true total is always stated alongside it.
	maxRowsForPrompt = 20
	// fallbackAnswer is returned whenever the service yields nothing
	// usable. Summarization must never be the sole reason an otherwise
	// successful query fails.
	fallbackAnswer = "Results retrieved successfully"
)

// Summarizer turns executed query results into a natural-language answer.
type Summarizer struct {
	client            Responder
	model             string
	supportsReasoning bool
	logger            *slog.Logger
}

// NewSummarizer creates a Summarizer for the given model. Verbosity is only
// sent when the model supports reasoning parameters.
func NewSummarizer(client Responder, model string, supportsReasoning bool) *Summarizer {
	return &Summarizer{
		client:            client,
		model:             model,
		supportsReasoning: supportsReasoning,
		logger:            slog.Default(),
	}
}

// Summarize returns the answer text and the new continuity identifier.
// Chaining to previousResponseID gives the call access to the reasoning
// that produced the pipeline. On any failure the fallback text and the
// unchanged continuity identifier are returned.
func (s *Summarizer) Summarize(ctx context.Context, question string, pipeline Pipeline, rows []Document, verbosity, previousResponseID string) (string, string) {
	sample := rows
	if len(sample) > maxRowsForPrompt {
		sample = sample[:maxRowsForPrompt]
	}

	apiReq := openai.Request{
		Model:              s.model,
		Input:              buildAnswerPrompt(question, pipeline, sample, len(rows)),
		PreviousResponseID: previousResponseID,
		MaxOutputTokens:    summaryMaxTokens,
	}
	if s.supportsReasoning {
		apiReq.Verbosity = verbosity
	}

	resp, err := s.client.CreateResponse(ctx, apiReq)
	if err != nil {
		s.logger.Warn("answer summarization failed, using fallback", "error", err)
		return fallbackAnswer, previousResponseID
	}

	answer := strings.TrimSpace(resp.OutputText)
	if answer == "" {
		answer = fallbackAnswer
	}
	return answer, resp.ID
}
