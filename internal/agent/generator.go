package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datamill/askdb/internal/openai"
)

const generationMaxTokens = 2000

// Responder is the completion-service interface the generator and
// summarizer depend on.
type Responder interface {
	CreateResponse(ctx context.Context, req openai.Request) (*openai.Response, error)
}

// Turn is one prior question/answer pair of the conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GenerateRequest carries everything one generation attempt needs.
type GenerateRequest struct {
	Question string
	History  []Turn
	// PreviousError is the failure reason of the last attempt, injected
	// into the prompt as corrective feedback. Empty on the first attempt.
	PreviousError string
	// PreviousResponseID chains this call to the prior one so the service
	// keeps its reasoning state across attempts and turns.
	PreviousResponseID string
	ReasoningEffort    string
	// Model overrides the generator's configured model when non-empty.
	Model string
}

// Generation is the outcome of one generation attempt. Exactly one of
// Pipeline and Err is meaningful; ResponseID may be set either way so the
// orchestrator can keep threading continuity.
type Generation struct {
	Pipeline         Pipeline
	ResponseID       string
	ReasoningSummary string
	Err              string
}

// Generator asks the completion service for a candidate pipeline. The
// schema instructions are built once and reused verbatim on every call.
type Generator struct {
	client            Responder
	model             string
	supportsReasoning bool
	staticPrefix      string
	logger            *slog.Logger
}

// NewGenerator creates a Generator for the given model. supportsReasoning
// states whether the model accepts a reasoning-effort parameter; it is a
// configuration decision, never inferred from the model name here.
func NewGenerator(client Responder, model string, supportsReasoning bool, schemaDescription string) *Generator {
	return &Generator{
		client:            client,
		model:             model,
		supportsReasoning: supportsReasoning,
		staticPrefix:      buildStaticPrefix(schemaDescription),
		logger:            slog.Default(),
	}
}

// Generate performs one attempt. Service errors and bad model output are
// reported in Generation.Err rather than returned as errors: the
// orchestrator feeds them back into the next attempt's prompt.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) Generation {
	prompt := buildGenerationPrompt(g.staticPrefix, req.Question, req.History, req.PreviousError)

	model := g.model
	if req.Model != "" {
		model = req.Model
	}
	apiReq := openai.Request{
		Model:              model,
		Input:              prompt,
		PreviousResponseID: req.PreviousResponseID,
		MaxOutputTokens:    generationMaxTokens,
	}
	if g.supportsReasoning {
		apiReq.ReasoningEffort = req.ReasoningEffort
	}

	resp, err := g.client.CreateResponse(ctx, apiReq)
	if err != nil {
		g.logger.Warn("pipeline generation call failed", "error", err)
		return Generation{Err: fmt.Sprintf("completion service error: %v", err)}
	}

	raw := strings.TrimSpace(resp.OutputText)
	if raw == "" {
		return Generation{
			ResponseID: resp.ID,
			Err:        "model returned empty output",
		}
	}

	pipeline, perr := ParsePipeline(raw)
	if perr != nil {
		g.logger.Warn("generated pipeline is unparsable", "error", perr, "output", raw)
		return Generation{
			ResponseID: resp.ID,
			Err:        fmt.Sprintf("failed to parse pipeline: %v", perr),
		}
	}

	return Generation{
		Pipeline:         pipeline,
		ResponseID:       resp.ID,
		ReasoningSummary: resp.ReasoningSummary,
	}
}
