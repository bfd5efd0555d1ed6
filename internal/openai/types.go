package openai

import "encoding/json"

// Request describes a single Responses API call.
type Request struct {
	Model string
	Input string
	// PreviousResponseID chains this call to an earlier response so the
	// service can reuse its reasoning context. Empty starts fresh.
	PreviousResponseID string
	// ReasoningEffort and Verbosity are sent only when non-empty; the
	// caller decides whether the model supports them.
	ReasoningEffort string
	Verbosity       string
	MaxOutputTokens int
}

// Response is the subset of a Responses API reply the agent consumes.
type Response struct {
	// ID is the continuity identifier to pass as PreviousResponseID on
	// the next call.
	ID string
	// OutputText is the concatenated text of all message output items.
	OutputText string
	// ReasoningSummary is the model's own summary of its reasoning,
	// empty when the model emitted none.
	ReasoningSummary string
}

// Wire-format structures for the /responses endpoint.

type wireRequest struct {
	Model              string         `json:"model"`
	Input              string         `json:"input"`
	PreviousResponseID string         `json:"previous_response_id,omitempty"`
	Reasoning          *wireReasoning `json:"reasoning,omitempty"`
	Text               *wireText      `json:"text,omitempty"`
	MaxOutputTokens    int            `json:"max_output_tokens,omitempty"`
}

type wireReasoning struct {
	Effort  string `json:"effort"`
	Summary string `json:"summary,omitempty"`
}

type wireText struct {
	Verbosity string `json:"verbosity"`
}

type wireResponse struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Error  *wireError   `json:"error"`
	Output []wireOutput `json:"output"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wireOutput struct {
	Type    string        `json:"type"`
	Content []wireContent `json:"content,omitempty"`
	Summary []wireContent `json:"summary,omitempty"`
}

type wireContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (r Request) wire() wireRequest {
	w := wireRequest{
		Model:              r.Model,
		Input:              r.Input,
		PreviousResponseID: r.PreviousResponseID,
		MaxOutputTokens:    r.MaxOutputTokens,
	}
	if r.ReasoningEffort != "" {
		w.Reasoning = &wireReasoning{Effort: r.ReasoningEffort, Summary: "auto"}
	}
	if r.Verbosity != "" {
		w.Text = &wireText{Verbosity: r.Verbosity}
	}
	return w
}

func (r Request) marshal() ([]byte, error) {
	return json.Marshal(r.wire())
}
