package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/datamill/askdb/internal/agent"
	"github.com/datamill/askdb/internal/schema"
	"github.com/datamill/askdb/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Agent QueryAgent
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing the question-answering agent
// as a tool plus schema and history resources.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"askdb",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askdb: ask natural-language questions about the government procurement database."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query_data",
			mcp.WithDescription("Answer a natural-language question about California government purchase orders by generating and running a database aggregation."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithNumber("max_results", mcp.Description("Maximum number of result rows (default 100)")),
		),
		mcpQueryData(deps),
	)

	s.AddTool(
		mcp.NewTool("get_examples",
			mcp.WithDescription("List example questions the agent can answer, grouped by complexity."),
		),
		mcpGetExamples(),
	)

	s.AddResource(
		mcp.NewResource(
			"askdb://schema",
			"Database Schema",
			mcp.WithResourceDescription("Description of the purchase orders collection"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourceSchema(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"askdb://recent",
			"Recent Questions",
			mcp.WithResourceDescription("Last 10 answered questions (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpQueryData(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		maxResults := req.GetInt("max_results", 0)

		result := deps.Agent.Query(ctx, agent.Question{
			Text:       question,
			MaxResults: maxResults,
		})
		if !result.Success {
			return mcpError(result.Error), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetExamples() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(schema.Examples())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal examples: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSchema(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     deps.Agent.Schema(),
			},
		}, nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.GetRecentInteractions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Answer    string `json:"answer"`
			Success   bool   `json:"success"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Question:  truncateRunes(ix.Question, 200),
				Answer:    truncateRunes(ix.Answer, 200),
				Success:   ix.Success,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
