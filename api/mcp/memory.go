package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

const defaultTopK = 3

var (
	memoryQueryToolName    = "memory_query"
	memoryQueryDescription = "Search Mali's memory. Returns up to top_k memories from the global segment and, when an identity is given, that identity's private segment, each with its source and date."

	memoryRememberToolName    = "memory_remember"
	memoryRememberDescription = "Store a sentence in an identity's private memory so Mali can recall it in later conversations."
)

// MemoryQueryInput represents the input arguments for the memory_query tool.
type MemoryQueryInput struct {
	Query    string `json:"query" jsonschema:"the text to search memory for"`
	Identity string `json:"identity,omitempty" jsonschema:"the user whose private memory is searched as well as global memory"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"memories per segment (default: 3)"`
}

// MemoryHit is one recalled memory.
type MemoryHit struct {
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Date   string  `json:"date,omitempty"`
	Scope  string  `json:"scope"`
	Score  float32 `json:"score"`
}

// MemoryQueryOutput represents the structured output of a memory query.
type MemoryQueryOutput struct {
	Query   string      `json:"query"`
	Results []MemoryHit `json:"results"`
	Count   int         `json:"count"`
}

// MemoryRememberInput represents the input arguments for the memory_remember tool.
type MemoryRememberInput struct {
	Text     string `json:"text" jsonschema:"the sentence to remember"`
	Identity string `json:"identity" jsonschema:"the user who owns the memory"`
}

// MemoryRememberOutput confirms a stored memory.
type MemoryRememberOutput struct {
	ID     string `json:"id"`
	Scope  string `json:"scope"`
	Source string `json:"source"`
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// handleMemoryQuery processes a memory query via MCP.
func (s *Server) handleMemoryQuery(ctx context.Context, _ *mcp.CallToolRequest, input MemoryQueryInput) (*mcp.CallToolResult, MemoryQueryOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required"), MemoryQueryOutput{}, nil
	}

	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	s.config.Logger.Debug("MCP memory query", "identity", input.Identity, "top_k", topK)

	caller := memory.Caller{Identity: memory.Identity(strings.TrimSpace(input.Identity))}
	results := s.config.Memory.Query(ctx, input.Query, topK, caller)

	output := MemoryQueryOutput{
		Query:   input.Query,
		Results: make([]MemoryHit, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, MemoryHit{
			Text:   r.Text,
			Source: r.Source,
			Date:   r.Date,
			Scope:  r.Scope.Segment(),
			Score:  r.Score,
		})
	}
	output.Count = len(output.Results)

	result, err := jsonResult(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), MemoryQueryOutput{}, nil
	}
	return result, output, nil
}

// handleMemoryRemember stores a private memory via MCP. Global writes are not
// offered over MCP.
func (s *Server) handleMemoryRemember(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRememberInput) (*mcp.CallToolResult, MemoryRememberOutput, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return toolError("text is required"), MemoryRememberOutput{}, nil
	}
	id := memory.Identity(strings.TrimSpace(input.Identity))
	if id.Anonymous() {
		return toolError("identity is required"), MemoryRememberOutput{}, nil
	}

	title := "MCP: " + text
	if r := []rune(text); len(r) > 30 {
		title = "MCP: " + string(r[:30])
	}
	source := docstore.SanitizeFilename(title)
	scope := memory.Private(id)

	rec, err := s.config.Memory.Insert(ctx, text, source, scope, memory.Caller{Identity: id})
	if err != nil {
		s.config.Logger.Warn("MCP memory remember failed", "identity", id, "error", err)
		return toolError(fmt.Sprintf("Memory write failed: %v", err)), MemoryRememberOutput{}, nil
	}

	output := MemoryRememberOutput{ID: rec.ID, Scope: scope.Segment(), Source: source}
	result, err := jsonResult(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), MemoryRememberOutput{}, nil
	}
	return result, output, nil
}
