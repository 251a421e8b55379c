package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zhaoo/catgpt/internal/llm"
	"github.com/zhaoo/catgpt/internal/loader"
	"github.com/zhaoo/catgpt/internal/retrieval"
	"github.com/zhaoo/catgpt/internal/storage"
)

// Recaller abstracts semantic search for the MCP layer.
type Recaller interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ScoredRecord, error)
}

// SourceLister lists ingested sources for the MCP resource.
type SourceLister interface {
	ListSources(limit int) ([]storage.Source, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chain     Asker
	Retriever Recaller
	Ingest    Ingestor
	Sources   SourceLister
}

// NewMCPServer creates an MCP server exposing the assistant's tools over
// stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"catgpt",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("catgpt: ask questions grounded in your ingested documents, search them semantically, or add new text to the index."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question grounded in the ingested documents."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search the ingested documents and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Add a piece of raw text to the document index for later retrieval."),
			mcp.WithString("text", mcp.Description("The text to index"), mcp.Required()),
		),
		mcpIngestText(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catgpt://sources",
			"Ingested Sources",
			mcp.WithResourceDescription("Sources loaded into the index, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSources(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Chain.Ask(ctx, question, llm.Options{})
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		return mcpText(answer.Content), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		records, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(records) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID    string  `json:"id"`
			Text  string  `json:"text"`
			Score float32 `json:"score"`
		}
		results := make([]chunkResult, len(records))
		for i, rec := range records {
			results[i] = chunkResult{ID: rec.ID, Text: rec.Chunk.Text, Score: rec.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		result, err := deps.Ingest.Ingest(ctx, loader.Source{Kind: loader.KindRawText, Location: text})
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Indexed %d chunks as source %s", result.Chunks, result.SourceID)), nil
	}
}

func mcpResourceSources(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sources, err := deps.Sources.ListSources(50)
		if err != nil {
			return nil, fmt.Errorf("listing sources: %w", err)
		}

		type sourceSummary struct {
			ID       string `json:"id"`
			Kind     string `json:"kind"`
			Location string `json:"location"`
			Chunks   int    `json:"chunks"`
		}
		summaries := make([]sourceSummary, len(sources))
		for i, s := range sources {
			summaries[i] = sourceSummary{ID: s.ID, Kind: s.Kind, Location: s.Location, Chunks: s.Chunks}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("marshaling sources: %w", err)
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
