// Package mcpserver exposes the knowledge base to LLM agents as Model Context
// Protocol tools.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
)

// KnowledgeBase is the part of lifecycle.Manager the tools use.
type KnowledgeBase interface {
	Retrieve(ctx context.Context, query string, k int) (*models.QueryResult, error)
	Rebuild(ctx context.Context) (*indexer.Report, error)
	Status(ctx context.Context) lifecycle.Status
}

// NewServer returns an MCP server with all tools registered.
func NewServer(kb KnowledgeBase, retrieval *config.RetrievalConfig, version string, logger *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer("supportkb", version, server.WithToolCapabilities(false))
	RegisterTools(s, NewHandlers(kb, retrieval, logger))
	return s
}

// RegisterTools registers the knowledge base tools with s.
func RegisterTools(s *server.MCPServer, h *Handlers) {
	s.AddTool(mcp.Tool{
		Name: "retrieve_passages",
		Description: "Retrieve the support documentation passages most similar to a question. " +
			"Returns passages ranked by cosine similarity; passages marked relevant exceed the relevance threshold.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The customer question",
				},
				"k": map[string]any{
					"type":        "number",
					"description": "Maximum number of passages to return",
					"default":     retrievalDefaultK(h.retrieval),
				},
				"min_score": map[string]any{
					"type":        "number",
					"description": "Relevance threshold overriding the configured one",
				},
			},
			Required: []string{"query"},
		},
	}, h.RetrievePassages)

	s.AddTool(mcp.Tool{
		Name:        "knowledge_base_status",
		Description: "Report the size, embedding provider, and build of the knowledge base, and whether the corpus changed since it was built.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.Status)

	s.AddTool(mcp.Tool{
		Name:        "rebuild_knowledge_base",
		Description: "Re-ingest the support documentation and atomically replace the knowledge base.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.Rebuild)
}

func retrievalDefaultK(r *config.RetrievalConfig) int {
	if r == nil || r.DefaultK <= 0 {
		return 3
	}
	return r.DefaultK
}
