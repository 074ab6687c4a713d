package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/models"
)

// Handlers implements the MCP tools.
type Handlers struct {
	kb        KnowledgeBase
	retrieval *config.RetrievalConfig
	logger    *zap.Logger
}

// NewHandlers returns tool handlers backed by kb.
func NewHandlers(kb KnowledgeBase, retrieval *config.RetrievalConfig, logger *zap.Logger) *Handlers {
	if retrieval == nil {
		retrieval = &config.RetrievalConfig{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{kb: kb, retrieval: retrieval, logger: logger}
}

type passage struct {
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	Relevant bool    `json:"relevant"`
	Source   string  `json:"source,omitempty"`
	Text     string  `json:"text"`
}

type retrieveResult struct {
	Query    string    `json:"query"`
	MinScore float64   `json:"min_score"`
	Relevant int       `json:"relevant"`
	Passages []passage `json:"passages"`
}

// RetrievePassages handles the retrieve_passages tool.
func (h *Handlers) RetrievePassages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	req := models.RetrieveRequest{
		Query: query,
		K:     request.GetInt("k", 0),
	}
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		if v, ok := args["min_score"].(float64); ok {
			req.MinScore = &v
		}
	}
	if err := req.Normalize(retrievalDefaultK(h.retrieval), h.retrieval.MaxK); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minScore := h.retrieval.MinScoreOrDefault()
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	result, err := h.kb.Retrieve(ctx, req.Query, req.K)
	if err != nil {
		h.logger.Warn("retrieve_passages failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("retrieval failed: %v", err)), nil
	}

	out := retrieveResult{Query: req.Query, MinScore: minScore, Passages: make([]passage, 0, result.Len())}
	for _, hit := range result.Hits {
		relevant := hit.Score > minScore
		if relevant {
			out.Relevant++
		}
		out.Passages = append(out.Passages, passage{
			Rank:     hit.Rank,
			Score:    hit.Score,
			Relevant: relevant,
			Source:   hit.Chunk.Source(),
			Text:     hit.Chunk.Text,
		})
	}
	return jsonResult(out)
}

// Status handles the knowledge_base_status tool.
func (h *Handlers) Status(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.kb.Status(ctx))
}

// Rebuild handles the rebuild_knowledge_base tool.
func (h *Handlers) Rebuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := h.kb.Rebuild(ctx)
	if err != nil {
		h.logger.Warn("rebuild_knowledge_base failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("rebuild failed: %v", err)), nil
	}
	skipped := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		skipped = append(skipped, w.Error())
	}
	return jsonResult(map[string]any{
		"build_id":  report.BuildID,
		"documents": report.Documents,
		"chunks":    report.Chunks,
		"skipped":   skipped,
		"took_ms":   report.Took.Milliseconds(),
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
