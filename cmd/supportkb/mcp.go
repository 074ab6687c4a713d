package main

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/mcpserver"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge base as MCP tools over stdio",
		Long: `Run supportkb as an MCP (Model Context Protocol) server on stdio so LLM
agents can call retrieve_passages, knowledge_base_status, and
rebuild_knowledge_base.`,
		Example: `  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "supportkb": {"command": "supportkb", "args": ["mcp", "-c", "/path/to/supportkb.yaml"]}
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, mgr, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer mgr.Close(context.Background())

			if os.Getenv("OPENAI_API_KEY") == "" && cfg.Embedding.Provider == config.ProviderOpenAI {
				logger.Warn("OPENAI_API_KEY not set; retrieval will fail")
			}
			// Load up front so the first tool call is fast.
			if _, err := mgr.Store(cmd.Context()); err != nil {
				logger.Warn("knowledge base not ready", zap.Error(err))
			}
			s := mcpserver.NewServer(mgr, &cfg.Retrieval, version, logger)
			return server.ServeStdio(s)
		},
	}
}
