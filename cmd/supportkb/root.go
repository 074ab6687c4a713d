package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/cli"
	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/pkg/utils"
)

// defaultConfigName is looked up in the working directory when --config is not given.
const defaultConfigName = "supportkb.yaml"

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	debug      bool
	output     string
	envFile    string
}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "supportkb",
		Short: "Semantic retrieval over support documentation",
		Long: `supportkb ingests a directory of support documents, embeds them, and
answers natural-language questions with the most similar passages.

The knowledge base is built once and persisted; later runs load it without
re-embedding the corpus. Use "index --rebuild" after the documents change.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is normal.
			_ = godotenv.Load(opts.envFile)
			_, err := cli.ParseOutputFormat(opts.output)
			return err
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./"+defaultConfigName+" when present)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with API keys")

	cmd.AddCommand(
		newIndexCmd(opts),
		newQueryCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) format() cli.OutputFormat {
	f, err := cli.ParseOutputFormat(o.output)
	if err != nil {
		return cli.OutputText
	}
	return f
}

// loadConfig loads the config at path. With an empty path it uses
// ./supportkb.yaml when that exists, and otherwise defaults resolved against the
// working directory. Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, defaultConfigName)
		if _, statErr := os.Stat(fallback); statErr != nil {
			cfg, err := config.Default(cwd)
			return cfg, "", err
		}
		path = fallback
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads config and a logger and returns a manager over them.
func (o *rootOptions) setup() (*config.Config, *lifecycle.Manager, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	debug := cfg.Debug || o.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.String("corpus", cfg.Corpus.Directory),
		zap.String("store", cfg.Store.Path),
		zap.String("provider", cfg.Embedding.Provider),
	)
	return cfg, lifecycle.New(cfg, lifecycle.WithLogger(logger)), logger, nil
}
