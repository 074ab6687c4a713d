package main

import (
	"github.com/spf13/cobra"

	"github.com/TylerDurden17/support-agent/internal/cli"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the knowledge base, or load it if already built",
		Long: `Build the knowledge base from the corpus directory and persist it.

If a persisted knowledge base exists it is loaded instead and the corpus is not
re-embedded. Pass --rebuild to ingest the corpus again and replace it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, mgr, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()
			defer mgr.Close(ctx)

			cfg.Store.Rebuild = cfg.Store.Rebuild || rebuild
			if _, err := mgr.Store(ctx); err != nil {
				return err
			}
			return cli.WriteReport(cmd.OutOrStdout(), mgr.LastReport(), opts.format())
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "ignore any persisted knowledge base and rebuild from the corpus")
	return cmd
}
