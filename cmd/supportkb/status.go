package main

import (
	"github.com/spf13/cobra"

	"github.com/TylerDurden17/support-agent/internal/cli"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted knowledge base and whether the corpus changed since it was built",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer mgr.Close(cmd.Context())
			return cli.WriteStatus(cmd.OutOrStdout(), mgr.Status(cmd.Context()), opts.format())
		},
	}
}
