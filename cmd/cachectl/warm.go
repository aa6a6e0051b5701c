package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Issue a canned batch of cell requests against the demo engine, forcing a segment load",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng := newEngine()
			defer eng.Mgr.Shutdown(ctx)

			resolved, err := eng.Warm(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d cell(s)\n", resolved)
			return nil
		},
	}
}
