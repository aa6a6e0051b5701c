package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CodeOnCoffee/mondrian-go/internal/demo"
	"github.com/CodeOnCoffee/mondrian-go/internal/flush"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
)

func newFlushCmd() *cobra.Command {
	var year int64
	var warmFirst bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Flush every cached segment whose year axis matches --year",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng := newEngine()
			defer eng.Mgr.Shutdown(ctx)

			if warmFirst {
				if _, err := eng.Warm(ctx); err != nil {
					return err
				}
			}

			yearCol, ok := eng.Star.ColumnOrdinal(demo.ColYear)
			if !ok {
				return fmt.Errorf("cachectl: star has no %q column", demo.ColYear)
			}
			region := flush.NewRegion().
				Column(yearCol, olap.NewValueSet(olap.IntValue(year))).
				Build()

			stats, err := eng.Control.Flush(ctx, region)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scanned=%d discarded=%d replaced=%d unchanged=%d\n",
				stats.Scanned, stats.Discarded, stats.Replaced, stats.Unchanged)
			return nil
		},
	}
	cmd.Flags().Int64Var(&year, "year", 1997, "year value to flush")
	cmd.Flags().BoolVar(&warmFirst, "warm", true, "warm the cache before flushing so there is something to flush")
	return cmd
}
