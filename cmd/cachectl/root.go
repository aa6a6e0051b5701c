package main

import (
	"github.com/spf13/cobra"

	"github.com/CodeOnCoffee/mondrian-go/internal/demo"
	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
)

var verbose bool

// newRootCmd builds the cachectl command tree. Each subcommand constructs
// its own demo.Engine rather than sharing a package-level global: spec.md
// §9's resolved open question is that the Cache Manager is always an
// explicitly constructed value held by its caller, never process-global
// state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Operate a segment cache and batched cell-loading pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logutil.SetLevel(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development-mode (human-readable) logging")

	root.AddCommand(newWarmCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newFlushCmd())
	return root
}

// newEngine builds the demo engine shared by every subcommand. It is not
// memoised across subcommand invocations within one process: each cobra
// RunE call gets its own Manager and worker pool, shut down before the
// command returns.
func newEngine() *demo.Engine {
	return demo.New()
}
