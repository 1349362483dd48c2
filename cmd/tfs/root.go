// Package main is the tfs command-line front end: it loads a manifest,
// hands it to pkg/engine and reports the resulting exit class.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/pkg/logging"
)

var verbosity int

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tfs",
		Short: "Transactional filesystem operation engine",
		Long: `tfs applies a manifest of mkdir/move/copy/rename/trash operations to a
directory tree as a single transaction, journaling every step so it can
be rolled back or undone later.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")

	root.AddCommand(newApplyCmd())
	root.AddCommand(newUndoCmd())
	root.AddCommand(newSchemaCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCodeFor(err))
	}
}
