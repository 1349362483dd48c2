package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/pkg/config"
	"github.com/jopamo/tfs/pkg/engine"
	"github.com/jopamo/tfs/pkg/events"
	"github.com/jopamo/tfs/pkg/logging"
)

type undoFlags struct {
	journalPath string
	jsonOut     bool
	dryRun      bool
}

func newUndoCmd() *cobra.Command {
	f := &undoFlags{}
	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Undo a previously applied transaction using its journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndo(f)
		},
	}

	cmd.Flags().StringVar(&f.journalPath, "journal", "", "path to journal file")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output structured JSON to stdout")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "simulate the undo without writing")
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runUndo(f *undoFlags) error {
	log := logging.GetLogger("cmd.undo")

	var sink events.Sink
	if f.jsonOut {
		sink = events.NewJSONSink(os.Stdout)
	} else {
		sink = events.NewLogSink(log)
	}

	defaults, err := config.Load()
	if err != nil {
		return err
	}

	opts := engine.UndoOptions{
		JournalPath:  f.journalPath,
		Events:       sink,
		DryRun:       f.dryRun,
		TrashDirName: defaults.TrashDirName,
	}

	eng := engine.New(log)
	class, err := eng.Undo(opts)
	if err != nil {
		if !f.jsonOut {
			fmt.Fprintln(os.Stderr, "undo failed:", err)
		}
		return err
	}
	if !f.jsonOut {
		fmt.Println("undo complete")
	}
	if code := exitCodeForClass(class); code != 0 {
		os.Exit(code)
	}
	return nil
}
