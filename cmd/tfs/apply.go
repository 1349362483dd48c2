package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jopamo/tfs/pkg/config"
	"github.com/jopamo/tfs/pkg/engine"
	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/events"
	"github.com/jopamo/tfs/pkg/logging"
	"github.com/jopamo/tfs/pkg/manifest"
	"github.com/jopamo/tfs/pkg/model"
)

type applyFlags struct {
	manifestPath   string
	validateOnly   bool
	dryRun         bool
	jsonOut        bool
	journalPath    string
	collisionFlag  string
	rootFlag       string
	allowOverwrite bool
}

func newApplyCmd() *cobra.Command {
	f := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Validate, preview, or apply a filesystem transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(f)
		},
	}

	cmd.Flags().StringVar(&f.manifestPath, "manifest", "", "path to manifest JSON file")
	cmd.Flags().BoolVar(&f.validateOnly, "validate-only", false, "only validate the manifest, do not execute")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "simulate execution without writing")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output structured JSON to stdout")
	cmd.Flags().StringVar(&f.journalPath, "journal", "", "write journal to this path instead of an in-memory sink")
	cmd.Flags().StringVar(&f.collisionFlag, "collision-policy", "", "override the manifest's collision policy")
	cmd.Flags().StringVar(&f.rootFlag, "root", "", "override the manifest's root directory")
	cmd.Flags().BoolVar(&f.allowOverwrite, "allow-overwrite", false, "allow overwrite policies")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runApply(f *applyFlags) error {
	log := logging.GetLogger("cmd.apply")

	raw, err := os.ReadFile(f.manifestPath)
	if err != nil {
		return errkind.Wrap(err, errkind.IoError, "cannot read manifest").WithDetail("path", f.manifestPath)
	}
	if err := manifest.ValidateBytes(raw); err != nil {
		return err
	}

	var plan model.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return errkind.Wrap(err, errkind.StructurallyInvalid, "cannot decode manifest into a plan")
	}

	if f.rootFlag != "" {
		plan.Root = f.rootFlag
	}
	if f.collisionFlag != "" {
		plan.Collision = model.CollisionPolicy(f.collisionFlag)
	}
	if f.allowOverwrite {
		plan.AllowOverwrite = true
	}

	defaults, err := config.Load()
	if err != nil {
		return err
	}
	defaults.ApplyTo(&plan)
	plan.ApplyDefaults()

	var sink events.Sink
	if f.jsonOut {
		sink = events.NewJSONSink(os.Stdout)
	} else {
		sink = events.NewLogSink(log)
	}

	eng := engine.New(log)
	result, applyErr := eng.Apply(plan, engine.ApplyOptions{
		DryRun:           f.dryRun,
		ValidateOnly:     f.validateOnly,
		JournalPath:      f.journalPath,
		Events:           sink,
		TrashDirName:     defaults.TrashDirName,
		SkipJournalFsync: !defaults.JournalFsync,
	})

	if !f.jsonOut {
		reportApply(result, applyErr)
	}

	if applyErr != nil {
		return applyErr
	}
	if code := exitCodeForClass(result.Exit); code != 0 {
		os.Exit(code)
	}
	return nil
}

func reportApply(result engine.ApplyResult, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "apply failed:", err)
		return
	}
	var copied int64
	for _, r := range result.Txn.Applied {
		copied += r.Effect.Bytes
	}
	fmt.Printf("plan %s: %d applied, %d failed, aborted=%v, %s copied\n",
		result.PlanID, len(result.Txn.Applied), len(result.Txn.Failed), result.Txn.Aborted, humanize.Bytes(uint64(copied)))
}
