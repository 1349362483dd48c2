// Package engine wires the resolver, validator, transaction manager,
// journal and event sinks into the two operations a host embeds: Apply
// a plan and Undo a journal. It also computes the process exit class
// spec §6 defines, leaving the actual os.Exit call to cmd/tfs.
package engine

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/events"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/journal"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/opexec"
	"github.com/jopamo/tfs/pkg/resolve"
	"github.com/jopamo/tfs/pkg/txn"
	"github.com/jopamo/tfs/pkg/validate"
)

// ExitClass is the outcome category spec §6's Result → exit-code
// mapping assigns; cmd/tfs converts it to a process exit code.
type ExitClass int

const (
	Success ExitClass = iota
	OperationalFailure
	PolicyFailure
	TransactionalFailure
)

// Engine holds nothing but a logger; every call is independent.
type Engine struct {
	log zerolog.Logger
}

// New builds an Engine that logs through log.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log}
}

// ApplyOptions configures one Apply call.
type ApplyOptions struct {
	// DryRun runs every operation against a copy-on-write shadow of the
	// real filesystem and discards it, per spec §4.E step 3.
	DryRun bool
	// ValidateOnly stops after normalization and preflight, emitting
	// only plan_validated.
	ValidateOnly bool
	// JournalPath, if set, durably persists the run. If empty, an
	// in-memory sink is used and nothing survives the process — the
	// caller loses standalone-undo capability for this run.
	JournalPath string
	// Events receives every event this run emits, in addition to the
	// engine's own bookkeeping. May be nil.
	Events events.Sink
	// FS overrides the filesystem the run executes against. Tests use
	// this to run against an afero.MemMapFs-backed fsx.FS directly; if
	// DryRun is also set, this is the base a copy-on-write shadow is
	// layered over rather than the filesystem writes land in directly.
	FS fsx.FS
	// TrashDirName overrides the default ".tfs-trash" name.
	TrashDirName string
	// SkipJournalFsync disables the fsync-after-every-record durability
	// guarantee (spec §10.C's ambient "journal fsync-per-record
	// toggle"). Leave false unless an ambient config file opted out.
	SkipJournalFsync bool
}

// ApplyResult is everything the caller needs to report the run and
// compute an exit code.
type ApplyResult struct {
	Exit        ExitClass
	PlanID      uuid.UUID
	Txn         txn.Result
	JournalPath string
}

// Apply resolves, normalizes, preflights and executes plan.
func (e *Engine) Apply(plan model.Plan, opts ApplyOptions) (ApplyResult, error) {
	plan.ApplyDefaults()
	planID := uuid.New()

	fs := opts.FS
	if fs == nil {
		fs = fsx.NewOS()
	}
	if opts.DryRun {
		fs = dryRunFS(fs)
	}

	sink := events.Sink(events.NewMemorySink())
	if opts.Events != nil {
		sink = events.MultiSink{sink, opts.Events}
	}

	stream, err := validate.Normalize(fs, plan)
	if err != nil {
		return ApplyResult{Exit: classify(err), PlanID: planID}, err
	}
	if err := validate.Preflight(fs, stream, plan); err != nil {
		return ApplyResult{Exit: classify(err), PlanID: planID}, err
	}

	if opts.ValidateOnly {
		_ = sink.Emit(events.NewPlanValidated(planID))
		return ApplyResult{Exit: Success, PlanID: planID}, nil
	}

	var jsink journal.Sink
	if opts.DryRun || opts.JournalPath == "" {
		jsink = journal.NewMemorySink()
	} else {
		fsink, err := journal.OpenFile(opts.JournalPath, !opts.SkipJournalFsync)
		if err != nil {
			return ApplyResult{Exit: OperationalFailure, PlanID: planID}, err
		}
		defer fsink.Close()
		jsink = fsink
	}

	if opts.DryRun {
		for _, op := range stream.Ops {
			_ = sink.Emit(events.NewOpPlanned(op.ID, op.Kind, pathOf(op.Src), pathOf(op.Dst)))
		}
	}

	exec := opexec.New(fs, e.log, opts.TrashDirName)
	mgr := txn.New(fs, exec, jsink, sink, e.log)
	result := mgr.Run(plan.Root, stream, plan, planID)

	return ApplyResult{
		Exit:        classifyResult(result),
		PlanID:      planID,
		Txn:         result,
		JournalPath: opts.JournalPath,
	}, nil
}

// UndoOptions configures a standalone undo run from a journal file.
type UndoOptions struct {
	JournalPath string
	Events      events.Sink
	FS          fsx.FS
	TrashDirName string
	// DryRun simulates the reversal against a copy-on-write shadow of
	// fs (or the real filesystem, if FS is unset) and discards it.
	DryRun bool
}

// Undo reverses every un-undone `ok` record in the journal at
// opts.JournalPath, most recently applied first.
func (e *Engine) Undo(opts UndoOptions) (ExitClass, error) {
	records, err := journal.ReadFile(opts.JournalPath)
	if err != nil {
		return OperationalFailure, err
	}

	fs := opts.FS
	if fs == nil {
		fs = fsx.NewOS()
	}
	if opts.DryRun {
		fs = dryRunFS(fs)
	}
	exec := opexec.New(fs, e.log, opts.TrashDirName)

	sink := events.Sink(events.NewMemorySink())
	if opts.Events != nil {
		sink = events.MultiSink{sink, opts.Events}
	}

	journalID := uuid.New()
	if err := txn.UndoJournal(exec, fs, records, sink, journalID); err != nil {
		return OperationalFailure, err
	}
	return Success, nil
}

// classify maps a pre-execution error (validation or preflight) to its
// exit class per spec §6.
func classify(err error) ExitClass {
	switch errkind.CodeOf(err) {
	case errkind.IoError, errkind.PermissionDenied, errkind.SourceMissing:
		return OperationalFailure
	case errkind.PolicyViolation, errkind.RootEscape, errkind.SymlinkPolicy,
		errkind.DestinationExists, errkind.StructurallyInvalid, errkind.NonAbsoluteRoot,
		errkind.InvalidPath, errkind.MaxBytesExceeded, errkind.HashCollision, errkind.CrossDeviceBlocked:
		return PolicyFailure
	default:
		return OperationalFailure
	}
}

// classifyResult maps a completed transaction run to its exit class.
func classifyResult(result txn.Result) ExitClass {
	if result.Aborted {
		if len(result.Applied) == 0 && len(result.Failed) > 0 {
			// The first op failed, so rollback had nothing to reverse:
			// classify by the failure itself.
			return classify(result.Failed[0].Err)
		}
		return TransactionalFailure
	}
	if len(result.Failed) == 0 {
		return Success
	}
	// "op" mode: at least one failure but no rollback. Every failure
	// observed here is a policy or operational error surfaced by the
	// executor; classify by the first one's code.
	return classify(result.Failed[0].Err)
}

// dryRunFS layers a fresh in-memory overlay over fs so nothing written
// during a dry run reaches whatever fs actually backs. This applies
// regardless of whether fs is the engine's own OS-backed default or a
// filesystem the caller supplied: an afero-backed FS (the shape every
// test double and the engine's own dry-run construction use) exposes
// its underlying afero.Fs via the Afero() accessor and gets a
// CopyOnWriteFs over it directly; anything else is assumed to be the
// real OS and gets the same CopyOnWriteFs(OsFs, MemMapFs) shadow the
// engine used to only build when the caller left FS unset.
func dryRunFS(fs fsx.FS) fsx.FS {
	if a, ok := fs.(interface{ Afero() afero.Fs }); ok {
		return fsx.NewAfero(afero.NewCopyOnWriteFs(a.Afero(), afero.NewMemMapFs()))
	}
	return fsx.NewAfero(afero.NewCopyOnWriteFs(afero.NewOsFs(), afero.NewMemMapFs()))
}

func pathOf(p *resolve.ResolvedPath) string {
	if p == nil {
		return ""
	}
	return p.Canonical
}
