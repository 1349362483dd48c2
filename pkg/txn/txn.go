// Package txn implements the transaction manager (spec §4.E): it
// drives the normalized operation stream through the executor,
// journals every step, emits lifecycle events, and can roll an
// in-flight transaction back or undo a completed one from its journal
// alone.
package txn

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/events"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/journal"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/opexec"
	"github.com/jopamo/tfs/pkg/validate"
)

// OpResult is one operation's outcome within a run.
type OpResult struct {
	Op     validate.NormalizedOp
	Effect opexec.Effect
	Err    error
}

// Result is the outcome of a full transaction run.
type Result struct {
	Applied []OpResult
	Failed  []OpResult
	Aborted bool
	RolledBack bool
	// AbortErr is the aggregate errkind.Aborted{cause, rollback_outcome}
	// error (spec §7) when Aborted is true; nil otherwise.
	AbortErr error
}

// OK reports whether the transaction ran to completion with nothing
// left unresolved: no failures under "all" mode, or a fully-applied
// "op" mode run.
func (r Result) OK() bool {
	return !r.Aborted && len(r.Failed) == 0
}

// Manager drives one plan's operation stream to completion.
type Manager struct {
	fs      fsx.FS
	exec    *opexec.Executor
	journal journal.Sink
	events  events.Sink
	log     zerolog.Logger
}

// New builds a Manager over the given executor, journal sink and
// event sink. Pass journal.NewMemorySink() for dry-run, per spec §4.D.
func New(fs fsx.FS, exec *opexec.Executor, j journal.Sink, ev events.Sink, log zerolog.Logger) *Manager {
	return &Manager{fs: fs, exec: exec, journal: j, events: ev, log: log}
}

// Run executes every operation in stream against root under plan's
// policies, honoring plan.Transaction:
//
//   - "all": the first failure rolls back every previously applied
//     operation, in reverse order, and aborts the remaining stream.
//   - "op": each operation succeeds or fails independently; a failure
//     is recorded but does not affect sibling operations.
func (m *Manager) Run(root string, stream validate.OpStream, plan model.Plan, planID uuid.UUID) Result {
	result := Result{}
	seq := 0

	for _, op := range stream.Ops {
		seq++
		src, dst := opPaths(op)

		_ = m.journal.Append(journal.NewStartRecord(seq, op.ID, op.Kind, src, dst))
		done := events.TrackOp(m.events, op.ID)

		effect, err := m.exec.Execute(root, op, plan)
		seq++

		if err != nil {
			_ = m.journal.Append(journal.NewFailRecord(seq, op.ID, op.Kind, src, dst, err))
			_ = done("", 0, err)
			opResult := OpResult{Op: op, Err: err}
			result.Failed = append(result.Failed, opResult)

			if plan.Transaction == model.TransactionAll {
				m.log.Warn().Int("op_id", op.ID).Err(err).Msg("aborting transaction on first failure")
				_, clean := m.rollback(root, result.Applied, seq)
				outcome := errkind.RollbackClean
				if !clean {
					outcome = errkind.RollbackPartial
				}
				result.Aborted = true
				result.RolledBack = true
				result.AbortErr = errkind.NewAborted(err, outcome)
				_ = m.events.Emit(events.NewTxnAborted(planID, result.AbortErr, string(outcome)))
				return result
			}
			continue
		}

		_ = m.journal.Append(journal.NewOKRecord(seq, op.ID, op.Kind, src, dst, effect))
		_ = done(effect.To, effect.Bytes, nil)
		result.Applied = append(result.Applied, OpResult{Op: op, Effect: effect})
	}

	if !result.Aborted {
		_ = m.events.Emit(events.NewTxnCommitted(planID))
	}
	return result
}

// rollback reverses every applied operation, most recent first,
// continuing the forward run's journal seq counter (spec §4.D: "each
// record's seq must equal predecessor's seq + 1" — rollback records
// are no exception). A reversal that itself fails is journaled as a
// `fail` record on a synthetic reverse-op rather than returned: spec
// §7 requires rollback errors not short-circuit rollback, so the loop
// makes a best-effort pass over everything already applied. Returns
// the seq counter's final value and whether every reversal succeeded
// (a clean rollback, as opposed to a partial one).
func (m *Manager) rollback(root string, applied []OpResult, seq int) (int, bool) {
	clean := true
	for i := len(applied) - 1; i >= 0; i-- {
		res := applied[i]
		src, dst := opPaths(res.Op)
		seq++
		if err := ReverseEffect(m.exec, m.fs, res.Op, res.Effect); err != nil {
			m.log.Error().Int("op_id", res.Op.ID).Err(err).Msg("rollback step failed")
			_ = m.journal.Append(journal.NewFailRecord(seq, res.Op.ID, res.Op.Kind, src, dst, err))
			clean = false
			continue
		}
		_ = m.journal.Append(journal.NewUndoneRecord(seq, res.Op.ID, res.Op.Kind))
	}
	return seq, clean
}

// UndoJournal reverses a completed run using only its journal, for the
// standalone `tfs undo` command; no Plan or normalized stream is
// needed since every effect the executor produced is self-describing.
func UndoJournal(exec *opexec.Executor, fs fsx.FS, records []journal.Record, ev events.Sink, journalID uuid.UUID) error {
	_ = ev.Emit(events.NewUndoStarted(journalID))
	start := time.Now()

	byOpID := map[int]journal.Record{}
	for _, rec := range records {
		if rec.Phase == journal.PhaseOK {
			byOpID[rec.OpID] = rec
		}
		if rec.Phase == journal.PhaseUndone {
			delete(byOpID, rec.OpID)
		}
	}

	ordered := make([]journal.Record, 0, len(byOpID))
	for _, rec := range byOpID {
		ordered = append(ordered, rec)
	}
	sortBySeqDesc(ordered)

	var firstErr error
	for _, rec := range ordered {
		if rec.Effect == nil {
			continue
		}
		op := validate.NormalizedOp{ID: rec.OpID, Kind: rec.OpKind}
		done := events.TrackOp(ev, rec.OpID)
		err := ReverseEffect(exec, fs, op, rec.Effect.ToExecEffect())
		_ = done("", 0, err)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	_ = ev.Emit(events.NewUndoCompleted(journalID, time.Since(start)))
	return firstErr
}

func sortBySeqDesc(records []journal.Record) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].Seq > records[j-1].Seq; j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

// ReverseEffect undoes one executed effect, the reverse-operation
// synthesis table from spec §4.E, grounded on the original engine's
// rollback match over its UndoMetadata enum but keyed on the unified
// Effect union instead of a separate undo-only type.
func ReverseEffect(exec *opexec.Executor, fs fsx.FS, op validate.NormalizedOp, effect opexec.Effect) error {
	switch effect.Kind {
	case opexec.MovedSameDevice, opexec.MovedCrossDevice, opexec.Trashed:
		if err := exec.Relocate(effect.To, effect.From); err != nil {
			return err
		}
		if effect.Backup != "" {
			return exec.Relocate(effect.Backup, effect.To)
		}
		return nil

	case opexec.Copied:
		info, statErr := fs.Stat(effect.To)
		recursive := statErr == nil && info.IsDir()
		if err := exec.RemoveCreated(effect.To, recursive); err != nil {
			return err
		}
		if effect.Backup != "" {
			return exec.Relocate(effect.Backup, effect.To)
		}
		return nil

	case opexec.MkdirCreated:
		return exec.RemoveCreated(effect.At, false)

	case opexec.MkdirExisted:
		return nil // nothing was created, nothing to undo

	default:
		return errkind.New(errkind.StructurallyInvalid, "unrecognized effect kind for reversal")
	}
}

func opPaths(op validate.NormalizedOp) (src, dst string) {
	if op.Src != nil {
		src = op.Src.Canonical
	}
	if op.Dst != nil {
		dst = op.Dst.Canonical
	}
	return src, dst
}
