// Package events defines the structured lifecycle events the engine
// emits while validating, executing and undoing a plan, and the sinks
// that consume them (structured logging, NDJSON, in-memory capture for
// tests).
package events

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jopamo/tfs/pkg/model"
)

// Type names one of the nine lifecycle events spec §4 describes.
type Type string

const (
	PlanValidated Type = "plan_validated"
	OpPlanned     Type = "op_planned"
	OpStarted     Type = "op_started"
	OpCompleted   Type = "op_completed"
	OpFailed      Type = "op_failed"
	TxnCommitted  Type = "txn_committed"
	TxnAborted    Type = "txn_aborted"
	UndoStarted   Type = "undo_started"
	UndoCompleted Type = "undo_completed"
)

// Event is the tagged union of everything the engine can emit. Only
// the fields relevant to Type are populated; the rest are omitted from
// JSON.
type Event struct {
	Type Type `json:"type"`

	PlanID    uuid.UUID `json:"plan_id,omitempty"`
	JournalID uuid.UUID `json:"journal_id,omitempty"`

	OpID   int          `json:"op_id,omitempty"`
	OpType model.OpKind `json:"op_type,omitempty"`
	Src    string       `json:"src,omitempty"`
	Dst    string       `json:"dst,omitempty"`

	BytesCopied int64  `json:"bytes_copied,omitempty"`
	FinalDst    string `json:"final_dst,omitempty"`
	Error       string `json:"error,omitempty"`

	// DurationMS generalizes the original's fire-and-forget events with
	// the teacher's start/complete duration pairing (LogOperationStart).
	DurationMS int64 `json:"duration_ms,omitempty"`

	// RollbackOutcome is set only on a txn_aborted event following an
	// all-or-nothing rollback: "clean" if every applied op reversed,
	// "partial" if at least one reversal itself failed (spec §7's
	// Aborted{cause, rollback_outcome}).
	RollbackOutcome string `json:"rollback_outcome,omitempty"`
}

func NewPlanValidated(planID uuid.UUID) Event {
	return Event{Type: PlanValidated, PlanID: planID}
}

func NewOpPlanned(opID int, opType model.OpKind, src, dst string) Event {
	return Event{Type: OpPlanned, OpID: opID, OpType: opType, Src: src, Dst: dst}
}

func NewOpStarted(opID int) Event {
	return Event{Type: OpStarted, OpID: opID}
}

func NewOpCompleted(opID int, bytesCopied int64, finalDst string, dur time.Duration) Event {
	return Event{Type: OpCompleted, OpID: opID, BytesCopied: bytesCopied, FinalDst: finalDst, DurationMS: dur.Milliseconds()}
}

func NewOpFailed(opID int, err error) Event {
	return Event{Type: OpFailed, OpID: opID, Error: err.Error()}
}

func NewTxnCommitted(planID uuid.UUID) Event {
	return Event{Type: TxnCommitted, PlanID: planID}
}

// NewTxnAborted builds the terminal txn_aborted event. cause is the
// aggregate abort error (spec §7's Aborted{cause, rollback_outcome});
// its message and rollback_outcome detail are surfaced as this event's
// own Error and RollbackOutcome fields so a host consuming the event
// stream alone sees the full aggregate, without reaching into the Go
// error value.
func NewTxnAborted(planID uuid.UUID, cause error, rollbackOutcome string) Event {
	e := Event{Type: TxnAborted, PlanID: planID, RollbackOutcome: rollbackOutcome}
	if cause != nil {
		e.Error = cause.Error()
	}
	return e
}

func NewUndoStarted(journalID uuid.UUID) Event {
	return Event{Type: UndoStarted, JournalID: journalID}
}

func NewUndoCompleted(journalID uuid.UUID, dur time.Duration) Event {
	return Event{Type: UndoCompleted, JournalID: journalID, DurationMS: dur.Milliseconds()}
}

// Sink receives events as they occur.
type Sink interface {
	Emit(evt Event) error
}

// MemorySink collects every emitted event, used by tests and by the
// engine's ValidateOnly path to build a preview report.
type MemorySink struct {
	Events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Emit(evt Event) error {
	s.Events = append(s.Events, evt)
	return nil
}

// JSONSink writes one NDJSON line per event, the wire format behind
// `tfs apply --json`.
type JSONSink struct {
	w io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink { return &JSONSink{w: w} }

func (s *JSONSink) Emit(evt Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = s.w.Write(line)
	return err
}

// LogSink mirrors each event into structured logs at a level chosen by
// its severity, the same start/complete narration style as the
// teacher's LogOperationStart.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Emit(evt Event) error {
	entry := s.log.Info()
	if evt.Type == OpFailed || evt.Type == TxnAborted {
		entry = s.log.Warn()
	}
	entry.
		Str("event", string(evt.Type)).
		Int("op_id", evt.OpID).
		Str("op_type", string(evt.OpType)).
		Str("src", evt.Src).
		Str("dst", evt.Dst).
		Str("final_dst", evt.FinalDst).
		Int64("bytes_copied", evt.BytesCopied).
		Int64("duration_ms", evt.DurationMS).
		Str("error", evt.Error).
		Str("rollback_outcome", evt.RollbackOutcome).
		Msg("engine event")
	return nil
}

// MultiSink fans one event out to several sinks, returning the first
// error encountered but still attempting every sink.
type MultiSink []Sink

func (m MultiSink) Emit(evt Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Emit(evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// TrackOp returns a completion function pairing OpStarted with either
// OpCompleted or OpFailed, timed from the call to TrackOp, mirroring
// the teacher's LogOperationStart start/complete closure.
func TrackOp(sink Sink, opID int) func(finalDst string, bytesCopied int64, err error) error {
	start := time.Now()
	_ = sink.Emit(NewOpStarted(opID))
	return func(finalDst string, bytesCopied int64, err error) error {
		if err != nil {
			return sink.Emit(NewOpFailed(opID, err))
		}
		return sink.Emit(NewOpCompleted(opID, bytesCopied, finalDst, time.Since(start)))
	}
}
