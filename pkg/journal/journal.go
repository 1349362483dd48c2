// Package journal implements the append-only, durable operation
// journal (spec §4.D): one JSON record per line, fsynced before the
// executor is allowed to proceed, held under an exclusive advisory
// lock for the run's duration.
package journal

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/opexec"
)

// Phase is a record's position in an operation's lifecycle.
type Phase string

const (
	PhaseStart  Phase = "start"
	PhaseOK     Phase = "ok"
	PhaseFail   Phase = "fail"
	PhaseUndone Phase = "undone"
)

// Effect is the on-disk mirror of opexec.Effect.
type Effect struct {
	Kind      opexec.EffectKind `json:"kind"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	At        string            `json:"at,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Overwrote bool              `json:"overwrote,omitempty"`
	Backup    string            `json:"backup,omitempty"`
}

func fromExecEffect(e opexec.Effect) *Effect {
	return &Effect{
		Kind: e.Kind, From: e.From, To: e.To, At: e.At,
		Bytes: e.Bytes, Overwrote: e.Overwrote, Backup: e.Backup,
	}
}

// ToExecEffect converts a journal-recorded Effect back into an
// opexec.Effect, the form the reverse-operation synthesizer consumes.
func (e Effect) ToExecEffect() opexec.Effect {
	return opexec.Effect{
		Kind: e.Kind, From: e.From, To: e.To, At: e.At,
		Bytes: e.Bytes, Overwrote: e.Overwrote, Backup: e.Backup,
	}
}

// Record is one immutable journal line.
type Record struct {
	Seq          int          `json:"seq"`
	OpID         int          `json:"op_id"`
	OpKind       model.OpKind `json:"op_kind"`
	Src          string       `json:"src,omitempty"`
	Dst          string       `json:"dst,omitempty"`
	Phase        Phase        `json:"phase"`
	Effect       *Effect      `json:"effect,omitempty"`
	ErrorKind    string       `json:"error_kind,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// NewOKRecord builds an `ok` record from an executor effect.
func NewOKRecord(seq, opID int, kind model.OpKind, src, dst string, effect opexec.Effect) Record {
	return Record{Seq: seq, OpID: opID, OpKind: kind, Src: src, Dst: dst, Phase: PhaseOK, Effect: fromExecEffect(effect)}
}

// NewStartRecord builds a `start` record.
func NewStartRecord(seq, opID int, kind model.OpKind, src, dst string) Record {
	return Record{Seq: seq, OpID: opID, OpKind: kind, Src: src, Dst: dst, Phase: PhaseStart}
}

// NewFailRecord builds a `fail` record.
func NewFailRecord(seq, opID int, kind model.OpKind, src, dst string, err error) Record {
	return Record{
		Seq: seq, OpID: opID, OpKind: kind, Src: src, Dst: dst, Phase: PhaseFail,
		ErrorKind:    string(errkind.CodeOf(err)),
		ErrorMessage: err.Error(),
	}
}

// NewUndoneRecord builds an `undone` record referencing the op_id it
// reverses.
func NewUndoneRecord(seq, opID int, kind model.OpKind) Record {
	return Record{Seq: seq, OpID: opID, OpKind: kind, Phase: PhaseUndone}
}

// Sink is the append-only destination for journal records. Dry-run
// uses an in-memory Sink; a real apply uses a FileSink.
type Sink interface {
	Append(rec Record) error
	Close() error
}

// FileSink appends NDJSON records to a real file, fsyncing each one
// before returning and holding an exclusive advisory lock for its
// entire lifetime. It talks to the OS directly rather than through
// pkg/fsx: fsync-before-proceed and flock are durability and
// mutual-exclusion guarantees the filesystem abstraction has no need
// to generalize away.
type FileSink struct {
	mu    sync.Mutex
	file  *os.File
	fsync bool
}

// OpenFile creates or truncates the journal at path, taking an
// exclusive, non-blocking advisory lock. It fails if another process
// already holds the lock, per spec §5's "two engines must not share a
// journal". fsync controls whether every Append blocks on fsync before
// returning (spec §10.C's ambient "journal fsync-per-record toggle");
// pass true unless the caller has an explicit reason to trade
// durability for throughput.
func OpenFile(path string, fsync bool) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot open journal").WithDetail("path", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errkind.Wrap(err, errkind.IoError, "journal is locked by another process").WithDetail("path", path)
	}
	return &FileSink{file: f, fsync: fsync}, nil
}

// Append writes rec as one NDJSON line, fsyncing it before returning
// unless the sink was opened with fsync disabled.
func (s *FileSink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return errkind.Wrap(err, errkind.IoError, "cannot encode journal record")
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return errkind.Wrap(err, errkind.IoError, "journal write failed")
	}
	if !s.fsync {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return errkind.Wrap(err, errkind.IoError, "journal fsync failed")
	}
	return nil
}

// Close releases the advisory lock and closes the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	return s.file.Close()
}

// MemorySink collects records in memory without touching disk, used
// during dry-run per spec §4.D: "the journal is written to an
// in-memory sink for preview only."
type MemorySink struct {
	mu      sync.Mutex
	Records []Record
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records = append(s.Records, rec)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// ReadFile reads every complete record from a journal file. A
// truncated trailing line — the mark of a crash mid-write — is
// silently discarded rather than treated as corruption.
func ReadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot read journal").WithDetail("path", path)
	}

	lines := strings.Split(string(data), "\n")
	records := make([]Record, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			if i == len(lines)-1 {
				break // truncated trailing line
			}
			return nil, errkind.Wrap(err, errkind.IoError, "corrupt journal record").WithDetail("line", i+1)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ValidateSequence checks the §4.D integrity invariant: seq starts at
// 1 and increases by exactly one from record to record.
func ValidateSequence(records []Record) error {
	for i, rec := range records {
		want := i + 1
		if rec.Seq != want {
			return errkind.New(errkind.IoError, "journal sequence gap").
				WithDetail("index", i).WithDetail("want_seq", want).WithDetail("got_seq", rec.Seq)
		}
	}
	return nil
}
