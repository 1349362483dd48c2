package journal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/journal"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/opexec"
)

func TestFileSinkAppendWritesNDJSONAndFsyncs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	sink, err := journal.OpenFile(path, true)
	require.NoError(t, err)

	require.NoError(t, sink.Append(journal.NewStartRecord(1, 1, model.OpMove, "/root/a", "/root/b")))
	require.NoError(t, sink.Append(journal.NewOKRecord(2, 1, model.OpMove, "/root/a", "/root/b",
		opexec.Effect{Kind: opexec.MovedSameDevice, From: "/root/a", To: "/root/b"})))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitNonEmpty(string(data))
	require.Len(t, lines, 2)

	records, err := journal.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, journal.PhaseStart, records[0].Phase)
	assert.Equal(t, journal.PhaseOK, records[1].Phase)
	assert.Equal(t, opexec.MovedSameDevice, records[1].Effect.Kind)
}

func TestOpenFileRefusesSecondExclusiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	first, err := journal.OpenFile(path, true)
	require.NoError(t, err)
	defer first.Close()

	_, err = journal.OpenFile(path, true)
	assert.Error(t, err)
}

func TestFileSinkSkipsFsyncWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	sink, err := journal.OpenFile(path, false)
	require.NoError(t, err)

	require.NoError(t, sink.Append(journal.NewStartRecord(1, 1, model.OpMkdir, "", "/root/a")))
	require.NoError(t, sink.Close())

	records, err := journal.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestReadFileDiscardsTruncatedTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	full := `{"seq":1,"op_id":1,"op_kind":"mkdir","phase":"ok"}` + "\n"
	partial := `{"seq":2,"op_id":2,"op_kind":"move","phase":"sta`
	require.NoError(t, os.WriteFile(path, []byte(full+partial), 0o644))

	records, err := journal.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Seq)
}

func TestReadFileRejectsCorruptNonTrailingLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.journal")
	content := "not json at all\n" + `{"seq":2,"op_id":1,"op_kind":"mkdir","phase":"ok"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := journal.ReadFile(path)
	assert.Error(t, err)
}

func TestValidateSequenceDetectsGap(t *testing.T) {
	records := []journal.Record{
		{Seq: 1, OpID: 1},
		{Seq: 3, OpID: 2},
	}
	err := journal.ValidateSequence(records)
	assert.Error(t, err)
}

func TestValidateSequenceAcceptsContiguousRun(t *testing.T) {
	records := []journal.Record{
		{Seq: 1, OpID: 1},
		{Seq: 2, OpID: 1},
		{Seq: 3, OpID: 2},
	}
	assert.NoError(t, journal.ValidateSequence(records))
}

func TestMemorySinkCollectsRecordsWithoutTouchingDisk(t *testing.T) {
	sink := journal.NewMemorySink()
	require.NoError(t, sink.Append(journal.NewStartRecord(1, 1, model.OpMkdir, "", "/root/a")))
	require.NoError(t, sink.Append(journal.NewOKRecord(2, 1, model.OpMkdir, "", "/root/a",
		opexec.Effect{Kind: opexec.MkdirCreated, At: "/root/a"})))
	require.NoError(t, sink.Close())

	require.Len(t, sink.Records, 2)
	assert.Equal(t, opexec.MkdirCreated, sink.Records[1].Effect.Kind)
}

func TestFailRecordCarriesErrorCode(t *testing.T) {
	rec := journal.NewFailRecord(1, 1, model.OpMove, "/root/a", "/root/b", assertionErr{})
	assert.Equal(t, journal.PhaseFail, rec.Phase)
	assert.Equal(t, "UNKNOWN", rec.ErrorKind)
	assert.Equal(t, "boom", rec.ErrorMessage)
}

func TestEffectRoundTripsThroughToExecEffect(t *testing.T) {
	original := opexec.Effect{Kind: opexec.Copied, To: "/root/b", Bytes: 42, Overwrote: true, Backup: "/root/b.bak.5"}
	rec := journal.NewOKRecord(1, 5, model.OpCopy, "/root/a", "/root/b", original)
	assert.Equal(t, original, rec.Effect.ToExecEffect())
}

type assertionErr struct{}

func (assertionErr) Error() string { return "boom" }

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
