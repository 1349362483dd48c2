package txn

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/journal"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/opexec"
	"github.com/jopamo/tfs/pkg/resolve"
	"github.com/jopamo/tfs/pkg/validate"
)

func TestRollbackContinuesSeqOnCleanReversal(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/root/dir", 0o755))
	exec := opexec.New(fs, zerolog.Nop(), "")
	memSink := journal.NewMemorySink()
	m := New(fs, exec, memSink, nil, zerolog.Nop())

	applied := []OpResult{
		{
			Op:     validate.NormalizedOp{ID: 1, Kind: model.OpMkdir, Dst: &resolve.ResolvedPath{Canonical: "/root/dir"}},
			Effect: opexec.Effect{Kind: opexec.MkdirCreated, At: "/root/dir"},
		},
	}

	finalSeq, clean := m.rollback("/root", applied, 4)
	assert.True(t, clean)
	assert.Equal(t, 5, finalSeq)

	require.Len(t, memSink.Records, 1)
	assert.Equal(t, journal.PhaseUndone, memSink.Records[0].Phase)
	assert.Equal(t, 5, memSink.Records[0].Seq)
}

func TestRollbackJournalsFailedReversalAsFailRecordAndContinuesSeq(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/root", 0o755))
	exec := opexec.New(fs, zerolog.Nop(), "")
	memSink := journal.NewMemorySink()
	m := New(fs, exec, memSink, nil, zerolog.Nop())

	// The mkdir this reverses was never actually created on fs, so its
	// reversal (RemoveCreated) fails.
	applied := []OpResult{
		{
			Op:     validate.NormalizedOp{ID: 1, Kind: model.OpMkdir, Dst: &resolve.ResolvedPath{Canonical: "/root/missing"}},
			Effect: opexec.Effect{Kind: opexec.MkdirCreated, At: "/root/missing"},
		},
		{
			Op:     validate.NormalizedOp{ID: 2, Kind: model.OpMkdir, Dst: &resolve.ResolvedPath{Canonical: "/root/dir"}},
			Effect: opexec.Effect{Kind: opexec.MkdirCreated, At: "/root/dir"},
		},
	}
	require.NoError(t, fs.MkdirAll("/root/dir", 0o755))

	finalSeq, clean := m.rollback("/root", applied, 4)
	assert.False(t, clean, "one failed reversal makes the whole rollback partial")
	assert.Equal(t, 6, finalSeq, "seq advances once per reversal attempt, success or failure, continuing from the value passed in")

	require.Len(t, memSink.Records, 2)
	// Reverse order: op 2 (most recently applied) is attempted first and succeeds.
	assert.Equal(t, 2, memSink.Records[0].OpID)
	assert.Equal(t, journal.PhaseUndone, memSink.Records[0].Phase)
	assert.Equal(t, 5, memSink.Records[0].Seq)
	// op 1's reversal fails and is journaled as fail on the synthetic reverse op, not silently dropped.
	assert.Equal(t, 1, memSink.Records[1].OpID)
	assert.Equal(t, journal.PhaseFail, memSink.Records[1].Phase)
	assert.Equal(t, 6, memSink.Records[1].Seq)
	assert.NotEmpty(t, memSink.Records[1].ErrorMessage)
}
