package engine_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/engine"
	"github.com/jopamo/tfs/pkg/events"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/model"
)

func newEngine() *engine.Engine { return engine.New(zerolog.Nop()) }

func planWith(root string, ops ...model.Operation) model.Plan {
	p := model.Plan{Root: root, Operations: ops}
	p.ApplyDefaults()
	return p
}

func TestApplyCommitsAllModeSuccess(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("hi"), 0o644))

	p := planWith("/t", model.Mkdir("Docs", false), model.Move("a.txt", "Docs/a.txt"))
	e := newEngine()
	result, err := e.Apply(p, engine.ApplyOptions{FS: fs})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, result.Exit)
	assert.True(t, result.Txn.OK())

	data, err := fs.ReadFile("/t/Docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestApplyReportsPolicyFailureOnCollision(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("x"), 0o644))
	require.NoError(t, fs.WriteFile("/t/b.txt", []byte("y"), 0o644))

	p := planWith("/t", model.Copy("a.txt", "b.txt"))
	e := newEngine()
	result, err := e.Apply(p, engine.ApplyOptions{FS: fs})
	require.NoError(t, err)
	assert.Equal(t, engine.PolicyFailure, result.Exit)
	assert.True(t, result.Txn.Aborted)

	data, err := fs.ReadFile("/t/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "y", string(data))
}

func TestApplyValidateOnlyStopsBeforeExecution(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("x"), 0o644))

	p := planWith("/t", model.Move("a.txt", "b.txt"))
	e := newEngine()
	result, err := e.Apply(p, engine.ApplyOptions{FS: fs, ValidateOnly: true})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, result.Exit)

	_, err = fs.Stat("/t/a.txt")
	assert.NoError(t, err, "validate-only must not touch the filesystem")
}

func TestApplyRejectsRootEscapeAsPolicyFailure(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))

	p := planWith("/t", model.Move("../etc/passwd", "x"))
	e := newEngine()
	result, err := e.Apply(p, engine.ApplyOptions{FS: fs})
	require.Error(t, err)
	assert.Equal(t, engine.PolicyFailure, result.Exit)
}

func TestApplyDryRunUsesEventsButLeavesFilesystemUntouched(t *testing.T) {
	base := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, base.MkdirAll("/t", 0o755))
	require.NoError(t, base.WriteFile("/t/a.txt", []byte("hi"), 0o644))

	p := planWith("/t", model.Move("a.txt", "b.txt"))
	e := newEngine()
	evSink := events.NewMemorySink()
	result, err := e.Apply(p, engine.ApplyOptions{FS: base, DryRun: true, Events: evSink})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, result.Exit)

	_, err = base.Stat("/t/a.txt")
	assert.NoError(t, err)
	_, err = base.Stat("/t/b.txt")
	assert.Error(t, err, "dry-run must not write through the injected FS")

	var sawPlanned bool
	for _, evt := range evSink.Events {
		if evt.Type == events.OpPlanned {
			sawPlanned = true
		}
	}
	assert.True(t, sawPlanned)
}

func TestApplyWritesDurableJournalWhenPathGiven(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("hi"), 0o644))

	journalPath := filepath.Join(t.TempDir(), "run.journal")
	p := planWith("/t", model.Move("a.txt", "b.txt"))
	e := newEngine()
	result, err := e.Apply(p, engine.ApplyOptions{FS: fs, JournalPath: journalPath})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, result.Exit)
	assert.Equal(t, journalPath, result.JournalPath)
}

func TestUndoDryRunLeavesFilesystemUntouched(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("hi"), 0o644))

	journalPath := filepath.Join(t.TempDir(), "run.journal")
	p := planWith("/t", model.Move("a.txt", "b.txt"))
	e := newEngine()
	_, err := e.Apply(p, engine.ApplyOptions{FS: fs, JournalPath: journalPath})
	require.NoError(t, err)

	exit, err := e.Undo(engine.UndoOptions{JournalPath: journalPath, FS: fs, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, exit)

	_, err = fs.Stat("/t/b.txt")
	assert.NoError(t, err, "dry-run undo must not actually reverse the move")
	_, err = fs.Stat("/t/a.txt")
	assert.Error(t, err, "dry-run undo must not touch the real filesystem at all")
}

func TestUndoReversesFromDurableJournal(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/t", 0o755))
	require.NoError(t, fs.WriteFile("/t/a.txt", []byte("hi"), 0o644))

	journalPath := filepath.Join(t.TempDir(), "run.journal")
	p := planWith("/t", model.Move("a.txt", "b.txt"))
	e := newEngine()
	_, err := e.Apply(p, engine.ApplyOptions{FS: fs, JournalPath: journalPath})
	require.NoError(t, err)

	exit, err := e.Undo(engine.UndoOptions{JournalPath: journalPath, FS: fs})
	require.NoError(t, err)
	assert.Equal(t, engine.Success, exit)

	_, err = fs.Stat("/t/a.txt")
	assert.NoError(t, err)
	_, err = fs.Stat("/t/b.txt")
	assert.Error(t, err)
}
