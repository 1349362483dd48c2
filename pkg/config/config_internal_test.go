package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/model"
)

func TestLoadFromMergesOverridesOverBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collision: suffix\njournal_fsync: false\n"), 0o644))

	d, err := loadFrom(path, builtins())
	require.NoError(t, err)
	assert.Equal(t, model.CollisionSuffix, d.Collision)
	assert.False(t, d.JournalFsync)
	assert.Equal(t, model.DefaultSymlink, d.Symlink, "unset fields keep the builtin default")
}

func TestLoadFromSurfacesMissingFile(t *testing.T) {
	_, err := loadFrom(filepath.Join(t.TempDir(), "missing.yaml"), builtins())
	assert.Error(t, err)
}
