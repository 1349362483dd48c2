package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/config"
	"github.com/jopamo/tfs/pkg/model"
)

func TestLoadReturnsBuiltinDefaultsWhenNoAmbientConfigExists(t *testing.T) {
	// The sandboxed test environment has no ~/.config/tfs/tfs.yaml, so
	// Load falls back to builtins regardless of XDG_CONFIG_HOME timing.
	d, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTransaction, d.Transaction)
	assert.Equal(t, model.DefaultCollision, d.Collision)
	assert.Equal(t, model.DefaultSymlink, d.Symlink)
	assert.Equal(t, ".tfs-trash", d.TrashDirName)
}

func TestApplyToOnlyFillsUnsetFields(t *testing.T) {
	d := config.Defaults{Transaction: model.TransactionOp, Collision: model.CollisionSuffix, Symlink: model.SymlinkFollow}
	plan := model.Plan{Collision: model.CollisionFail}

	d.ApplyTo(&plan)
	assert.Equal(t, model.TransactionOp, plan.Transaction)
	assert.Equal(t, model.CollisionFail, plan.Collision, "manifest-set field must not be overridden")
	assert.Equal(t, model.SymlinkFollow, plan.Symlink)
}
