package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/model"
)

func TestOperationRoundTripsThroughJSON(t *testing.T) {
	ops := []model.Operation{
		model.Mkdir("a/b", true),
		model.Move("a", "b"),
		model.Copy("a", "b"),
		model.Rename("a", "b"),
		model.Trash("a"),
	}

	for _, op := range ops {
		data, err := json.Marshal(op)
		require.NoError(t, err)

		var got model.Operation
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, op, got)
	}
}

func TestPlanUnmarshalPreservesExplicitFields(t *testing.T) {
	raw := []byte(`{
		"root": "/tmp/x",
		"transaction": "op",
		"collision": "suffix",
		"symlink": "follow",
		"allow_overwrite": true,
		"operations": [{"op": "mkdir", "dst": "d", "parents": true}]
	}`)

	var p model.Plan
	require.NoError(t, json.Unmarshal(raw, &p))
	p.ApplyDefaults()

	assert.Equal(t, "/tmp/x", p.Root)
	assert.Equal(t, model.TransactionOp, p.Transaction)
	assert.Equal(t, model.CollisionSuffix, p.Collision)
	assert.Equal(t, model.SymlinkFollow, p.Symlink)
	assert.True(t, p.AllowOverwrite)
	require.Len(t, p.Operations, 1)
	assert.Equal(t, model.OpMkdir, p.Operations[0].Op)
}

func TestPlanApplyDefaultsFillsMissingFields(t *testing.T) {
	p := model.Plan{Root: "/tmp/x"}
	p.ApplyDefaults()

	assert.Equal(t, model.DefaultTransaction, p.Transaction)
	assert.Equal(t, model.DefaultCollision, p.Collision)
	assert.Equal(t, model.DefaultSymlink, p.Symlink)
}
