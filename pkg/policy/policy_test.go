package policy_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/policy"
)

func TestResolveCollisionNoExistingDestination(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	res, err := policy.ResolveCollision(fs, model.CollisionFail, "/root/new.txt", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "/root/new.txt", res.Dst)
	assert.Empty(t, res.Backup)
}

func TestResolveCollisionFail(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/root/x.txt", []byte("a"), 0o644))

	_, err := policy.ResolveCollision(fs, model.CollisionFail, "/root/x.txt", 1, nil)
	require.Error(t, err)
	assert.Equal(t, errkind.DestinationExists, errkind.CodeOf(err))
}

func TestResolveCollisionSuffixIncrementsUntilFree(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/root/x.txt", []byte("a"), 0o644))
	require.NoError(t, fs.WriteFile("/root/x_2.txt", []byte("a"), 0o644))

	res, err := policy.ResolveCollision(fs, model.CollisionSuffix, "/root/x.txt", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/root", "x_3.txt"), res.Dst)
}

func TestResolveCollisionHash8UsesFileSource(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/root/x.txt", []byte("dst-exists"), 0o644))
	require.NoError(t, fs.WriteFile("/src/x.txt", []byte("payload"), 0o644))

	res, err := policy.ResolveCollision(fs, model.CollisionHash8, "/root/x.txt", 1,
		policy.HashFileSource(fs, "/src/x.txt"))
	require.NoError(t, err)
	want := policy.Hash8([]byte("payload"))
	assert.Equal(t, filepath.Join("/root", "x-"+want+".txt"), res.Dst)
}

func TestResolveCollisionHash8CollisionFails(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/root/x.txt", []byte("dst-exists"), 0o644))
	require.NoError(t, fs.WriteFile("/src/x.txt", []byte("payload"), 0o644))
	want := policy.Hash8([]byte("payload"))
	require.NoError(t, fs.WriteFile(filepath.Join("/root", "x-"+want+".txt"), []byte("taken"), 0o644))

	_, err := policy.ResolveCollision(fs, model.CollisionHash8, "/root/x.txt", 1,
		policy.HashFileSource(fs, "/src/x.txt"))
	require.Error(t, err)
}

func TestResolveCollisionOverwriteWithBackupNamesBackupWithOpID(t *testing.T) {
	fs := fsx.NewAfero(afero.NewMemMapFs())
	require.NoError(t, fs.WriteFile("/root/x.txt", []byte("a"), 0o644))

	res, err := policy.ResolveCollision(fs, model.CollisionOverwriteWithBackup, "/root/x.txt", 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "/root/x.txt", res.Dst)
	assert.Equal(t, "/root/x.txt.bak.7", res.Backup)
}
