// Package opexec implements the operation executor (spec §4.C): it
// performs one normalized operation against the filesystem and reports
// the observable effect the journal and transaction manager need to
// synthesize a reverse operation.
package opexec

import (
	"io"
	iofs "io/fs"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/logging"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/policy"
	"github.com/jopamo/tfs/pkg/validate"
)

// EffectKind names the shape of a successful operation's outcome, one
// of the six kinds below covering the effects spec §3 enumerates for a
// journal `ok` record (mkdir's created and existed outcomes are
// separate kinds).
type EffectKind string

const (
	MovedSameDevice  EffectKind = "MovedSameDevice"
	MovedCrossDevice EffectKind = "MovedCrossDevice"
	Copied           EffectKind = "Copied"
	MkdirCreated     EffectKind = "MkdirCreated"
	MkdirExisted     EffectKind = "MkdirExisted"
	Trashed          EffectKind = "Trashed"
)

// Effect is the executor's report of what actually happened, carrying
// everything the transaction manager needs, alone, to construct a
// reverse operation (invariant 3).
type Effect struct {
	Kind      EffectKind
	From      string
	To        string
	At        string // mkdir only
	Bytes     int64
	Overwrote bool
	Backup    string // non-empty when overwrite_with_backup fired
}

const dirPerm = 0o755

// Executor performs normalized operations against fs. It is stateless
// beyond the filesystem itself, matching the teacher's Options-configured
// executor shape.
type Executor struct {
	fs     fsx.FS
	log    zerolog.Logger
	trashDirName string
}

// New builds an Executor. trashDirName overrides the default
// ".tfs-trash" quarantine directory name; pass "" for the default.
func New(fs fsx.FS, log zerolog.Logger, trashDirName string) *Executor {
	if trashDirName == "" {
		trashDirName = ".tfs-trash"
	}
	return &Executor{fs: fs, log: log, trashDirName: trashDirName}
}

// Execute performs op against the filesystem under plan's policies.
func (e *Executor) Execute(root string, op validate.NormalizedOp, plan model.Plan) (Effect, error) {
	done := logging.LogOperationStart(e.log, op.ID, string(op.Kind))
	defer done()

	switch op.Kind {
	case model.OpMkdir:
		return e.mkdir(op)
	case model.OpMove:
		return e.move(op, plan, false)
	case model.OpRename:
		return e.rename(op, plan)
	case model.OpCopy:
		return e.copy(op, plan)
	case model.OpTrash:
		return e.trash(root, op)
	default:
		return Effect{}, errkind.New(errkind.StructurallyInvalid, "unknown operation kind")
	}
}

func (e *Executor) mkdir(op validate.NormalizedOp) (Effect, error) {
	dst := op.Dst.Canonical
	info, err := e.fs.Stat(dst)
	if err == nil {
		if info.IsDir() {
			return Effect{Kind: MkdirExisted, At: dst}, nil
		}
		return Effect{}, errkind.New(errkind.NotADirectory, "destination exists and is not a directory").
			WithDetail("path", dst)
	}
	if err := e.fs.Mkdir(dst, dirPerm); err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "mkdir failed").WithDetail("path", dst)
	}
	return Effect{Kind: MkdirCreated, At: dst}, nil
}

// move handles both Move (cross_device fallback allowed unless
// forbidden) and, via rename's caller, the same-parent fast path.
func (e *Executor) move(op validate.NormalizedOp, plan model.Plan, sameParentOnly bool) (Effect, error) {
	src := op.Src.Canonical

	srcInfo, err := e.fs.Stat(src)
	if err != nil {
		return Effect{}, errkind.Wrap(err, errkind.SourceMissing, "move source does not exist").
			WithDetail("src", src)
	}

	res, err := e.resolveDestination(op, plan, src, srcInfo.IsDir())
	if err != nil {
		return Effect{}, err
	}
	if err := e.applyBackup(res); err != nil {
		return Effect{}, err
	}

	srcDev, err := e.fs.DeviceID(src)
	if err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "cannot stat source device")
	}
	dstDev, err := e.fs.DeviceID(filepath.Dir(res.Dst))
	if err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "cannot stat destination device")
	}

	if srcDev == dstDev {
		if err := e.fs.Rename(src, res.Dst); err != nil {
			return Effect{}, errkind.Wrap(err, errkind.IoError, "rename failed").
				WithDetail("src", src).WithDetail("dst", res.Dst)
		}
		return Effect{Kind: MovedSameDevice, From: src, To: res.Dst, Backup: res.Backup}, nil
	}

	if sameParentOnly {
		return Effect{}, errkind.New(errkind.CrossDeviceBlocked, "rename implies a cross-device move").
			WithDetail("src", src).WithDetail("dst", res.Dst)
	}
	if plan.ForbidCrossDevice {
		return Effect{}, errkind.New(errkind.CrossDeviceBlocked, "cross-device move is forbidden by policy").
			WithDetail("src", src).WithDetail("dst", res.Dst)
	}

	bytes, err := e.copyTree(src, res.Dst, srcInfo)
	if err != nil {
		return Effect{}, err
	}
	if srcInfo.IsDir() {
		err = e.fs.RemoveAll(src)
	} else {
		err = e.fs.Remove(src)
	}
	if err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "unlink after cross-device move failed").
			WithDetail("src", src)
	}
	return Effect{Kind: MovedCrossDevice, From: src, To: res.Dst, Bytes: bytes, Backup: res.Backup}, nil
}

func (e *Executor) rename(op validate.NormalizedOp, plan model.Plan) (Effect, error) {
	return e.move(op, plan, true)
}

// Relocate moves from to to, using the same same-device-rename /
// cross-device-copy-then-unlink strategy as move, without consulting
// any collision policy. It is the reversal primitive the transaction
// manager uses to undo a Moved/Trashed effect, mirroring how the
// original engine's rollback reused its forward `mv` for undo.
func (e *Executor) Relocate(from, to string) error {
	info, err := e.fs.Stat(from)
	if err != nil {
		return errkind.Wrap(err, errkind.SourceMissing, "relocate source does not exist").WithDetail("path", from)
	}

	srcDev, err := e.fs.DeviceID(from)
	if err != nil {
		return errkind.Wrap(err, errkind.IoError, "cannot stat source device")
	}
	dstDev, err := e.fs.DeviceID(filepath.Dir(to))
	if err != nil {
		return errkind.Wrap(err, errkind.IoError, "cannot stat destination device")
	}

	if srcDev == dstDev {
		if err := e.fs.Rename(from, to); err != nil {
			return errkind.Wrap(err, errkind.IoError, "relocate rename failed").WithDetail("from", from).WithDetail("to", to)
		}
		return nil
	}

	if _, err := e.copyTree(from, to, info); err != nil {
		return err
	}
	if info.IsDir() {
		return e.fs.RemoveAll(from)
	}
	return e.fs.Remove(from)
}

// RemoveCreated deletes a path this executor previously created,
// reversing a MkdirCreated or Copied effect. Directories are removed
// recursively; a non-empty directory left by a bare Mkdir is an error
// in the original engine's own rollback (`remove_dir`), so mkdir
// reversal alone stays non-recursive.
func (e *Executor) RemoveCreated(path string, recursive bool) error {
	if recursive {
		if err := e.fs.RemoveAll(path); err != nil {
			return errkind.Wrap(err, errkind.IoError, "cannot remove created path").WithDetail("path", path)
		}
		return nil
	}
	if err := e.fs.Remove(path); err != nil {
		return errkind.Wrap(err, errkind.IoError, "cannot remove created directory").WithDetail("path", path)
	}
	return nil
}

func (e *Executor) copy(op validate.NormalizedOp, plan model.Plan) (Effect, error) {
	src := op.Src.Canonical

	srcInfo, err := e.fs.Stat(src)
	if err != nil {
		return Effect{}, errkind.Wrap(err, errkind.SourceMissing, "copy source does not exist").
			WithDetail("src", src)
	}

	res, err := e.resolveDestination(op, plan, src, srcInfo.IsDir())
	if err != nil {
		return Effect{}, err
	}
	overwrote := res.Backup != ""
	if err := e.applyBackup(res); err != nil {
		return Effect{}, err
	}

	bytes, err := e.copyTree(src, res.Dst, srcInfo)
	if err != nil {
		return Effect{}, err
	}
	return Effect{Kind: Copied, To: res.Dst, Bytes: bytes, Overwrote: overwrote, Backup: res.Backup}, nil
}

func (e *Executor) trash(root string, op validate.NormalizedOp) (Effect, error) {
	src := op.Src.Canonical
	if _, err := e.fs.Stat(src); err != nil {
		return Effect{}, errkind.Wrap(err, errkind.SourceMissing, "trash source does not exist").
			WithDetail("src", src)
	}

	quarantine := filepath.Join(root, e.trashDirName, strconv.Itoa(op.ID))
	if err := e.fs.MkdirAll(quarantine, dirPerm); err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "cannot create quarantine directory")
	}
	dst := filepath.Join(quarantine, filepath.Base(src))

	if err := e.fs.Rename(src, dst); err != nil {
		return Effect{}, errkind.Wrap(err, errkind.IoError, "trash move failed").
			WithDetail("src", src).WithDetail("dst", dst)
	}
	return Effect{Kind: Trashed, From: src, To: dst}, nil
}

// resolveDestination applies the plan's collision policy to op's
// destination, choosing a HashSource appropriate to the operand type.
func (e *Executor) resolveDestination(op validate.NormalizedOp, plan model.Plan, src string, isDir bool) (policy.Resolution, error) {
	var hash policy.HashSource
	if isDir {
		hash = policy.HashDirSource(src)
	} else {
		hash = policy.HashFileSource(e.fs, src)
	}
	return policy.ResolveCollision(e.fs, plan.Collision, op.Dst.Canonical, op.ID, hash)
}

// applyBackup performs the filesystem side effect of
// overwrite_with_backup: moving the pre-existing destination aside
// before the primary operation writes over it.
func (e *Executor) applyBackup(res policy.Resolution) error {
	if res.Backup == "" {
		return nil
	}
	if err := e.fs.Rename(res.Dst, res.Backup); err != nil {
		return errkind.Wrap(err, errkind.IoError, "backup rename failed").
			WithDetail("dst", res.Dst).WithDetail("backup", res.Backup)
	}
	return nil
}

// copyTree copies src to dst, recursing into directories. Mode and
// mtime are preserved on a best-effort basis; failures to preserve
// metadata do not fail the copy.
func (e *Executor) copyTree(src, dst string, srcInfo iofs.FileInfo) (int64, error) {
	if !srcInfo.IsDir() {
		return e.copyFile(src, dst, srcInfo)
	}

	if err := e.fs.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return 0, errkind.Wrap(err, errkind.IoError, "cannot create destination directory").
			WithDetail("path", dst)
	}

	entries, err := e.fs.ReadDir(src)
	if err != nil {
		return 0, errkind.Wrap(err, errkind.IoError, "cannot list source directory").WithDetail("path", src)
	}

	var total int64
	for _, entry := range entries {
		childSrc := filepath.Join(src, entry.Name())
		childDst := filepath.Join(dst, entry.Name())
		info, err := entry.Info()
		if err != nil {
			return total, errkind.Wrap(err, errkind.IoError, "cannot stat directory entry").WithDetail("path", childSrc)
		}
		n, err := e.copyTree(childSrc, childDst, info)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (e *Executor) copyFile(src, dst string, srcInfo iofs.FileInfo) (int64, error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return 0, errkind.Wrap(err, errkind.IoError, "cannot open source file").WithDetail("path", src)
	}
	defer in.Close()

	out, err := e.fs.Create(dst)
	if err != nil {
		return 0, errkind.Wrap(err, errkind.IoError, "cannot create destination file").WithDetail("path", dst)
	}

	n, copyErr := io.Copy(out, in)
	syncErr := out.Sync()
	closeErr := out.Close()
	if copyErr != nil {
		return n, errkind.Wrap(copyErr, errkind.IoError, "copy failed").WithDetail("src", src).WithDetail("dst", dst)
	}
	if syncErr != nil {
		return n, errkind.Wrap(syncErr, errkind.IoError, "fsync destination failed").WithDetail("path", dst)
	}
	if closeErr != nil {
		return n, errkind.Wrap(closeErr, errkind.IoError, "close destination failed").WithDetail("path", dst)
	}

	_ = e.fs.Chmod(dst, srcInfo.Mode().Perm())
	_ = e.fs.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())

	if syncer, ok := e.fs.(fsx.Fsyncer); ok {
		_ = syncer.SyncDir(filepath.Dir(dst))
	}
	return n, nil
}

