package fsx

import (
	"io/fs"
	"os"
	"time"

	"github.com/spf13/afero"
)

// aferoFS implements FS over an afero.Fs, used for the transaction
// manager's dry-run shadow filesystem and for fast in-memory test
// coverage of the executor's code paths.
type aferoFS struct {
	fs afero.Fs
}

// NewAfero wraps an afero.Fs as an FS.
func NewAfero(fs afero.Fs) FS {
	return &aferoFS{fs: fs}
}

// Afero returns the underlying afero.Fs, letting a caller (pkg/engine's
// dry-run wrapping) layer a fresh afero.CopyOnWriteFs over whatever
// backend this FS already wraps instead of writing through it.
func (a *aferoFS) Afero() afero.Fs { return a.fs }

func (a *aferoFS) Stat(name string) (fs.FileInfo, error) { return a.fs.Stat(name) }

func (a *aferoFS) Lstat(name string) (fs.FileInfo, error) {
	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(name)
		return info, err
	}
	return a.fs.Stat(name)
}

func (a *aferoFS) ReadFile(name string) ([]byte, error) {
	info, err := a.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	return afero.ReadFile(a.fs, name)
}

func (a *aferoFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return afero.WriteFile(a.fs, name, data, perm)
}

func (a *aferoFS) Mkdir(name string, perm fs.FileMode) error { return a.fs.Mkdir(name, perm) }

func (a *aferoFS) MkdirAll(path string, perm fs.FileMode) error { return a.fs.MkdirAll(path, perm) }

// Symlink simulates a symbolic link on backends that don't support
// one (MemMapFs) by writing a marker file whose content is the link
// target and whose mode carries ModeSymlink.
func (a *aferoFS) Symlink(oldname, newname string) error {
	if linker, ok := a.fs.(afero.Linker); ok {
		return linker.SymlinkIfPossible(oldname, newname)
	}
	return afero.WriteFile(a.fs, newname, []byte(oldname), 0o777|os.ModeSymlink)
}

func (a *aferoFS) Readlink(name string) (string, error) {
	if reader, ok := a.fs.(afero.LinkReader); ok {
		return reader.ReadlinkIfPossible(name)
	}
	content, err := afero.ReadFile(a.fs, name)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (a *aferoFS) Remove(name string) error { return a.fs.Remove(name) }

func (a *aferoFS) RemoveAll(path string) error { return a.fs.RemoveAll(path) }

func (a *aferoFS) Rename(oldpath, newpath string) error { return a.fs.Rename(oldpath, newpath) }

func (a *aferoFS) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := afero.ReadDir(a.fs, name)
	if err != nil {
		return nil, err
	}
	dirEntries := make([]fs.DirEntry, len(entries))
	for i, entry := range entries {
		dirEntries[i] = fs.FileInfoToDirEntry(entry)
	}
	return dirEntries, nil
}

func (a *aferoFS) Open(name string) (File, error) { return a.fs.Open(name) }

func (a *aferoFS) Create(name string) (File, error) { return a.fs.Create(name) }

func (a *aferoFS) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Chtimes(name, atime, mtime)
}

func (a *aferoFS) Chmod(name string, mode fs.FileMode) error { return a.fs.Chmod(name, mode) }

// DeviceID always returns 0: an afero backend has no notion of
// separate mounted devices, so every path within it is same-device.
func (a *aferoFS) DeviceID(_ string) (uint64, error) {
	return 0, nil
}
