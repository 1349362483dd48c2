package fsx

import (
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// osFS implements FS against the real operating system filesystem.
type osFS struct{}

// NewOS creates an FS backed by the operating system.
func NewOS() FS {
	return &osFS{}
}

func (o *osFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (o *osFS) Lstat(name string) (fs.FileInfo, error) { return os.Lstat(name) }

func (o *osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (o *osFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (o *osFS) Mkdir(name string, perm fs.FileMode) error { return os.Mkdir(name, perm) }

func (o *osFS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

func (o *osFS) Symlink(oldname, newname string) error { return os.Symlink(oldname, newname) }

func (o *osFS) Readlink(name string) (string, error) { return os.Readlink(name) }

func (o *osFS) Remove(name string) error { return os.Remove(name) }

func (o *osFS) RemoveAll(path string) error { return os.RemoveAll(path) }

func (o *osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (o *osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

func (o *osFS) Open(name string) (File, error) { return os.Open(name) }

func (o *osFS) Create(name string) (File, error) { return os.Create(name) }

func (o *osFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

func (o *osFS) Chmod(name string, mode fs.FileMode) error { return os.Chmod(name, mode) }

// DeviceID reports the st_dev of path, used to tell whether a move's
// source and destination sit on the same mounted filesystem.
func (o *osFS) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Dev), nil
}

// SyncDir opens path as a directory and fsyncs it, durably persisting
// a directory-entry change made within it (create, rename, unlink).
func (o *osFS) SyncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
