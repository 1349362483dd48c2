// Package policy implements the collision-resolution and content-hash
// rules the operation executor applies before a destructive step
// (spec §4.C).
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/model"
)

// Resolution is the outcome of resolving a destination against the
// collision policy: the final path to write to, and, under
// overwrite_with_backup, the path the pre-existing destination was
// moved to.
type Resolution struct {
	Dst    string
	Backup string // empty unless overwrite_with_backup fired
}

// HashSource supplies the bytes to hash under the hash8 policy: file
// contents for a file source, the canonical source path string for a
// directory source.
type HashSource func() ([]byte, error)

// ResolveCollision computes the final destination for dst under
// policy, given opID (used by overwrite_with_backup's backup naming)
// and, for hash8, a lazily-invoked HashSource. It never touches the
// filesystem beyond existence checks; callers perform the actual
// rename/backup.
func ResolveCollision(fs fsx.FS, policy model.CollisionPolicy, dst string, opID int, hash HashSource) (Resolution, error) {
	if _, err := fs.Lstat(dst); err != nil {
		return Resolution{Dst: dst}, nil
	}

	switch policy {
	case model.CollisionFail:
		return Resolution{}, errkind.New(errkind.DestinationExists, "destination already exists").
			WithDetail("dst", dst)

	case model.CollisionSuffix:
		return resolveSuffix(fs, dst)

	case model.CollisionHash8:
		return resolveHash8(fs, dst, hash)

	case model.CollisionOverwriteWithBackup:
		return Resolution{Dst: dst, Backup: BackupPath(dst, opID)}, nil

	default:
		return Resolution{}, errkind.New(errkind.PolicyViolation, "unknown collision policy").
			WithDetail("policy", string(policy))
	}
}

// BackupPath is the fixed naming scheme for overwrite_with_backup:
// appending ".bak.<op_id>" to the full destination path.
func BackupPath(dst string, opID int) string {
	return fmt.Sprintf("%s.bak.%d", dst, opID)
}

func resolveSuffix(fs fsx.FS, dst string) (Resolution, error) {
	dir, stem, ext := splitStemExt(dst)
	for counter := 2; ; counter++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
		if _, err := fs.Lstat(candidate); err != nil {
			return Resolution{Dst: candidate}, nil
		}
	}
}

func resolveHash8(fs fsx.FS, dst string, hash HashSource) (Resolution, error) {
	data, err := hash()
	if err != nil {
		return Resolution{}, errkind.Wrap(err, errkind.IoError, "cannot compute hash8 source")
	}
	dir, stem, ext := splitStemExt(dst)
	candidate := filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, Hash8(data), ext))
	if _, err := fs.Lstat(candidate); err == nil {
		return Resolution{}, errkind.New(errkind.HashCollision, "hash8 candidate already exists").
			WithDetail("candidate", candidate)
	}
	return Resolution{Dst: candidate}, nil
}

// Hash8 returns the first eight hexadecimal characters of the sha256
// digest of data.
func Hash8(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:8]
}

// HashDirSource builds a HashSource for a directory operand: the
// content hashed is the source's canonical path string, per spec §9's
// resolution of the original design's ambiguity around hashing
// directories.
func HashDirSource(canonicalSrc string) HashSource {
	return func() ([]byte, error) { return []byte(canonicalSrc), nil }
}

// HashFileSource builds a HashSource for a file operand: the content
// hashed is the source file's bytes.
func HashFileSource(fs fsx.FS, canonicalSrc string) HashSource {
	return func() ([]byte, error) { return fs.ReadFile(canonicalSrc) }
}

func splitStemExt(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}
