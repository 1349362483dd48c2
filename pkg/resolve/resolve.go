// Package resolve implements the path resolver (spec §4.A): it turns
// a plan-relative or absolute path string into a ResolvedPath confined
// under a canonical root, applying the plan's symlink policy while
// walking the path's existing prefix.
package resolve

import (
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/model"
)

// ResolvedPath is a path that has been confined under a root: its
// lexically normalized root-relative form and its absolute canonical
// form (all symlinks in existing prefixes resolved per policy).
type ResolvedPath struct {
	// RootRelative is the lexically normalized path, relative to root,
	// using forward slashes.
	RootRelative string
	// Canonical is the absolute, symlink-resolved form.
	Canonical string
	// Skipped is true when a symlink was encountered under
	// SymlinkSkip: the caller must omit the operation that carries
	// this path rather than treat it as an error.
	Skipped bool
}

// Resolver resolves paths against a fixed, canonicalized root under a
// fixed symlink policy.
type Resolver struct {
	fs            fsx.FS
	root          string // canonical, absolute
	symlinkPolicy model.SymlinkPolicy
}

// New canonicalizes root (which must exist and be absolute) and
// returns a Resolver bound to it.
func New(fs fsx.FS, root string, policy model.SymlinkPolicy) (*Resolver, error) {
	if !filepath.IsAbs(root) {
		return nil, errkind.New(errkind.NonAbsoluteRoot, "root must be an absolute path").WithDetail("root", root)
	}
	canonRoot, err := canonicalizeFully(fs, filepath.Clean(root), policy)
	if err != nil {
		return nil, errkind.Wrapf(err, errkind.InvalidPath, "cannot canonicalize root %q", root)
	}
	return &Resolver{fs: fs, root: canonRoot, symlinkPolicy: policy}, nil
}

// Root returns the canonical root this resolver is bound to.
func (r *Resolver) Root() string { return r.root }

// Resolve confines input (absolute or root-relative) under the
// resolver's root, applying the symlink policy set at construction.
func (r *Resolver) Resolve(input string) (ResolvedPath, error) {
	joined, err := r.confinedJoin(input)
	if err != nil {
		return ResolvedPath{}, err
	}

	canon, skipped, err := canonicalizeWithPolicy(r.fs, joined, r.symlinkPolicy)
	if err != nil {
		return ResolvedPath{}, err
	}
	if skipped {
		return ResolvedPath{Skipped: true}, nil
	}

	if !isDescendant(r.root, canon) {
		return ResolvedPath{}, errkind.New(errkind.RootEscape, "path escapes root").
			WithDetail("input", input).WithDetail("canonical", canon).WithDetail("root", r.root)
	}

	rel, err := filepath.Rel(r.root, canon)
	if err != nil {
		return ResolvedPath{}, errkind.Wrap(err, errkind.InvalidPath, "cannot express path relative to root")
	}
	return ResolvedPath{
		RootRelative: filepath.ToSlash(rel),
		Canonical:    canon,
	}, nil
}

// confinedJoin lexically joins input onto the root, rejecting any
// ".." that would pop above the root at any point during the walk —
// not merely in the final result. Absolute inputs are cleaned as-is;
// their confinement is verified later against the canonical root.
func (r *Resolver) confinedJoin(input string) (string, error) {
	if input == "" {
		return "", errkind.New(errkind.InvalidPath, "empty path")
	}
	if filepath.IsAbs(input) {
		return filepath.Clean(input), nil
	}

	rootParts := splitClean(r.root)
	parts := append([]string{}, rootParts...)

	for _, comp := range strings.Split(filepath.ToSlash(input), "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			if len(parts) <= len(rootParts) {
				return "", errkind.New(errkind.RootEscape, "path escapes root").WithDetail("input", input)
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, comp)
		}
	}
	return "/" + strings.Join(parts, "/"), nil
}

// splitClean splits a cleaned absolute path into its non-empty
// components.
func splitClean(p string) []string {
	p = filepath.Clean(p)
	trimmed := strings.TrimPrefix(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// isDescendant reports whether candidate is root or a path below it.
func isDescendant(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if root == candidate {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// canonicalizeFully resolves path completely, requiring it to exist.
// Used only for the root itself, which the caller must have already
// created before the engine runs.
func canonicalizeFully(fs fsx.FS, path string, policy model.SymlinkPolicy) (string, error) {
	canon, skipped, err := canonicalizeWithPolicy(fs, path, policy)
	if err != nil {
		return "", err
	}
	if skipped {
		return "", errkind.New(errkind.SymlinkPolicy, "root path resolves through a skipped symlink")
	}
	if _, err := fs.Stat(canon); err != nil {
		return "", errkind.Wrap(err, errkind.InvalidPath, "root does not exist")
	}
	return canon, nil
}

// canonicalizeWithPolicy walks path component by component from the
// filesystem root, resolving the longest existing prefix and applying
// the symlink policy to every symlink encountered along the way, then
// appending any non-existent suffix unchanged (lexically normalized).
func canonicalizeWithPolicy(fs fsx.FS, path string, policy model.SymlinkPolicy) (canon string, skipped bool, err error) {
	comps := splitClean(path)
	current := "/"
	resolvedSoFar := "/"
	hops := 0
	const maxHops = 40 // matches typical OS symlink-loop guards

	for i := 0; i < len(comps); i++ {
		current = filepath.Join(resolvedSoFar, comps[i])

		info, statErr := fs.Lstat(current)
		if statErr != nil {
			// Prefix stops existing here; append the remainder
			// lexically and return.
			rest := comps[i:]
			return filepath.Join(append([]string{resolvedSoFar}, rest...)...), false, nil
		}

		if info.Mode()&iofs.ModeSymlink == 0 {
			resolvedSoFar = current
			continue
		}

		// current is a symlink.
		switch policy {
		case model.SymlinkSkip:
			return "", true, nil
		case model.SymlinkError:
			return "", false, errkind.New(errkind.SymlinkPolicy, "symlink encountered under error policy").
				WithDetail("path", current)
		case model.SymlinkFollow:
			hops++
			if hops > maxHops {
				return "", false, errkind.New(errkind.SymlinkPolicy, "too many levels of symbolic links").
					WithDetail("path", current)
			}
			target, linkErr := fs.Readlink(current)
			if linkErr != nil {
				return "", false, errkind.Wrap(linkErr, errkind.IoError, "cannot read symlink")
			}
			if filepath.IsAbs(target) {
				resolvedSoFar = filepath.Clean(target)
			} else {
				resolvedSoFar = filepath.Clean(filepath.Join(filepath.Dir(current), target))
			}
			// Re-resolve the substituted prefix from scratch before
			// continuing with the remaining components, since the
			// symlink target may itself traverse further symlinks.
			sub, subSkipped, subErr := canonicalizeWithPolicy(fs, resolvedSoFar, policy)
			if subErr != nil || subSkipped {
				return sub, subSkipped, subErr
			}
			resolvedSoFar = sub
		default:
			return "", false, errkind.New(errkind.SymlinkPolicy, "unknown symlink policy").WithDetail("policy", string(policy))
		}
	}

	return resolvedSoFar, false, nil
}
