// Package validate implements the validator/normalizer (spec §4.B):
// it turns a raw Plan into a deterministic, resolved OpStream, injecting
// any implied Mkdir operations and enforcing the policy gates that must
// hold before a single byte is written.
package validate

import (
	"path/filepath"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/fsx"
	"github.com/jopamo/tfs/pkg/model"
	"github.com/jopamo/tfs/pkg/resolve"
)

// Preflight performs the read-only precondition checks spec §4.E step
// 1 requires before any write: every transfer op's source exists, its
// destination's parent directory exists now that injected mkdirs are
// enumerated, and the summed size of every copy op whose source is a
// regular file does not exceed plan.MaxBytes when the plan sets one.
// Directory copies and moves are not counted toward that sum. Grounded on the original
// engine's separate `preflight_check` pass run after normalization.
func Preflight(fs fsx.FS, stream OpStream, plan model.Plan) error {
	var totalBytes int64
	willExist := map[string]bool{}

	for _, op := range stream.Ops {
		if op.Kind == model.OpMkdir {
			willExist[op.Dst.Canonical] = true
		}

		switch op.Kind {
		case model.OpMove, model.OpCopy, model.OpRename, model.OpTrash:
			info, err := fs.Stat(op.Src.Canonical)
			if err != nil {
				return errkind.Wrap(err, errkind.SourceMissing, "preflight: source does not exist").
					WithDetail("op_id", op.ID).WithDetail("src", op.Src.Canonical)
			}
			if op.Kind == model.OpCopy && !info.IsDir() {
				totalBytes += info.Size()
			}
		}

		switch op.Kind {
		case model.OpMove, model.OpCopy, model.OpRename:
			parent := filepath.Dir(op.Dst.Canonical)
			if willExist[parent] {
				continue
			}
			if _, err := fs.Stat(parent); err != nil {
				return errkind.New(errkind.IoError, "preflight: destination parent directory does not exist").
					WithDetail("op_id", op.ID).WithDetail("parent", parent)
			}
		}
	}

	if plan.MaxBytes != nil && totalBytes > *plan.MaxBytes {
		return errkind.New(errkind.MaxBytesExceeded, "planned copy bytes exceed max_bytes").
			WithDetail("planned_bytes", totalBytes).WithDetail("max_bytes", *plan.MaxBytes)
	}
	return nil
}

// NormalizedOp is one entry of the canonical operation stream: every
// path has been resolved and confined under root, and the op carries
// the stable, position-assigned op_id the journal and events key on.
type NormalizedOp struct {
	ID       int
	Kind     model.OpKind
	Src      *resolve.ResolvedPath
	Dst      *resolve.ResolvedPath
	Parents  bool // mkdir only: create-intermediate-directories request
	Injected bool // true if synthesized by the validator, not present in the raw plan
}

// OpStream is the canonical, normalized, ordered operation sequence
// produced by Normalize.
type OpStream struct {
	Ops []NormalizedOp
}

// Normalize resolves and validates every operation in plan, injecting
// implied Mkdir operations and assigning op_id by position in the
// emitted stream. It never writes to the filesystem; fs is consulted
// only for existence checks.
func Normalize(fs fsx.FS, plan model.Plan) (OpStream, error) {
	if plan.Collision == model.CollisionOverwriteWithBackup && !plan.AllowOverwrite {
		return OpStream{}, errkind.New(errkind.PolicyViolation,
			"overwrite_with_backup requires allow_overwrite")
	}

	r, err := resolve.New(fs, plan.Root, plan.Symlink)
	if err != nil {
		return OpStream{}, err
	}

	n := &normalizer{fs: fs, r: r, scheduled: map[string]bool{}}

	for _, raw := range plan.Operations {
		if err := n.add(raw); err != nil {
			return OpStream{}, err
		}
	}

	for i := range n.ops {
		n.ops[i].ID = i + 1
	}
	return OpStream{Ops: n.ops}, nil
}

type normalizer struct {
	fs        fsx.FS
	r         *resolve.Resolver
	ops       []NormalizedOp
	scheduled map[string]bool // canonical dirs already created or scheduled
}

func (n *normalizer) add(raw model.Operation) error {
	switch raw.Op {
	case model.OpMkdir:
		return n.addMkdir(raw)
	case model.OpMove:
		return n.addTransfer(model.OpMove, raw)
	case model.OpCopy:
		return n.addTransfer(model.OpCopy, raw)
	case model.OpRename:
		return n.addTransfer(model.OpRename, raw)
	case model.OpTrash:
		return n.addTrash(raw)
	default:
		return errkind.New(errkind.StructurallyInvalid, "unknown operation kind").
			WithDetail("op", string(raw.Op))
	}
}

func (n *normalizer) addMkdir(raw model.Operation) error {
	if raw.Src != "" {
		return errkind.New(errkind.StructurallyInvalid, "mkdir must not specify src")
	}
	dst, err := n.r.Resolve(raw.Dst)
	if err != nil {
		return err
	}
	if dst.Skipped {
		return nil
	}

	if raw.Parents {
		n.injectAncestors(filepath.Dir(dst.Canonical))
	}

	n.ops = append(n.ops, NormalizedOp{Kind: model.OpMkdir, Dst: &dst, Parents: raw.Parents})
	n.scheduled[dst.Canonical] = true
	return nil
}

func (n *normalizer) addTransfer(kind model.OpKind, raw model.Operation) error {
	if raw.Src == "" || raw.Dst == "" {
		return errkind.New(errkind.StructurallyInvalid, "src and dst are required").
			WithDetail("op", string(kind))
	}
	src, err := n.r.Resolve(raw.Src)
	if err != nil {
		return err
	}
	dst, err := n.r.Resolve(raw.Dst)
	if err != nil {
		return err
	}
	if src.Skipped || dst.Skipped {
		return nil
	}

	if kind == model.OpRename && filepath.Dir(src.Canonical) != filepath.Dir(dst.Canonical) {
		return errkind.New(errkind.StructurallyInvalid, "rename requires src and dst to share a parent").
			WithDetail("src", src.Canonical).WithDetail("dst", dst.Canonical)
	}
	if kind != model.OpCopy && src.Canonical == dst.Canonical {
		return errkind.New(errkind.StructurallyInvalid, "src and dst resolve to the same path").
			WithDetail("path", src.Canonical)
	}

	n.ops = append(n.ops, NormalizedOp{Kind: kind, Src: &src, Dst: &dst})
	return nil
}

func (n *normalizer) addTrash(raw model.Operation) error {
	if raw.Src == "" {
		return errkind.New(errkind.StructurallyInvalid, "trash requires src")
	}
	src, err := n.r.Resolve(raw.Src)
	if err != nil {
		return err
	}
	if src.Skipped {
		return nil
	}
	// The quarantine directory is always a fixed descendant of root
	// (<root>/.tfs-trash/<op_id>), so it is resolvable by construction
	// once root itself resolves; nothing further to check here.
	n.ops = append(n.ops, NormalizedOp{Kind: model.OpTrash, Src: &src})
	return nil
}

// injectAncestors synthesizes Mkdir{parents=true} ops for every
// ancestor of dir that neither exists nor has already been scheduled,
// ordered shallowest-first, deduplicated across the whole stream.
func (n *normalizer) injectAncestors(dir string) {
	root := n.r.Root()
	if dir == root {
		return
	}

	var missing []string
	cur := dir
	for cur != root {
		if n.scheduled[cur] {
			break
		}
		if _, err := n.fs.Stat(cur); err == nil {
			break
		}
		missing = append(missing, cur)
		n.scheduled[cur] = true

		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}

	for _, ancestor := range missing {
		rel, _ := filepath.Rel(root, ancestor)
		n.ops = append(n.ops, NormalizedOp{
			Kind: model.OpMkdir,
			Dst: &resolve.ResolvedPath{
				RootRelative: filepath.ToSlash(rel),
				Canonical:    ancestor,
			},
			Parents:  true,
			Injected: true,
		})
	}
}
