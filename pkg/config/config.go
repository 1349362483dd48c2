// Package config loads ambient CLI defaults from an XDG-located YAML
// file, the settings a manifest may omit and that cmd/tfs falls back
// to before invoking pkg/engine.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/model"
)

// configRelPath is the config file's location under XDG_CONFIG_HOME.
const configRelPath = "tfs/tfs.yaml"

// Defaults holds the ambient policy defaults a manifest may omit: the
// four SPEC_FULL.md §10.C names (default collision policy, default
// symlink policy, the journal fsync-per-record toggle, and the trash
// directory name) plus the default transaction mode. Trimmed to the fields this domain actually has
// an ambient surface for; the teacher's koanf.go composes several TOML
// providers because dotfiles config nests per-pack, but a Plan has no
// such nesting.
type Defaults struct {
	Transaction  model.TransactionMode `koanf:"transaction"`
	Collision    model.CollisionPolicy `koanf:"collision"`
	Symlink      model.SymlinkPolicy   `koanf:"symlink"`
	JournalFsync bool                  `koanf:"journal_fsync"`
	TrashDirName string                `koanf:"trash_dir_name"`
}

// builtins are the values used when no ambient config file exists.
func builtins() Defaults {
	return Defaults{
		Transaction:  model.DefaultTransaction,
		Collision:    model.DefaultCollision,
		Symlink:      model.DefaultSymlink,
		JournalFsync: true,
		TrashDirName: ".tfs-trash",
	}
}

// Load reads $XDG_CONFIG_HOME/tfs/tfs.yaml if present, merging it over
// the built-in defaults. A missing file is not an error: it simply
// means every default stays at its built-in value, grounded on the
// teacher's koanf.go pattern of loading a defaults layer first and
// letting an optional file layer override it — trimmed to koanf's
// single file+yaml provider pair, since this domain's only ambient
// config is this one flat file (no per-pack config, no TOML/env/confmap
// layering).
func Load() (Defaults, error) {
	d := builtins()

	path, err := xdg.SearchConfigFile(filepath.FromSlash(configRelPath))
	if err != nil {
		return d, nil
	}
	return loadFrom(path, d)
}

// loadFrom merges the YAML file at path over base, isolated from Load
// so tests can exercise the parsing behavior against a known path
// without depending on adrg/xdg's process-start-time environment
// snapshot.
func loadFrom(path string, base Defaults) (Defaults, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return base, errkind.Wrap(err, errkind.IoError, "cannot load ambient config").WithDetail("path", path)
	}
	if err := k.Unmarshal("", &base); err != nil {
		return base, errkind.Wrap(err, errkind.IoError, "cannot decode ambient config").WithDetail("path", path)
	}
	return base, nil
}

// ApplyTo fills any zero-valued policy field on plan from d, leaving
// fields the manifest already set untouched. It runs before
// model.Plan.ApplyDefaults, so a plan with no ambient config present
// still receives the same built-in defaults either way.
func (d Defaults) ApplyTo(plan *model.Plan) {
	if plan.Transaction == "" {
		plan.Transaction = d.Transaction
	}
	if plan.Collision == "" {
		plan.Collision = d.Collision
	}
	if plan.Symlink == "" {
		plan.Symlink = d.Symlink
	}
}
