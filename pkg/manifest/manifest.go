// Package manifest loads and validates a Plan document from JSON
// before handing it to pkg/engine. It is an external-collaborator
// concern per spec §1: pkg/engine and everything below it never import
// this package back.
package manifest

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jopamo/tfs/pkg/errkind"
	"github.com/jopamo/tfs/pkg/model"
)

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tfs-plan-v1.schema.json", strings.NewReader(planSchemaJSON)); err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot register manifest schema")
	}
	schema, err := compiler.Compile("tfs-plan-v1.schema.json")
	if err != nil {
		return nil, errkind.Wrap(err, errkind.IoError, "cannot compile manifest schema")
	}
	return schema, nil
}

// FromJSON validates raw against the Plan schema, then unmarshals it
// into a model.Plan and applies wire defaults. Grounded on the
// original's `from_json`, with a schema-validation pass the original
// never had (relying instead on serde's own tagged-union rejection).
func FromJSON(raw []byte) (model.Plan, error) {
	schema, err := compileSchema()
	if err != nil {
		return model.Plan{}, err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.Plan{}, errkind.Wrap(err, errkind.StructurallyInvalid, "manifest is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return model.Plan{}, errkind.Wrap(err, errkind.StructurallyInvalid, "manifest failed schema validation")
	}

	var plan model.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return model.Plan{}, errkind.Wrap(err, errkind.StructurallyInvalid, "cannot decode manifest into a plan")
	}
	plan.ApplyDefaults()
	return plan, nil
}

// Load reads and validates a Plan manifest from path, grounded on the
// original's `load_plan`.
func Load(path string) (model.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Plan{}, errkind.Wrap(err, errkind.IoError, "cannot read manifest").WithDetail("path", path)
	}
	return FromJSON(data)
}

// ValidateBytes reports whether raw satisfies the manifest schema
// without decoding it into a Plan, used by `cmd/tfs apply` to fail
// fast on a malformed manifest before touching pkg/engine.
func ValidateBytes(raw []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errkind.Wrap(err, errkind.StructurallyInvalid, "manifest is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return errkind.Wrap(err, errkind.StructurallyInvalid, "manifest failed schema validation")
	}
	return nil
}
