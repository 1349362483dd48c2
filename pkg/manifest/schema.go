package manifest

// planSchemaJSON is the JSON Schema for a Plan manifest, hand-written
// since Go has no equivalent of the original's schemars derive-macro
// generation; it mirrors model.Plan's field set and JSON tags exactly.
const planSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "tfs-plan-v1",
  "title": "Plan",
  "type": "object",
  "required": ["root", "transaction", "collision", "symlink", "operations"],
  "additionalProperties": false,
  "properties": {
    "root": {"type": "string", "minLength": 1},
    "transaction": {"type": "string", "enum": ["all", "op"]},
    "collision": {"type": "string", "enum": ["fail", "suffix", "hash8", "overwrite_with_backup"]},
    "symlink": {"type": "string", "enum": ["follow", "skip", "error"]},
    "allow_overwrite": {"type": "boolean"},
    "forbid_cross_device": {"type": "boolean"},
    "max_bytes": {"type": "integer", "minimum": 0},
    "operations": {
      "type": "array",
      "items": {"$ref": "#/definitions/operation"}
    }
  },
  "definitions": {
    "operation": {
      "oneOf": [
        {
          "type": "object",
          "required": ["op", "dst"],
          "additionalProperties": false,
          "properties": {
            "op": {"const": "mkdir"},
            "dst": {"type": "string", "minLength": 1},
            "parents": {"type": "boolean"}
          }
        },
        {
          "type": "object",
          "required": ["op", "src", "dst"],
          "additionalProperties": false,
          "properties": {
            "op": {"const": "move"},
            "src": {"type": "string", "minLength": 1},
            "dst": {"type": "string", "minLength": 1}
          }
        },
        {
          "type": "object",
          "required": ["op", "src", "dst"],
          "additionalProperties": false,
          "properties": {
            "op": {"const": "copy"},
            "src": {"type": "string", "minLength": 1},
            "dst": {"type": "string", "minLength": 1}
          }
        },
        {
          "type": "object",
          "required": ["op", "src", "dst"],
          "additionalProperties": false,
          "properties": {
            "op": {"const": "rename"},
            "src": {"type": "string", "minLength": 1},
            "dst": {"type": "string", "minLength": 1}
          }
        },
        {
          "type": "object",
          "required": ["op", "src"],
          "additionalProperties": false,
          "properties": {
            "op": {"const": "trash"},
            "src": {"type": "string", "minLength": 1}
          }
        }
      ]
    }
  }
}`

// Schema returns the manifest JSON Schema, the body of `tfs schema`.
func Schema() string {
	return planSchemaJSON
}
