package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/windi-project/windi-core/pkg/windierr"
)

// wireSchemaDoc is the Micro-Signal JSON Schema compiled once at
// startup. Schema-step validation runs against the raw decoded JSON
// before any Go struct unmarshalling assumptions, so malformed wire
// payloads fail with a schema error rather than an unmarshal-turned
// error deep in the pipeline.
const wireSchemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "https://windi.internal/schema/micro-signal.json",
  "type": "object",
  "required": ["header", "payload", "auth"],
  "properties": {
    "header": {
      "type": "object",
      "required": ["v", "kid", "cid", "ts", "nonce", "seq"],
      "properties": {
        "v":     {"type": "string"},
        "kid":   {"type": "string", "minLength": 1},
        "cid":   {"type": "string", "minLength": 1},
        "ts":    {"type": "integer"},
        "nonce": {"type": "string", "minLength": 1},
        "seq":   {"type": "integer"}
      }
    },
    "payload": {
      "type": "object",
      "required": ["shelf", "code", "weight", "event", "domain_hash", "doc_fingerprint"],
      "properties": {
        "shelf":  {"type": "string", "enum": ["S1", "S2", "S3", "S4", "S5", "S6", "S7"]},
        "code":   {"type": "string", "minLength": 1},
        "weight": {"type": "integer", "minimum": 0, "maximum": 100},
        "event":  {"type": "string", "minLength": 1},
        "domain_hash":     {"type": "string"},
        "doc_fingerprint": {"type": "string"},
        "ctx": {
          "type": "object",
          "properties": {
            "window": {"type": "string"},
            "flags":  {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "auth": {
      "type": "object",
      "required": ["sig"],
      "properties": {
        "sig": {"type": "string", "minLength": 1}
      }
    }
  }
}`

const wireSchemaURL = "https://windi.internal/schema/micro-signal.json"

func compileWireSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(wireSchemaURL, bytes.NewReader([]byte(wireSchemaDoc))); err != nil {
		return nil, fmt.Errorf("bridge: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(wireSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("bridge: compile schema: %w", err)
	}
	return schema, nil
}

// validateSchema runs the compiled JSON Schema over raw, the exact
// bytes received over the wire.
func validateSchema(schema *jsonschema.Schema, raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return windierr.Schema("MALFORMED_JSON", err.Error())
	}
	if m, ok := v.(map[string]interface{}); ok {
		if p, ok := m["payload"].(map[string]interface{}); ok {
			if w, ok := p["weight"].(float64); ok && (w < 0 || w > 100) {
				return windierr.Schema("INVALID_WEIGHT", fmt.Sprintf("weight %v outside [0,100]", w))
			}
		}
	}
	if err := schema.Validate(v); err != nil {
		return windierr.Schema("VALIDATION_FAILED", err.Error())
	}
	return nil
}
