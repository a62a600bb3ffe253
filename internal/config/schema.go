package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchemaJSON is the machine-checked shape of the orchestration
// config. Bounds here mirror the typed checks in Validate; the schema
// catches structural mistakes (wrong types, unknown endpoints) with
// pointable error paths.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "project_root": {"type": "string", "minLength": 1},
    "log_dir": {"type": "string", "minLength": 1},
    "max_parallel_stages": {"type": "integer", "minimum": 1, "maximum": 10},
    "retry_attempts": {"type": "integer", "minimum": 0},
    "retry_delay_seconds": {"type": "integer", "minimum": 1},
    "timeout_minutes": {"type": "integer", "minimum": 1, "maximum": 1440},
    "checkpoint_interval": {"type": "integer", "minimum": 1},
    "fail_fast": {"type": "boolean"},
    "continue_on_warnings": {"type": "boolean"},
    "save_partial_results": {"type": "boolean"},
    "notification_endpoints": {
      "type": "array",
      "items": {"enum": ["console", "email", "slack", "webhook"]},
      "uniqueItems": true
    },
    "status_port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "redis": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "addr": {"type": "string"},
        "channel": {"type": "string"}
      }
    },
    "artifact_store": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "endpoint": {"type": "string"},
        "bucket": {"type": "string"},
        "region": {"type": "string"},
        "access_key_id": {"type": "string"},
        "secret_access_key": {"type": "string"},
        "use_ssl": {"type": "boolean"},
        "prefix": {"type": "string"}
      }
    }
  },
  "required": [
    "project_root",
    "log_dir",
    "max_parallel_stages",
    "retry_attempts",
    "retry_delay_seconds",
    "timeout_minutes",
    "checkpoint_interval"
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource("config.json", strings.NewReader(configSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("config.json")
	})
	return schema, schemaErr
}

func validateSchema(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			leaf := leafError(verr)
			return fmt.Errorf("config schema: %s: %s", leaf.InstanceLocation, leaf.Message)
		}
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}

// leafError walks to the most specific validation failure.
func leafError(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}
