package config

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	eserrors "github.com/systmms/envsecrets/internal/errors"
)

// configSchema is the JSON schema every envsecrets.yaml must satisfy.
// Unknown top-level keys are rejected so typos fail loudly instead of
// silently falling back to defaults.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 0, "maximum": 1},
    "app": {"type": "string", "minLength": 1},
    "environment": {"type": "string", "minLength": 1},
    "envMap": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "credential": {"type": "string"},
    "provider": {
      "type": "object",
      "properties": {
        "type": {"type": "string", "minLength": 1}
      }
    },
    "cache": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "ttlSeconds": {"type": "integer", "minimum": 1},
        "maxMemoryMB": {"type": "integer", "minimum": 1}
      }
    },
    "strict": {"type": "boolean"},
    "stripPrefix": {"type": "boolean"},
    "timeoutMs": {"type": "integer", "minimum": 1},
    "metrics": {"type": "boolean"}
  }
}`

// validateSchema checks raw YAML against configSchema before the typed
// parse, so error messages point at the offending field.
func validateSchema(raw []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return eserrors.ConfigurationError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}
	if doc == nil {
		return nil
	}

	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return eserrors.ConfigurationError{
			Message: "configuration is not representable as JSON: " + err.Error(),
		}
	}

	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(jsonDoc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return eserrors.ConfigurationError{
			Message: "schema validation failed: " + err.Error(),
		}
	}

	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return eserrors.ConfigurationError{
			Message:    "configuration does not match the expected schema: " + strings.Join(issues, "; "),
			Suggestion: "Compare your envsecrets.yaml against the documented fields",
		}
	}

	return nil
}
