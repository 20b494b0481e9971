// Package validation checks inbound request frames against a JSON Schema
// before they reach the dispatcher.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/extbridge/pkg/schema"
)

const requestSchemaURL = "https://extbridge.local/schemas/request.json"

// requestSchemaJSON describes an inbound request. The action enum is not
// enforced here: unknown actions are answered with UNKNOWN_ACTION by the
// dispatcher, not with a validation error.
const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://extbridge.local/schemas/request.json",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": { "type": "string", "minLength": 1 },
    "path":   { "type": "string" }
  },
  "allOf": [
    {
      "if": {
        "properties": { "action": { "enum": ["set_folder", "load", "unload"] } },
        "required": ["action"]
      },
      "then": {
        "required": ["path"],
        "properties": { "path": { "minLength": 1 } }
      }
    }
  ]
}`

// RequestValidator validates raw request frames. Safe for concurrent use.
type RequestValidator struct {
	schema *jsonschema.Schema
}

// NewRequestValidator compiles the request schema.
func NewRequestValidator() (*RequestValidator, error) {
	c := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(requestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal request schema: %w", err)
	}
	if err := c.AddResource(requestSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add request schema resource: %w", err)
	}
	compiled, err := c.Compile(requestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &RequestValidator{schema: compiled}, nil
}

// Decode validates a raw frame body and unmarshals it into a Request.
func (v *RequestValidator) Decode(raw json.RawMessage) (schema.Request, error) {
	var req schema.Request

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return req, schema.NewError(schema.ErrCodeMalformedBody, "request is not valid JSON").WithCause(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return req, toBridgeError(err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, schema.NewError(schema.ErrCodeMalformedBody, "decode request").WithCause(err)
	}
	return req, nil
}

// toBridgeError flattens a jsonschema.ValidationError into one message with
// the individual violations attached as details.
func toBridgeError(err error) *schema.BridgeError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, "invalid request: "+violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid request: %d violations", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
