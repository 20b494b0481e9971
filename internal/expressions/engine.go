// Package expressions evaluates the optional scan filter predicate against
// extension descriptors. Three engines are available: expr (default), cel and jq.
package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/extbridge/pkg/schema"
)

// filterFields are the descriptor attributes a filter may reference, mapped to
// the value they take when a descriptor leaves them out.
var filterFields = map[string]any{
	"name":            "",
	"version":         "",
	"description":     "",
	"folder":          "",
	"path":            "",
	"geckoId":         "",
	"manifestVersion": 0,
}

// withDefaults returns a copy of data in which every filter field is set.
func withDefaults(data map[string]any) map[string]any {
	out := make(map[string]any, len(filterFields)+len(data))
	for k, v := range filterFields {
		out[k] = v
	}
	for k, v := range data {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Engine evaluates an expression against a flat map of variables.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// New returns the engine registered under name. An empty name selects expr.
func New(name string) (Engine, error) {
	switch name {
	case "", "expr":
		return NewExprEngine(), nil
	case "cel":
		return NewCELEngine()
	case "jq":
		return NewGoJQEngine(), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown filter engine %q (want expr, cel or jq)", name)
	}
}

// Match evaluates expression and requires a boolean result.
func Match(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"%s filter %q returned %s, want bool", e.Name(), expression, typeName(out))
	}
	return b, nil
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
