package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/extbridge/pkg/schema"
)

// ExprEngine implements Engine using expr-lang/expr, the default scan filter
// language: `manifestVersion == 3 && name startsWith "Dev"`.
//
// Filters are checked against the descriptor fields when compiled. An unknown
// field, a type mismatch such as `manifestVersion == "3"`, or a filter that
// does not yield a bool fails once at compile time instead of on every
// descriptor.
type ExprEngine struct {
	programs sync.Map // expression -> *vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs the filter against data. Descriptor fields absent from data
// read as their zero value.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr filter")
	}

	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	out, err := expr.Run(prg, withDefaults(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr filter %q failed: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	if p, ok := e.programs.Load(expression); ok {
		return p.(*vm.Program), nil
	}

	prg, err := expr.Compile(expression, expr.Env(filterFields), expr.AsBool())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	// Concurrent first uses may both compile; either program is fine.
	p, _ := e.programs.LoadOrStore(expression, prg)
	return p.(*vm.Program), nil
}

var _ Engine = (*ExprEngine)(nil)
