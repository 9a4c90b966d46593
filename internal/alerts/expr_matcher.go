package alerts

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprMatcher compiles and evaluates expr-lang expressions against
// evaluation contexts. Expressions come from operator-authored rules
// files only.
type ExprMatcher struct {
	expression string
	program    *vm.Program
}

// NewExprMatcher compiles the given expression.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	// Evaluation contexts are open maps, so compilation cannot
	// type-check field access; it still rejects syntax errors and
	// enforces a boolean result.
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &ExprMatcher{expression: expression, program: program}, nil
}

// Match evaluates the expression against the context.
func (m *ExprMatcher) Match(evalCtx map[string]any) (bool, error) {
	result, err := expr.Run(m.program, evalCtx)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}
	return matched, nil
}

// Expression returns the original expression string.
func (m *ExprMatcher) Expression() string {
	return m.expression
}
