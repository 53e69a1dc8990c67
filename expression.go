package eventdex

import (
	"fmt"
	"strings"

	"github.com/akrennmair/eventdex/value"
)

// Expression is a lookup predicate. Fragments accept expressions in
// Lookup, but evaluation is not implemented yet.
type Expression interface {
	fmt.Stringer
}

// ExprEqual matches IDs whose column holds Value.
type ExprEqual struct {
	Column string
	Value  value.Value
}

func (e *ExprEqual) String() string {
	if s, ok := e.Value.(value.String); ok {
		return fmt.Sprintf("%s = %s", e.Column, formatString(string(s)))
	}
	return fmt.Sprintf("%s = %s", e.Column, value.Format(e.Value))
}

// formatString quotes s, doubling any quote inside.
func formatString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExprNot negates Expr.
type ExprNot struct {
	Expr Expression
}

func (e *ExprNot) String() string {
	switch e.Expr.(type) {
	case *ExprAnd, *ExprOr:
		return "^ ( " + e.Expr.String() + " )"
	}
	return "^ " + e.Expr.String()
}

// ExprAnd matches IDs matched by all of Exprs.
type ExprAnd struct {
	Exprs []Expression
}

func (e *ExprAnd) String() string {
	return join(e.Exprs, " & ", func(x Expression) bool {
		_, ok := x.(*ExprOr)
		return ok
	})
}

// ExprOr matches IDs matched by any of Exprs.
type ExprOr struct {
	Exprs []Expression
}

// String needs no parentheses around ExprAnd operands since & binds
// tighter than |.
func (e *ExprOr) String() string {
	return join(e.Exprs, " | ", func(x Expression) bool {
		_, ok := x.(*ExprOr)
		return ok
	})
}

func join(exprs []Expression, sep string, requiresParens func(Expression) bool) string {
	var b strings.Builder

	for idx, expr := range exprs {
		if idx > 0 {
			b.WriteString(sep)
		}

		if requiresParens(expr) {
			b.WriteString("( ")
		}

		b.WriteString(expr.String())

		if requiresParens(expr) {
			b.WriteString(" )")
		}
	}

	return b.String()
}
