package exprparser

import "github.com/akrennmair/eventdex"

// Walk calls f for expr and all its subexpressions in depth-first order,
// until f returns false.
func Walk(expr eventdex.Expression, f func(e eventdex.Expression) bool) bool {
	if !f(expr) {
		return false
	}

	switch v := expr.(type) {
	case *eventdex.ExprAnd:
		for _, ee := range v.Exprs {
			if !Walk(ee, f) {
				return false
			}
		}
	case *eventdex.ExprOr:
		for _, ee := range v.Exprs {
			if !Walk(ee, f) {
				return false
			}
		}
	case *eventdex.ExprNot:
		if !Walk(v.Expr, f) {
			return false
		}
	case *eventdex.ExprEqual:
		// nothing
	}

	return true
}

// Columns returns the columns compared against in expr, in order of
// appearance and without duplicates.
func Columns(expr eventdex.Expression) []string {
	var columns []string
	seen := map[string]bool{}

	Walk(expr, func(e eventdex.Expression) bool {
		if eq, ok := e.(*eventdex.ExprEqual); ok && !seen[eq.Column] {
			seen[eq.Column] = true
			columns = append(columns, eq.Column)
		}
		return true
	})

	return columns
}
