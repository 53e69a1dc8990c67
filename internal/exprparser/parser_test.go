package exprparser_test

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/internal/exprparser"
	"github.com/akrennmair/eventdex/value"
	"github.com/stretchr/testify/require"
)

func TestValidExpressions(t *testing.T) {
	testData := []struct {
		ExprString   string
		ExpectedExpr eventdex.Expression
	}{
		{
			ExprString:   `foo = "bar"`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "foo", Value: value.String("bar")},
		},
		{
			ExprString:   `foo = "foo""bar"`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "foo", Value: value.String(`foo"bar`)},
		},
		{
			ExprString:   `foo = ""`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "foo", Value: value.String("")},
		},
		{
			ExprString: `foo = "bar" & bar = "baz"`,
			ExpectedExpr: &eventdex.ExprAnd{Exprs: []eventdex.Expression{
				&eventdex.ExprEqual{Column: "foo", Value: value.String("bar")},
				&eventdex.ExprEqual{Column: "bar", Value: value.String("baz")},
			}},
		},
		{
			ExprString: `foo = "bar" & ( bar = "baz" | baz = "quux" )`,
			ExpectedExpr: &eventdex.ExprAnd{Exprs: []eventdex.Expression{
				&eventdex.ExprEqual{Column: "foo", Value: value.String("bar")},
				&eventdex.ExprOr{Exprs: []eventdex.Expression{
					&eventdex.ExprEqual{Column: "bar", Value: value.String("baz")},
					&eventdex.ExprEqual{Column: "baz", Value: value.String("quux")},
				}},
			}},
		},
		{
			ExprString: `a = 1 & b = 2 | c = 3`,
			ExpectedExpr: &eventdex.ExprOr{Exprs: []eventdex.Expression{
				&eventdex.ExprAnd{Exprs: []eventdex.Expression{
					&eventdex.ExprEqual{Column: "a", Value: value.Uint(1)},
					&eventdex.ExprEqual{Column: "b", Value: value.Uint(2)},
				}},
				&eventdex.ExprEqual{Column: "c", Value: value.Uint(3)},
			}},
		},
		{
			ExprString: `a = 1 | b = 2 & c = 3`,
			ExpectedExpr: &eventdex.ExprOr{Exprs: []eventdex.Expression{
				&eventdex.ExprEqual{Column: "a", Value: value.Uint(1)},
				&eventdex.ExprAnd{Exprs: []eventdex.Expression{
					&eventdex.ExprEqual{Column: "b", Value: value.Uint(2)},
					&eventdex.ExprEqual{Column: "c", Value: value.Uint(3)},
				}},
			}},
		},
		{
			ExprString: `a = 1 | b = 2 & ^ c = 3 | d = 4`,
			ExpectedExpr: &eventdex.ExprOr{Exprs: []eventdex.Expression{
				&eventdex.ExprEqual{Column: "a", Value: value.Uint(1)},
				&eventdex.ExprAnd{Exprs: []eventdex.Expression{
					&eventdex.ExprEqual{Column: "b", Value: value.Uint(2)},
					&eventdex.ExprNot{Expr: &eventdex.ExprEqual{Column: "c", Value: value.Uint(3)}},
				}},
				&eventdex.ExprEqual{Column: "d", Value: value.Uint(4)},
			}},
		},
		{
			ExprString: `^ ( foo = "bar" & bar = "baz" )`,
			ExpectedExpr: &eventdex.ExprNot{Expr: &eventdex.ExprAnd{Exprs: []eventdex.Expression{
				&eventdex.ExprEqual{Column: "foo", Value: value.String("bar")},
				&eventdex.ExprEqual{Column: "bar", Value: value.String("baz")},
			}}},
		},
		{
			ExprString: `^ foo = "bar" & bar = "baz"`,
			ExpectedExpr: &eventdex.ExprAnd{Exprs: []eventdex.Expression{
				&eventdex.ExprNot{Expr: &eventdex.ExprEqual{Column: "foo", Value: value.String("bar")}},
				&eventdex.ExprEqual{Column: "bar", Value: value.String("baz")},
			}},
		},
		{
			ExprString:   `@1,0 = 53/udp`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "@1,0", Value: value.Port{Number: 53, Proto: value.ProtoUDP}},
		},
		{
			ExprString:   `address = 2001:db8::1`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "address", Value: value.NewAddress(netip.MustParseAddr("2001:db8::1"))},
		},
		{
			ExprString:   `bool = T`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "bool", Value: value.Bool(true)},
		},
		{
			ExprString:   `int = -3`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "int", Value: value.Int(-3)},
		},
		{
			ExprString:   `uint = 42`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "uint", Value: value.Uint(42)},
		},
		{
			ExprString:   `double = 3.25`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "double", Value: value.Double(3.25)},
		},
		{
			ExprString:   `time-range = 1.5s`,
			ExpectedExpr: &eventdex.ExprEqual{Column: "time-range", Value: value.Duration(1500 * time.Millisecond)},
		},
		{
			ExprString: `timestamp = 2009-11-18T08:00:21.486539Z`,
			ExpectedExpr: &eventdex.ExprEqual{
				Column: "timestamp",
				Value:  value.NewTime(time.Date(2009, 11, 18, 8, 0, 21, 486539000, time.UTC)),
			},
		},
	}

	for _, tt := range testData {
		t.Run(tt.ExprString, func(t *testing.T) {
			expr, err := exprparser.Parse(tt.ExprString)
			require.NoError(t, err)
			require.Equal(t, tt.ExpectedExpr, expr)

			require.Equal(t, tt.ExprString, expr.String())
		})
	}
}

func TestInvalidExpressions(t *testing.T) {
	testData := []struct {
		Expr string
	}{
		{""},
		{"a = "},
		{`(a = "b"`},
		{`a ^ "b"`},
		{`a = "b" )`},
		{`a = "b`},
		{`!`},
		{`a = b = c`},
		{`a = 70000/tcp`},
		{`a = nope`},
		{`= "b"`},
	}

	for _, tt := range testData {
		t.Run(tt.Expr, func(t *testing.T) {
			expr, err := exprparser.Parse(tt.Expr)
			require.Error(t, err)
			require.Nil(t, expr)
			t.Logf("error = %v", err)
		})
	}
}

func TestWalk(t *testing.T) {
	expr, err := exprparser.Parse(`foo = "bar" | ( bar = "baz" & ^ baz = "quux" )`)
	require.NoError(t, err)

	var types []string

	exprparser.Walk(expr, func(e eventdex.Expression) bool {
		types = append(types, fmt.Sprintf("%T", e))
		return true
	})

	expectedTypes := []string{
		"*eventdex.ExprOr",
		"*eventdex.ExprEqual",
		"*eventdex.ExprAnd",
		"*eventdex.ExprEqual",
		"*eventdex.ExprNot",
		"*eventdex.ExprEqual",
	}

	require.Equal(t, expectedTypes, types)

	count := 0
	exprparser.Walk(expr, func(e eventdex.Expression) bool {
		count++
		return count < 3
	})
	require.Equal(t, 3, count)
}

func TestColumns(t *testing.T) {
	expr, err := exprparser.Parse(`a = 1 & ( b = 2 | a = 3 ) & ^ c = T`)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, exprparser.Columns(expr))
}

func TestParseValue(t *testing.T) {
	testData := []struct {
		s        string
		expected value.Value
	}{
		{s: `"conn"`, expected: value.String("conn")},
		{s: `""`, expected: value.String("")},
		{s: `80/tcp`, expected: value.Port{Number: 80, Proto: value.ProtoTCP}},
		{s: `10.0.0.1`, expected: value.NewAddress(netip.MustParseAddr("10.0.0.1"))},
		{s: `+7`, expected: value.Int(7)},
		{s: `F`, expected: value.Bool(false)},
	}

	for _, tt := range testData {
		t.Run(tt.s, func(t *testing.T) {
			v, err := exprparser.ParseValue(tt.s)
			require.NoError(t, err)
			require.Equal(t, tt.expected, v)
		})
	}

	for _, s := range []string{"", `"`, "what"} {
		_, err := exprparser.ParseValue(s)
		require.Error(t, err, s)
	}
}
