package exprparser

import (
	"errors"
	"fmt"
	"net/netip"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/value"
)

// expression syntax:
// expr ::= simple-expr | and-expr | or-expr
// simple-expr ::= grouped-expr | not-expr | comparison.
// grouped-expr ::= '(' expr ')'.
// and-expr ::= simple-expr { '&' simple-expr }.
// or-expr ::= simple-expr { '|' simple-expr }.
// not-expr ::= '^' simple-expr.
// comparison ::= column '=' value.
// value ::= string | literal.
//
// Literals are typed by their form: T and F are bools, 80/tcp is a port,
// addresses, RFC 3339 times and Go durations are recognized as such,
// signed integers are ints, unsigned integers are uints, and any other
// number is a double.

// Parse parses an expression such as `name = "zeek::conn" & ^ 1 = 53/udp`.
func Parse(s string) (expr eventdex.Expression, err error) {
	p := newParser(s)

	defer p.recover(&err)

	e := p.parseExpr()

	if p.peek().typ != itemEOF {
		p.errorf("unexpected token %s", p.next())
	}

	return e, nil
}

type parser struct {
	lexer     *lexer
	token     [3]item
	peekCount int
}

func newParser(text string) *parser {
	return &parser{
		lexer: lex(text),
	}
}

func (p *parser) recover(errp *error) {
	e := recover()
	if e != nil {
		// rethrow runtime errors
		if _, ok := e.(runtime.Error); ok {
			panic(e)
		}
		*errp = e.(error)
	}
}

func (p *parser) errorf(fmtstr string, args ...interface{}) {
	err := errors.New(fmt.Sprintf("%d:%d: ", p.lexer.lineNumber(), p.lexer.columnInLine()) + fmt.Sprintf(fmtstr, args...))
	panic(err)
}

func (p *parser) peek() item {
	if p.peekCount > 0 {
		return p.token[p.peekCount-1]
	}
	p.peekCount = 1
	p.token[0] = p.lexer.nextItem()
	return p.token[0]
}

func (p *parser) next() item {
	if p.peekCount > 0 {
		p.peekCount--
	} else {
		p.token[0] = p.lexer.nextItem()
	}
	i := p.token[p.peekCount]
	if i.typ == itemError {
		p.errorf("%s", i.val)
	}
	return i
}

func (p *parser) parseExpr() eventdex.Expression {
	// expr ::= or-expr

	return p.parseOrExpr()
}

func (p *parser) parseOrExpr() eventdex.Expression {
	// or-expr ::= and-expr { '|' and-expr }.

	expr := p.parseAndExpr()
	if p.peek().typ != itemOr {
		return expr
	}

	exprs := []eventdex.Expression{expr}

	for p.peek().typ == itemOr {
		p.next()

		exprs = append(exprs, p.parseAndExpr())
	}

	return &eventdex.ExprOr{Exprs: exprs}
}

func (p *parser) parseAndExpr() eventdex.Expression {
	// and-expr ::= simple-expr { '&' simple-expr }.

	expr := p.parseSimpleExpr()
	if p.peek().typ != itemAnd {
		return expr
	}

	exprs := []eventdex.Expression{expr}

	for p.peek().typ == itemAnd {
		p.next()

		exprs = append(exprs, p.parseSimpleExpr())
	}

	return &eventdex.ExprAnd{Exprs: exprs}
}

func (p *parser) parseSimpleExpr() eventdex.Expression {
	switch p.peek().typ {
	case itemOpenParen:
		return p.parseGroupedExpr()
	case itemNot:
		// not-expr ::= '^' simple-expr.
		p.next()
		return &eventdex.ExprNot{Expr: p.parseSimpleExpr()}
	case itemWord:
		return p.parseComparison()
	default:
		p.errorf("unexpected token %s", p.next())
		return nil
	}
}

func (p *parser) parseGroupedExpr() eventdex.Expression {
	// grouped-expr ::= '(' expr ')'.

	p.next() // skip open parenthesis; this has already been checked when the method was called.

	expr := p.parseExpr()

	if p.peek().typ != itemCloseParen {
		p.errorf("expected ), got %s instead", p.next())
	}
	p.next()

	return expr
}

func (p *parser) parseComparison() eventdex.Expression {
	column := p.next()

	if p.peek().typ != itemEqual {
		p.errorf("expected =, got %s instead", p.next())
	}
	p.next()

	var v value.Value

	switch tok := p.next(); tok.typ {
	case itemString:
		v = value.String(decodeString(tok.val))
	case itemWord:
		lit, err := parseLiteral(tok.val)
		if err != nil {
			p.errorf("%v", err)
		}
		v = lit
	default:
		p.errorf("expected value, got %s instead", tok)
	}

	return &eventdex.ExprEqual{Column: column.val, Value: v}
}

// ParseValue parses a single value in the syntax used on the right-hand
// side of a comparison.
func ParseValue(s string) (value.Value, error) {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return value.String(decodeString(s)), nil
	}
	if s == "" {
		return nil, errors.New("empty value")
	}
	return parseLiteral(s)
}

func decodeString(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.ReplaceAll(s, `""`, `"`)
}

func parseLiteral(s string) (value.Value, error) {
	switch s {
	case "T":
		return value.Bool(true), nil
	case "F":
		return value.Bool(false), nil
	}

	if num, proto, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseUint(num, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", s)
		}
		return value.Port{Number: uint16(n), Proto: value.ParseProtocol(proto)}, nil
	}

	if a, err := netip.ParseAddr(s); err == nil {
		return value.NewAddress(a), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return value.NewTime(t), nil
	}

	if s[0] == '-' || s[0] == '+' {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(i), nil
		}
	} else if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return value.Uint(u), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return value.Duration(d), nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Double(f), nil
	}

	return nil, fmt.Errorf("invalid literal %q", s)
}
