package exprparser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type lexer struct {
	input   string
	state   stateFn
	pos     pos
	start   pos
	width   pos
	lastPos pos
	items   chan item
}

const eof = -1

type stateFn func(*lexer) stateFn

type item struct {
	typ itemType
	pos pos
	val string
}

type itemType int

func (i item) String() string {
	switch {
	case i.typ == itemEOF:
		return "EOF"
	case i.typ == itemError:
		return i.val
	}
	return fmt.Sprintf("%q", i.val)
}

type pos int

const (
	itemError itemType = iota
	itemEOF
	itemOpenParen
	itemCloseParen
	itemAnd
	itemOr
	itemNot
	itemEqual
	itemWord
	itemString
)

// special runes end a word.
const special = "()&|^=\" \t\r\n"

func lex(input string) *lexer {
	return &lexer{
		input: input,
		state: lexText,
		items: make(chan item, 2),
	}
}

// nextItem runs the state machine until it has emitted an item.
func (l *lexer) nextItem() item {
	for {
		select {
		case item := <-l.items:
			l.lastPos = item.pos
			return item
		default:
			if l.state == nil {
				return item{itemEOF, l.pos, ""}
			}
			l.state = l.state(l)
		}
	}
}

func lexText(l *lexer) stateFn {
	r := l.peek()
	switch {
	case r == ' ' || r == '\n' || r == '\r' || r == '\t':
		l.acceptRun("\r\n\t ")
		l.ignore()
		return lexText
	case r == '(':
		l.next()
		l.emit(itemOpenParen)
		return lexText
	case r == ')':
		l.next()
		l.emit(itemCloseParen)
		return lexText
	case r == '&':
		l.next()
		l.emit(itemAnd)
		return lexText
	case r == '|':
		l.next()
		l.emit(itemOr)
		return lexText
	case r == '^':
		l.next()
		l.emit(itemNot)
		return lexText
	case r == '=':
		l.next()
		l.emit(itemEqual)
		return lexText
	case r == '"':
		return lexString
	case r == eof:
		l.emit(itemEOF)
		return nil
	}
	return lexWord
}

// lexWord scans column names and unquoted literals.
func lexWord(l *lexer) stateFn {
	for r := l.next(); r != eof && !strings.ContainsRune(special, r); r = l.next() {
	}
	l.backup()
	l.emit(itemWord)
	return lexText
}

func lexString(l *lexer) stateFn {
	l.next() // opening quote
	for r := l.next(); ; r = l.next() {
		switch r {
		case eof:
			return l.errorf("unterminated string")
		case '"':
			// a doubled quote stands for one quote.
			if l.peek() != '"' {
				l.emit(itemString)
				return lexText
			}
			l.next()
		}
	}
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) next() rune {
	if int(l.pos) >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = pos(w)
	l.pos += l.width
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) emit(t itemType) {
	l.items <- item{t, l.start, l.input[l.start:l.pos]}
	l.start = l.pos
}

func (l *lexer) acceptRun(valid string) {
	for strings.ContainsRune(valid, l.next()) {
	}
	l.backup()
}

func (l *lexer) ignore() {
	l.start = l.pos
}

func (l *lexer) errorf(format string, args ...interface{}) stateFn {
	l.items <- item{itemError, l.start, fmt.Sprintf(format, args...)}
	return nil
}

func (l *lexer) lineNumber() int {
	return 1 + strings.Count(l.input[:l.lastPos], "\n")
}

func (l *lexer) columnInLine() int {
	bolPos := strings.LastIndex(l.input[:l.lastPos], "\n")
	return int(l.lastPos) - bolPos + 1
}
