// Package zeek reads Zeek (formerly Bro) 2.x ASCII logs and turns every
// log line into an event.
package zeek

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/value"
)

// ErrHeader is returned when a log header is missing or malformed.
var ErrHeader = errors.New("invalid log header")

// ParseError is returned by Read when a single log line is malformed.
// Reading may continue with the next line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const (
	// EventPrefix is prepended to the #path of a log to form the event name.
	EventPrefix = "zeek::"

	maxLineLength = 16 << 20
)

// Reader parses one Zeek log. Several logs concatenated into one stream
// are read one after another.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	clock   func() time.Time

	header *header
	peeked *string
}

// Option configures a Reader.
type Option func(r *Reader)

// WithClock sets the function providing the timestamp of events that have
// no time field set. It defaults to time.Now.
func WithClock(clock func() time.Time) Option {
	return func(r *Reader) {
		r.clock = clock
	}
}

// NewReader reads the log header from r.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	zr := &Reader{
		scanner: scanner,
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(zr)
	}

	first, err := zr.next()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty log", ErrHeader)
		}
		return nil, err
	}

	if zr.header, err = zr.readHeader(first); err != nil {
		return nil, err
	}

	return zr, nil
}

// Path returns the #path of the log currently read, e.g. "conn".
func (r *Reader) Path() string {
	return r.header.path
}

// Fields returns the field names of the log currently read.
func (r *Reader) Fields() []string {
	names := make([]string, len(r.header.fields))
	for i, f := range r.header.fields {
		names[i] = f.name
	}
	return names
}

// Read returns the next log line as an event. The event ID is left zero
// for the caller to assign. At the end of the input, or after a #close
// header, io.EOF is returned.
func (r *Reader) Read() (*eventdex.Event, error) {
	for {
		line, err := r.next()
		if err != nil {
			return nil, err
		}

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#close"):
			if err := r.skipToNextLog(); err != nil {
				return nil, err
			}
			continue
		case strings.HasPrefix(line, "#separator"):
			if r.header, err = r.readHeader(line); err != nil {
				return nil, err
			}
			continue
		case strings.HasPrefix(line, "#"):
			return nil, fmt.Errorf("line %d: %w: unexpected header %q", r.line, ErrHeader, line)
		}

		e, err := r.header.parse(line, r.clock)
		if err != nil {
			return nil, &ParseError{Line: r.line, Err: err}
		}

		return e, nil
	}
}

// skipToNextLog consumes the input up to the #separator header of the
// next concatenated log, which is left for Read.
func (r *Reader) skipToNextLog() error {
	for {
		line, err := r.next()
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, "#separator") {
			r.peeked = &line
			return nil
		}
	}
}

func (r *Reader) next() (string, error) {
	if r.peeked != nil {
		line := *r.peeked
		r.peeked = nil
		return line, nil
	}

	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", fmt.Errorf("line %d: %w", r.line+1, err)
		}
		return "", io.EOF
	}

	r.line++

	return strings.TrimSuffix(r.scanner.Text(), "\r"), nil
}

// readHeader parses the header lines following first, which must be the
// #separator line.
func (r *Reader) readHeader(first string) (*header, error) {
	sepDef := strings.Fields(first)
	if len(sepDef) != 2 || sepDef[0] != "#separator" {
		return nil, fmt.Errorf("line %d: %w: invalid #separator definition", r.line, ErrHeader)
	}

	sep := unescape(sepDef[1])
	if sep == "" {
		return nil, fmt.Errorf("line %d: %w: empty separator", r.line, ErrHeader)
	}

	h := &header{
		separator:    sep,
		setSeparator: ",",
		emptyField:   "(empty)",
		unsetField:   "-",
		protoField:   -1,
	}

	var names, types []string

	for {
		line, err := r.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if !strings.HasPrefix(line, "#") || strings.HasPrefix(line, "#close") {
			r.peeked = &line
			break
		}

		key, rest, _ := strings.Cut(line, sep)

		switch key {
		case "#set_separator":
			h.setSeparator = unescape(rest)
		case "#empty_field":
			h.emptyField = rest
		case "#unset_field":
			h.unsetField = rest
		case "#path":
			h.path = rest
		case "#open":
		case "#fields":
			names = strings.Split(rest, sep)
		case "#types":
			types = strings.Split(rest, sep)
		default:
			return nil, fmt.Errorf("line %d: %w: unknown header %q", r.line, ErrHeader, key)
		}
	}

	if h.path == "" {
		return nil, fmt.Errorf("%w: missing #path", ErrHeader)
	}

	if len(names) == 0 || len(names) != len(types) {
		return nil, fmt.Errorf("%w: %d #fields but %d #types", ErrHeader, len(names), len(types))
	}

	for i := range names {
		typ, err := parseType(types[i])
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrHeader, names[i], err)
		}

		h.fields = append(h.fields, field{name: names[i], zeekType: types[i], typ: typ})

		if names[i] == "proto" && typ == value.TypeString {
			h.protoField = i
		}
	}

	return h, nil
}

// unescape resolves \xNN escape sequences.
func unescape(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			if c, ok := hexByte(s[i+2], s[i+3]); ok {
				b.WriteByte(c)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	return h<<4 | l, ok1 && ok2
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
