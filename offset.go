package eventdex

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	offsetPrefix = "@"
	indexSuffix  = ".idx"
)

// Offset identifies the position of a scalar field inside a possibly
// nested record. Offset{2, 0} is field 0 of the record at top-level
// position 2.
type Offset []int

// String returns the components separated by commas, e.g. "2,0".
func (o Offset) String() string {
	var b strings.Builder
	for i, c := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// Equal reports whether both offsets have the same components.
func (o Offset) Equal(other Offset) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of o that does not share its storage.
func (o Offset) Clone() Offset {
	return append(Offset(nil), o...)
}

// Filename returns the name of the index file for o, e.g. "@2,0.idx".
func (o Offset) Filename() string {
	return offsetPrefix + o.String() + indexSuffix
}

// ParseOffset parses the comma-separated form produced by String. Only
// the canonical form is accepted.
func ParseOffset(s string) (Offset, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty offset", ErrFormat)
	}

	parts := strings.Split(s, ",")

	o := make(Offset, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid offset %q: %v", ErrFormat, s, err)
		}
		o[i] = int(n)
	}

	// reject forms like "01" or "+1" that would alias another offset.
	if o.String() != s {
		return nil, fmt.Errorf("%w: non-canonical offset %q", ErrFormat, s)
	}

	return o, nil
}

// ParseOffsetFilename extracts the offset from an index file name
// produced by Offset.Filename.
func ParseOffsetFilename(name string) (Offset, error) {
	if !strings.HasPrefix(name, offsetPrefix) || !strings.HasSuffix(name, indexSuffix) {
		return nil, fmt.Errorf("%w: %q is not an offset index file", ErrFormat, name)
	}
	return ParseOffset(strings.TrimSuffix(strings.TrimPrefix(name, offsetPrefix), indexSuffix))
}
