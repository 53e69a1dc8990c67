package zeek

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/akrennmair/eventdex"
	"github.com/akrennmair/eventdex/value"
)

type field struct {
	name     string
	zeekType string
	typ      value.Type
}

type header struct {
	separator    string
	setSeparator string
	emptyField   string
	unsetField   string
	path         string
	fields       []field
	protoField   int
}

// parseType maps a Zeek type to the value type it is indexed as.
// Containers, patterns and subnets are kept as their textual form.
func parseType(t string) (value.Type, error) {
	switch t {
	case "enum", "string", "file", "func", "pattern", "subnet":
		return value.TypeString, nil
	case "bool":
		return value.TypeBool, nil
	case "int":
		return value.TypeInt, nil
	case "count", "counter":
		return value.TypeUint, nil
	case "double":
		return value.TypeDouble, nil
	case "interval":
		return value.TypeDuration, nil
	case "time":
		return value.TypeTime, nil
	case "addr":
		return value.TypeAddress, nil
	case "port":
		return value.TypePort, nil
	}

	for _, container := range []string{"set[", "vector[", "table["} {
		if strings.HasPrefix(t, container) && strings.HasSuffix(t, "]") {
			return value.TypeString, nil
		}
	}

	return value.TypeInvalid, fmt.Errorf("unsupported type %q", t)
}

func (h *header) parse(line string, clock func() time.Time) (*eventdex.Event, error) {
	columns := strings.Split(line, h.separator)
	if len(columns) != len(h.fields) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(h.fields), len(columns))
	}

	proto := value.ProtoUnknown
	if h.protoField >= 0 {
		proto = value.ParseProtocol(columns[h.protoField])
	}

	e := &eventdex.Event{
		Name:   EventPrefix + h.path,
		Record: make(value.Record, len(columns)),
	}

	for i, col := range columns {
		f := h.fields[i]

		switch col {
		case h.unsetField:
			continue
		case h.emptyField:
			e.Record[i] = zeroValue(f.typ)
			continue
		}

		v, err := parseValue(f.typ, col, proto)
		if err != nil {
			return nil, fmt.Errorf("field %s: invalid %s %q: %w", f.name, f.zeekType, col, err)
		}

		e.Record[i] = v

		if t, ok := v.(value.Time); ok && e.Timestamp.IsZero() {
			e.Timestamp = t.Time
		}
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = clock()
	}

	return e, nil
}

func parseValue(t value.Type, s string, proto value.Protocol) (value.Value, error) {
	switch t {
	case value.TypeBool:
		switch s {
		case "T":
			return value.Bool(true), nil
		case "F":
			return value.Bool(false), nil
		}
		return nil, fmt.Errorf("expected T or F")
	case value.TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		return value.Int(i), err
	case value.TypeUint:
		u, err := strconv.ParseUint(s, 10, 64)
		return value.Uint(u), err
	case value.TypeDouble:
		d, err := strconv.ParseFloat(s, 64)
		return value.Double(d), err
	case value.TypeDuration:
		ns, err := parseSeconds(s)
		return value.Duration(ns), err
	case value.TypeTime:
		ns, err := parseSeconds(s)
		return value.NewTime(time.Unix(0, ns).UTC()), err
	case value.TypeAddress:
		a, err := netip.ParseAddr(s)
		return value.NewAddress(a), err
	case value.TypePort:
		n, err := strconv.ParseUint(s, 10, 16)
		return value.Port{Number: uint16(n), Proto: proto}, err
	case value.TypeString:
		return value.String(unescape(s)), nil
	}
	return nil, fmt.Errorf("%w: %s", value.ErrUnsupportedValueType, t)
}

// parseSeconds parses a decimal number of seconds, e.g. "1258531221.486539",
// into nanoseconds without going through floating point.
func parseSeconds(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")

	if intPart == "" && fracPart == "" {
		return 0, strconv.ErrSyntax
	}

	var secs int64
	if intPart != "" {
		var err error
		if secs, err = strconv.ParseInt(intPart, 10, 64); err != nil {
			return 0, err
		}
	}

	if len(fracPart) > 9 {
		fracPart = fracPart[:9]
	}

	var nanos int64
	if fracPart != "" {
		var err error
		if nanos, err = strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64); err != nil {
			return 0, err
		}
		if nanos < 0 {
			return 0, strconv.ErrSyntax
		}
	}

	if secs > (1<<63-1-nanos)/int64(time.Second) {
		return 0, strconv.ErrRange
	}

	ns := secs*int64(time.Second) + nanos
	if neg {
		ns = -ns
	}

	return ns, nil
}

func zeroValue(t value.Type) value.Value {
	switch t {
	case value.TypeBool:
		return value.Bool(false)
	case value.TypeInt:
		return value.Int(0)
	case value.TypeUint:
		return value.Uint(0)
	case value.TypeDouble:
		return value.Double(0)
	case value.TypeDuration:
		return value.Duration(0)
	case value.TypeTime:
		return value.NewTime(time.Unix(0, 0).UTC())
	case value.TypeAddress:
		return value.NewAddress(netip.IPv4Unspecified())
	case value.TypePort:
		return value.Port{}
	default:
		return value.String("")
	}
}
