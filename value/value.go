// Package value defines the typed values that make up an event record:
// nine primitive types plus nested records.
package value

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedValueType is returned when a value's type has no place
// in the structure it is handed to.
var ErrUnsupportedValueType = errors.New("unsupported value type")

// Type identifies the variant of a Value.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeUint
	TypeDouble
	TypeDuration
	TypeTime
	TypeString
	TypeAddress
	TypePort
	TypeRecord
)

// Primitives lists all scalar types in their canonical order.
var Primitives = []Type{
	TypeBool,
	TypeInt,
	TypeUint,
	TypeDouble,
	TypeDuration,
	TypeTime,
	TypeString,
	TypeAddress,
	TypePort,
}

var typeNames = map[Type]string{
	TypeInvalid:  "invalid",
	TypeBool:     "bool",
	TypeInt:      "int",
	TypeUint:     "uint",
	TypeDouble:   "double",
	TypeDuration: "duration",
	TypeTime:     "time",
	TypeString:   "string",
	TypeAddress:  "address",
	TypePort:     "port",
	TypeRecord:   "record",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType returns the type with the given name.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s && t != TypeInvalid {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("%w: %q", ErrUnsupportedValueType, s)
}

// Value is one of Bool, Int, Uint, Double, Duration, Time, String,
// Address, Port or Record. The set is closed. A nil Value stands for an
// unset field.
type Value interface {
	Type() Type
	String() string

	value()
}

type (
	Bool     bool
	Int      int64
	Uint     uint64
	Double   float64
	Duration time.Duration
	String   string
	Record   []Value
)

// Time is a point in time. Two times are equal when they denote the same
// instant, regardless of location.
type Time struct {
	time.Time
}

// NewTime wraps t.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// Address is an IPv4 or IPv6 address.
type Address struct {
	netip.Addr
}

// NewAddress wraps a.
func NewAddress(a netip.Addr) Address {
	return Address{Addr: a}
}

// ParseAddress parses an IPv4 or IPv6 address.
func ParseAddress(s string) (Address, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, err
	}
	return Address{Addr: a}, nil
}

// Protocol is the transport protocol of a port.
type Protocol uint8

const (
	ProtoUnknown Protocol = iota
	ProtoTCP
	ProtoUDP
	ProtoICMP
)

func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoICMP:
		return "icmp"
	default:
		return "?"
	}
}

// ParseProtocol maps a protocol name to a Protocol; unknown names yield
// ProtoUnknown.
func ParseProtocol(s string) Protocol {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtoTCP
	case "udp":
		return ProtoUDP
	case "icmp":
		return ProtoICMP
	default:
		return ProtoUnknown
	}
}

// Port is a transport-layer port number with its protocol.
type Port struct {
	Number uint16
	Proto  Protocol
}

func (Bool) Type() Type     { return TypeBool }
func (Int) Type() Type      { return TypeInt }
func (Uint) Type() Type     { return TypeUint }
func (Double) Type() Type   { return TypeDouble }
func (Duration) Type() Type { return TypeDuration }
func (Time) Type() Type     { return TypeTime }
func (String) Type() Type   { return TypeString }
func (Address) Type() Type  { return TypeAddress }
func (Port) Type() Type     { return TypePort }
func (Record) Type() Type   { return TypeRecord }

func (Bool) value()     {}
func (Int) value()      {}
func (Uint) value()     {}
func (Double) value()   {}
func (Duration) value() {}
func (Time) value()     {}
func (String) value()   {}
func (Address) value()  {}
func (Port) value()     {}
func (Record) value()   {}

func (v Bool) String() string {
	if v {
		return "T"
	}
	return "F"
}

func (v Int) String() string      { return strconv.FormatInt(int64(v), 10) }
func (v Uint) String() string     { return strconv.FormatUint(uint64(v), 10) }
func (v Double) String() string   { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Duration) String() string { return time.Duration(v).String() }
func (v Time) String() string     { return v.Time.UTC().Format(time.RFC3339Nano) }
func (v String) String() string   { return string(v) }
func (v Address) String() string  { return v.Addr.String() }
func (v Port) String() string {
	return strconv.FormatUint(uint64(v.Number), 10) + "/" + v.Proto.String()
}

func (v Record) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, e := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Format(e))
	}
	b.WriteByte(')')
	return b.String()
}

// Format renders v, printing unset values as "nil".
func Format(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}

// TypeOf returns the type of v, TypeInvalid for unset values.
func TypeOf(v Value) Type {
	if v == nil {
		return TypeInvalid
	}
	return v.Type()
}

// Equal reports whether a and b have the same type and content. Records
// are compared elementwise; two unset values are equal.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case Time:
		bt, ok := b.(Time)
		return ok && a.Time.Equal(bt.Time)
	case Double:
		bd, ok := b.(Double)
		// NaN equals NaN here so that dedup and hashing agree.
		return ok && math.Float64bits(float64(a)) == math.Float64bits(float64(bd))
	case Record:
		br, ok := b.(Record)
		if !ok || len(a) != len(br) {
			return false
		}
		for i := range a {
			if !Equal(a[i], br[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Leaves calls fn for every scalar leaf of v in depth-first order.
// Nested records are descended into, unset values are passed as nil.
func Leaves(v Value, fn func(Value)) {
	if r, ok := v.(Record); ok {
		for _, e := range r {
			Leaves(e, fn)
		}
		return
	}
	fn(v)
}
