package column

import (
	"encoding/binary"
	"errors"
	"math"
	"net/netip"
	"time"

	"github.com/akrennmair/eventdex/value"
)

var errKeyLength = errors.New("unexpected key length")

// codec maps the values of one type to comparable map keys and to the
// byte keys used on disk. Integer encodings are big endian with the sign
// bit flipped, so byte order equals numeric order.
type codec[K comparable] struct {
	typ    value.Type
	key    func(value.Value) (K, bool)
	value  func(K) value.Value
	encode func(K) []byte
	decode func([]byte) (K, error)
}

const signBit = 1 << 63

func encodeUint64(x uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], x)
	return buf[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errKeyLength
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeInt64(x int64) []byte {
	return encodeUint64(uint64(x) ^ signBit)
}

func decodeInt64(b []byte) (int64, error) {
	u, err := decodeUint64(b)
	return int64(u ^ signBit), err
}

var boolCodec = &codec[bool]{
	typ: value.TypeBool,
	key: func(v value.Value) (bool, bool) {
		b, ok := v.(value.Bool)
		return bool(b), ok
	},
	value: func(k bool) value.Value { return value.Bool(k) },
	encode: func(k bool) []byte {
		if k {
			return []byte{1}
		}
		return []byte{0}
	},
	decode: func(b []byte) (bool, error) {
		if len(b) != 1 {
			return false, errKeyLength
		}
		return b[0] != 0, nil
	},
}

var intCodec = &codec[int64]{
	typ: value.TypeInt,
	key: func(v value.Value) (int64, bool) {
		i, ok := v.(value.Int)
		return int64(i), ok
	},
	value:  func(k int64) value.Value { return value.Int(k) },
	encode: encodeInt64,
	decode: decodeInt64,
}

var uintCodec = &codec[uint64]{
	typ: value.TypeUint,
	key: func(v value.Value) (uint64, bool) {
		u, ok := v.(value.Uint)
		return uint64(u), ok
	},
	value:  func(k uint64) value.Value { return value.Uint(k) },
	encode: encodeUint64,
	decode: decodeUint64,
}

// doubles are keyed by their bit pattern, matching value.Equal.
var doubleCodec = &codec[uint64]{
	typ: value.TypeDouble,
	key: func(v value.Value) (uint64, bool) {
		d, ok := v.(value.Double)
		return math.Float64bits(float64(d)), ok
	},
	value:  func(k uint64) value.Value { return value.Double(math.Float64frombits(k)) },
	encode: encodeUint64,
	decode: decodeUint64,
}

var durationCodec = &codec[int64]{
	typ: value.TypeDuration,
	key: func(v value.Value) (int64, bool) {
		d, ok := v.(value.Duration)
		return int64(d), ok
	},
	value:  func(k int64) value.Value { return value.Duration(k) },
	encode: encodeInt64,
	decode: decodeInt64,
}

var timeCodec = &codec[int64]{
	typ: value.TypeTime,
	key: func(v value.Value) (int64, bool) {
		t, ok := v.(value.Time)
		if !ok {
			return 0, false
		}
		return t.UnixNano(), true
	},
	value:  func(k int64) value.Value { return value.NewTime(time.Unix(0, k).UTC()) },
	encode: encodeInt64,
	decode: decodeInt64,
}

var stringCodec = &codec[string]{
	typ: value.TypeString,
	key: func(v value.Value) (string, bool) {
		s, ok := v.(value.String)
		return string(s), ok
	},
	value:  func(k string) value.Value { return value.String(k) },
	encode: func(k string) []byte { return []byte(k) },
	decode: func(b []byte) (string, error) { return string(b), nil },
}

var addressCodec = &codec[netip.Addr]{
	typ: value.TypeAddress,
	key: func(v value.Value) (netip.Addr, bool) {
		a, ok := v.(value.Address)
		return a.Addr, ok
	},
	value: func(k netip.Addr) value.Value { return value.NewAddress(k) },
	encode: func(k netip.Addr) []byte {
		b, _ := k.MarshalBinary()
		return b
	},
	decode: func(b []byte) (netip.Addr, error) {
		var a netip.Addr
		err := a.UnmarshalBinary(b)
		return a, err
	},
}

var portCodec = &codec[value.Port]{
	typ: value.TypePort,
	key: func(v value.Value) (value.Port, bool) {
		p, ok := v.(value.Port)
		return p, ok
	},
	value: func(k value.Port) value.Value { return k },
	encode: func(k value.Port) []byte {
		var buf [3]byte
		binary.BigEndian.PutUint16(buf[:], k.Number)
		buf[2] = byte(k.Proto)
		return buf[:]
	},
	decode: func(b []byte) (value.Port, error) {
		if len(b) != 3 {
			return value.Port{}, errKeyLength
		}
		return value.Port{Number: binary.BigEndian.Uint16(b), Proto: value.Protocol(b[2])}, nil
	},
}
