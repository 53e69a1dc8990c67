package value

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hash returns a 64-bit hash of v that is consistent with Equal.
func Hash(v Value) uint64 {
	d := xxhash.New()
	hashAppend(d, v)
	return d.Sum64()
}

func hashAppend(d *xxhash.Digest, v Value) {
	var buf [9]byte

	buf[0] = byte(TypeOf(v))

	n := 1
	putUint64 := func(x uint64) {
		binary.BigEndian.PutUint64(buf[1:], x)
		n = 9
	}

	switch v := v.(type) {
	case nil:
	case Bool:
		if v {
			buf[1] = 1
		}
		n = 2
	case Int:
		putUint64(uint64(v))
	case Uint:
		putUint64(uint64(v))
	case Double:
		putUint64(math.Float64bits(float64(v)))
	case Duration:
		putUint64(uint64(v))
	case Time:
		putUint64(uint64(v.Time.UnixNano()))
	case String:
		_, _ = d.Write(buf[:1])
		_, _ = d.WriteString(string(v))
		// terminate so that ("ab", "c") and ("a", "bc") differ.
		_, _ = d.Write([]byte{0})
		return
	case Address:
		_, _ = d.Write(buf[:1])
		b, _ := v.Addr.MarshalBinary()
		_, _ = d.Write(b)
		_, _ = d.Write([]byte{byte(len(b))})
		return
	case Port:
		binary.BigEndian.PutUint16(buf[1:], v.Number)
		buf[3] = byte(v.Proto)
		n = 4
	case Record:
		putUint64(uint64(len(v)))
		_, _ = d.Write(buf[:n])
		for _, e := range v {
			hashAppend(d, e)
		}
		return
	}

	_, _ = d.Write(buf[:n])
}

// Set is a set of values under Equal.
type Set struct {
	buckets map[uint64][]Value
	n       int
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{buckets: make(map[uint64][]Value)}
}

// Len returns the number of values in the set.
func (s *Set) Len() int {
	return s.n
}

// Contains reports whether an equal value is in the set.
func (s *Set) Contains(v Value) bool {
	for _, e := range s.buckets[Hash(v)] {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

// Add inserts v and reports whether it was not present before.
func (s *Set) Add(v Value) bool {
	h := Hash(v)
	for _, e := range s.buckets[h] {
		if Equal(e, v) {
			return false
		}
	}
	s.buckets[h] = append(s.buckets[h], v)
	s.n++
	return true
}
