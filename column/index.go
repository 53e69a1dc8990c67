// Package column implements append-only, ID-ordered bitmap indexes over a
// single column of values.
//
// Every index uses equality encoding: a presence mask tells which IDs
// carry a value at all, and each distinct value owns a bitmap marking the
// IDs that hold it. Value bitmaps are padded lazily, so appending to one
// value never touches the bitmaps of the others.
package column

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/akrennmair/eventdex/bitmap"
	"github.com/akrennmair/eventdex/value"
)

var (
	// ErrUnsupportedValueType is returned when a value does not match the
	// type of an index, or when no index exists for a type.
	ErrUnsupportedValueType = value.ErrUnsupportedValueType

	// ErrFormat is returned when persisted index data is malformed.
	ErrFormat = errors.New("invalid index format")
)

// Index is an append-only bitmap index over one column. IDs are implicit:
// the n-th appended entry belongs to ID n.
type Index interface {
	// Type returns the value type the index accepts.
	Type() value.Type

	// Size returns the number of IDs covered so far, i.e. the highest
	// appended ID plus one.
	Size() uint64

	// AppendAbsent appends n IDs that carry no value.
	AppendAbsent(n uint64) error

	// AppendValue appends v at ID Size().
	AppendValue(v value.Value) error

	// Lookup returns a bitmap of Size() bits marking the IDs equal to v.
	Lookup(v value.Value) (*bitmap.Bitmap, error)

	// Mask returns a bitmap of Size() bits marking the IDs that carry a value.
	Mask() *bitmap.Bitmap

	// ValueAt returns the value stored at id, if any.
	ValueAt(id uint64) (value.Value, bool)

	// Values returns the distinct values of the index in key order.
	Values() []value.Value
}

// New creates an empty index for values of type t.
func New(t value.Type) (Index, error) {
	switch t {
	case value.TypeBool:
		return newEqualityIndex(boolCodec), nil
	case value.TypeInt:
		return newEqualityIndex(intCodec), nil
	case value.TypeUint:
		return newEqualityIndex(uintCodec), nil
	case value.TypeDouble:
		return newEqualityIndex(doubleCodec), nil
	case value.TypeDuration:
		return newEqualityIndex(durationCodec), nil
	case value.TypeTime:
		return newEqualityIndex(timeCodec), nil
	case value.TypeString:
		return newEqualityIndex(stringCodec), nil
	case value.TypeAddress:
		return newEqualityIndex(addressCodec), nil
	case value.TypePort:
		return newEqualityIndex(portCodec), nil
	default:
		return nil, fmt.Errorf("%w: no column index for %s", ErrUnsupportedValueType, t)
	}
}

// persistable is implemented by every index created by New, and gives the
// file format access to the encoded keys.
type persistable interface {
	Index

	forEachEncoded(fn func(key []byte, bm *bitmap.Bitmap) error) error
	restore(size uint64, mask *bitmap.Bitmap, values map[string]*bitmap.Bitmap) error
}

type equalityIndex[K comparable] struct {
	codec  *codec[K]
	size   uint64
	mask   *bitmap.Bitmap
	values map[K]*bitmap.Bitmap
}

func newEqualityIndex[K comparable](c *codec[K]) *equalityIndex[K] {
	return &equalityIndex[K]{
		codec:  c,
		mask:   bitmap.New(),
		values: make(map[K]*bitmap.Bitmap),
	}
}

func (idx *equalityIndex[K]) Type() value.Type {
	return idx.codec.typ
}

func (idx *equalityIndex[K]) Size() uint64 {
	return idx.size
}

func (idx *equalityIndex[K]) AppendAbsent(n uint64) error {
	idx.mask.AppendRun(false, n)
	idx.size += n
	return nil
}

func (idx *equalityIndex[K]) key(v value.Value) (K, error) {
	k, ok := idx.codec.key(v)
	if !ok {
		return k, fmt.Errorf("%w: %s column cannot hold %s value", ErrUnsupportedValueType, idx.codec.typ, value.TypeOf(v))
	}
	return k, nil
}

func (idx *equalityIndex[K]) AppendValue(v value.Value) error {
	k, err := idx.key(v)
	if err != nil {
		return err
	}

	bm, ok := idx.values[k]
	if !ok {
		bm = bitmap.New()
		idx.values[k] = bm
	}

	bm.AppendRun(false, idx.size-bm.Size())
	bm.AppendBit(true)

	idx.mask.AppendBit(true)
	idx.size++

	return nil
}

func (idx *equalityIndex[K]) Lookup(v value.Value) (*bitmap.Bitmap, error) {
	k, err := idx.key(v)
	if err != nil {
		return nil, err
	}

	bm, ok := idx.values[k]
	if !ok {
		return bitmap.NewFilled(false, idx.size), nil
	}

	return idx.padded(bm), nil
}

// padded returns a copy of bm extended to the index size.
func (idx *equalityIndex[K]) padded(bm *bitmap.Bitmap) *bitmap.Bitmap {
	res := bm.Clone()
	res.AppendRun(false, idx.size-res.Size())
	return res
}

func (idx *equalityIndex[K]) Mask() *bitmap.Bitmap {
	return idx.mask.Clone()
}

func (idx *equalityIndex[K]) ValueAt(id uint64) (value.Value, bool) {
	if !idx.mask.Bit(id) {
		return nil, false
	}
	for k, bm := range idx.values {
		if bm.Bit(id) {
			return idx.codec.value(k), true
		}
	}
	return nil, false
}

func (idx *equalityIndex[K]) Values() []value.Value {
	type entry struct {
		key []byte
		v   value.Value
	}

	entries := make([]entry, 0, len(idx.values))
	for k := range idx.values {
		entries = append(entries, entry{key: idx.codec.encode(k), v: idx.codec.value(k)})
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	values := make([]value.Value, len(entries))
	for i, e := range entries {
		values[i] = e.v
	}
	return values
}

func (idx *equalityIndex[K]) forEachEncoded(fn func(key []byte, bm *bitmap.Bitmap) error) error {
	for k, bm := range idx.values {
		if err := fn(idx.codec.encode(k), idx.padded(bm)); err != nil {
			return err
		}
	}
	return nil
}

func (idx *equalityIndex[K]) restore(size uint64, mask *bitmap.Bitmap, values map[string]*bitmap.Bitmap) error {
	if mask.Size() != size {
		return fmt.Errorf("%w: mask has %d bits, index has %d", ErrFormat, mask.Size(), size)
	}

	restored := make(map[K]*bitmap.Bitmap, len(values))
	for key, bm := range values {
		k, err := idx.codec.decode([]byte(key))
		if err != nil {
			return fmt.Errorf("%w: %s key %x: %v", ErrFormat, idx.codec.typ, key, err)
		}
		if bm.Size() != size {
			return fmt.Errorf("%w: value bitmap has %d bits, index has %d", ErrFormat, bm.Size(), size)
		}
		restored[k] = bm
	}

	idx.size = size
	idx.mask = mask
	idx.values = restored

	return nil
}
