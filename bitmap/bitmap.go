// Package bitmap implements a growable boolean vector stored in 64-bit
// blocks, together with a run iterator that walks maximal stretches of
// identical blocks in O(number of runs) and the usual boolean algebra.
//
// A Bitmap is the storage unit of every column index: each distinct value
// of a column owns one Bitmap whose i-th bit tells whether record i holds
// that value.
package bitmap

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// BlockWidth is the number of bits stored per block.
const BlockWidth = 64

const allOnes = ^uint64(0)

var (
	// ErrSizeMismatch is returned when two bitmaps of different size are
	// combined, or when decoded data does not fit the declared size.
	ErrSizeMismatch = errors.New("bitmap size mismatch")

	// ErrBlockWidth is returned by AppendBlock when more than one block
	// worth of bits is requested.
	ErrBlockWidth = errors.New("bit count exceeds block width")
)

// Bitmap is an ordered sequence of bits. The zero value is an empty
// bitmap ready to use.
//
// Bits at positions >= Size() inside the last block are always zero.
type Bitmap struct {
	blocks []uint64
	size   uint64
}

// New returns an empty bitmap.
func New() *Bitmap {
	return &Bitmap{}
}

// NewFilled returns a bitmap of n bits, all set to bit.
func NewFilled(bit bool, n uint64) *Bitmap {
	bm := New()
	bm.AppendRun(bit, n)
	return bm
}

// Size returns the number of bits in the bitmap.
func (bm *Bitmap) Size() uint64 {
	return bm.size
}

// Empty reports whether the bitmap holds no bits.
func (bm *Bitmap) Empty() bool {
	return bm.size == 0
}

// Blocks returns the number of blocks backing the bitmap.
func (bm *Bitmap) Blocks() int {
	return len(bm.blocks)
}

// Bit returns the bit at position i. Positions outside the bitmap read
// as false.
func (bm *Bitmap) Bit(i uint64) bool {
	if i >= bm.size {
		return false
	}
	return bm.blocks[i/BlockWidth]&(1<<(i%BlockWidth)) != 0
}

// Count returns the number of set bits.
func (bm *Bitmap) Count() uint64 {
	var n int
	for _, b := range bm.blocks {
		n += bits.OnesCount64(b)
	}
	return uint64(n)
}

// Clone returns a deep copy of the bitmap.
func (bm *Bitmap) Clone() *Bitmap {
	blocks := make([]uint64, len(bm.blocks))
	copy(blocks, bm.blocks)
	return &Bitmap{blocks: blocks, size: bm.size}
}

// partial returns the number of valid bits in the last block, 0 meaning
// the last block is full.
func (bm *Bitmap) partial() uint64 {
	return bm.size % BlockWidth
}

// AppendBit appends a single bit.
func (bm *Bitmap) AppendBit(bit bool) {
	if bm.partial() == 0 {
		bm.blocks = append(bm.blocks, 0)
	}
	if bit {
		bm.blocks[len(bm.blocks)-1] |= 1 << bm.partial()
	}
	bm.size++
}

// AppendRun appends n copies of bit. Whole blocks are filled at once, so
// long runs cost O(n/BlockWidth).
func (bm *Bitmap) AppendRun(bit bool, n uint64) {
	if n == 0 {
		return
	}

	// top up the partially filled last block first.
	if p := bm.partial(); p > 0 {
		k := min(n, BlockWidth-p)
		if bit {
			bm.blocks[len(bm.blocks)-1] |= mask(k) << p
		}
		bm.size += k
		n -= k
	}

	fill := uint64(0)
	if bit {
		fill = allOnes
	}

	for ; n >= BlockWidth; n -= BlockWidth {
		bm.blocks = append(bm.blocks, fill)
		bm.size += BlockWidth
	}

	if n > 0 {
		bm.blocks = append(bm.blocks, fill&mask(n))
		bm.size += n
	}
}

// AppendBlock appends the n low bits of word, least significant bit
// first. n must not exceed BlockWidth.
func (bm *Bitmap) AppendBlock(word uint64, n uint64) error {
	if n > BlockWidth {
		return fmt.Errorf("%w: %d > %d", ErrBlockWidth, n, BlockWidth)
	}
	if n == 0 {
		return nil
	}

	word &= mask(n)

	p := bm.partial()
	if p == 0 {
		bm.blocks = append(bm.blocks, word)
		bm.size += n
		return nil
	}

	// the word straddles the current last block and a new one.
	last := len(bm.blocks) - 1
	bm.blocks[last] |= word << p
	if free := BlockWidth - p; n > free {
		bm.blocks = append(bm.blocks, word>>free)
	}
	bm.size += n
	return nil
}

// Complement flips every bit in place.
func (bm *Bitmap) Complement() {
	for i := range bm.blocks {
		bm.blocks[i] = ^bm.blocks[i]
	}
	bm.clearTail()
}

// clearTail zeroes the bits past Size() in the last block.
func (bm *Bitmap) clearTail() {
	if p := bm.partial(); p > 0 {
		bm.blocks[len(bm.blocks)-1] &= mask(p)
	}
}

// Equal reports whether both bitmaps hold the same bit sequence.
func (bm *Bitmap) Equal(other *Bitmap) bool {
	if bm.size != other.size {
		return false
	}
	for i, b := range bm.blocks {
		if b != other.blocks[i] {
			return false
		}
	}
	return true
}

// String renders the bitmap as a sequence of 0 and 1 characters.
func (bm *Bitmap) String() string {
	var b strings.Builder
	b.Grow(int(bm.size))
	for i := uint64(0); i < bm.size; i++ {
		if bm.Bit(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// mask returns a word with the n low bits set.
func mask(n uint64) uint64 {
	if n >= BlockWidth {
		return allOnes
	}
	return (1 << n) - 1
}
