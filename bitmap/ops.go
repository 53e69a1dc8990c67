package bitmap

import "fmt"

type bitwiseOp func(x, y uint64) uint64

var (
	andOp  bitwiseOp = func(x, y uint64) uint64 { return x & y }
	orOp   bitwiseOp = func(x, y uint64) uint64 { return x | y }
	xorOp  bitwiseOp = func(x, y uint64) uint64 { return x ^ y }
	diffOp bitwiseOp = func(x, y uint64) uint64 { return x &^ y }
)

// And returns the bitwise conjunction of x and y. Both bitmaps must have
// the same size; the operands are not modified.
func And(x, y *Bitmap) (*Bitmap, error) {
	return bitwise(andOp, x, y)
}

// Or returns the bitwise disjunction of x and y.
func Or(x, y *Bitmap) (*Bitmap, error) {
	return bitwise(orOp, x, y)
}

// Xor returns the bitwise exclusive or of x and y.
func Xor(x, y *Bitmap) (*Bitmap, error) {
	return bitwise(xorOp, x, y)
}

// Difference returns the bits set in x but not in y.
func Difference(x, y *Bitmap) (*Bitmap, error) {
	return bitwise(diffOp, x, y)
}

func bitwise(op bitwiseOp, x, y *Bitmap) (*Bitmap, error) {
	if x.size != y.size {
		return nil, fmt.Errorf("%w: %d != %d", ErrSizeMismatch, x.size, y.size)
	}

	res := &Bitmap{
		blocks: make([]uint64, len(x.blocks)),
		size:   x.size,
	}

	for i := range x.blocks {
		res.blocks[i] = op(x.blocks[i], y.blocks[i])
	}

	return res, nil
}
