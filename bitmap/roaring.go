package bitmap

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// ToRoaring converts the bitmap into a roaring bitmap holding the
// positions of all set bits. Homogeneous runs of ones are added as
// ranges, so long runs stay cheap.
func (bm *Bitmap) ToRoaring() *roaring64.Bitmap {
	rb := roaring64.New()

	var pos uint64

	it := bm.Runs()
	for it.Next() {
		r := it.Run()
		switch {
		case r.Length > BlockWidth:
			if r.Value() {
				rb.AddRange(pos, pos+r.Length)
			}
		default:
			for i := uint64(0); i < r.Length; i++ {
				if r.Bit(i) {
					rb.Add(pos + i)
				}
			}
		}
		pos += r.Length
	}

	rb.RunOptimize()

	return rb
}

// FromRoaring builds a bitmap of the given size whose set bits are the
// members of rb. Every member of rb must be smaller than size.
func FromRoaring(rb *roaring64.Bitmap, size uint64) (*Bitmap, error) {
	bm := New()

	if !rb.IsEmpty() && rb.Maximum() >= size {
		return nil, fmt.Errorf("%w: position %d outside of %d bits", ErrSizeMismatch, rb.Maximum(), size)
	}

	var (
		runStart uint64
		runLen   uint64
	)

	flush := func() {
		if runLen == 0 {
			return
		}
		bm.AppendRun(false, runStart-bm.size)
		bm.AppendRun(true, runLen)
	}

	it := rb.Iterator()
	for it.HasNext() {
		pos := it.Next()
		if runLen > 0 && pos == runStart+runLen {
			runLen++
			continue
		}
		flush()
		runStart, runLen = pos, 1
	}
	flush()

	bm.AppendRun(false, size-bm.size)

	return bm, nil
}
