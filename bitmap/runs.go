package bitmap

import "math/bits"

// Run is a stretch of bits produced by a RunIterator.
//
// Runs longer than one block are homogeneous and Bits is either all zeros
// or all ones. Runs of at most BlockWidth bits carry the literal block,
// which may mix zeros and ones.
type Run struct {
	Bits   uint64
	Length uint64
}

// Homogeneous reports whether every bit of the run has the same value.
func (r Run) Homogeneous() bool {
	if r.Length > BlockWidth {
		return true
	}
	m := mask(r.Length)
	b := r.Bits & m
	return b == 0 || b == m
}

// Value returns the bit value of a homogeneous run.
func (r Run) Value() bool {
	return r.Bits&1 != 0
}

// Bit returns the i-th bit of the run.
func (r Run) Bit(i uint64) bool {
	if r.Length > BlockWidth {
		return r.Value()
	}
	return r.Bits&(1<<i) != 0
}

// Ones returns the number of set bits in the run.
func (r Run) Ones() uint64 {
	if r.Length > BlockWidth {
		if r.Value() {
			return r.Length
		}
		return 0
	}
	return uint64(bits.OnesCount64(r.Bits & mask(r.Length)))
}

// RunIterator lazily produces the runs of a bitmap. Concatenating all
// runs reproduces the bitmap. An iterator cannot be restarted.
type RunIterator struct {
	bm    *Bitmap
	block int
	run   Run
}

// Runs returns an iterator over the runs of bm. The bitmap must not be
// modified while the iterator is in use.
//
//	it := bm.Runs()
//	for it.Next() {
//		r := it.Run()
//		...
//	}
func (bm *Bitmap) Runs() *RunIterator {
	return &RunIterator{bm: bm}
}

// Run returns the run produced by the last call to Next.
func (it *RunIterator) Run() Run {
	return it.run
}

// Next advances to the next run and reports whether there was one.
func (it *RunIterator) Next() bool {
	blocks := it.bm.blocks
	if it.block >= len(blocks) {
		return false
	}

	last := len(blocks) - 1
	partial := it.bm.partial()

	switch {
	case it.block == last:
		// the last block is emitted as is, trimmed to its valid bits.
		n := partial
		if n == 0 {
			n = BlockWidth
		}
		it.run = Run{Bits: blocks[it.block], Length: n}
		it.block++

	case !homogeneous(blocks[it.block]):
		it.run = Run{Bits: blocks[it.block], Length: BlockWidth}
		it.block++

	default:
		data := blocks[it.block]
		n := uint64(BlockWidth)
		for it.block++; it.block != last && blocks[it.block] == data; it.block++ {
			n += BlockWidth
		}
		if it.block == last {
			valid := partial
			if valid == 0 {
				valid = BlockWidth
			}
			m := mask(valid)
			if blocks[last]&m == data&m {
				n += valid
				it.block++
			}
		}
		it.run = Run{Bits: data, Length: n}
	}

	return true
}

func homogeneous(b uint64) bool {
	return b == 0 || b == allOnes
}

// AppendRuns appends the bits of every run to bm. It is the inverse of
// iterating with Runs.
func (bm *Bitmap) AppendRuns(runs ...Run) {
	for _, r := range runs {
		if r.Length > BlockWidth {
			bm.AppendRun(r.Value(), r.Length)
			continue
		}
		// Length <= BlockWidth cannot fail.
		_ = bm.AppendBlock(r.Bits, r.Length)
	}
}
