package scatter

import (
	"fmt"
	"math/bits"
)

// Codec maps a W-bit unsigned integer key onto its bit-order-reversed
// counterpart. Sequential keys concentrate on a single partition of a
// range-partitioned store; reversing the bit order moves the fast-changing
// low bits into the high, partition-routing positions, spreading a dense
// monotonic run approximately uniformly across the key space.
//
// The mapping is a bijection over [0, 2^W) and an involution: applying it
// twice restores the original key. Note that this is bit-order reversal of
// the fixed-width value, not byte-order reversal and not bitwise NOT;
// neither of those round-trips.
//
// A Codec holds no state and is safe for unlimited concurrent use.
type Codec struct {
	width uint
}

// NewCodec returns a Codec for keys of the given bit width.
// Width must be in [1, 64].
func NewCodec(width uint) (Codec, error) {
	if width < 1 || width > 64 {
		return Codec{}, fmt.Errorf("scatter: key width must be in [1, 64], got %d", width)
	}
	return Codec{width: width}, nil
}

// Width returns the configured key width in bits.
func (c Codec) Width() uint { return c.width }

// Transform returns the bit-order reversal of key within the codec's width:
// bit i of the result equals bit (W-1-i) of the input. It fails with a
// *KeyRangeError if the key does not fit in W bits; callers must reject such
// records rather than clamp them.
func (c Codec) Transform(key uint64) (uint64, error) {
	if c.width == 0 {
		return 0, fmt.Errorf("scatter: codec not initialized, use NewCodec")
	}
	if c.width < 64 && key >= 1<<c.width {
		return 0, &KeyRangeError{Key: key, Width: c.width}
	}
	return bits.Reverse64(key) >> (64 - c.width), nil
}

// Inverse undoes Transform. Bit-order reversal is its own inverse, so this
// is the same permutation; it exists as a separate method so call sites that
// recover original keys read as such.
func (c Codec) Inverse(key uint64) (uint64, error) {
	return c.Transform(key)
}
