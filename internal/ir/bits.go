package ir

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// MaxWidth is the widest bit vector the optimizer folds. Declarations wider
// than this are rejected by the builder.
const MaxWidth = 256

// BitVector is a fixed-width two's-complement bit pattern. All operations
// truncate their result to the receiver's width; nothing is ever implicitly
// sign-extended.
type BitVector struct {
	width int
	bits  uint256.Int
}

// NewBitVector builds a width-bit vector holding v truncated to width.
func NewBitVector(width int, v uint64) BitVector {
	b := BitVector{width: width}
	b.bits.SetUint64(v)
	b.truncate()
	return b
}

// ParseBitVector parses a width-bit value from a decimal or 0x-prefixed hex
// string, as produced by the interchange form.
func ParseBitVector(width int, s string) (BitVector, error) {
	if width <= 0 || width > MaxWidth {
		return BitVector{}, errors.Errorf("literal width %d out of range 1..%d", width, MaxWidth)
	}
	v := new(uint256.Int)
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		err = v.SetFromHex("0x" + strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	} else {
		err = v.SetFromDecimal(s)
	}
	if err != nil {
		return BitVector{}, errors.Wrapf(err, "bad literal %q", s)
	}
	b := BitVector{width: width, bits: *v}
	b.truncate()
	return b, nil
}

func maskFor(width int) *uint256.Int {
	m := new(uint256.Int).Lsh(uint256.NewInt(1), uint(width))
	return m.Sub(m, uint256.NewInt(1))
}

func (b *BitVector) truncate() {
	if b.width <= 0 {
		b.bits.Clear()
		return
	}
	if b.width < MaxWidth {
		b.bits.And(&b.bits, maskFor(b.width))
	}
}

// Width returns the declared width in bits.
func (b BitVector) Width() int { return b.width }

// Uint64 returns the low 64 bits of the value.
func (b BitVector) Uint64() uint64 { return b.bits.Uint64() }

// IsZero reports whether every bit is clear.
func (b BitVector) IsZero() bool { return b.bits.IsZero() }

// AllOnes reports whether every bit within the width is set.
func (b BitVector) AllOnes() bool {
	if b.width <= 0 {
		return false
	}
	return b.bits.Eq(maskFor(b.width))
}

// Equal reports width and value equality. go-cmp picks this up for diffs.
func (b BitVector) Equal(o BitVector) bool {
	return b.width == o.width && b.bits.Eq(&o.bits)
}

// SameBits reports value equality ignoring width.
func (b BitVector) SameBits(o BitVector) bool {
	return b.bits.Eq(&o.bits)
}

// Lt reports unsigned b < o.
func (b BitVector) Lt(o BitVector) bool {
	return b.bits.Lt(&o.bits)
}

// Trunc returns the value re-truncated to a new width.
func (b BitVector) Trunc(width int) BitVector {
	r := BitVector{width: width, bits: b.bits}
	r.truncate()
	return r
}

// String renders the value in the <width>'h<hex> shape used by the emitter.
func (b BitVector) String() string {
	hex := strings.TrimPrefix(b.bits.Hex(), "0x")
	return fmt.Sprintf("%d'h%s", b.width, hex)
}

func binWidth(a, b BitVector) int {
	if a.width >= b.width {
		return a.width
	}
	return b.width
}

// And returns the bitwise conjunction at the wider operand width.
func (b BitVector) And(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.And(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Or returns the bitwise disjunction at the wider operand width.
func (b BitVector) Or(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.Or(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Xor returns the bitwise exclusive or at the wider operand width.
func (b BitVector) Xor(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.Xor(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Not returns the bitwise complement within the receiver's width.
func (b BitVector) Not() BitVector {
	r := BitVector{width: b.width}
	r.bits.Not(&b.bits)
	r.truncate()
	return r
}

// Add returns the truncated sum at the wider operand width.
func (b BitVector) Add(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.Add(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Sub returns the truncated difference at the wider operand width.
func (b BitVector) Sub(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.Sub(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Mul returns the truncated product at the wider operand width.
func (b BitVector) Mul(o BitVector) BitVector {
	r := BitVector{width: binWidth(b, o)}
	r.bits.Mul(&b.bits, &o.bits)
	r.truncate()
	return r
}

// Shl shifts left by o, truncated to the receiver's width.
func (b BitVector) Shl(o BitVector) BitVector {
	r := BitVector{width: b.width}
	sh := o.bits.Uint64()
	if sh >= uint64(b.width) {
		return r
	}
	r.bits.Lsh(&b.bits, uint(sh))
	r.truncate()
	return r
}

// Shr shifts right by o, zero-filling from the left.
func (b BitVector) Shr(o BitVector) BitVector {
	r := BitVector{width: b.width}
	sh := o.bits.Uint64()
	if sh >= uint64(b.width) {
		return r
	}
	r.bits.Rsh(&b.bits, uint(sh))
	return r
}

// Bit returns bit i as a 1-bit vector.
func (b BitVector) Bit(i int) BitVector {
	one := b.Shr(NewBitVector(b.width, uint64(i)))
	return NewBitVector(1, one.Uint64()&1)
}

// Slice extracts bits high..low inclusive as a (high-low+1)-bit vector.
func (b BitVector) Slice(high, low int) BitVector {
	shifted := b.Shr(NewBitVector(b.width, uint64(low)))
	return shifted.Trunc(high - low + 1)
}

// Concat places b in the high bits above o.
func (b BitVector) Concat(o BitVector) BitVector {
	r := BitVector{width: b.width + o.width}
	r.bits.Lsh(&b.bits, uint(o.width))
	r.bits.Or(&r.bits, &o.bits)
	r.truncate()
	return r
}

// Bool returns a 1-bit vector for a truth value.
func Bool(v bool) BitVector {
	if v {
		return NewBitVector(1, 1)
	}
	return NewBitVector(1, 0)
}

// MatchesPattern reports whether b equals value on every bit the mask cares
// about (mask bit set = cared-about position).
func MatchesPattern(b, value, mask BitVector) bool {
	diff := b.Xor(value)
	return diff.And(mask).IsZero()
}

// PatternsOverlap reports whether two (value, mask) patterns admit a common
// encoding: their values agree on every bit both masks care about.
func PatternsOverlap(v1, m1, v2, m2 BitVector) bool {
	both := m1.And(m2)
	return v1.Xor(v2).And(both).IsZero()
}
