// Package value provides the typed, bit-accurate containers used as
// randomization targets: fixed-width 2-state integers (Logic), enumerations,
// and fixed-precision floats. All integer state is kept normalized to the
// declared width; assignment wraps with hardware semantics instead of
// failing.
package value

import (
	"fmt"
	"math/big"
)

// IntKind distinguishes the integer-like container variants.
type IntKind int

const (
	// KindLogic is a plain fixed-width integer.
	KindLogic IntKind = iota
	// KindEnum restricts the domain to a declared member set.
	KindEnum
)

// Logic is a fixed-width, 2-state integer value. The bit pattern is held
// normalized to the declared width at all times; signed interpretation is
// applied on read. Logic values are handles: mutation is in place and every
// holder of the same *Logic observes the update.
type Logic struct {
	name    string
	width   int
	signed  bool
	kind    IntKind
	raw     *big.Int   // unsigned bit pattern, 0 <= raw < 2^width
	members []*big.Int // enum member bit patterns, declaration order
}

// NewLogic declares a fixed-width integer. Width must be at least 1.
func NewLogic(name string, width int, signed bool) (*Logic, error) {
	if width < 1 {
		return nil, Errorf(KindDeclaration, "value %q: width must be >= 1, got %d", name, width)
	}
	return &Logic{
		name:   name,
		width:  width,
		signed: signed,
		kind:   KindLogic,
		raw:    new(big.Int),
	}, nil
}

func mustLogic(name string, width int, signed bool) *Logic {
	v, err := NewLogic(name, width, signed)
	if err != nil {
		panic(err)
	}
	return v
}

// Preset constructors mirror the usual hardware integer widths.

func NewUint8(name string) *Logic  { return mustLogic(name, 8, false) }
func NewUint16(name string) *Logic { return mustLogic(name, 16, false) }
func NewUint32(name string) *Logic { return mustLogic(name, 32, false) }
func NewUint64(name string) *Logic { return mustLogic(name, 64, false) }
func NewInt8(name string) *Logic   { return mustLogic(name, 8, true) }
func NewInt16(name string) *Logic  { return mustLogic(name, 16, true) }
func NewInt32(name string) *Logic  { return mustLogic(name, 32, true) }
func NewInt64(name string) *Logic  { return mustLogic(name, 64, true) }

// NewEnum declares an unsigned value whose randomization domain is restricted
// to the given members. The width is derived from the largest member.
func NewEnum(name string, members []uint64) (*Logic, error) {
	if len(members) == 0 {
		return nil, Errorf(KindDeclaration, "enum %q: member set is empty", name)
	}
	width := 1
	seen := make(map[uint64]bool, len(members))
	ms := make([]*big.Int, 0, len(members))
	for _, m := range members {
		if seen[m] {
			return nil, Errorf(KindDeclaration, "enum %q: duplicate member %d", name, m)
		}
		seen[m] = true
		if bl := big.NewInt(0).SetUint64(m).BitLen(); bl > width {
			width = bl
		}
		ms = append(ms, new(big.Int).SetUint64(m))
	}
	v := &Logic{
		name:    name,
		width:   width,
		signed:  false,
		kind:    KindEnum,
		raw:     new(big.Int).Set(ms[0]),
		members: ms,
	}
	return v, nil
}

// Name returns the declared identity used in error and trace reporting.
func (v *Logic) Name() string { return v.name }

// Width returns the declared bit width.
func (v *Logic) Width() int { return v.width }

// Signed reports whether the value is interpreted as two's complement.
func (v *Logic) Signed() bool { return v.signed }

// Kind returns the container variant.
func (v *Logic) Kind() IntKind { return v.kind }

// Members returns a copy of the enum member set, or nil for plain values.
func (v *Logic) Members() []*big.Int {
	if v.kind != KindEnum {
		return nil
	}
	out := make([]*big.Int, len(v.members))
	for i, m := range v.members {
		out[i] = new(big.Int).Set(m)
	}
	return out
}

// modulus returns 2^width.
func (v *Logic) modulus() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(v.width))
}

// Set assigns a magnitude, wrapping to the declared width. Out-of-range input
// is never an error: unsigned values wrap modulo 2^width, signed values wrap
// with two's-complement semantics.
func (v *Logic) Set(magnitude *big.Int) {
	v.raw.Mod(magnitude, v.modulus())
}

// SetUint64 assigns from a uint64, wrapping as Set does.
func (v *Logic) SetUint64(magnitude uint64) {
	v.Set(new(big.Int).SetUint64(magnitude))
}

// SetInt64 assigns from an int64, wrapping as Set does.
func (v *Logic) SetInt64(magnitude int64) {
	v.Set(big.NewInt(magnitude))
}

// SetRaw assigns the bit pattern directly, truncating to width.
func (v *Logic) SetRaw(pattern *big.Int) {
	v.raw.Mod(pattern, v.modulus())
}

// Raw returns a copy of the unsigned bit pattern.
func (v *Logic) Raw() *big.Int {
	return new(big.Int).Set(v.raw)
}

// BigInt returns the current magnitude with sign interpretation applied.
func (v *Logic) BigInt() *big.Int {
	out := new(big.Int).Set(v.raw)
	if v.signed && v.raw.Bit(v.width-1) == 1 {
		out.Sub(out, v.modulus())
	}
	return out
}

// Uint64 returns the bit pattern as uint64. Widths above 64 truncate to the
// low 64 bits.
func (v *Logic) Uint64() uint64 {
	if v.width <= 64 {
		return v.raw.Uint64()
	}
	low := new(big.Int).And(v.raw, new(big.Int).SetUint64(^uint64(0)))
	return low.Uint64()
}

// Int64 returns the signed interpretation as int64.
func (v *Logic) Int64() int64 {
	return v.BigInt().Int64()
}

// Min returns the smallest representable magnitude.
func (v *Logic) Min() *big.Int {
	if !v.signed {
		return new(big.Int)
	}
	// -2^(width-1)
	m := new(big.Int).Lsh(big.NewInt(1), uint(v.width-1))
	return m.Neg(m)
}

// Max returns the largest representable magnitude.
func (v *Logic) Max() *big.Int {
	w := uint(v.width)
	if v.signed {
		w--
	}
	m := new(big.Int).Lsh(big.NewInt(1), w)
	return m.Sub(m, big.NewInt(1))
}

// Bit returns bit i of the pattern, 0 being the least significant.
func (v *Logic) Bit(i int) (uint, error) {
	if i < 0 || i >= v.width {
		return 0, Errorf(KindIndex, "value %q: bit index %d out of bounds [0, %d)", v.name, i, v.width)
	}
	return v.raw.Bit(i), nil
}

// SetBit assigns bit i of the pattern. Any nonzero b sets the bit.
func (v *Logic) SetBit(i int, b uint) error {
	if i < 0 || i >= v.width {
		return Errorf(KindIndex, "value %q: bit index %d out of bounds [0, %d)", v.name, i, v.width)
	}
	if b != 0 {
		b = 1
	}
	v.raw.SetBit(v.raw, i, b)
	return nil
}

func (v *Logic) checkSlice(lo, hi int) error {
	switch {
	case lo < 0 || hi < 0:
		return Errorf(KindRange, "value %q: negative slice index [%d:%d]", v.name, lo, hi)
	case lo > hi:
		return Errorf(KindRange, "value %q: slice lower bound %d above upper bound %d", v.name, lo, hi)
	case hi > v.width:
		return Errorf(KindRange, "value %q: slice upper bound %d above width %d", v.name, hi, v.width)
	}
	return nil
}

// Slice returns bits lo..hi-1 (half-open) as an unsigned magnitude.
func (v *Logic) Slice(lo, hi int) (*big.Int, error) {
	if err := v.checkSlice(lo, hi); err != nil {
		return nil, err
	}
	out := new(big.Int).Rsh(v.raw, uint(lo))
	mask := new(big.Int).Lsh(big.NewInt(1), uint(hi-lo))
	mask.Sub(mask, big.NewInt(1))
	return out.And(out, mask), nil
}

// SliceAssign replaces bits lo..hi-1 (half-open) with magnitude, truncating
// the replacement to hi-lo bits first.
func (v *Logic) SliceAssign(lo, hi int, magnitude *big.Int) error {
	if err := v.checkSlice(lo, hi); err != nil {
		return err
	}
	n := uint(hi - lo)
	mask := new(big.Int).Lsh(big.NewInt(1), n)
	mask.Sub(mask, big.NewInt(1))
	repl := new(big.Int).Mod(magnitude, new(big.Int).Lsh(big.NewInt(1), n))
	// Clear the field, then OR in the replacement.
	field := new(big.Int).Lsh(mask, uint(lo))
	v.raw.AndNot(v.raw, field)
	v.raw.Or(v.raw, repl.Lsh(repl, uint(lo)))
	return nil
}

// Clone returns an independent copy carrying the same width, sign, kind and
// current bit pattern. Width always propagates; a copy can never silently
// lose its declared width.
func (v *Logic) Clone() *Logic {
	cp := &Logic{
		name:   v.name,
		width:  v.width,
		signed: v.signed,
		kind:   v.kind,
		raw:    new(big.Int).Set(v.raw),
	}
	if v.members != nil {
		cp.members = make([]*big.Int, len(v.members))
		for i, m := range v.members {
			cp.members[i] = new(big.Int).Set(m)
		}
	}
	return cp
}

// Compare reports whether the other value carries the same declaration and
// bit pattern.
func (v *Logic) Compare(other *Logic) bool {
	return other != nil &&
		v.width == other.width &&
		v.signed == other.signed &&
		v.kind == other.kind &&
		v.raw.Cmp(other.raw) == 0
}

func (v *Logic) String() string {
	return fmt.Sprintf("%s=0x%s/%d", v.name, v.raw.Text(16), v.width)
}
