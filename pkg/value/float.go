package value

import (
	"fmt"
	"math"
)

// Precision selects the IEEE-754 layout of a Float.
type Precision int

const (
	// Half is binary16: 5 exponent bits, 11 significand bits.
	Half Precision = iota
	// Single is binary32: 8 exponent bits, 24 significand bits.
	Single
	// Double is binary64: 11 exponent bits, 53 significand bits.
	Double
)

// String returns the precision name.
func (p Precision) String() string {
	switch p {
	case Half:
		return "fp16"
	case Single:
		return "fp32"
	case Double:
		return "fp64"
	}
	return "fp?"
}

// Width returns the storage width in bits.
func (p Precision) Width() int {
	switch p {
	case Half:
		return 16
	case Single:
		return 32
	default:
		return 64
	}
}

// ExponentBits returns the exponent field width.
func (p Precision) ExponentBits() int {
	switch p {
	case Half:
		return 5
	case Single:
		return 8
	default:
		return 11
	}
}

// SignificandBits returns the significand width including the hidden bit.
func (p Precision) SignificandBits() int {
	switch p {
	case Half:
		return 11
	case Single:
		return 24
	default:
		return 53
	}
}

// MaxFinite returns the largest finite magnitude of the precision.
func (p Precision) MaxFinite() float64 {
	switch p {
	case Half:
		return 65504
	case Single:
		return math.MaxFloat32
	default:
		return math.MaxFloat64
	}
}

// Float is a fixed-precision floating-point value. Assignment from a
// wider-precision source rounds to the declared precision with IEEE-754
// round-to-nearest-even. Floats carry no bit-slice access; bitwise
// constraints against a Float are rejected with a Domain error at
// declaration time.
type Float struct {
	name string
	prec Precision
	val  float64 // always exactly representable at prec
}

// NewFp16 declares a half-precision float.
func NewFp16(name string) *Float { return &Float{name: name, prec: Half} }

// NewFp32 declares a single-precision float.
func NewFp32(name string) *Float { return &Float{name: name, prec: Single} }

// NewFp64 declares a double-precision float.
func NewFp64(name string) *Float { return &Float{name: name, prec: Double} }

// Name returns the declared identity.
func (f *Float) Name() string { return f.name }

// Prec returns the declared precision.
func (f *Float) Prec() Precision { return f.prec }

// Width returns the storage width in bits.
func (f *Float) Width() int { return f.prec.Width() }

// Set assigns a magnitude, rounding it to the declared precision.
func (f *Float) Set(magnitude float64) {
	f.val = f.Round(magnitude)
}

// Round returns magnitude rounded to the declared precision without
// assigning it.
func (f *Float) Round(magnitude float64) float64 {
	switch f.prec {
	case Half:
		return f16BitsToF64(f64ToF16Bits(magnitude))
	case Single:
		return float64(float32(magnitude))
	default:
		return magnitude
	}
}

// Get returns the current magnitude.
func (f *Float) Get() float64 { return f.val }

// ToBits returns the IEEE encoding of the current magnitude in the low bits.
func (f *Float) ToBits() uint64 {
	switch f.prec {
	case Half:
		return uint64(f64ToF16Bits(f.val))
	case Single:
		return uint64(math.Float32bits(float32(f.val)))
	default:
		return math.Float64bits(f.val)
	}
}

// FromBits assigns the value from its IEEE encoding.
func (f *Float) FromBits(raw uint64) {
	switch f.prec {
	case Half:
		f.val = f16BitsToF64(uint16(raw))
	case Single:
		f.val = float64(math.Float32frombits(uint32(raw)))
	default:
		f.val = math.Float64frombits(raw)
	}
}

// Clone returns an independent copy carrying the same precision and value.
func (f *Float) Clone() *Float {
	cp := *f
	return &cp
}

// Compare reports whether the other float carries the same precision and a
// bit-identical value. NaN never compares equal.
func (f *Float) Compare(other *Float) bool {
	return other != nil && f.prec == other.prec &&
		!math.IsNaN(f.val) && !math.IsNaN(other.val) &&
		f.val == other.val
}

func (f *Float) String() string {
	return fmt.Sprintf("%s=%g/%s", f.name, f.val, f.prec)
}

// f64ToF16Bits rounds a float64 to the nearest binary16 encoding
// (round-to-nearest-even).
func f64ToF16Bits(v float64) uint16 {
	sign := uint16((math.Float64bits(v) >> 48) & 0x8000)
	if math.IsNaN(v) {
		return sign | 0x7e00
	}
	a := math.Abs(v)
	if math.IsInf(v, 0) || a >= 65520 {
		// 65520 is the midpoint between MaxFinite and the next step; it
		// rounds away to infinity under round-to-nearest-even.
		return sign | 0x7c00
	}
	if a < 0x1p-14 {
		// Subnormal range: round in units of 2^-24. A result of exactly
		// 1024 spills into the smallest normal encoding, which is the
		// correct bit pattern.
		q := math.RoundToEven(math.Ldexp(a, 24))
		return sign | uint16(q)
	}
	e := math.Ilogb(a)
	m := int(math.RoundToEven(math.Ldexp(a, 10-e)))
	if m == 2048 {
		m = 1024
		e++
		if e > 15 {
			return sign | 0x7c00
		}
	}
	return sign | uint16(e+15)<<10 | uint16(m-1024)
}

// f16BitsToF64 widens a binary16 encoding exactly.
func f16BitsToF64(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1.0
	}
	e := int(h>>10) & 0x1f
	m := int(h & 0x3ff)
	switch {
	case e == 0:
		return sign * math.Ldexp(float64(m), -24)
	case e == 0x1f:
		if m != 0 {
			return math.NaN()
		}
		return sign * math.Inf(1)
	default:
		return sign * math.Ldexp(float64(m+1024), e-25)
	}
}
