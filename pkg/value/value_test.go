package value

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogicRejectsBadWidth(t *testing.T) {
	_, err := NewLogic("x", 0, false)
	require.Error(t, err)
	assert.Equal(t, KindDeclaration, KindOf(err))

	_, err = NewLogic("x", -4, true)
	require.Error(t, err)
	assert.Equal(t, KindDeclaration, KindOf(err))
}

func TestUnsignedWraparound(t *testing.T) {
	v := NewUint8("u")
	v.SetUint64(0x1ff)
	assert.Equal(t, uint64(0xff), v.Uint64())

	v.SetInt64(-1)
	assert.Equal(t, uint64(0xff), v.Uint64())

	v.SetUint64(256)
	assert.Equal(t, uint64(0), v.Uint64())
}

func TestSignedWraparound(t *testing.T) {
	v := NewInt8("s")

	// raw == ((magnitude + 2^(w-1)) mod 2^w) - 2^(w-1)
	cases := []struct{ in, want int64 }{
		{127, 127},
		{128, -128},
		{-128, -128},
		{-129, 127},
		{255, -1},
		{256, 0},
	}
	for _, c := range cases {
		v.SetInt64(c.in)
		assert.Equal(t, c.want, v.Int64(), "assigning %d", c.in)
	}
}

func TestWraparoundLaw(t *testing.T) {
	// Exhaustive check of the width-wraparound property for a 5-bit value.
	const w = 5
	mod := int64(1) << w
	half := mod / 2

	s, err := NewLogic("s", w, true)
	require.NoError(t, err)
	u, err := NewLogic("u", w, false)
	require.NoError(t, err)

	for m := int64(-100); m <= 100; m++ {
		s.SetInt64(m)
		want := ((m+half)%mod+mod)%mod - half
		assert.Equal(t, want, s.Int64(), "signed %d", m)

		u.SetInt64(m)
		assert.Equal(t, (m%mod+mod)%mod, int64(u.Uint64()), "unsigned %d", m)
	}
}

func TestBitAccess(t *testing.T) {
	v := NewUint16("v")
	v.SetUint64(0b1010)

	b, err := v.Bit(1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), b)

	b, err = v.Bit(0)
	require.NoError(t, err)
	assert.Equal(t, uint(0), b)

	require.NoError(t, v.SetBit(0, 1))
	assert.Equal(t, uint64(0b1011), v.Uint64())

	require.NoError(t, v.SetBit(3, 0))
	assert.Equal(t, uint64(0b0011), v.Uint64())

	_, err = v.Bit(16)
	assert.Equal(t, KindIndex, KindOf(err))
	_, err = v.Bit(-1)
	assert.Equal(t, KindIndex, KindOf(err))
	err = v.SetBit(16, 1)
	assert.Equal(t, KindIndex, KindOf(err))
}

func TestSliceHalfOpenLaw(t *testing.T) {
	v := NewUint16("v")
	v.SetUint64(0xABCD)

	for lo := 0; lo <= 16; lo++ {
		for hi := lo; hi <= 16; hi++ {
			s, err := v.Slice(lo, hi)
			require.NoError(t, err)

			// Exactly hi-lo bits.
			assert.LessOrEqual(t, s.BitLen(), hi-lo)

			// Equal to the concatenation of Bit(lo)..Bit(hi-1).
			want := new(big.Int)
			for i := lo; i < hi; i++ {
				b, err := v.Bit(i)
				require.NoError(t, err)
				want.SetBit(want, i-lo, b)
			}
			assert.Zero(t, s.Cmp(want), "slice [%d:%d]", lo, hi)
		}
	}
}

func TestSliceRejection(t *testing.T) {
	v := NewUint16("v")

	_, err := v.Slice(-1, 4)
	assert.Equal(t, KindRange, KindOf(err))

	_, err = v.Slice(4, 2)
	assert.Equal(t, KindRange, KindOf(err))

	_, err = v.Slice(0, 17)
	assert.Equal(t, KindRange, KindOf(err))

	err = v.SliceAssign(8, 20, big.NewInt(1))
	assert.Equal(t, KindRange, KindOf(err))
}

func TestSliceAssignTruncates(t *testing.T) {
	v := NewUint16("v")
	v.SetUint64(0xFFFF)

	// Replacement wider than the field is truncated to hi-lo bits.
	require.NoError(t, v.SliceAssign(4, 8, big.NewInt(0x1A5)))
	assert.Equal(t, uint64(0xFF5F), v.Uint64())

	require.NoError(t, v.SliceAssign(0, 16, big.NewInt(0x1234)))
	assert.Equal(t, uint64(0x1234), v.Uint64())

	// Zero-width assignment is a no-op.
	require.NoError(t, v.SliceAssign(7, 7, big.NewInt(0xFF)))
	assert.Equal(t, uint64(0x1234), v.Uint64())
}

func TestAliasesObserveMutation(t *testing.T) {
	v := NewUint32("shared")
	alias := v

	v.SetUint64(42)
	assert.Equal(t, uint64(42), alias.Uint64())

	alias.SetUint64(7)
	assert.Equal(t, uint64(7), v.Uint64())
}

func TestClonePreservesDeclaration(t *testing.T) {
	v, err := NewLogic("orig", 24, true)
	require.NoError(t, err)
	v.SetInt64(-12345)

	cp := v.Clone()
	assert.Equal(t, 24, cp.Width())
	assert.True(t, cp.Signed())
	assert.Equal(t, v.Int64(), cp.Int64())

	// Copies are independent.
	cp.SetInt64(9)
	assert.Equal(t, int64(-12345), v.Int64())
}

func TestEnumDeclaration(t *testing.T) {
	e, err := NewEnum("mode", []uint64{1, 2, 12})
	require.NoError(t, err)
	assert.Equal(t, 4, e.Width())
	assert.Equal(t, KindEnum, e.Kind())
	assert.Len(t, e.Members(), 3)

	_, err = NewEnum("empty", nil)
	assert.Equal(t, KindDeclaration, KindOf(err))

	_, err = NewEnum("dup", []uint64{3, 3})
	assert.Equal(t, KindDeclaration, KindOf(err))
}

func TestMinMax(t *testing.T) {
	u := NewUint8("u")
	assert.Zero(t, u.Min().Cmp(big.NewInt(0)))
	assert.Zero(t, u.Max().Cmp(big.NewInt(255)))

	s := NewInt8("s")
	assert.Zero(t, s.Min().Cmp(big.NewInt(-128)))
	assert.Zero(t, s.Max().Cmp(big.NewInt(127)))
}

func TestWideValues(t *testing.T) {
	v, err := NewLogic("wide", 128, false)
	require.NoError(t, err)

	big1 := new(big.Int).Lsh(big.NewInt(1), 127)
	v.Set(big1)
	assert.Equal(t, uint(1), v.Raw().Bit(127))

	// Wraps at 2^128.
	over := new(big.Int).Lsh(big.NewInt(1), 128)
	over.Add(over, big.NewInt(5))
	v.Set(over)
	assert.Zero(t, v.Raw().Cmp(big.NewInt(5)))
}
