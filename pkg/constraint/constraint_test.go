package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostim/pkg/value"
)

func TestDomainTagging(t *testing.T) {
	v := value.NewUint32("v")

	arith := []*Constraint{
		Rel("eq", v, EQ, U(5)),
		Rel("lt", v, LT, U(10)),
		Between("rng", v, U(1), U(9)),
		In("in", v, Nums(1, 2, 3)),
	}
	for _, c := range arith {
		assert.False(t, c.Op.BitDomain(), c.Name)
	}

	bit := []*Constraint{
		MaskEQ("and", v, U(0xFF), U(0x12)),
		MaskNE("andne", v, U(0xFF), U(0x12)),
		MaskOrEQ("or", v, U(0x0F), U(0xFF)),
		MaskXorEQ("xor", v, U(0xFF), U(0x34)),
		ShrAnd("shr", v, 4, U(0xF), U(0x3)),
	}
	for _, c := range bit {
		assert.True(t, c.Op.BitDomain(), c.Name)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	v := value.NewUint32("v")

	cases := []struct {
		name string
		c    *Constraint
		kind value.Kind
	}{
		{"unnamed", Rel("", v, EQ, U(1)), value.KindDeclaration},
		{"no operand", &Constraint{Name: "c", Op: EQ}, value.KindDeclaration},
		{"two rhs", &Constraint{Name: "c", Op: LT, A: v, B: v, K: U(1)}, value.KindDeclaration},
		{"inverted range", Between("c", v, U(10), U(1)), value.KindDeclaration},
		{"empty set", In("c", v, nil), value.KindDeclaration},
		{"no mask", &Constraint{Name: "c", Op: AndEQ, A: v}, value.KindDeclaration},
		{"pattern outside mask", MaskEQ("c", v, U(0x0F), U(0x10)), value.KindDeclaration},
		{"or clears mask bit", MaskOrEQ("c", v, U(0x0F), U(0x03)), value.KindDeclaration},
		{"negative shift", ShrAnd("c", v, -1, U(0xF), U(1)), value.KindDeclaration},
	}
	for _, tc := range cases {
		err := tc.c.Validate()
		require.Error(t, err, tc.name)
		assert.Equal(t, tc.kind, value.KindOf(err), tc.name)
	}
}

func TestBitwiseOnFloatIsDomainError(t *testing.T) {
	f := value.NewFp32("f")
	c := &Constraint{Name: "bad", Op: AndEQ, FA: f, Mask: U(0xF), Pattern: U(1)}
	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, value.KindDomain, value.KindOf(err))
}

func TestFloatConstraints(t *testing.T) {
	f := value.NewFp16("f")

	require.NoError(t, FloatBetween("rng", f, -1.5, 1.5).Validate())
	require.NoError(t, FloatRel("ge", f, FGE, 0).Validate())

	err := FloatBetween("bad", f, 2, 1).Validate()
	assert.Equal(t, value.KindDeclaration, value.KindOf(err))
}

func TestScopeDuplicateName(t *testing.T) {
	v := value.NewUint8("v")
	s := NewScope()

	require.NoError(t, s.Add(Rel("c0", v, LT, U(10))))

	err := s.Add(Rel("c0", v, GT, U(1)))
	require.Error(t, err)
	assert.Equal(t, value.KindDeclaration, value.KindOf(err))

	// The second constraint must not be installed: the original survives.
	c, ok := s.Get("c0")
	require.True(t, ok)
	assert.Equal(t, LT, c.Op)
	assert.Equal(t, 1, s.Len())
}

func TestScopeRemove(t *testing.T) {
	v := value.NewUint8("v")
	s := NewScope()
	require.NoError(t, s.Add(Rel("c0", v, LT, U(10))))

	require.NoError(t, s.Remove("c0"))
	assert.Zero(t, s.Len())

	err := s.Remove("c0")
	assert.Equal(t, value.KindNotFound, value.KindOf(err))
}

func TestScopeEnableDisable(t *testing.T) {
	v := value.NewUint8("v")
	s := NewScope()
	require.NoError(t, s.Add(Rel("c0", v, LT, U(10))))
	require.NoError(t, s.Add(Rel("c1", v, GT, U(1))))

	require.NoError(t, s.Disable("c0"))
	enabled := s.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "c1", enabled[0].Name)

	// Still declared, just excluded.
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Enable("c0"))
	assert.Len(t, s.Enabled(), 2)

	err := s.Disable("ghost")
	assert.Equal(t, value.KindNotFound, value.KindOf(err))
}

func TestScopeOrderPreserved(t *testing.T) {
	v := value.NewUint8("v")
	s := NewScope()
	names := []string{"z", "a", "m"}
	for _, n := range names {
		require.NoError(t, s.Add(Rel(n, v, NE, U(0))))
	}
	for i, c := range s.All() {
		assert.Equal(t, names[i], c.Name)
	}
}
