package container

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostim/pkg/constraint"
	"gostim/pkg/engine"
	"gostim/pkg/value"
)

func seededEngine(seed int64) *engine.Engine {
	cfg := engine.DefaultConfig()
	cfg.Seed = seed
	return engine.New(cfg)
}

func newPacket(t *testing.T, seed int64) *Container {
	t.Helper()
	c := New("packet", seededEngine(seed))
	require.NoError(t, c.AddLogic(value.NewUint8("kind")))
	require.NoError(t, c.AddLogic(value.NewUint16("length")))
	require.NoError(t, c.AddLogic(value.NewUint32("addr")))
	require.NoError(t, c.AddFloat(value.NewFp32("scale")))
	return c
}

func TestDuplicateFieldName(t *testing.T) {
	c := New("c", nil)
	require.NoError(t, c.AddLogic(value.NewUint8("x")))

	err := c.AddLogic(value.NewUint16("x"))
	assert.Equal(t, value.KindDeclaration, value.KindOf(err))

	err = c.AddFloat(value.NewFp32("x"))
	assert.Equal(t, value.KindDeclaration, value.KindOf(err))
}

func TestDefaultConstraintsInstalled(t *testing.T) {
	c := New("c", nil)
	require.NoError(t, c.AddLogic(value.NewUint8("x")))

	def, ok := c.Scope().Get("__default_x")
	require.True(t, ok)
	assert.Equal(t, constraint.GE, def.Op)

	// Defaults are removable like any named constraint.
	require.NoError(t, c.Scope().Remove("__default_x"))
	_, ok = c.Scope().Get("__default_x")
	assert.False(t, ok)
}

func TestEnumMembershipSurvivesDefaultRemoval(t *testing.T) {
	c := New("c", seededEngine(31))
	op, err := value.NewEnum("op", []uint64{4, 8, 12})
	require.NoError(t, err)
	require.NoError(t, c.AddLogic(op))

	require.NoError(t, c.Scope().Remove("__default_op"))
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Randomize(context.Background()))
		assert.Contains(t, []uint64{4, 8, 12}, op.Uint64())
	}
}

func TestRandomizeHonorsConstraints(t *testing.T) {
	c := newPacket(t, 32)
	length, _ := c.Logic("length")
	addr, _ := c.Logic("addr")

	require.NoError(t, c.Constrain(constraint.Between("len_rng", length, constraint.U(1), constraint.U(64))))
	require.NoError(t, c.Constrain(constraint.MaskEQ("aligned", addr, constraint.U(0x3), constraint.U(0x0))))

	for i := 0; i < 100; i++ {
		require.NoError(t, c.Randomize(context.Background()))
		assert.GreaterOrEqual(t, length.Uint64(), uint64(1))
		assert.LessOrEqual(t, length.Uint64(), uint64(64))
		assert.Zero(t, addr.Uint64()&0x3)
	}
}

func TestRandomizeOnlyFreezesOthers(t *testing.T) {
	c := newPacket(t, 33)
	kind, _ := c.Logic("kind")
	length, _ := c.Logic("length")

	require.NoError(t, c.Constrain(constraint.RelVar("len_gt_kind", length, constraint.GT, kind)))

	kind.SetUint64(200)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.RandomizeOnly(context.Background(), "length"))
		assert.Equal(t, uint64(200), kind.Uint64(), "excluded field must stay frozen")
		assert.Greater(t, length.Uint64(), uint64(200))
	}
}

func TestRandomizeOnlyUnknownField(t *testing.T) {
	c := newPacket(t, 34)
	err := c.RandomizeOnly(context.Background(), "ghost")
	assert.Equal(t, value.KindNotFound, value.KindOf(err))
}

func TestHooks(t *testing.T) {
	c := newPacket(t, 35)
	var trace []string
	c.SetPreRandomize(func(*Container) { trace = append(trace, "pre") })
	c.SetPostRandomize(func(*Container) { trace = append(trace, "post") })

	require.NoError(t, c.Randomize(context.Background()))
	assert.Equal(t, []string{"pre", "post"}, trace)

	// A failed solve runs pre but never post.
	length, _ := c.Logic("length")
	require.NoError(t, c.Constrain(constraint.Rel("lo", length, constraint.GT, constraint.U(10))))
	require.NoError(t, c.Constrain(constraint.Rel("hi", length, constraint.LT, constraint.U(5))))
	trace = nil
	err := c.Randomize(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"pre"}, trace)
}

func TestFailedRandomizeLeavesValues(t *testing.T) {
	c := newPacket(t, 36)
	kind, _ := c.Logic("kind")
	length, _ := c.Logic("length")
	kind.SetUint64(11)
	length.SetUint64(22)

	require.NoError(t, c.Constrain(constraint.Rel("lo", length, constraint.GT, constraint.U(10))))
	require.NoError(t, c.Constrain(constraint.Rel("hi", length, constraint.LT, constraint.U(5))))

	err := c.Randomize(context.Background())
	require.Error(t, err)
	assert.Equal(t, value.KindInfeasible, value.KindOf(err))
	assert.Equal(t, uint64(11), kind.Uint64())
	assert.Equal(t, uint64(22), length.Uint64())
	assert.Equal(t, engine.StateFailed, c.LastReport().State)
}

func TestReentrantRandomizeRejected(t *testing.T) {
	c := newPacket(t, 37)
	var hookErr error
	c.SetPreRandomize(func(cc *Container) {
		hookErr = cc.Randomize(context.Background())
	})
	require.NoError(t, c.Randomize(context.Background()))
	assert.Equal(t, value.KindConcurrent, value.KindOf(hookErr))
}

func TestCompare(t *testing.T) {
	a := newPacket(t, 38)
	b := newPacket(t, 38)
	assert.True(t, a.Compare(b))

	kind, _ := a.Logic("kind")
	kind.SetUint64(9)
	assert.False(t, a.Compare(b))

	other, _ := b.Logic("kind")
	other.SetUint64(9)
	assert.True(t, a.Compare(b))

	assert.False(t, a.Compare(nil))
}

func TestStringAndSnapshot(t *testing.T) {
	c := newPacket(t, 39)
	kind, _ := c.Logic("kind")
	kind.SetUint64(0xAB)

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "kind", snap[0].Name)
	assert.Equal(t, "0xab", snap[0].Value)
	assert.Equal(t, 8, snap[0].Width)

	s := c.String()
	assert.True(t, strings.HasPrefix(s, "packet"))
	assert.Contains(t, s, "kind")
	assert.Contains(t, s, "0xab")
}
