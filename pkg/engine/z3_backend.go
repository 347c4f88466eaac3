//go:build z3
// +build z3

package engine

import (
	"context"
	"math/big"

	z3 "github.com/mitchellh/go-z3"

	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

// tryZ3 hands the arithmetic partition to Z3 when the strategy asks for it
// and the partition fits what the bridge supports: unsigned targets under
// constant relational constraints. Anything richer falls back to the local
// solver, which handles the full constraint language.
func (e *Engine) tryZ3(ctx context.Context, cls *classification, targets Targets, cons []*constraint.Constraint, stagedMag map[*value.Logic]*big.Int, stagedF map[*value.Float]float64) (bool, error) {
	if e.cfg.Strategy != StrategyZ3 {
		return false, nil
	}
	if !z3Supports(cls) {
		e.logf("constraint set outside the z3 bridge, using local solver")
		return false, nil
	}

	z3cfg := z3.NewConfig()
	z3cfg.SetInt("timeout", int(e.cfg.TimeoutDuration().Milliseconds()))
	z3ctx := z3.NewContext(z3cfg)
	defer z3ctx.Close()
	defer z3cfg.Close()

	solver := z3ctx.NewSolver()
	defer solver.Close()

	vars := make(map[*value.Logic]*z3.BV)
	names := make([]string, 0, len(cls.arithCons))
	for _, c := range cls.arithCons {
		names = append(names, c.Name)
		v := c.A
		bv, ok := vars[v]
		if !ok {
			bv = z3ctx.Const(z3ctx.Symbol(v.Name()), z3ctx.BVSort(uint(v.Width())))
			vars[v] = bv
		}
		solver.Assert(z3Translate(z3ctx, c, bv, v.Width()))
	}

	switch solver.Check() {
	case z3.True:
		model := solver.Model()
		defer model.Close()
		for v, bv := range vars {
			assignment := model.Eval(bv, true)
			if out, ok := assignment.(*z3.BV); ok {
				stagedMag[v] = z3BVToBigInt(out)
			}
		}
		return true, nil
	case z3.False:
		return true, value.InfeasibleError("", names,
			"z3 reports the arithmetic constraints unsatisfiable")
	default:
		return true, value.InfeasibleError(value.ReasonBudgetExceeded, names,
			"z3 returned undefined (possibly timeout)")
	}
}

// z3Supports reports whether the bridge can express the partition.
func z3Supports(cls *classification) bool {
	if len(cls.bitVars) > 0 || len(cls.floatCons) > 0 {
		return false
	}
	for _, c := range cls.arithCons {
		if c.B != nil || c.A.Signed() || c.A.Kind() == value.KindEnum {
			return false
		}
		switch c.Op {
		case constraint.EQ, constraint.NE, constraint.LT, constraint.LE,
			constraint.GT, constraint.GE, constraint.Range:
		default:
			return false
		}
	}
	return true
}

func z3Translate(ctx *z3.Context, c *constraint.Constraint, bv *z3.BV, width int) *z3.Bool {
	toBV := func(k *big.Int) *z3.BV {
		return ctx.FromBigInt(k, ctx.BVSort(uint(width)))
	}
	switch c.Op {
	case constraint.EQ:
		return bv.Eq(toBV(c.K))
	case constraint.NE:
		return bv.Eq(toBV(c.K)).Not()
	case constraint.LT:
		return bv.ULT(toBV(c.K))
	case constraint.LE:
		return bv.ULE(toBV(c.K))
	case constraint.GT:
		return bv.UGT(toBV(c.K))
	case constraint.GE:
		return bv.UGE(toBV(c.K))
	case constraint.Range:
		return bv.UGE(toBV(c.Lo)).And(bv.ULE(toBV(c.Hi)))
	}
	return nil
}

// z3BVToBigInt parses a bit-vector assignment. Z3 prints "#x..." hex,
// "#b..." binary, or plain decimal depending on sort and size.
func z3BVToBigInt(bv *z3.BV) *big.Int {
	str := bv.String()
	result := new(big.Int)
	switch {
	case len(str) > 2 && str[:2] == "#x":
		result.SetString(str[2:], 16)
	case len(str) > 2 && str[:2] == "#b":
		result.SetString(str[2:], 2)
	default:
		result.SetString(str, 10)
	}
	return result
}
