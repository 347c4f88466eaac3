// Package constraint declares named relational and bitwise predicates over
// values. Constraints are flat records: an operator, the referenced values
// and the constant operands. The solver domain of a constraint (arithmetic
// vs. bit-level) is fixed here, at declaration time, from its operator alone.
package constraint

import (
	"fmt"
	"math"
	"math/big"

	"gostim/pkg/value"
)

// Op enumerates the supported constraint operators.
type Op int

const (
	// Relational operators over integer values. The right-hand side is
	// either a constant (K) or a second value (B).
	EQ Op = iota
	NE
	LT
	LE
	GT
	GE
	// Range bounds a value to [Lo, Hi] inclusive.
	Range
	// InSet / NotInSet constrain set membership.
	InSet
	NotInSet

	// Bitwise operators. These are bit-domain: any value they reference
	// requires bit-level solving.
	AndEQ    // v & Mask == Pattern
	AndNE    // v & Mask != Pattern
	OrEQ     // v | Mask == Pattern
	XorEQ    // v ^ Mask == Pattern
	ShrAndEQ // (v >> Shift) & Mask == Pattern
	ShlAndEQ // (v << Shift) & Mask == Pattern, truncated to width

	// Relational operators over float values.
	FEQ
	FNE
	FLT
	FLE
	FGT
	FGE
	FRange
)

var opNames = []string{
	"EQ", "NE", "LT", "LE", "GT", "GE", "RANGE", "IN", "NOT_IN",
	"AND_EQ", "AND_NE", "OR_EQ", "XOR_EQ", "SHR_AND_EQ", "SHL_AND_EQ",
	"FEQ", "FNE", "FLT", "FLE", "FGT", "FGE", "FRANGE",
}

// String returns the operator name.
func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "UNKNOWN"
}

// BitDomain reports whether the operator requires bit-level solving.
func (op Op) BitDomain() bool {
	return op >= AndEQ && op <= ShlAndEQ
}

// FloatOp reports whether the operator applies to float values.
func (op Op) FloatOp() bool {
	return op >= FEQ && op <= FRange
}

// Relational reports whether the operator is a plain integer comparison that
// may take a second value as right-hand side.
func (op Op) Relational() bool {
	return op >= EQ && op <= GE
}

// Constraint is a named predicate over one or more values. It references
// values by identity and never owns them. Soft constraints may be dropped by
// the solver when jointly infeasible with the hard set.
type Constraint struct {
	Name string
	Op   Op
	Soft bool

	// Integer operands.
	A      *value.Logic // primary value
	B      *value.Logic // second value for var-var relations
	K      *big.Int     // constant right-hand side
	Lo, Hi *big.Int     // Range bounds
	Set    []*big.Int   // InSet / NotInSet members

	// Bitwise operands.
	Mask    *big.Int
	Pattern *big.Int
	Shift   int

	// Float operands.
	FA       *value.Float
	FK       float64
	FLo, FHi float64
}

// U wraps a uint64 constant for use as a constraint operand.
func U(x uint64) *big.Int { return new(big.Int).SetUint64(x) }

// I wraps an int64 constant for use as a constraint operand.
func I(x int64) *big.Int { return big.NewInt(x) }

// Nums wraps a uint64 list for use as a set operand.
func Nums(xs ...uint64) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = U(x)
	}
	return out
}

// Rel declares a relational constraint between a value and a constant.
func Rel(name string, a *value.Logic, op Op, k *big.Int) *Constraint {
	return &Constraint{Name: name, Op: op, A: a, K: k}
}

// RelVar declares a relational constraint between two values.
func RelVar(name string, a *value.Logic, op Op, b *value.Logic) *Constraint {
	return &Constraint{Name: name, Op: op, A: a, B: b}
}

// Between declares lo <= a <= hi.
func Between(name string, a *value.Logic, lo, hi *big.Int) *Constraint {
	return &Constraint{Name: name, Op: Range, A: a, Lo: lo, Hi: hi}
}

// In declares set membership.
func In(name string, a *value.Logic, set []*big.Int) *Constraint {
	return &Constraint{Name: name, Op: InSet, A: a, Set: set}
}

// NotIn declares set exclusion.
func NotIn(name string, a *value.Logic, set []*big.Int) *Constraint {
	return &Constraint{Name: name, Op: NotInSet, A: a, Set: set}
}

// MaskEQ declares a & mask == pattern.
func MaskEQ(name string, a *value.Logic, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: AndEQ, A: a, Mask: mask, Pattern: pattern}
}

// MaskNE declares a & mask != pattern.
func MaskNE(name string, a *value.Logic, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: AndNE, A: a, Mask: mask, Pattern: pattern}
}

// MaskOrEQ declares a | mask == pattern.
func MaskOrEQ(name string, a *value.Logic, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: OrEQ, A: a, Mask: mask, Pattern: pattern}
}

// MaskXorEQ declares a ^ mask == pattern.
func MaskXorEQ(name string, a *value.Logic, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: XorEQ, A: a, Mask: mask, Pattern: pattern}
}

// ShrAnd declares (a >> shift) & mask == pattern.
func ShrAnd(name string, a *value.Logic, shift int, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: ShrAndEQ, A: a, Shift: shift, Mask: mask, Pattern: pattern}
}

// ShlAnd declares (a << shift) & mask == pattern, the shift truncated at the
// value's width.
func ShlAnd(name string, a *value.Logic, shift int, mask, pattern *big.Int) *Constraint {
	return &Constraint{Name: name, Op: ShlAndEQ, A: a, Shift: shift, Mask: mask, Pattern: pattern}
}

// FloatRel declares a relational constraint between a float and a constant.
func FloatRel(name string, f *value.Float, op Op, k float64) *Constraint {
	return &Constraint{Name: name, Op: op, FA: f, FK: k}
}

// FloatBetween declares lo <= f <= hi.
func FloatBetween(name string, f *value.Float, lo, hi float64) *Constraint {
	return &Constraint{Name: name, Op: FRange, FA: f, FLo: lo, FHi: hi}
}

// AsSoft marks the constraint soft and returns it for chaining.
func (c *Constraint) AsSoft() *Constraint {
	c.Soft = true
	return c
}

// Refs returns the integer values the constraint references.
func (c *Constraint) Refs() []*value.Logic {
	var out []*value.Logic
	if c.A != nil {
		out = append(out, c.A)
	}
	if c.B != nil {
		out = append(out, c.B)
	}
	return out
}

// References reports whether the constraint mentions v.
func (c *Constraint) References(v *value.Logic) bool {
	return c.A == v || c.B == v
}

// Validate checks the record for declaration errors. It is called by Scope.Add
// so malformed expressions surface at declaration time, never at solve time.
func (c *Constraint) Validate() error {
	if c.Name == "" {
		return value.Errorf(value.KindDeclaration, "constraint has no name")
	}
	if c.Op.FloatOp() {
		return c.validateFloat()
	}
	if c.FA != nil {
		if c.Op.BitDomain() {
			return value.Errorf(value.KindDomain,
				"constraint %q: bitwise operator %s on float %q", c.Name, c.Op, c.FA.Name())
		}
		return value.Errorf(value.KindDomain,
			"constraint %q: integer operator %s on float %q", c.Name, c.Op, c.FA.Name())
	}
	if c.A == nil {
		return value.Errorf(value.KindDeclaration, "constraint %q: no value operand", c.Name)
	}

	switch c.Op {
	case EQ, NE, LT, LE, GT, GE:
		if (c.B == nil) == (c.K == nil) {
			return value.Errorf(value.KindDeclaration,
				"constraint %q: %s needs exactly one right-hand side", c.Name, c.Op)
		}
	case Range:
		if c.Lo == nil || c.Hi == nil {
			return value.Errorf(value.KindDeclaration, "constraint %q: range bounds missing", c.Name)
		}
		if c.Lo.Cmp(c.Hi) > 0 {
			return value.Errorf(value.KindDeclaration,
				"constraint %q: range lower bound %s above upper bound %s", c.Name, c.Lo, c.Hi)
		}
	case InSet, NotInSet:
		if len(c.Set) == 0 {
			return value.Errorf(value.KindDeclaration, "constraint %q: empty member set", c.Name)
		}
	case AndEQ, AndNE, OrEQ, XorEQ, ShrAndEQ, ShlAndEQ:
		if c.Mask == nil || c.Pattern == nil {
			return value.Errorf(value.KindDeclaration, "constraint %q: mask or pattern missing", c.Name)
		}
		if c.Shift < 0 {
			return value.Errorf(value.KindDeclaration, "constraint %q: negative shift %d", c.Name, c.Shift)
		}
		if c.Op == AndEQ || c.Op == ShrAndEQ || c.Op == ShlAndEQ {
			if stray := new(big.Int).AndNot(c.Pattern, c.Mask); stray.Sign() != 0 {
				return value.Errorf(value.KindDeclaration,
					"constraint %q: pattern has bits outside mask (0x%s)", c.Name, stray.Text(16))
			}
		}
		if c.Op == OrEQ {
			if missing := new(big.Int).AndNot(c.Mask, c.Pattern); missing.Sign() != 0 {
				return value.Errorf(value.KindDeclaration,
					"constraint %q: OR mask forces bits the pattern clears (0x%s)", c.Name, missing.Text(16))
			}
		}
	default:
		return value.Errorf(value.KindDeclaration, "constraint %q: unknown operator %d", c.Name, int(c.Op))
	}
	return nil
}

func (c *Constraint) validateFloat() error {
	if c.FA == nil {
		return value.Errorf(value.KindDeclaration, "constraint %q: no float operand", c.Name)
	}
	switch c.Op {
	case FRange:
		if math.IsNaN(c.FLo) || math.IsNaN(c.FHi) {
			return value.Errorf(value.KindDeclaration, "constraint %q: NaN range bound", c.Name)
		}
		if c.FLo > c.FHi {
			return value.Errorf(value.KindDeclaration,
				"constraint %q: range lower bound %g above upper bound %g", c.Name, c.FLo, c.FHi)
		}
	default:
		if math.IsNaN(c.FK) {
			return value.Errorf(value.KindDeclaration, "constraint %q: NaN operand", c.Name)
		}
	}
	return nil
}

func (c *Constraint) String() string {
	kind := "hard"
	if c.Soft {
		kind = "soft"
	}
	return fmt.Sprintf("%s(%s, %s)", c.Name, c.Op, kind)
}
