package engine

import (
	"context"
	"math/big"
	"math/rand"
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

// bitModel is the SAT model for targets touched by bit-level constraints.
// Each target bit becomes one literal; constraints encode as clauses guarded
// by an assumption literal per constraint, so an unsatisfiable model yields
// the offending constraint names straight from the failed-assumption core.
//
// Mask constraints emit clauses only for the bits the mask selects. A
// 64-bit value under an 8-bit mask costs eight unit clauses, never a model
// over the value's range.
type bitModel struct {
	cfg     *Config
	sat     *gini.Gini
	nextVar z.Var
	tLit    z.Lit // asserted true; stands in for constant bits
	vars    []*value.Logic
	bits    map[*value.Logic][]z.Lit
	guards  []z.Lit
	names   map[z.Lit]string
}

func buildBitModel(cfg *Config, cls *classification, targets Targets) *bitModel {
	m := &bitModel{
		cfg:   cfg,
		sat:   gini.New(),
		bits:  make(map[*value.Logic][]z.Lit),
		names: make(map[z.Lit]string),
	}
	m.tLit = m.newLit()
	m.addClause(m.tLit)

	for _, v := range targets.Ints {
		if !cls.bitVars[v] {
			continue
		}
		m.vars = append(m.vars, v)
		lits := make([]z.Lit, v.Width())
		for i := range lits {
			lits[i] = m.newLit()
		}
		m.bits[v] = lits

		// Enum targets may only take declared member patterns.
		if v.Kind() == value.KindEnum {
			g := m.guard("domain(" + v.Name() + ")")
			m.assertInSet(g, v, v.Members())
		}
	}

	for _, c := range cls.bitCons {
		m.encode(c)
	}
	return m
}

func (m *bitModel) newLit() z.Lit {
	m.nextVar++
	return m.nextVar.Pos()
}

func (m *bitModel) addClause(lits ...z.Lit) {
	for _, l := range lits {
		m.sat.Add(l)
	}
	m.sat.Add(z.LitNull)
}

func (m *bitModel) guard(name string) z.Lit {
	g := m.newLit()
	m.guards = append(m.guards, g)
	m.names[g] = name
	return g
}

// patBit returns the literal for bit i of the value's raw pattern. Bits past
// the declared width are constant zero; values outside the target set
// contribute their current pattern as constants.
func (m *bitModel) patBit(v *value.Logic, i int) z.Lit {
	lits, targeted := m.bits[v]
	if targeted {
		if i < len(lits) {
			return lits[i]
		}
		return m.tLit.Not()
	}
	if i < v.Width() && v.Raw().Bit(i) == 1 {
		return m.tLit
	}
	return m.tLit.Not()
}

func constLit(t z.Lit, b uint) z.Lit {
	if b == 1 {
		return t
	}
	return t.Not()
}

// cmpBits widens an operand to n bits in two's complement for the signed
// comparator. Targets sign- or zero-extend through literals; everything else
// extends as a constant of its current signed magnitude.
func (m *bitModel) cmpBits(v *value.Logic, k *big.Int, n int) []z.Lit {
	out := make([]z.Lit, n)
	if v != nil {
		if _, targeted := m.bits[v]; targeted {
			for i := 0; i < n; i++ {
				switch {
				case i < v.Width():
					out[i] = m.patBit(v, i)
				case v.Signed():
					out[i] = m.patBit(v, v.Width()-1)
				default:
					out[i] = m.tLit.Not()
				}
			}
			return out
		}
		k = v.BigInt()
	}
	u := new(big.Int).Mod(k, new(big.Int).Lsh(bigOne, uint(n)))
	for i := 0; i < n; i++ {
		out[i] = constLit(m.tLit, u.Bit(i))
	}
	return out
}

// cmpWidth picks a two's-complement width covering both operands with a sign
// bit to spare.
func cmpWidth(c *constraint.Constraint) int {
	n := c.A.Width()
	if c.B != nil {
		if w := c.B.Width(); w > n {
			n = w
		}
	}
	grow := func(k *big.Int) {
		if k == nil {
			return
		}
		if w := k.BitLen() + 2; w > n {
			n = w
		}
	}
	grow(c.K)
	grow(c.Lo)
	grow(c.Hi)
	for _, s := range c.Set {
		grow(s)
	}
	return n + 1
}

func (m *bitModel) encode(c *constraint.Constraint) {
	g := m.guard(c.Name)
	switch c.Op {
	case constraint.AndEQ:
		for _, i := range maskBits(c.Mask) {
			m.addClause(g.Not(), eqLit(m.patBit(c.A, i), c.Pattern.Bit(i)))
		}
	case constraint.AndNE:
		lits := []z.Lit{g.Not()}
		for _, i := range maskBits(c.Mask) {
			lits = append(lits, eqLit(m.patBit(c.A, i), 1-c.Pattern.Bit(i)))
		}
		m.addClause(lits...)
	case constraint.OrEQ:
		n := c.A.Width()
		if w := c.Pattern.BitLen(); w > n {
			n = w
		}
		for i := 0; i < n; i++ {
			if c.Mask.Bit(i) == 1 {
				continue // forced high; Validate checked the pattern agrees
			}
			m.addClause(g.Not(), eqLit(m.patBit(c.A, i), c.Pattern.Bit(i)))
		}
	case constraint.XorEQ:
		n := c.A.Width()
		for _, k := range []*big.Int{c.Mask, c.Pattern} {
			if w := k.BitLen(); w > n {
				n = w
			}
		}
		for i := 0; i < n; i++ {
			want := c.Pattern.Bit(i) ^ c.Mask.Bit(i)
			m.addClause(g.Not(), eqLit(m.patBit(c.A, i), want))
		}
	case constraint.ShrAndEQ:
		for _, i := range maskBits(c.Mask) {
			m.addClause(g.Not(), eqLit(m.patBit(c.A, i+c.Shift), c.Pattern.Bit(i)))
		}
	case constraint.ShlAndEQ:
		for _, i := range maskBits(c.Mask) {
			var bit z.Lit
			if i < c.Shift {
				bit = m.tLit.Not()
			} else {
				bit = m.patBit(c.A, i-c.Shift)
			}
			m.addClause(g.Not(), eqLit(bit, c.Pattern.Bit(i)))
		}
	case constraint.EQ, constraint.NE, constraint.LT, constraint.LE, constraint.GT, constraint.GE:
		n := cmpWidth(c)
		as := m.cmpBits(c.A, c.K, n)
		var bs []z.Lit
		if c.B != nil {
			bs = m.cmpBits(c.B, nil, n)
		} else {
			bs = m.cmpBits(nil, c.K, n)
		}
		// Two's-complement order via offset binary: flip both sign bits.
		as[n-1] = as[n-1].Not()
		bs[n-1] = bs[n-1].Not()
		m.assertCmp(g, c.Op, as, bs)
	case constraint.Range:
		n := cmpWidth(c)
		as := m.cmpBits(c.A, nil, n)
		los := m.cmpBits(nil, c.Lo, n)
		his := m.cmpBits(nil, c.Hi, n)
		as[n-1] = as[n-1].Not()
		los[n-1] = los[n-1].Not()
		his[n-1] = his[n-1].Not()
		m.assertCmp(g, constraint.GE, as, los)
		m.assertCmp(g, constraint.LE, as, his)
	case constraint.InSet:
		m.assertInSet(g, c.A, c.Set)
	case constraint.NotInSet:
		n := cmpWidth(c)
		for _, k := range c.Set {
			as := m.cmpBits(c.A, nil, n)
			ks := m.cmpBits(nil, k, n)
			m.assertCmp(g, constraint.NE, as, ks)
		}
	}
}

// eqLit returns a literal that is true exactly when bit equals want.
func eqLit(bit z.Lit, want uint) z.Lit {
	if want == 1 {
		return bit
	}
	return bit.Not()
}

func maskBits(mask *big.Int) []int {
	out := make([]int, 0, mask.BitLen())
	for i := 0; i < mask.BitLen(); i++ {
		if mask.Bit(i) == 1 {
			out = append(out, i)
		}
	}
	return out
}

// assertInSet requires v to equal one of the members, via one selector
// literal per member.
func (m *bitModel) assertInSet(g z.Lit, v *value.Logic, set []*big.Int) {
	n := v.Width() + 1
	for _, k := range set {
		if w := k.BitLen() + 2; w > n {
			n = w
		}
	}
	sel := []z.Lit{g.Not()}
	for _, k := range set {
		s := m.newLit()
		sel = append(sel, s)
		as := m.cmpBits(v, nil, n)
		ks := m.cmpBits(nil, k, n)
		for i := 0; i < n; i++ {
			m.addClause(s.Not(), as[i].Not(), ks[i])
			m.addClause(s.Not(), as[i], ks[i].Not())
		}
	}
	m.addClause(sel...)
}

// assertCmp encodes op(as, bs) under the guard. Both operands are offset
// binary of equal width, so plain unsigned bit order applies.
func (m *bitModel) assertCmp(g z.Lit, op constraint.Op, as, bs []z.Lit) {
	if op == constraint.GT || op == constraint.GE {
		as, bs = bs, as
		if op == constraint.GT {
			op = constraint.LT
		} else {
			op = constraint.LE
		}
	}
	n := len(as)

	switch op {
	case constraint.NE:
		// One aux per bit: d_i implies the bits differ.
		lits := []z.Lit{g.Not()}
		for i := 0; i < n; i++ {
			d := m.newLit()
			m.addClause(d.Not(), as[i], bs[i])
			m.addClause(d.Not(), as[i].Not(), bs[i].Not())
			lits = append(lits, d)
		}
		m.addClause(lits...)
		return
	}

	// eq_i implies bit i agrees; pref[i] implies all bits >= i agree.
	eq := make([]z.Lit, n)
	for i := 0; i < n; i++ {
		e := m.newLit()
		m.addClause(e.Not(), as[i].Not(), bs[i])
		m.addClause(e.Not(), as[i], bs[i].Not())
		eq[i] = e
	}
	pref := make([]z.Lit, n+1)
	pref[n] = m.tLit
	for i := n - 1; i >= 0; i-- {
		p := m.newLit()
		m.addClause(p.Not(), pref[i+1])
		m.addClause(p.Not(), eq[i])
		pref[i] = p
	}

	switch op {
	case constraint.EQ:
		m.addClause(g.Not(), pref[0])
	case constraint.LT, constraint.LE:
		// l_i implies: higher bits equal, a_i low, b_i high.
		lits := []z.Lit{g.Not()}
		for i := 0; i < n; i++ {
			l := m.newLit()
			m.addClause(l.Not(), pref[i+1])
			m.addClause(l.Not(), as[i].Not())
			m.addClause(l.Not(), bs[i])
			lits = append(lits, l)
		}
		if op == constraint.LE {
			lits = append(lits, pref[0])
		}
		m.addClause(lits...)
	}
}

// solveBounded runs one SAT call. With a deadline on the context the solve
// runs in its own goroutine and is stopped at the deadline; an unfinished
// solve reads as 0, which callers surface as a budget error.
func (m *bitModel) solveBounded(ctx context.Context) int {
	if deadline, ok := ctx.Deadline(); ok {
		remain := time.Until(deadline)
		if remain <= 0 {
			return 0
		}
		return m.sat.GoSolve().Try(remain)
	}
	return m.sat.Solve()
}

// solve finds one satisfying assignment and returns the staged raw pattern
// per target. Value spreading works through random polarity hints assumed
// alongside the guards; hints that land in an unsat core are shed and the
// guards never are.
func (m *bitModel) solve(ctx context.Context, rng *rand.Rand) (map[*value.Logic]*big.Int, error) {
	m.sat.Assume(m.guards...)
	switch m.solveBounded(ctx) {
	case -1:
		core := m.sat.Why(nil)
		names := make([]string, 0, len(core))
		for _, l := range core {
			if n, ok := m.names[l]; ok {
				names = append(names, n)
			}
		}
		return nil, value.InfeasibleError("", names,
			"bit-level constraints are unsatisfiable")
	case 0:
		return nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.allNames(),
			"bit-level solve did not finish")
	}

	hints := make([]z.Lit, 0, 64)
	for _, v := range m.vars {
		for _, l := range m.bits[v] {
			if rng.Intn(2) == 1 {
				hints = append(hints, l)
			} else {
				hints = append(hints, l.Not())
			}
		}
	}

	for round := 0; round <= len(hints); round++ {
		if err := ctx.Err(); err != nil {
			return nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.allNames(),
				"bit-level solve timed out")
		}
		m.sat.Assume(m.guards...)
		m.sat.Assume(hints...)
		res := m.solveBounded(ctx)
		if res == 1 {
			return m.extract(), nil
		}
		if res == 0 {
			return nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.allNames(),
				"bit-level solve did not finish")
		}
		core := m.sat.Why(nil)
		blamed := make(map[z.Lit]bool, len(core))
		for _, l := range core {
			if _, isGuard := m.names[l]; !isGuard {
				blamed[l] = true
			}
		}
		if len(blamed) == 0 {
			// Core blames only guards despite a feasible guard set; shed
			// hints wholesale rather than loop.
			hints = hints[:len(hints)/2]
			continue
		}
		kept := hints[:0]
		for _, l := range hints {
			if !blamed[l] {
				kept = append(kept, l)
			}
		}
		hints = kept
	}

	m.sat.Assume(m.guards...)
	if m.solveBounded(ctx) != 1 {
		return nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.allNames(),
			"bit-level solve did not converge")
	}
	return m.extract(), nil
}

func (m *bitModel) extract() map[*value.Logic]*big.Int {
	out := make(map[*value.Logic]*big.Int, len(m.vars))
	for _, v := range m.vars {
		raw := new(big.Int)
		for i, l := range m.bits[v] {
			if m.sat.Value(l) {
				raw.SetBit(raw, i, 1)
			}
		}
		out[v] = raw
	}
	return out
}

func (m *bitModel) allNames() []string {
	out := make([]string, 0, len(m.guards))
	for _, g := range m.guards {
		out = append(out, m.names[g])
	}
	return out
}
