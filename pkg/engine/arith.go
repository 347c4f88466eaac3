package engine

import (
	"context"
	"math"
	"math/big"
	"math/rand"

	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

var bigOne = big.NewInt(1)

// intDomain is the solver view of one integer target: an inclusive interval
// in signed-interpreted space, optional excluded points, and an optional
// explicit candidate set (enums, set membership).
type intDomain struct {
	min, max *big.Int
	excl     map[string]bool
	allowed  []*big.Int // nil means plain interval semantics
}

func (d *intDomain) clone() *intDomain {
	cp := &intDomain{
		min:     new(big.Int).Set(d.min),
		max:     new(big.Int).Set(d.max),
		excl:    make(map[string]bool, len(d.excl)),
		allowed: d.allowed, // candidates themselves are never mutated
	}
	for k := range d.excl {
		cp.excl[k] = true
	}
	return cp
}

func (d *intDomain) exclude(v *big.Int) {
	d.excl[v.String()] = true
}

func (d *intDomain) excluded(v *big.Int) bool {
	return d.excl[v.String()]
}

// singleton returns the only remaining interval point, or nil.
func (d *intDomain) singleton() *big.Int {
	if d.allowed == nil && d.min.Cmp(d.max) == 0 {
		return d.min
	}
	return nil
}

// candidates returns the allowed points still inside the interval and not
// excluded. Only meaningful when allowed != nil.
func (d *intDomain) candidates() []*big.Int {
	out := make([]*big.Int, 0, len(d.allowed))
	for _, c := range d.allowed {
		if c.Cmp(d.min) >= 0 && c.Cmp(d.max) <= 0 && !d.excluded(c) {
			out = append(out, c)
		}
	}
	return out
}

func (d *intDomain) empty() bool {
	if d.min.Cmp(d.max) > 0 {
		return true
	}
	if d.allowed != nil {
		return len(d.candidates()) == 0
	}
	// A fully excluded small interval is empty too.
	span := new(big.Int).Sub(d.max, d.min)
	if span.IsInt64() && span.Int64() < int64(len(d.excl)) {
		cur := new(big.Int).Set(d.min)
		for cur.Cmp(d.max) <= 0 {
			if !d.excluded(cur) {
				return false
			}
			cur.Add(cur, bigOne)
		}
		return true
	}
	return false
}

// arithRel is a relation between two targets, kept for bounds propagation.
type arithRel struct {
	name string
	op   constraint.Op
	a, b *value.Logic
}

// arithModel is the numeric model for targets without bit-domain
// constraints. It is built lazily per randomization call and solved by
// bounds propagation plus randomized assignment with restarts.
type arithModel struct {
	cfg    *Config
	vars   []*value.Logic
	doms   map[*value.Logic]*intDomain
	rels   []arithRel
	floats []*value.Float
	fcons  map[*value.Float][]*constraint.Constraint
	names  map[*value.Logic][]string // constraint names per var, for failure reporting
	all    []string                  // every constraint name in the model
}

func mirrorOp(op constraint.Op) constraint.Op {
	switch op {
	case constraint.LT:
		return constraint.GT
	case constraint.LE:
		return constraint.GE
	case constraint.GT:
		return constraint.LT
	case constraint.GE:
		return constraint.LE
	}
	return op
}

// buildArithModel lowers the arithmetic constraints onto per-variable
// domains. Values referenced but not targeted participate as constants at
// their current magnitude.
func buildArithModel(cfg *Config, cls *classification, targets Targets, cons, fcons []*constraint.Constraint) *arithModel {
	m := &arithModel{
		cfg:   cfg,
		doms:  make(map[*value.Logic]*intDomain),
		fcons: make(map[*value.Float][]*constraint.Constraint),
		names: make(map[*value.Logic][]string),
	}

	for _, v := range targets.Ints {
		if cls.bitVars[v] {
			continue
		}
		m.vars = append(m.vars, v)
		d := &intDomain{min: v.Min(), max: v.Max(), excl: make(map[string]bool)}
		if v.Kind() == value.KindEnum {
			d.allowed = v.Members()
		}
		m.doms[v] = d
	}
	m.floats = targets.Floats

	for _, c := range cons {
		m.all = append(m.all, c.Name)
		m.lowerInt(c)
	}
	for _, c := range fcons {
		m.all = append(m.all, c.Name)
		m.fcons[c.FA] = append(m.fcons[c.FA], c)
	}
	return m
}

func (m *arithModel) lowerInt(c *constraint.Constraint) {
	a, b := c.A, c.B
	op := c.Op
	k := c.K

	// Substitute the current magnitude of any non-target operand.
	if b != nil {
		if _, bTarget := m.doms[b]; !bTarget {
			k, b = b.BigInt(), nil
		}
	}
	if _, aTarget := m.doms[a]; !aTarget && b != nil {
		a, b, op = b, nil, mirrorOp(op)
		k = c.A.BigInt()
	}

	for _, v := range c.Refs() {
		if _, ok := m.doms[v]; ok {
			m.names[v] = append(m.names[v], c.Name)
		}
	}

	if b != nil {
		m.rels = append(m.rels, arithRel{name: c.Name, op: op, a: a, b: b})
		return
	}

	d := m.doms[a]
	switch op {
	case constraint.EQ:
		tightenMin(d, k)
		tightenMax(d, k)
	case constraint.NE:
		d.exclude(k)
	case constraint.LT:
		tightenMax(d, new(big.Int).Sub(k, bigOne))
	case constraint.LE:
		tightenMax(d, k)
	case constraint.GT:
		tightenMin(d, new(big.Int).Add(k, bigOne))
	case constraint.GE:
		tightenMin(d, k)
	case constraint.Range:
		tightenMin(d, c.Lo)
		tightenMax(d, c.Hi)
	case constraint.InSet:
		if d.allowed == nil {
			d.allowed = c.Set
		} else {
			keep := make(map[string]bool, len(c.Set))
			for _, s := range c.Set {
				keep[s.String()] = true
			}
			var inter []*big.Int
			for _, s := range d.allowed {
				if keep[s.String()] {
					inter = append(inter, s)
				}
			}
			if inter == nil {
				inter = []*big.Int{}
			}
			d.allowed = inter
		}
	case constraint.NotInSet:
		for _, s := range c.Set {
			d.exclude(s)
		}
	}
}

func tightenMin(d *intDomain, lo *big.Int) {
	if lo.Cmp(d.min) > 0 {
		d.min = new(big.Int).Set(lo)
	}
}

func tightenMax(d *intDomain, hi *big.Int) {
	if hi.Cmp(d.max) < 0 {
		d.max = new(big.Int).Set(hi)
	}
}

// propagate runs bounds propagation over the var-var relations to a fixed
// point. It returns the first variable whose domain emptied, or nil.
func (m *arithModel) propagate(doms map[*value.Logic]*intDomain) *value.Logic {
	maxPasses := 4*len(m.rels) + 8
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, r := range m.rels {
			da, db := doms[r.a], doms[r.b]
			switch r.op {
			case constraint.LT:
				changed = tightenMaxTracked(da, new(big.Int).Sub(db.max, bigOne)) || changed
				changed = tightenMinTracked(db, new(big.Int).Add(da.min, bigOne)) || changed
			case constraint.LE:
				changed = tightenMaxTracked(da, db.max) || changed
				changed = tightenMinTracked(db, da.min) || changed
			case constraint.GT:
				changed = tightenMinTracked(da, new(big.Int).Add(db.min, bigOne)) || changed
				changed = tightenMaxTracked(db, new(big.Int).Sub(da.max, bigOne)) || changed
			case constraint.GE:
				changed = tightenMinTracked(da, db.min) || changed
				changed = tightenMaxTracked(db, da.max) || changed
			case constraint.EQ:
				changed = tightenMinTracked(da, db.min) || changed
				changed = tightenMinTracked(db, da.min) || changed
				changed = tightenMaxTracked(da, db.max) || changed
				changed = tightenMaxTracked(db, da.max) || changed
			case constraint.NE:
				if s := db.singleton(); s != nil && !da.excluded(s) {
					da.exclude(s)
					changed = true
				}
				if s := da.singleton(); s != nil && !db.excluded(s) {
					db.exclude(s)
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	for _, v := range m.vars {
		if doms[v].empty() {
			return v
		}
	}
	return nil
}

func tightenMinTracked(d *intDomain, lo *big.Int) bool {
	if lo.Cmp(d.min) > 0 {
		d.min = new(big.Int).Set(lo)
		return true
	}
	return false
}

func tightenMaxTracked(d *intDomain, hi *big.Int) bool {
	if hi.Cmp(d.max) < 0 {
		d.max = new(big.Int).Set(hi)
		return true
	}
	return false
}

// sample draws a uniform point from the domain, or nil on a dead end.
func (m *arithModel) sample(d *intDomain, rng *rand.Rand) *big.Int {
	if d.allowed != nil {
		cands := d.candidates()
		if len(cands) == 0 {
			return nil
		}
		return new(big.Int).Set(cands[rng.Intn(len(cands))])
	}

	span := new(big.Int).Sub(d.max, d.min)
	span.Add(span, bigOne)
	if span.Sign() <= 0 {
		return nil
	}

	// Rejection sampling around the excluded points.
	for try := 0; try < 64; try++ {
		p := new(big.Int).Rand(rng, span)
		p.Add(p, d.min)
		if !d.excluded(p) {
			return p
		}
	}

	// Dense exclusions over a small interval: enumerate.
	if span.IsInt64() && span.Int64() <= 1<<16 {
		var cands []*big.Int
		cur := new(big.Int).Set(d.min)
		for cur.Cmp(d.max) <= 0 {
			if !d.excluded(cur) {
				cands = append(cands, new(big.Int).Set(cur))
			}
			cur = new(big.Int).Add(cur, bigOne)
		}
		if len(cands) == 0 {
			return nil
		}
		return cands[rng.Intn(len(cands))]
	}
	return nil
}

// solve finds one jointly satisfying assignment for every variable in the
// model. Nothing is written to the values themselves; the staged magnitudes
// are applied by the engine only once every sub-model has solved.
func (m *arithModel) solve(ctx context.Context, rng *rand.Rand) (map[*value.Logic]*big.Int, map[*value.Float]float64, error) {
	base := make(map[*value.Logic]*intDomain, len(m.doms))
	for v, d := range m.doms {
		base[v] = d.clone()
	}
	if v := m.propagate(base); v != nil {
		return nil, nil, value.InfeasibleError("", m.names[v],
			"no magnitude satisfies the constraints on %q", v.Name())
	}

	floats, err := m.solveFloats(rng)
	if err != nil {
		return nil, nil, err
	}

	if len(m.vars) == 0 {
		return map[*value.Logic]*big.Int{}, floats, nil
	}

	budget := m.cfg.MaxIterations
	for iter := 0; iter < budget; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.all,
				"solve timed out after %d attempts", iter)
		}

		working := make(map[*value.Logic]*intDomain, len(base))
		for v, d := range base {
			working[v] = d.clone()
		}

		out := make(map[*value.Logic]*big.Int, len(m.vars))
		dead := false
		for _, v := range m.vars {
			p := m.sample(working[v], rng)
			if p == nil {
				dead = true
				break
			}
			d := working[v]
			d.min, d.max, d.allowed = p, new(big.Int).Set(p), nil
			if m.propagate(working) != nil {
				dead = true
				break
			}
			out[v] = p
		}
		if !dead {
			return out, floats, nil
		}
	}
	return nil, nil, value.InfeasibleError(value.ReasonBudgetExceeded, m.all,
		"no joint assignment found within %d attempts", budget)
}

// solveFloats samples each float target independently; float constraints
// never span variables.
func (m *arithModel) solveFloats(rng *rand.Rand) (map[*value.Float]float64, error) {
	out := make(map[*value.Float]float64, len(m.floats))
	for _, f := range m.floats {
		v, err := m.sampleFloat(f, rng)
		if err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, nil
}

// floatRandLimit bounds unconstrained float draws. Doubles draw from a
// reduced range so uniform sampling stays usable.
func floatRandLimit(p value.Precision) float64 {
	if p == value.Double {
		return 1e100
	}
	return p.MaxFinite()
}

func (m *arithModel) sampleFloat(f *value.Float, rng *rand.Rand) (float64, error) {
	cons := m.fcons[f]
	limit := floatRandLimit(f.Prec())
	lo, hi := -limit, limit
	var exact *float64

	names := make([]string, 0, len(cons))
	for _, c := range cons {
		names = append(names, c.Name)
		switch c.Op {
		case constraint.FEQ:
			r := f.Round(c.FK)
			exact = &r
		case constraint.FLT, constraint.FLE:
			hi = math.Min(hi, c.FK)
		case constraint.FGT, constraint.FGE:
			lo = math.Max(lo, c.FK)
		case constraint.FRange:
			lo = math.Max(lo, c.FLo)
			hi = math.Min(hi, c.FHi)
		}
	}

	verify := func(v float64) bool {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
		for _, c := range cons {
			switch c.Op {
			case constraint.FEQ:
				if v != f.Round(c.FK) {
					return false
				}
			case constraint.FNE:
				if v == f.Round(c.FK) {
					return false
				}
			case constraint.FLT:
				if !(v < c.FK) {
					return false
				}
			case constraint.FLE:
				if !(v <= c.FK) {
					return false
				}
			case constraint.FGT:
				if !(v > c.FK) {
					return false
				}
			case constraint.FGE:
				if !(v >= c.FK) {
					return false
				}
			case constraint.FRange:
				if v < c.FLo || v > c.FHi {
					return false
				}
			}
		}
		return true
	}

	if exact != nil {
		if verify(*exact) {
			return *exact, nil
		}
		return 0, value.InfeasibleError("", names,
			"no magnitude at %s precision satisfies the constraints on %q", f.Prec(), f.Name())
	}
	if lo > hi {
		return 0, value.InfeasibleError("", names,
			"empty range for float %q", f.Name())
	}

	for try := 0; try < 256; try++ {
		v := f.Round(lo + rng.Float64()*(hi-lo))
		if verify(v) {
			return v, nil
		}
	}
	return 0, value.InfeasibleError("", names,
		"no magnitude at %s precision satisfies the constraints on %q", f.Prec(), f.Name())
}
