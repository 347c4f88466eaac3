package engine

import (
	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

// classification is the per-call partition of targets and constraints into
// the arithmetic and bit-level solver domains.
type classification struct {
	targets   map[*value.Logic]bool // values being randomized this call
	ftargets  map[*value.Float]bool
	bitVars   map[*value.Logic]bool // targets requiring bit-level solving
	bitCons   []*constraint.Constraint
	arithCons []*constraint.Constraint
	floatCons []*constraint.Constraint
}

// relevant reports whether the constraint touches at least one target. A
// constraint referencing only values outside the target set cannot constrain
// this call; the excluded values keep their current magnitudes and the
// constraint is vacuous here.
func relevantInt(c *constraint.Constraint, targets map[*value.Logic]bool) bool {
	for _, v := range c.Refs() {
		if targets[v] {
			return true
		}
	}
	return false
}

// classify partitions the enabled constraints for one randomization call.
//
// A target is bit-domain if any enabled bit-tagged constraint references it.
// The partition is then closed: a constraint referencing a bit-domain target
// drags its other referenced targets into the bit domain too, so each domain
// is solved jointly. Over-inclusion into the bit domain costs performance
// only; the reverse direction would be a correctness defect and never
// happens here.
func classify(targets Targets, cons []*constraint.Constraint) *classification {
	cls := &classification{
		targets:  make(map[*value.Logic]bool, len(targets.Ints)),
		ftargets: make(map[*value.Float]bool, len(targets.Floats)),
		bitVars:  make(map[*value.Logic]bool),
	}
	for _, v := range targets.Ints {
		cls.targets[v] = true
	}
	for _, f := range targets.Floats {
		cls.ftargets[f] = true
	}

	var intCons []*constraint.Constraint
	for _, c := range cons {
		if c.Op.FloatOp() {
			if cls.ftargets[c.FA] {
				cls.floatCons = append(cls.floatCons, c)
			}
			continue
		}
		if !relevantInt(c, cls.targets) {
			continue
		}
		intCons = append(intCons, c)
		if c.Op.BitDomain() && cls.targets[c.A] {
			cls.bitVars[c.A] = true
		}
	}

	// Close the bit domain over shared constraints.
	for changed := true; changed; {
		changed = false
		for _, c := range intCons {
			touchesBit := false
			for _, v := range c.Refs() {
				if cls.bitVars[v] {
					touchesBit = true
					break
				}
			}
			if !touchesBit {
				continue
			}
			for _, v := range c.Refs() {
				if cls.targets[v] && !cls.bitVars[v] {
					cls.bitVars[v] = true
					changed = true
				}
			}
		}
	}

	for _, c := range intCons {
		if c.Op.BitDomain() || cls.touchesBitVar(c) {
			cls.bitCons = append(cls.bitCons, c)
		} else {
			cls.arithCons = append(cls.arithCons, c)
		}
	}
	return cls
}

func (cls *classification) touchesBitVar(c *constraint.Constraint) bool {
	for _, v := range c.Refs() {
		if cls.bitVars[v] {
			return true
		}
	}
	return false
}

// unconstrained reports whether the call can take the fast path: no enabled
// constraint touches any target.
func (cls *classification) unconstrained() bool {
	return len(cls.bitCons) == 0 && len(cls.arithCons) == 0 && len(cls.floatCons) == 0
}
