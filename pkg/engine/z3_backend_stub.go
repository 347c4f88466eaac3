//go:build !z3
// +build !z3

package engine

import (
	"context"
	"math/big"

	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

// tryZ3 is the stub bridge compiled without the z3 tag. The z3 strategy
// degrades to the local solver; rebuild with '-tags z3' to enable Z3.
func (e *Engine) tryZ3(ctx context.Context, cls *classification, targets Targets, cons []*constraint.Constraint, stagedMag map[*value.Logic]*big.Int, stagedF map[*value.Float]float64) (bool, error) {
	if e.cfg.Strategy == StrategyZ3 {
		e.logf("z3 backend not built in, using local solver")
	}
	return false, nil
}
