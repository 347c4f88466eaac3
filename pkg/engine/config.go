// Package engine implements constrained randomization over typed values: it
// classifies constraints into arithmetic and bit-level domains, lazily builds
// the minimal solver model per call, and applies satisfying assignments
// atomically.
package engine

import (
	"time"
)

// Soft-constraint drop policies. When hard and soft constraints are jointly
// infeasible the engine sheds soft constraints one at a time in this order
// until the model becomes feasible or only hard constraints remain.
const (
	// DropRecentFirst sheds the most recently declared soft constraint
	// first.
	DropRecentFirst = "recent_first"
	// DropDeclaration sheds soft constraints in declaration order.
	DropDeclaration = "declaration"
)

// Solver strategies.
const (
	// StrategyLocal uses the built-in interval solver and SAT bit solver.
	StrategyLocal = "local"
	// StrategyZ3 prefers the Z3 backend when the binary was built with the
	// z3 tag, falling back to local otherwise.
	StrategyZ3 = "z3"
)

// Config holds the randomization engine parameters. All defaults live in
// DefaultConfig, not at the point of use.
type Config struct {
	Strategy      string `yaml:"strategy" json:"strategy"`             // "local" or "z3"
	SolverTimeout string `yaml:"solver_timeout" json:"solver_timeout"` // e.g. "3s"
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"` // solve attempt budget
	SoftDropOrder string `yaml:"soft_drop_order" json:"soft_drop_order"`
	Seed          int64  `yaml:"seed" json:"seed"` // 0 seeds from the clock
	Verbose       bool   `yaml:"verbose" json:"verbose"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Strategy:      StrategyLocal,
		SolverTimeout: "3s",
		MaxIterations: 10000,
		SoftDropOrder: DropRecentFirst,
		Seed:          0,
	}
}

// MergeWithDefaults fills unset fields from DefaultConfig, so partial
// configurations loaded from yaml behave predictably.
func (c *Config) MergeWithDefaults() {
	defaults := DefaultConfig()

	if c.Strategy == "" {
		c.Strategy = defaults.Strategy
	}
	if c.SolverTimeout == "" {
		c.SolverTimeout = defaults.SolverTimeout
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = defaults.MaxIterations
	}
	if c.SoftDropOrder == "" {
		c.SoftDropOrder = defaults.SoftDropOrder
	}
}

// TimeoutDuration parses the solve timeout, falling back to the default on a
// malformed string.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SolverTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}
