package engine

import (
	"context"
	"log"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"gostim/pkg/constraint"
	"gostim/pkg/value"
)

// Targets names the values to randomize in one call. Values referenced by a
// constraint but absent here keep their current magnitudes and enter the
// model as constants.
type Targets struct {
	Ints   []*value.Logic
	Floats []*value.Float
}

func (t Targets) empty() bool {
	return len(t.Ints) == 0 && len(t.Floats) == 0
}

// State tracks how far a randomization call progressed.
type State int

const (
	StateIdle State = iota
	StateClassified
	StateModelBuilt
	StateSolved
	StateApplied
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassified:
		return "classified"
	case StateModelBuilt:
		return "model_built"
	case StateSolved:
		return "solved"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Report describes one randomization call.
type Report struct {
	ID          uuid.UUID
	State       State
	FastPath    bool
	DroppedSoft []string // soft constraints shed to reach feasibility
	SolveTime   time.Duration
	IntCount    int
	FloatCount  int
}

// Stats are cumulative engine counters.
type Stats struct {
	Randomizations int
	ModelsBuilt    int
	FastPathHits   int
	SoftDrops      int
	Failures       int
}

// Engine solves constraint sets over typed values. Models are never kept
// between calls: each Randomize classifies the enabled constraints and
// builds only the models that call needs.
type Engine struct {
	mu    sync.Mutex
	cfg   *Config
	rng   *rand.Rand
	stats Stats
}

// New returns an engine with the given configuration; nil means defaults.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.MergeWithDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Stats returns a snapshot of the cumulative counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config { return e.cfg }

func (e *Engine) logf(format string, args ...interface{}) {
	if e.cfg.Verbose {
		log.Printf("[Engine] "+format, args...)
	}
}

// Randomize draws one satisfying assignment for the targets under the given
// constraints and writes it back. Writes are atomic: on any failure every
// target keeps its previous magnitude. When hard and soft constraints
// conflict, soft constraints are shed per the configured drop order and the
// shed names land in the report; a report with dropped softs is still a
// success. Budget and deadline exhaustion fail immediately without
// relaxation.
func (e *Engine) Randomize(ctx context.Context, targets Targets, cons []*constraint.Constraint) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rep := &Report{
		ID:         uuid.New(),
		State:      StateIdle,
		IntCount:   len(targets.Ints),
		FloatCount: len(targets.Floats),
	}
	e.stats.Randomizations++
	if targets.empty() {
		rep.State = StateApplied
		return rep, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TimeoutDuration())
	defer cancel()
	start := time.Now()

	var hard, soft []*constraint.Constraint
	for _, c := range cons {
		if c.Soft {
			soft = append(soft, c)
		} else {
			hard = append(hard, c)
		}
	}

	// Relaxation loop: attempt k keeps all softs minus the k shed first.
	for shed := 0; shed <= len(soft); shed++ {
		kept, dropped := e.splitSoft(soft, shed)
		err := e.attempt(ctx, rep, targets, append(append([]*constraint.Constraint{}, hard...), kept...))
		if err == nil {
			rep.State = StateApplied
			rep.DroppedSoft = dropped
			rep.SolveTime = time.Since(start)
			e.stats.SoftDrops += len(dropped)
			if len(dropped) > 0 {
				e.logf("satisfied after dropping soft constraints %v", dropped)
			}
			return rep, nil
		}
		if value.IsBudgetExceeded(err) || shed == len(soft) {
			rep.State = StateFailed
			rep.SolveTime = time.Since(start)
			e.stats.Failures++
			return rep, err
		}
	}
	panic("unreachable")
}

// splitSoft partitions the soft constraints into kept and dropped for the
// given shed count, honoring the configured drop order.
func (e *Engine) splitSoft(soft []*constraint.Constraint, shed int) ([]*constraint.Constraint, []string) {
	if shed == 0 {
		return soft, nil
	}
	kept := make([]*constraint.Constraint, 0, len(soft)-shed)
	dropped := make([]string, 0, shed)
	if e.cfg.SoftDropOrder == DropDeclaration {
		for i, c := range soft {
			if i < shed {
				dropped = append(dropped, c.Name)
			} else {
				kept = append(kept, c)
			}
		}
	} else {
		cut := len(soft) - shed
		for i, c := range soft {
			if i < cut {
				kept = append(kept, c)
			} else {
				dropped = append(dropped, c.Name)
			}
		}
	}
	return kept, dropped
}

// attempt runs one classify/build/solve/apply pass over a fixed constraint
// set. Nothing is written unless every sub-model solved.
func (e *Engine) attempt(ctx context.Context, rep *Report, targets Targets, cons []*constraint.Constraint) error {
	cls := classify(targets, cons)
	rep.State = StateClassified

	if cls.unconstrained() {
		rep.FastPath = true
		e.stats.FastPathHits++
		e.fastPath(targets)
		rep.State = StateSolved
		return nil
	}
	rep.FastPath = false

	stagedRaw := make(map[*value.Logic]*big.Int)
	stagedMag := make(map[*value.Logic]*big.Int)
	stagedF := make(map[*value.Float]float64)

	if handled, err := e.tryZ3(ctx, cls, targets, cons, stagedMag, stagedF); err != nil {
		rep.State = StateFailed
		return err
	} else if !handled && (len(cls.arithCons) > 0 || len(cls.floatCons) > 0) {
		am := buildArithModel(e.cfg, cls, targets, cls.arithCons, cls.floatCons)
		e.stats.ModelsBuilt++
		rep.State = StateModelBuilt
		mags, floats, err := am.solve(ctx, e.rng)
		if err != nil {
			return err
		}
		for v, mag := range mags {
			stagedMag[v] = mag
		}
		for f, fv := range floats {
			stagedF[f] = fv
		}
	}

	if len(cls.bitVars) > 0 {
		bm := buildBitModel(e.cfg, cls, targets)
		e.stats.ModelsBuilt++
		rep.State = StateModelBuilt
		raws, err := bm.solve(ctx, e.rng)
		if err != nil {
			return err
		}
		for v, raw := range raws {
			stagedRaw[v] = raw
		}
	}
	rep.State = StateSolved

	// Unconstrained stragglers inside a constrained call still randomize.
	for _, v := range targets.Ints {
		if _, ok := stagedMag[v]; ok {
			continue
		}
		if _, ok := stagedRaw[v]; ok {
			continue
		}
		stagedRaw[v] = e.randomPattern(v)
	}
	for _, f := range targets.Floats {
		if _, ok := stagedF[f]; !ok {
			stagedF[f] = e.randomFloat(f)
		}
	}

	for v, mag := range stagedMag {
		v.Set(mag)
	}
	for v, raw := range stagedRaw {
		v.SetRaw(raw)
	}
	for f, fv := range stagedF {
		f.Set(fv)
	}
	return nil
}

// fastPath draws every target uniformly without building a model.
func (e *Engine) fastPath(targets Targets) {
	for _, v := range targets.Ints {
		v.SetRaw(e.randomPattern(v))
	}
	for _, f := range targets.Floats {
		f.Set(e.randomFloat(f))
	}
}

// randomPattern draws a uniform raw pattern; enums draw a uniform member.
func (e *Engine) randomPattern(v *value.Logic) *big.Int {
	if v.Kind() == value.KindEnum {
		members := v.Members()
		return new(big.Int).Set(members[e.rng.Intn(len(members))])
	}
	span := new(big.Int).Lsh(bigOne, uint(v.Width()))
	return new(big.Int).Rand(e.rng, span)
}

func (e *Engine) randomFloat(f *value.Float) float64 {
	limit := floatRandLimit(f.Prec())
	return f.Round(-limit + e.rng.Float64()*2*limit)
}
