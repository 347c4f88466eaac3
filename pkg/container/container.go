// Package container groups typed fields with a shared constraint scope so
// whole stimulus items randomize in one call.
package container

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"text/tabwriter"

	"gostim/pkg/constraint"
	"gostim/pkg/engine"
	"gostim/pkg/value"
)

// Hook runs around a randomization call. PreRandomize runs before the solve;
// PostRandomize runs only after a successful apply.
type Hook func(c *Container)

// Container is an ordered set of named fields plus the constraints spanning
// them. Field names are unique; declaration order is preserved and drives
// iteration, rendering, and solver determinism.
type Container struct {
	name   string
	order  []string
	ints   map[string]*value.Logic
	floats map[string]*value.Float
	scope  *constraint.Scope
	eng    *engine.Engine

	randomizing int32
	pre, post   Hook
	lastReport  *engine.Report
}

// New returns an empty container backed by the given engine; nil uses a
// default-configured engine.
func New(name string, eng *engine.Engine) *Container {
	if eng == nil {
		eng = engine.New(nil)
	}
	return &Container{
		name:   name,
		ints:   make(map[string]*value.Logic),
		floats: make(map[string]*value.Float),
		scope:  constraint.NewScope(),
		eng:    eng,
	}
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Engine returns the backing randomization engine.
func (c *Container) Engine() *engine.Engine { return c.eng }

func (c *Container) checkName(name string) error {
	if name == "" {
		return value.Errorf(value.KindDeclaration, "field with empty name")
	}
	if _, ok := c.ints[name]; ok {
		return value.Errorf(value.KindDeclaration, "field %q already declared", name)
	}
	if _, ok := c.floats[name]; ok {
		return value.Errorf(value.KindDeclaration, "field %q already declared", name)
	}
	return nil
}

// AddLogic installs an integer field. Fields get a named default constraint
// visible in the scope so callers can list or remove it: plain fields a
// trivially-true floor at their declared minimum, enum fields their member
// set. Removing the enum default does not lift membership; the solver always
// draws enums from their declared members.
func (c *Container) AddLogic(v *value.Logic) error {
	if v == nil {
		return value.Errorf(value.KindDeclaration, "nil field")
	}
	if err := c.checkName(v.Name()); err != nil {
		return err
	}
	var def *constraint.Constraint
	if v.Kind() == value.KindEnum {
		def = constraint.In(defaultName(v.Name()), v, v.Members())
	} else {
		def = constraint.Rel(defaultName(v.Name()), v, constraint.GE, v.Min())
	}
	if err := c.scope.Add(def); err != nil {
		return err
	}
	c.ints[v.Name()] = v
	c.order = append(c.order, v.Name())
	return nil
}

// AddFloat installs a float field. Floats carry no default constraint.
func (c *Container) AddFloat(f *value.Float) error {
	if f == nil {
		return value.Errorf(value.KindDeclaration, "nil field")
	}
	if err := c.checkName(f.Name()); err != nil {
		return err
	}
	c.floats[f.Name()] = f
	c.order = append(c.order, f.Name())
	return nil
}

func defaultName(field string) string {
	return "__default_" + field
}

// Logic looks up an integer field by name.
func (c *Container) Logic(name string) (*value.Logic, bool) {
	v, ok := c.ints[name]
	return v, ok
}

// Float looks up a float field by name.
func (c *Container) Float(name string) (*value.Float, bool) {
	f, ok := c.floats[name]
	return f, ok
}

// FieldNames returns the field names in declaration order.
func (c *Container) FieldNames() []string {
	return append([]string(nil), c.order...)
}

// Constrain adds a constraint to the container scope. Duplicate names fail
// here, at declaration time.
func (c *Container) Constrain(cons *constraint.Constraint) error {
	return c.scope.Add(cons)
}

// Scope exposes the constraint scope for enable/disable/remove management.
func (c *Container) Scope() *constraint.Scope { return c.scope }

// SetPreRandomize installs a hook run before each solve.
func (c *Container) SetPreRandomize(h Hook) { c.pre = h }

// SetPostRandomize installs a hook run after each successful apply.
func (c *Container) SetPostRandomize(h Hook) { c.post = h }

// LastReport returns the report of the most recent randomization, nil before
// the first call.
func (c *Container) LastReport() *engine.Report { return c.lastReport }

// Randomize jointly randomizes every field under the enabled constraints.
func (c *Container) Randomize(ctx context.Context) error {
	return c.randomize(ctx, c.order)
}

// RandomizeOnly randomizes just the named fields. Constraints reaching
// outside the subset treat the excluded fields as constants at their current
// magnitudes.
func (c *Container) RandomizeOnly(ctx context.Context, names ...string) error {
	for _, n := range names {
		if _, ok := c.ints[n]; ok {
			continue
		}
		if _, ok := c.floats[n]; ok {
			continue
		}
		return value.Errorf(value.KindNotFound, "field %q not declared in container %q", n, c.name)
	}
	return c.randomize(ctx, names)
}

func (c *Container) randomize(ctx context.Context, names []string) error {
	if !atomic.CompareAndSwapInt32(&c.randomizing, 0, 1) {
		return value.Errorf(value.KindConcurrent, "container %q is already randomizing", c.name)
	}
	defer atomic.StoreInt32(&c.randomizing, 0)

	var targets engine.Targets
	for _, n := range names {
		if v, ok := c.ints[n]; ok {
			targets.Ints = append(targets.Ints, v)
		} else if f, ok := c.floats[n]; ok {
			targets.Floats = append(targets.Floats, f)
		}
	}

	if c.pre != nil {
		c.pre(c)
	}
	rep, err := c.eng.Randomize(ctx, targets, c.scope.Enabled())
	c.lastReport = rep
	if err != nil {
		return err
	}
	if c.post != nil {
		c.post(c)
	}
	return nil
}

// Compare reports whether both containers declare the same fields in the
// same order with equal magnitudes. It never mutates either side.
func (c *Container) Compare(other *Container) bool {
	if other == nil || len(c.order) != len(other.order) {
		return false
	}
	for i, n := range c.order {
		if other.order[i] != n {
			return false
		}
		if v, ok := c.ints[n]; ok {
			ov, ook := other.ints[n]
			if !ook || !v.Compare(ov) {
				return false
			}
			continue
		}
		f := c.floats[n]
		of, ook := other.floats[n]
		if !ook || !f.Compare(of) {
			return false
		}
	}
	return true
}

// FieldValue is one rendered field, used for tracing and recording.
type FieldValue struct {
	Name  string
	Value string
	Width int
}

// Snapshot renders every field in declaration order.
func (c *Container) Snapshot() []FieldValue {
	out := make([]FieldValue, 0, len(c.order))
	for _, n := range c.order {
		if v, ok := c.ints[n]; ok {
			out = append(out, FieldValue{Name: n, Value: "0x" + v.Raw().Text(16), Width: v.Width()})
			continue
		}
		f := c.floats[n]
		out = append(out, FieldValue{Name: n, Value: fmt.Sprintf("%g", f.Get()), Width: f.Width()})
	}
	return out
}

// String renders the container as an aligned field table.
func (c *Container) String() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", c.name)
	for _, fv := range c.Snapshot() {
		fmt.Fprintf(w, "  %s\t%d\t%s\n", fv.Name, fv.Width, fv.Value)
	}
	w.Flush()
	return buf.String()
}
