package constraint

import (
	"gostim/pkg/value"
)

type scopeItem struct {
	c       *Constraint
	enabled bool
}

// Scope is an ordered, named constraint set. Names are unique within a
// scope: adding a second constraint under an existing name fails at
// declaration time and the second constraint is not installed. Declaration
// order is preserved; it drives deterministic iteration and the
// soft-constraint drop policy.
type Scope struct {
	order []string
	items map[string]*scopeItem
}

// NewScope returns an empty constraint scope.
func NewScope() *Scope {
	return &Scope{items: make(map[string]*scopeItem)}
}

// Add validates and installs a constraint. Duplicate names and malformed
// records are declaration errors raised here, never deferred to solve time.
func (s *Scope) Add(c *Constraint) error {
	if c == nil {
		return value.Errorf(value.KindDeclaration, "nil constraint")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if _, ok := s.items[c.Name]; ok {
		return value.Errorf(value.KindDeclaration, "constraint %q already declared in scope", c.Name)
	}
	s.items[c.Name] = &scopeItem{c: c, enabled: true}
	s.order = append(s.order, c.Name)
	return nil
}

// Remove deletes a constraint by name.
func (s *Scope) Remove(name string) error {
	if _, ok := s.items[name]; !ok {
		return value.Errorf(value.KindNotFound, "constraint %q not declared in scope", name)
	}
	delete(s.items, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Enable re-includes a constraint in the next randomization's model.
func (s *Scope) Enable(name string) error {
	return s.setEnabled(name, true)
}

// Disable excludes a constraint from the next randomization's model without
// removing its declaration.
func (s *Scope) Disable(name string) error {
	return s.setEnabled(name, false)
}

func (s *Scope) setEnabled(name string, enabled bool) error {
	it, ok := s.items[name]
	if !ok {
		return value.Errorf(value.KindNotFound, "constraint %q not declared in scope", name)
	}
	it.enabled = enabled
	return nil
}

// Get looks up a constraint by name.
func (s *Scope) Get(name string) (*Constraint, bool) {
	it, ok := s.items[name]
	if !ok {
		return nil, false
	}
	return it.c, true
}

// Enabled returns the enabled constraints in declaration order.
func (s *Scope) Enabled() []*Constraint {
	out := make([]*Constraint, 0, len(s.order))
	for _, n := range s.order {
		if it := s.items[n]; it.enabled {
			out = append(out, it.c)
		}
	}
	return out
}

// All returns every declared constraint in declaration order, enabled or not.
func (s *Scope) All() []*Constraint {
	out := make([]*Constraint, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.items[n].c)
	}
	return out
}

// Len returns the number of declared constraints.
func (s *Scope) Len() int { return len(s.order) }
