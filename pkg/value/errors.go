package value

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies every error surfaced by the stimulus library.
type Kind int

const (
	// KindDeclaration covers errors raised at declaration time: duplicate
	// constraint names, malformed expressions, invalid widths.
	KindDeclaration Kind = iota + 1
	// KindIndex covers single-bit access outside [0, width).
	KindIndex
	// KindRange covers slice bounds violations.
	KindRange
	// KindDomain covers constraint/value kind mismatches, e.g. a bitwise
	// constraint attached to a float.
	KindDomain
	// KindNotFound covers removal or lookup of a constraint that was never
	// declared.
	KindNotFound
	// KindInfeasible covers randomization failure: hard constraints jointly
	// unsatisfiable, or a solve budget exceeded.
	KindInfeasible
	// KindConcurrent covers a Randomize call overlapping another on the
	// same container.
	KindConcurrent
)

// String returns the kind name.
func (k Kind) String() string {
	names := []string{
		"Declaration", "Index", "Range", "Domain",
		"NotFound", "Infeasible", "Concurrent",
	}
	if i := int(k) - 1; i >= 0 && i < len(names) {
		return names[i]
	}
	return "Unknown"
}

// ReasonBudgetExceeded marks an Infeasible error caused by the solve budget
// rather than by genuinely contradictory constraints.
const ReasonBudgetExceeded = "budget exceeded"

// Error is the structured error type carried across the library. Infeasible
// errors additionally name the constraints that could not be satisfied so
// failed randomizations are debuggable.
type Error struct {
	Kind        Kind
	Reason      string
	Constraints []string
	msg         string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.msg)
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	if len(e.Constraints) > 0 {
		fmt.Fprintf(&b, " [constraints: %s]", strings.Join(e.Constraints, ", "))
	}
	return b.String()
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// InfeasibleError builds an Infeasible error naming the offending
// constraints. reason may be empty or ReasonBudgetExceeded.
func InfeasibleError(reason string, constraints []string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:        KindInfeasible,
		Reason:      reason,
		Constraints: constraints,
		msg:         fmt.Sprintf(format, args...),
	}
}

// KindOf extracts the Kind from err, unwrapping as needed. Returns 0 when err
// carries no Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsBudgetExceeded reports whether err is an Infeasible error caused by the
// solve budget.
func IsBudgetExceeded(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindInfeasible && e.Reason == ReasonBudgetExceeded
}
