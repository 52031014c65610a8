package lineage

import (
	"fmt"
	"strings"
)

// UnresolvedPlanError reports a plan that still carries unresolved
// references or breaks a structural invariant (for example a set operation
// whose inputs disagree on arity). The plan must go back through the
// resolver; extraction never attempts partial recovery.
type UnresolvedPlanError struct {
	Operator string // operator kind where the problem surfaced
	Reason   string
}

func (e *UnresolvedPlanError) Error() string {
	return fmt.Sprintf("unresolved plan at %s: %s", e.Operator, e.Reason)
}

// CyclicDefinitionError reports a view or cached relation that references
// itself, directly or through other definitions. Chain lists the definition
// identities in expansion order, ending with the one re-entered.
type CyclicDefinitionError struct {
	Chain []string
}

func (e *CyclicDefinitionError) Error() string {
	return "cyclic definition: " + strings.Join(e.Chain, " -> ")
}

// UnsupportedOperatorError reports an operator kind the propagator has no
// rule for. It is only returned in strict mode; the default policy is a
// conservative positional fallback.
type UnsupportedOperatorError struct {
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return "unsupported operator: " + e.Operator
}
