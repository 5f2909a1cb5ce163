package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Constraint restricts one level of the identifier hierarchy. A nil value
// in Pattern means the level is unconstrained.
type Constraint struct {
	Value int
}

// Pattern is a compiled hierarchical wildcard expression such as "J7.*"
// or "*.B2.*". Each level is either pinned to a value or left open, which
// maps directly onto per-column equality filters in the result store.
type Pattern struct {
	Job    *Constraint
	Exec   *Constraint
	Branch *Constraint
	Action *Constraint
}

// CompilePattern compiles a wildcard identifier expression. Accepted
// components are J<n>, E<n>, B<n>, A<n> and "*". A single trailing "*"
// leaves all remaining levels open; "*" in the middle leaves that level
// and any earlier unnamed levels open.
func CompilePattern(expr string) (Pattern, error) {
	var p Pattern
	if expr == "" || expr == "*" {
		return p, nil
	}
	for _, part := range strings.Split(expr, ".") {
		if part == "*" {
			continue
		}
		if len(part) < 2 {
			return p, fmt.Errorf("pattern %q: invalid component %q", expr, part)
		}
		n, err := strconv.Atoi(part[1:])
		if err != nil || n < 1 {
			return p, fmt.Errorf("pattern %q: component %q is not a positive number", expr, part)
		}
		c := &Constraint{Value: n}
		switch part[0] {
		case 'J':
			p.Job = c
		case 'E':
			p.Exec = c
		case 'B':
			p.Branch = c
		case 'A':
			p.Action = c
		default:
			return p, fmt.Errorf("pattern %q: unknown level %q", expr, string(part[0]))
		}
	}
	return p, nil
}

// Matches reports whether id satisfies every pinned level of the pattern.
func (p Pattern) Matches(id ID) bool {
	if p.Job != nil && p.Job.Value != id.Job {
		return false
	}
	if p.Exec != nil && p.Exec.Value != id.Exec {
		return false
	}
	if p.Branch != nil && p.Branch.Value != id.Branch {
		return false
	}
	if p.Action != nil && p.Action.Value != id.Action {
		return false
	}
	return true
}
