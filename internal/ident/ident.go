package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// ID is a hierarchical identifier of an engine entity, rendered in the
// form "J7.E3.B2.A4". Trailing zero components render as shorter prefixes:
// {Job: 7, Exec: 3} renders as "J7.E3" and identifies an execution.
type ID struct {
	Job    int
	Exec   int
	Branch int
	Action int
}

// Depth returns how many levels of the hierarchy are set: 1 for a job,
// 2 for an execution, 3 for a branch, 4 for an action result.
func (id ID) Depth() int {
	switch {
	case id.Action > 0:
		return 4
	case id.Branch > 0:
		return 3
	case id.Exec > 0:
		return 2
	case id.Job > 0:
		return 1
	}
	return 0
}

func (id ID) String() string {
	var b strings.Builder
	if id.Job > 0 {
		fmt.Fprintf(&b, "J%d", id.Job)
	}
	if id.Exec > 0 {
		fmt.Fprintf(&b, ".E%d", id.Exec)
	}
	if id.Branch > 0 {
		fmt.Fprintf(&b, ".B%d", id.Branch)
	}
	if id.Action > 0 {
		fmt.Fprintf(&b, ".A%d", id.Action)
	}
	return b.String()
}

// ExecutionID renders the execution prefix of id ("J7.E3").
func (id ID) ExecutionID() string {
	return ID{Job: id.Job, Exec: id.Exec}.String()
}

// Parse parses an identifier such as "J7", "J7.E3" or "J7.E3.B2.A4".
// Components must appear in J, E, B, A order without gaps.
func Parse(s string) (ID, error) {
	var id ID
	if s == "" {
		return id, fmt.Errorf("empty identifier")
	}
	levels := "JEBA"
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return id, fmt.Errorf("identifier %q has too many components", s)
	}
	for i, part := range parts {
		if len(part) < 2 || part[0] != levels[i] {
			return id, fmt.Errorf("identifier %q: component %d must start with %q", s, i+1, string(levels[i]))
		}
		n, err := strconv.Atoi(part[1:])
		if err != nil || n < 1 {
			return id, fmt.Errorf("identifier %q: component %q is not a positive number", s, part)
		}
		switch i {
		case 0:
			id.Job = n
		case 1:
			id.Exec = n
		case 2:
			id.Branch = n
		case 3:
			id.Action = n
		}
	}
	return id, nil
}
