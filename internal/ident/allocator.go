package ident

import (
	"fmt"
	"sync"
)

// SeedSource reports the highest child number already persisted under a
// parent, so counters survive restarts without reusing numbers. The result
// store implements this; tests use an in-memory stub.
type SeedSource interface {
	MaxJobNumber() (int, error)
	MaxExecutionNumber(job int) (int, error)
	MaxBranchIndex(job, exec int) (int, error)
	MaxActionResultIndex(job, exec, branch int) (int, error)
}

// Allocator issues strictly monotonic, gap-free child numbers scoped to a
// parent entity. Allocation is serialized per parent; the counters are the
// only engine state shared across concurrent branches.
type Allocator struct {
	seeds SeedSource

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	mu     sync.Mutex
	seeded bool
	next   int
}

// NewAllocator creates an allocator backed by the given seed source.
func NewAllocator(seeds SeedSource) *Allocator {
	return &Allocator{
		seeds:    seeds,
		counters: make(map[string]*counter),
	}
}

func (a *Allocator) counterFor(key string) *counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[key]
	if !ok {
		c = &counter{}
		a.counters[key] = c
	}
	return c
}

func (a *Allocator) next(key string, seed func() (int, error)) (int, error) {
	c := a.counterFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		max, err := seed()
		if err != nil {
			return 0, fmt.Errorf("failed to seed counter %s: %w", key, err)
		}
		c.next = max
		c.seeded = true
	}
	c.next++
	return c.next, nil
}

// NextJobNumber allocates the next job number.
func (a *Allocator) NextJobNumber() (int, error) {
	return a.next("J", a.seeds.MaxJobNumber)
}

// NextExecutionNumber allocates the next execution number under a job.
func (a *Allocator) NextExecutionNumber(job int) (int, error) {
	return a.next(fmt.Sprintf("J%d", job), func() (int, error) {
		return a.seeds.MaxExecutionNumber(job)
	})
}

// NextBranchIndex allocates the next branch index under an execution.
func (a *Allocator) NextBranchIndex(job, exec int) (int, error) {
	return a.next(fmt.Sprintf("J%d.E%d", job, exec), func() (int, error) {
		return a.seeds.MaxBranchIndex(job, exec)
	})
}

// NextActionResultIndex allocates the next action result index under a branch.
func (a *Allocator) NextActionResultIndex(job, exec, branch int) (int, error) {
	return a.next(fmt.Sprintf("J%d.E%d.B%d", job, exec, branch), func() (int, error) {
		return a.seeds.MaxActionResultIndex(job, exec, branch)
	})
}
