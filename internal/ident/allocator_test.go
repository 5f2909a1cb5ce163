package ident

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSeeds struct {
	jobs     int
	execs    map[int]int
	branches map[[2]int]int
}

func (s stubSeeds) MaxJobNumber() (int, error) { return s.jobs, nil }
func (s stubSeeds) MaxExecutionNumber(job int) (int, error) {
	return s.execs[job], nil
}
func (s stubSeeds) MaxBranchIndex(job, exec int) (int, error) {
	return s.branches[[2]int{job, exec}], nil
}
func (s stubSeeds) MaxActionResultIndex(job, exec, branch int) (int, error) {
	return 0, nil
}

func TestAllocatorSeedsFromStore(t *testing.T) {
	alloc := NewAllocator(stubSeeds{
		jobs:  4,
		execs: map[int]int{4: 7},
	})

	n, err := alloc.NextJobNumber()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	e, err := alloc.NextExecutionNumber(4)
	require.NoError(t, err)
	assert.Equal(t, 8, e)

	// A job with no executions starts from 1.
	e, err = alloc.NextExecutionNumber(5)
	require.NoError(t, err)
	assert.Equal(t, 1, e)
}

func TestAllocatorScopesCountersPerParent(t *testing.T) {
	alloc := NewAllocator(stubSeeds{execs: map[int]int{}, branches: map[[2]int]int{}})

	for i := 1; i <= 3; i++ {
		n, err := alloc.NextExecutionNumber(1)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	// A sibling job's counter is untouched.
	n, err := alloc.NextExecutionNumber(2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := alloc.NextBranchIndex(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, b)
}

func TestAllocatorGapFreeUnderConcurrency(t *testing.T) {
	alloc := NewAllocator(stubSeeds{execs: map[int]int{}})

	const workers = 50
	results := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			n, err := alloc.NextExecutionNumber(9)
			assert.NoError(t, err)
			results[slot] = n
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, n := range results {
		assert.Equal(t, i+1, n, "execution numbers must be gap-free and unique")
	}
}
