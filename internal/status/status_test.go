package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		children []Status
		want     Status
	}{
		{"empty set", nil, Pending},
		{"all completed", []Status{Completed, Completed, Completed}, Completed},
		{"completed and skipped", []Status{Completed, Skipped, Skipped}, Completed},
		{"running wins over failed", []Status{Running, Failed, Completed}, Running},
		{"failed wins over cancelled", []Status{Failed, Cancelled, Completed}, Failed},
		{"cancelled wins over completed", []Status{Cancelled, Completed, Skipped}, Cancelled},
		{"single failure", []Status{Completed, Failed}, Failed},
		{"all pending", []Status{Pending, Pending}, Pending},
		{"pending and completed is in flight", []Status{Pending, Completed}, Running},
		{"failed and skipped", []Status{Failed, Skipped}, Failed},
		{"cancelled and skipped", []Status{Cancelled, Skipped, Skipped}, Cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.children...))
		})
	}
}

func TestAggregateIdempotent(t *testing.T) {
	children := []Status{Completed, Failed, Skipped, Cancelled}
	first := Aggregate(children...)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Aggregate(children...))
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, Pending.IsTerminal())
	assert.False(t, Running.IsTerminal())
	assert.True(t, Completed.IsTerminal())
	assert.True(t, Failed.IsTerminal())
	assert.True(t, Cancelled.IsTerminal())
	assert.True(t, Skipped.IsTerminal())
}

func TestValid(t *testing.T) {
	assert.True(t, Running.Valid())
	assert.False(t, Status("exploded").Valid())
}
