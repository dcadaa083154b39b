package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/storage"
)

type fixedChecker struct {
	name string
	err  error
}

func (c fixedChecker) Name() string                { return c.name }
func (c fixedChecker) Check(context.Context) error { return c.err }

type queueState struct {
	length    int
	suspended bool
}

func (q queueState) Len() int                    { return q.length }
func (q queueState) IsProcessingSuspended() bool { return q.suspended }

func TestCheckerRegistry(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{name: "no checkers", want: StatusHealthy},
		{name: "all healthy", checkers: []Checker{fixedChecker{name: "a"}}, want: StatusHealthy},
		{
			name:     "degraded",
			checkers: []Checker{fixedChecker{name: "a"}, fixedChecker{name: "b", err: Degraded(errors.New("slow"))}},
			want:     StatusDegraded,
		},
		{
			name: "unhealthy wins",
			checkers: []Checker{
				fixedChecker{name: "a", err: errors.New("down")},
				fixedChecker{name: "b", err: Degraded(errors.New("slow"))},
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewCheckerRegistry()
			for _, c := range tt.checkers {
				registry.Register(c)
			}
			h := registry.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.checkers))
		})
	}
}

func TestStorageChecker(t *testing.T) {
	c := NewStorageChecker(storage.NewMemory())
	assert.Equal(t, "storage", c.Name())
	assert.NoError(t, c.Check(context.Background()))
}

func TestQueueChecker(t *testing.T) {
	assert.NoError(t, NewQueueChecker(queueState{length: 3}, 10).Check(context.Background()))

	var degraded *DegradedError
	err := NewQueueChecker(queueState{suspended: true}, 10).Check(context.Background())
	assert.ErrorAs(t, err, &degraded)

	err = NewQueueChecker(queueState{length: 10}, 10).Check(context.Background())
	assert.ErrorAs(t, err, &degraded)

	assert.Nil(t, Degraded(nil))
}

type breakerState bool

func (b breakerState) Name() string { return "submission" }
func (b breakerState) IsOpen() bool { return bool(b) }

func TestBreakerChecker(t *testing.T) {
	assert.NoError(t, NewBreakerChecker(breakerState(false)).Check(context.Background()))

	var degraded *DegradedError
	err := NewBreakerChecker(breakerState(true)).Check(context.Background())
	require.ErrorAs(t, err, &degraded)
	assert.Contains(t, err.Error(), "submission")
}
