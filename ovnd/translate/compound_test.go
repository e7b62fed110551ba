package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSteps_AllSucceed(t *testing.T) {
	var applied []string
	mk := func(name string) step {
		return step{
			name:    name,
			forward: func(context.Context) error { applied = append(applied, name); return nil },
		}
	}
	require.NoError(t, runSteps(context.Background(), []step{mk("a"), mk("b"), mk("c")}))
	assert.Equal(t, []string{"a", "b", "c"}, applied)
}

func TestRunSteps_CompensatesInReverseOrder(t *testing.T) {
	var events []string
	mk := func(name string) step {
		return step{
			name:       name,
			forward:    func(context.Context) error { events = append(events, "apply "+name); return nil },
			compensate: func(context.Context) error { events = append(events, "undo "+name); return nil },
		}
	}
	boom := errors.New("boom")
	steps := []step{mk("a"), mk("b"), {
		name:    "c",
		forward: func(context.Context) error { return boom },
	}}

	err := runSteps(context.Background(), steps)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "c:")
	assert.Equal(t, []string{"apply a", "apply b", "undo b", "undo a"}, events)
}

func TestRunSteps_CompensationFailureDoesNotMask(t *testing.T) {
	boom := errors.New("boom")
	steps := []step{
		{
			name:       "a",
			forward:    func(context.Context) error { return nil },
			compensate: func(context.Context) error { return errors.New("undo failed") },
		},
		{
			name:    "b",
			forward: func(context.Context) error { return boom },
		},
	}
	err := runSteps(context.Background(), steps)
	assert.ErrorIs(t, err, boom)
}
