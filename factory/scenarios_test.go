package factory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/allocation/store"
	"github.com/warp/collections-engine/factory"
)

func TestScenarios_AllParse(t *testing.T) {
	day := allocation.DayOf(now)
	seen := make(map[string]bool)

	for _, sc := range factory.Scenarios {
		t.Run(sc.ID, func(t *testing.T) {
			assert.False(t, seen[sc.ID], "duplicate scenario id")
			seen[sc.ID] = true

			seed, err := sc.Seed(day)
			require.NoError(t, err)
			require.NotEmpty(t, seed.Duty)
			for _, d := range seed.Duty {
				assert.Equal(t, "2024-06-03", d.Date)
				assert.Equal(t, string(sc.Scope), d.Scope)
			}

			found, ok := factory.ScenarioByID(sc.ID)
			require.True(t, ok)
			assert.Equal(t, sc.Name, found.Name)
		})
	}

	_, ok := factory.ScenarioByID("missing")
	assert.False(t, ok)
}

func TestScenario_EvenSplitRoster(t *testing.T) {
	// GIVEN: the even-split scenario applied to an empty store
	// WHEN: reading today's roster and pool
	// THEN: one agent per level is on duty and 10 cases wait at DPD 5

	sc, ok := factory.ScenarioByID("even-split")
	require.True(t, ok)
	seed, err := sc.Seed(allocation.DayOf(now))
	require.NoError(t, err)

	mem := store.NewMemory()
	ctx := context.Background()
	_, err = seed.Apply(ctx, mem, "seed", now)
	require.NoError(t, err)

	roster, err := mem.OnDuty(ctx, sc.Scope, now)
	require.NoError(t, err)
	require.Len(t, roster, 4)
	levels := make(map[allocation.Level]int)
	for _, e := range roster {
		levels[e.Level]++
	}
	for _, l := range allocation.Levels {
		assert.Equal(t, 1, levels[l], l.String())
	}

	cases, err := mem.Unassigned(ctx, sc.Scope, 0)
	require.NoError(t, err)
	require.Len(t, cases, 10)
	for _, c := range cases {
		assert.Equal(t, 5, c.DPD)
	}
}

func TestScenario_EmptyRosterHasNobodyWorking(t *testing.T) {
	sc, ok := factory.ScenarioByID("empty-roster")
	require.True(t, ok)
	seed, err := sc.Seed(allocation.DayOf(now))
	require.NoError(t, err)

	mem := store.NewMemory()
	ctx := context.Background()
	_, err = seed.Apply(ctx, mem, "seed", now)
	require.NoError(t, err)

	roster, err := mem.OnDuty(ctx, sc.Scope, now)
	require.NoError(t, err)
	assert.Empty(t, roster)
}
