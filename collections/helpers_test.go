package collections_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/allocation/store"
	"github.com/warp/collections-engine/collections"
)

const scope allocation.ScopeID = "bucket-a"

var day = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

// morning is before the default roster cutoff on day.
func morning() time.Time { return day.Add(8 * time.Hour) }

type fixture struct {
	ctx     context.Context
	store   *store.Memory
	assign  *collections.AssignmentService
	configs *collections.ConfigLifecycle
	roster  *collections.RosterService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return newFixtureWith(t, mem, mem)
}

// newFixtureWith lets a test wrap the store the assignment service sees.
func newFixtureWith(t *testing.T, mem *store.Memory, assignStore allocation.TxStore) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		store:   mem,
		assign:  collections.NewAssignmentService(assignStore),
		configs: collections.NewConfigLifecycle(mem),
		roster:  collections.NewRosterService(mem),
	}
	f.assign.Now = morning
	f.configs.Now = morning
	f.roster.Now = morning
	return f
}

// agent creates an active agent on duty in scope on day. LevelUnleveled
// leaves the agent without a level record.
func (f *fixture) agent(t *testing.T, id string, level allocation.Level) {
	t.Helper()
	aid := allocation.AgentID(id)
	require.NoError(t, f.store.SaveAgent(f.ctx, allocation.Agent{ID: aid, Name: id, Active: true}))
	if level.Ranked() {
		require.NoError(t, f.store.InsertLevel(f.ctx, allocation.LevelRecord{
			ID:        "lvl-" + id,
			AgentID:   aid,
			Scope:     scope,
			Level:     level,
			Active:    true,
			CreatedBy: "test",
			CreatedAt: day,
		}))
	}
	require.NoError(t, f.store.UpsertDuty(f.ctx, allocation.DutyRecord{
		ID:        "duty-" + id,
		AgentID:   aid,
		Scope:     scope,
		Date:      day,
		Working:   true,
		UpdatedBy: "test",
		UpdatedAt: day,
	}))
}

// cases stores one unassigned case per DPD value, oldest first.
func (f *fixture) cases(t *testing.T, dpds ...int) {
	t.Helper()
	for i, dpd := range dpds {
		require.NoError(t, f.store.SaveCase(f.ctx, allocation.Case{
			ID:        allocation.CaseID(fmt.Sprintf("case-%03d", i+1)),
			Scope:     scope,
			DPD:       dpd,
			Status:    allocation.CaseStatusPending,
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		}))
	}
}

// approved stores an explicit split as the active approved config for day.
func (f *fixture) approved(t *testing.T, split allocation.Split) *allocation.LevelConfig {
	t.Helper()
	_, err := f.configs.GenerateSuggested(f.ctx, scope, day, "test")
	require.NoError(t, err)
	cfg, err := f.configs.Save(f.ctx, collections.SaveRequest{
		Scope:    scope,
		Date:     day,
		Split:    split,
		Approver: "manager",
	})
	require.NoError(t, err)
	return cfg
}

func repeat(n, dpd int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = dpd
	}
	return out
}
