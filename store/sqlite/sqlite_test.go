package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

const scope allocation.ScopeID = "bucket-a"

var day = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addAgent(t *testing.T, s *sqlite.Store, id string, level allocation.Level, working bool) {
	t.Helper()
	ctx := context.Background()
	aid := allocation.AgentID(id)
	require.NoError(t, s.SaveAgent(ctx, allocation.Agent{ID: aid, Name: id, Active: true}))
	if level.Ranked() {
		require.NoError(t, s.InsertLevel(ctx, allocation.LevelRecord{
			ID: "lvl-" + id, AgentID: aid, Scope: scope, Level: level, Active: true,
			CreatedBy: "test", CreatedAt: day,
		}))
	}
	require.NoError(t, s.UpsertDuty(ctx, allocation.DutyRecord{
		ID: "duty-" + id, AgentID: aid, Scope: scope, Date: day, Working: working,
		UpdatedBy: "test", UpdatedAt: day,
	}))
}

func addCases(t *testing.T, s *sqlite.Store, sc allocation.ScopeID, dpds ...int) {
	t.Helper()
	for i, dpd := range dpds {
		require.NoError(t, s.SaveCase(context.Background(), allocation.Case{
			ID:        allocation.CaseID(fmt.Sprintf("%s-%03d", sc, i+1)),
			Scope:     sc,
			DPD:       dpd,
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func suggestion(id string) allocation.LevelConfig {
	return allocation.LevelConfig{
		ID:          allocation.ConfigID(id),
		Scope:       scope,
		Date:        day,
		Split:       allocation.NewSplit(33.33, 33.33, 33.34, 0),
		State:       allocation.ConfigSuggested,
		Active:      true,
		AgentCounts: map[allocation.Level]int{allocation.LevelSenior: 2, allocation.LevelJunior: 0},
		CaseCount:   7,
		CreatedBy:   "system",
		CreatedAt:   day.Add(8 * time.Hour),
	}
}

// =============================================================================
// ROSTER
// =============================================================================

func TestOnDuty_JoinsActiveLevels(t *testing.T) {
	// GIVEN: a leveled agent, an unleveled agent, an agent off duty and an inactive agent
	// WHEN: loading the roster
	// THEN: only working active agents appear, ordered by name, with their levels

	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "zoe", allocation.LevelSenior, true)
	addAgent(t, s, "ana", allocation.LevelUnleveled, true)
	addAgent(t, s, "off", allocation.LevelJunior, false)
	addAgent(t, s, "gone", allocation.LevelJunior, true)
	require.NoError(t, s.SaveAgent(ctx, allocation.Agent{ID: "gone", Name: "gone", Active: false}))

	roster, err := s.OnDuty(ctx, scope, day)
	require.NoError(t, err)
	require.Len(t, roster, 2)

	assert.Equal(t, allocation.AgentID("ana"), roster[0].Agent.ID)
	assert.Equal(t, allocation.LevelUnleveled, roster[0].Level)
	assert.Equal(t, allocation.AgentID("zoe"), roster[1].Agent.ID)
	assert.Equal(t, allocation.LevelSenior, roster[1].Level)
	assert.True(t, roster[1].Date.Equal(day))
	assert.True(t, roster[1].Working)

	other, err := s.OnDuty(ctx, "bucket-b", day)
	require.NoError(t, err)
	assert.Empty(t, other)

	all, err := s.OnDuty(ctx, "", day)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDuty_UpsertAndDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "ana", allocation.LevelSenior, true)

	require.NoError(t, s.UpsertDuty(ctx, allocation.DutyRecord{
		ID: "ignored", AgentID: "ana", Scope: scope, Date: day, Working: false,
		UpdatedBy: "lead", UpdatedAt: day.Add(time.Hour),
	}))

	rec, err := s.GetDuty(ctx, "ana", scope, day)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "duty-ana", rec.ID)
	assert.False(t, rec.Working)
	assert.Equal(t, allocation.ActorID("lead"), rec.UpdatedBy)

	removed, err := s.DeleteDuty(ctx, "ana", scope, day)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteDuty(ctx, "ana", scope, day)
	require.NoError(t, err)
	assert.False(t, removed)

	rec, err = s.GetDuty(ctx, "ana", scope, day)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLevels_OneActivePerScope(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "ana", allocation.LevelJunior, true)

	err := s.InsertLevel(ctx, allocation.LevelRecord{
		ID: "second", AgentID: "ana", Scope: scope, Level: allocation.LevelSenior, Active: true, CreatedAt: day,
	})
	assert.ErrorIs(t, err, allocation.ErrActiveConflict)

	n, err := s.DeactivateLevels(ctx, "ana", scope)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.InsertLevel(ctx, allocation.LevelRecord{
		ID: "second", AgentID: "ana", Scope: scope, Level: allocation.LevelSenior, Active: true,
		CreatedBy: "lead", CreatedAt: day.Add(time.Hour),
	}))

	active, err := s.ActiveLevel(ctx, "ana", scope)
	require.NoError(t, err)
	assert.Equal(t, allocation.LevelSenior, active.Level)

	history, err := s.LevelHistory(ctx, "ana", scope)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].ID)
	assert.Equal(t, "lvl-ana", history[1].ID)
	assert.False(t, history[1].Active)

	none, err := s.ActiveLevel(ctx, "ana", "bucket-b")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAgents(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetAgent(ctx, "ghost")
	assert.ErrorIs(t, err, allocation.ErrAgentNotFound)

	require.NoError(t, s.SaveAgent(ctx, allocation.Agent{ID: "b", Name: "Bea", AuthID: "auth|b", Active: true}))
	require.NoError(t, s.SaveAgent(ctx, allocation.Agent{ID: "a", Name: "Ana", Active: true}))

	got, err := s.GetAgent(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "auth|b", got.AuthID)

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "Ana", agents[0].Name)
}

// =============================================================================
// CASES
// =============================================================================

func TestUnassigned_OldestFirstWithLimit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addCases(t, s, scope, 30, 0, 60)
	addCases(t, s, "bucket-b", 5)

	cases, err := s.Unassigned(ctx, scope, 0)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, allocation.CaseID("bucket-a-001"), cases[0].ID)
	assert.Equal(t, 30, cases[0].DPD)
	assert.Equal(t, allocation.CaseStatusPending, cases[0].Status)
	assert.True(t, cases[2].CreatedAt.Equal(day.Add(2*time.Minute)))

	limited, err := s.Unassigned(ctx, scope, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	all, err := s.Unassigned(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestClaim_OnlyOnce(t *testing.T) {
	// GIVEN: an unassigned case
	// WHEN: two runs claim it
	// THEN: the first wins, the second changes nothing

	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "ana", allocation.LevelSenior, true)
	addAgent(t, s, "ben", allocation.LevelSenior, true)
	addCases(t, s, scope, 10)
	at := day.Add(9 * time.Hour)

	ok, err := s.Claim(ctx, "bucket-a-001", "ana", "run-1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "bucket-a-001", "ben", "run-2", at)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.GetCase(ctx, "bucket-a-001")
	require.NoError(t, err)
	require.NotNil(t, c.AssignedAgent)
	assert.Equal(t, allocation.AgentID("ana"), *c.AssignedAgent)
	assert.Equal(t, allocation.ActorID("run-1"), *c.AssignedBy)
	assert.True(t, c.AssignedAt.Equal(at))
	assert.Equal(t, allocation.CaseStatusAssigned, c.Status)

	mine, err := s.CasesByAgent(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = s.GetCase(ctx, "missing")
	assert.ErrorIs(t, err, allocation.ErrCaseNotFound)
}

func TestWithTx_RollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "ana", allocation.LevelSenior, true)
	addCases(t, s, scope, 1, 2)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx allocation.Store) error {
		ok, err := tx.Claim(ctx, "bucket-a-001", "ana", "run", day)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cases, err := s.Unassigned(ctx, scope, 0)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
}

// =============================================================================
// CONFIGS
// =============================================================================

func TestConfigs_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-1")))

	got, err := s.GetConfig(ctx, "cfg-1")
	require.NoError(t, err)

	assert.Equal(t, allocation.ConfigSuggested, got.State)
	assert.True(t, got.Active)
	assert.True(t, got.Date.Equal(day))
	assert.True(t, decimal.RequireFromString("33.34").Equal(got.Split.Get(allocation.LevelMidLevel)))
	assert.True(t, got.Split.Get(allocation.LevelJunior).IsZero())
	assert.True(t, allocation.Hundred.Equal(got.Split.Sum()))
	assert.Equal(t, 2, got.AgentCounts[allocation.LevelSenior])
	assert.Equal(t, 7, got.CaseCount)
	assert.Nil(t, got.BasedOn)
	assert.Nil(t, got.ApprovedBy)

	_, err = s.GetConfig(ctx, "missing")
	assert.ErrorIs(t, err, allocation.ErrConfigNotFound)
}

func TestConfigs_OneActivePerState(t *testing.T) {
	// GIVEN: an active suggestion
	// WHEN: inserting a second active suggestion for the same scope and date
	// THEN: the store refuses it until the first is deactivated

	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-1")))

	err := s.InsertConfig(ctx, suggestion("cfg-2"))
	assert.ErrorIs(t, err, allocation.ErrActiveConflict)

	n, err := s.DeactivateConfigs(ctx, scope, day, allocation.ConfigSuggested)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-2")))

	active, err := s.ActiveConfig(ctx, scope, day, allocation.ConfigSuggested)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, allocation.ConfigID("cfg-2"), active.ID)

	list, err := s.ListConfigs(ctx, scope, day)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestConfigs_PromoteAndRecordRun(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-1")))
	at := day.Add(9 * time.Hour)

	require.NoError(t, s.PromoteConfig(ctx, "cfg-1", "manager", at))

	err := s.PromoteConfig(ctx, "cfg-1", "manager", at)
	assert.ErrorIs(t, err, allocation.ErrConfigNotSuggested)

	err = s.PromoteConfig(ctx, "missing", "manager", at)
	assert.ErrorIs(t, err, allocation.ErrConfigNotFound)

	require.NoError(t, s.RecordRun(ctx, "cfg-1", 4, at.Add(time.Minute)))
	require.NoError(t, s.RecordRun(ctx, "cfg-1", 3, at.Add(2*time.Minute)))

	got, err := s.ActiveConfig(ctx, scope, day, allocation.ConfigApproved)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, allocation.ActorID("manager"), *got.ApprovedBy)
	assert.True(t, got.ApprovedAt.Equal(at))
	assert.Equal(t, 7, got.AssignedCount)
	assert.True(t, got.LastRunAt.Equal(at.Add(2*time.Minute)))

	assert.ErrorIs(t, s.RecordRun(ctx, "missing", 1, at), allocation.ErrConfigNotFound)
}

func TestConfigs_BasedOnReference(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-1")))

	base := allocation.ConfigID("cfg-1")
	approver := allocation.ActorID("manager")
	now := day.Add(9 * time.Hour)
	saved := suggestion("cfg-2")
	saved.State = allocation.ConfigApproved
	saved.BasedOn = &base
	saved.ApprovedBy = &approver
	saved.ApprovedAt = &now
	require.NoError(t, s.InsertConfig(ctx, saved))

	got, err := s.GetConfig(ctx, "cfg-2")
	require.NoError(t, err)
	require.NotNil(t, got.BasedOn)
	assert.Equal(t, base, *got.BasedOn)
}

// =============================================================================
// RESET / END TO END
// =============================================================================

func TestReset(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "ana", allocation.LevelSenior, true)
	addCases(t, s, scope, 1)
	require.NoError(t, s.InsertConfig(ctx, suggestion("cfg-1")))

	require.NoError(t, s.Reset(ctx))

	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)
	cases, err := s.Unassigned(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, cases)
	_, err = s.GetConfig(ctx, "cfg-1")
	assert.ErrorIs(t, err, allocation.ErrConfigNotFound)
}

func TestStratifiedRunOnSQLite(t *testing.T) {
	// GIVEN: a SQLite store with one agent per level and 12 cases over three DPD bands
	// WHEN: suggesting, approving and running
	// THEN: every case is assigned once and the config records the run

	s := newStore(t)
	ctx := context.Background()
	addAgent(t, s, "tess", allocation.LevelTeamLeader, true)
	addAgent(t, s, "sam", allocation.LevelSenior, true)
	addAgent(t, s, "mia", allocation.LevelMidLevel, true)
	addAgent(t, s, "jo", allocation.LevelJunior, true)
	addCases(t, s, scope, 0, 0, 0, 0, 30, 30, 30, 30, 60, 60, 60, 60)

	clock := func() time.Time { return day.Add(8 * time.Hour) }
	configs := collections.NewConfigLifecycle(s)
	configs.Now = clock
	assign := collections.NewAssignmentService(s)
	assign.Now = clock

	suggested, err := configs.GenerateSuggested(ctx, scope, day, "system")
	require.NoError(t, err)
	approved, err := configs.Approve(ctx, suggested.ID, "manager")
	require.NoError(t, err)

	result, err := assign.RunStratified(ctx, collections.StratifiedRequest{
		Scope: scope, Date: day, ConfigID: approved.ID, Actor: "manager",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, result.TotalAssigned)
	assert.Empty(t, result.Contended)

	remaining, err := s.Unassigned(ctx, scope, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	stored, err := s.GetConfig(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stored.AssignedCount)
}
