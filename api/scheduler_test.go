package api

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/allocation/store"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/factory"
)

const schedulerSeed = `
agents:
  - id: ana
    levels: {bucket-a: senior, bucket-c: junior}
  - id: ben
    levels: {bucket-a: junior}
duty:
  - date: 2024-06-03
    scope: bucket-a
    working: [ana, ben]
  - date: 2024-06-03
    scope: bucket-c
    working: [ana]
generate:
  - scope: bucket-a
    prefix: a
    count: 6
    dpd: [0, 30]
  - scope: bucket-c
    prefix: c
    count: 3
    dpd: [10]
`

func newTestScheduler(t *testing.T) (*AssignmentScheduler, *store.Memory, *collections.ConfigLifecycle) {
	t.Helper()
	mem := store.NewMemory()
	clock := func() time.Time { return testDay.Add(8 * time.Hour) }
	quiet := log.New(io.Discard, "", 0)

	seed, err := factory.ParseSeed([]byte(schedulerSeed))
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), mem, "seed", clock())
	require.NoError(t, err)

	assign := collections.NewAssignmentService(mem)
	assign.Now = clock
	assign.Logger = quiet
	configs := collections.NewConfigLifecycle(mem)
	configs.Now = clock
	configs.Logger = quiet

	s := NewAssignmentScheduler(mem, assign)
	s.Now = clock
	s.Logger = quiet
	s.Scopes = []allocation.ScopeID{"bucket-a", "bucket-b", "bucket-c"}
	return s, mem, configs
}

func TestScheduler_PicksModePerScope(t *testing.T) {
	// GIVEN: bucket-a has an approved config, bucket-b has nobody on duty, bucket-c has no config
	// WHEN: the scheduler runs once
	// THEN: bucket-a runs stratified, bucket-b has nothing to do, bucket-c runs simple

	s, mem, configs := newTestScheduler(t)
	ctx := context.Background()

	suggested, err := configs.GenerateSuggested(ctx, "bucket-a", testDay, "system")
	require.NoError(t, err)
	_, err = configs.Approve(ctx, suggested.ID, "manager")
	require.NoError(t, err)

	outcomes := s.RunNow(ctx)
	require.Len(t, outcomes, 3)

	assert.Equal(t, collections.ModeStratified, outcomes[0].Mode)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 6, outcomes[0].Assigned)
	assert.Equal(t, "assigned", outcomes[0].Outcome)

	assert.Equal(t, collections.ModeSimple, outcomes[1].Mode)
	assert.ErrorIs(t, outcomes[1].Err, allocation.ErrNoAgents)
	assert.Equal(t, "nothing_to_do", outcomes[1].Outcome)

	assert.Equal(t, collections.ModeSimple, outcomes[2].Mode)
	assert.Equal(t, 3, outcomes[2].Assigned)

	c, err := mem.GetCase(ctx, "a-00001")
	require.NoError(t, err)
	require.NotNil(t, c.AssignedBy)
	assert.Equal(t, SchedulerActor, *c.AssignedBy)
}

func TestScheduler_SecondPassIsIdempotent(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	first := s.RunNow(ctx)
	assert.Equal(t, 6, first[0].Assigned)

	second := s.RunNow(ctx)
	for _, out := range second {
		assert.Zero(t, out.Assigned)
		assert.True(t, allocation.IsNothingToDo(out.Err), "scope %s: %v", out.Scope, out.Err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, mem, _ := newTestScheduler(t)
	s.CheckInterval = time.Hour

	s.Start()
	s.Stop()

	// Start runs one pass before waiting on the ticker; Stop waits for it.
	remaining, err := mem.Unassigned(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	s, mem, _ := newTestScheduler(t)
	s.Enabled = false

	s.Start()
	s.Stop()

	remaining, err := mem.Unassigned(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 9)
}

func TestScheduler_LocalClockUsesUTCDay(t *testing.T) {
	// GIVEN: an approved config for June 3rd and a clock reporting 23:30 UTC in Tokyo
	// WHEN: the scheduler runs
	// THEN: it finds the June 3rd config and runs stratified

	s, _, configs := newTestScheduler(t)
	ctx := context.Background()

	suggested, err := configs.GenerateSuggested(ctx, "bucket-a", testDay, "system")
	require.NoError(t, err)
	_, err = configs.Approve(ctx, suggested.ID, "manager")
	require.NoError(t, err)

	jst := time.FixedZone("JST", 9*60*60)
	s.Now = func() time.Time { return testDay.Add(23*time.Hour + 30*time.Minute).In(jst) }
	s.Scopes = []allocation.ScopeID{"bucket-a"}

	outcomes := s.RunNow(ctx)
	require.Len(t, outcomes, 1)
	assert.Equal(t, collections.ModeStratified, outcomes[0].Mode)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, 6, outcomes[0].Assigned)
}
