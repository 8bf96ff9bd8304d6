/*
scenarios_test.go - HTTP tests for the demo scenarios

Tests that each scenario sets up the expected day:
- Agents, roster and cases are written
- Loading resets the previous data
- The assignment features behave as each scenario describes
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/factory"
)

func (s *testServer) loadScenario(id string) LoadScenarioResponse {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", "admin", LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[LoadScenarioResponse](s.t, rec)
}

func TestListScenarios(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]ScenarioDTO](t, rec)
	require.Len(t, list, len(factory.Scenarios))
	assert.Equal(t, "even-split", list[0].ID)
	assert.Equal(t, "bucket-a", list[0].Scope)
	assert.NotEmpty(t, list[0].Description)
}

func TestCurrentScenario(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/scenarios/current", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	s.loadScenario("partial-data")

	rec = s.do(http.MethodGet, "/api/scenarios/current", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial-data", decode[ScenarioDTO](t, rec).ID)
}

func TestLoadScenario_Rejects(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "even-split"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/scenarios/load", "admin", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid", decode[ErrorResponse](t, rec).Kind)
}

func TestScenario_EvenSplit(t *testing.T) {
	// GIVEN: the even-split scenario
	// WHEN: a manager saves 25/25/25/25 and runs it
	// THEN: all 10 cases are assigned, 2 or 3 per agent

	s := newTestServer(t)
	res := s.loadScenario("even-split")
	assert.Equal(t, "loaded", res.Status)
	assert.Equal(t, 4, res.Seeded.Agents)
	assert.Equal(t, 4, res.Seeded.Duty)
	assert.Equal(t, 10, res.Seeded.Cases)

	rec := s.do(http.MethodGet, "/api/configs/suggested?scope=bucket-a", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := `{"scope":"bucket-a","percentages":{"team_leader":25,"senior":25,"mid_level":25,"junior":25}}`
	rec = s.do(http.MethodPost, "/api/configs", "manager", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[LevelConfigDTO](t, rec)

	rec = s.do(http.MethodPost, "/api/assignments/stratified", "manager",
		StratifiedRunRequest{Scope: "bucket-a", ConfigID: saved.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[RunResultDTO](t, rec)
	assert.Equal(t, 10, result.TotalAssigned)
	require.Len(t, result.Agents, 4)
	for _, a := range result.Agents {
		assert.Contains(t, []int{2, 3}, a.Total, a.AgentID)
	}
}

func TestScenario_MissingLevel(t *testing.T) {
	// GIVEN: only the two mid-level agents are working
	// WHEN: a split that gives half the pool to juniors is run
	// THEN: the junior share is placed as leftovers on the mid-level agents

	s := newTestServer(t)
	s.loadScenario("missing-level")

	rec := s.do(http.MethodGet, "/api/configs/suggested?scope=bucket-a", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	suggested := decode[LevelConfigDTO](t, rec)
	assert.Equal(t, "100", suggested.Percentages["mid_level"].String())
	assert.Equal(t, 2, suggested.AgentCounts["mid_level"])

	body := `{"scope":"bucket-a","percentages":{"team_leader":0,"senior":0,"mid_level":50,"junior":50}}`
	rec = s.do(http.MethodPost, "/api/configs", "manager", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	saved := decode[LevelConfigDTO](t, rec)

	rec = s.do(http.MethodPost, "/api/assignments/stratified", "manager",
		StratifiedRunRequest{Scope: "bucket-a", ConfigID: saved.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[RunResultDTO](t, rec)
	assert.Equal(t, 10, result.TotalAssigned)
	assert.Equal(t, 5, result.LeftoverPlaced)
	assert.Equal(t, 10, result.PerLevel["mid_level"])
}

func TestScenario_PartialData(t *testing.T) {
	// GIVEN: a new hire on duty without a level
	// WHEN: running stratified, then loading again and running simple
	// THEN: the new hire is excluded from the first and included in the second

	s := newTestServer(t)
	s.loadScenario("partial-data")

	rec := s.do(http.MethodGet, "/api/configs/suggested?scope=bucket-a", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	suggested := decode[LevelConfigDTO](t, rec)
	rec = s.do(http.MethodPost, "/api/configs/"+suggested.ID+"/approve", "manager", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/api/assignments/stratified", "manager",
		StratifiedRunRequest{Scope: "bucket-a", ConfigID: suggested.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stratified := decode[RunResultDTO](t, rec)
	assert.Equal(t, 16, stratified.TotalAssigned)
	assert.Equal(t, []string{"new-hire"}, stratified.ExcludedAgents)

	s.loadScenario("partial-data")
	rec = s.do(http.MethodPost, "/api/assignments/simple", "ops", SimpleRunRequest{Scope: "bucket-a"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	simple := decode[RunResultDTO](t, rec)
	assert.Equal(t, 16, simple.TotalAssigned)
	assert.Len(t, simple.Agents, 5)
}

func TestScenario_EmptyRoster(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("empty-roster")

	rec := s.do(http.MethodGet, "/api/configs/suggested?scope=bucket-a", "manager", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "nothing_to_do", decode[ErrorResponse](t, rec).Kind)
}

func TestScenario_LoadResetsPreviousData(t *testing.T) {
	// GIVEN: the busy day is loaded
	// WHEN: loading even-split afterwards
	// THEN: only the even-split cases and agents remain

	s := newTestServer(t)
	busy := s.loadScenario("busy-day")
	assert.Equal(t, 240, busy.Seeded.Cases)
	assert.Equal(t, 8, busy.Seeded.Agents)

	s.loadScenario("even-split")

	ctx := context.Background()
	cases, err := s.handler.Store.Unassigned(ctx, "bucket-a", 0)
	require.NoError(t, err)
	assert.Len(t, cases, 10)

	_, err = s.handler.Store.GetAgent(ctx, "tom")
	assert.Error(t, err)
}
