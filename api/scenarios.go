/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Loads the built-in factory scenarios so an operator console can be
	walked through the assignment features on a realistic day without
	preparing data by hand.

AVAILABLE SCENARIOS (factory/scenarios.go):

	even-split:     One agent per level, 10 cases at one DPD
	missing-level:  A level nobody works today, leftovers in action
	partial-data:   An on-duty agent without a level
	empty-roster:   Cases but nobody on duty
	busy-day:       Two agents per level, 240 cases over four DPD bands

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Render the scenario's seed document for today
 3. Apply the seed in one transaction
 4. Remember the loaded scenario id

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "even-split"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - factory/scenarios.go: Scenario documents
  - factory/seed.go: Seed application
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/factory"
)

// Resetter is implemented by stores that can be wiped for demos.
type Resetter interface {
	Reset(ctx context.Context) error
}

func toScenarioDTO(s factory.Scenario) ScenarioDTO {
	return ScenarioDTO{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Scope:       string(s.Scope),
	}
}

// ListScenarios handles GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, 0, len(factory.Scenarios))
	for _, s := range factory.Scenarios {
		out = append(out, toScenarioDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario handles GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, ok := factory.ScenarioByID(current)
	if !ok {
		writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
		return
	}
	writeJSON(w, http.StatusOK, toScenarioDTO(s))
}

// LoadScenario handles POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	scenario, ok := factory.ScenarioByID(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("unknown scenario %q", req.ScenarioID), nil)
		return
	}

	res, err := h.loadScenario(r.Context(), scenario, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Status:   "loaded",
		Scenario: toScenarioDTO(scenario),
		Seeded:   *res,
	})
}

// loadScenario wipes the store and applies the scenario for today.
func (h *Handler) loadScenario(ctx context.Context, s factory.Scenario, actor allocation.ActorID) (*factory.SeedResult, error) {
	resetter, ok := h.Store.(Resetter)
	if !ok {
		return nil, fmt.Errorf("store %T cannot be reset", h.Store)
	}
	seed, err := s.Seed(h.today())
	if err != nil {
		return nil, err
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := resetter.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset store: %w", err)
	}
	h.currentScenario = ""
	h.Configs.SetWeights(seed.WeightTable())

	res, err := seed.Apply(ctx, h.Store, actor, h.now())
	if err != nil {
		return nil, err
	}
	h.currentScenario = s.ID
	h.logger().Printf("[Scenario] %s loaded by %s: %d agents, %d cases", s.ID, actor, res.Agents, res.Cases)
	return res, nil
}
