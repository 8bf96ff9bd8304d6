/*
handlers.go - HTTP API handlers for the collections engine

PURPOSE:
  Exposes assignment runs, level config lifecycle and roster maintenance
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the collections services.

ENDPOINTS:
  Assignment:
    POST   /api/assignments/stratified   Run with an approved config
    POST   /api/assignments/simple       Run round-robin over everyone on duty

  Configs:
    GET    /api/configs/suggested        Get or generate today's suggestion
    POST   /api/configs                  Save explicit approved percentages
    GET    /api/configs/{id}             Get config
    POST   /api/configs/{id}/approve     Approve a suggestion

  Roster:
    PUT    /api/roster                   Set duty entry
    DELETE /api/roster                   Remove duty entry
    PUT    /api/agents/{id}/level        Change level
    GET    /api/agents/{id}/levels       Level history

  Admin:
    POST   /api/seed                     Apply a YAML seed document
    GET    /api/scenarios                List demo scenarios (scenarios.go)
    GET    /api/scenarios/current        Last loaded scenario
    POST   /api/scenarios/load           Reset and load a scenario

ERROR HANDLING:
  Errors are returned as JSON with a kind and an HTTP status:
  - 400 invalid:        Validation errors, invalid input
  - 401 unauthorized:   No invoking identity on a mutating route
  - 404 not_found:      Unknown config, agent or case
  - 409 conflict:       Wrong lifecycle state, roster locked
  - 422 nothing_to_do:  No agents, no cases, nothing to suggest
  - 500 failed:         Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/factory"
)

// maxSeedBytes bounds POST /api/seed bodies.
const maxSeedBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   allocation.TxStore
	Assign  *collections.AssignmentService
	Configs *collections.ConfigLifecycle
	Roster  *collections.RosterService
	Logger  *log.Logger

	// Now is the clock used for default dates; nil uses time.Now.
	Now func() time.Time

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler wires services over a single store.
func NewHandler(store allocation.TxStore) *Handler {
	return &Handler{
		Store:   store,
		Assign:  collections.NewAssignmentService(store),
		Configs: collections.NewConfigLifecycle(store),
		Roster:  collections.NewRosterService(store),
	}
}

func (h *Handler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *Handler) today() time.Time {
	return allocation.DayOf(h.now())
}

// =============================================================================
// ASSIGNMENT ENDPOINTS
// =============================================================================

// RunStratified handles POST /api/assignments/stratified
func (h *Handler) RunStratified(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req StratifiedRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	if req.ConfigID == "" {
		writeError(w, http.StatusBadRequest, "invalid", "config_id is required", nil)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}

	result, err := h.Assign.RunStratified(r.Context(), collections.StratifiedRequest{
		Scope:    allocation.ScopeID(req.Scope),
		Date:     date,
		ConfigID: allocation.ConfigID(req.ConfigID),
		Actor:    actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// RunSimple handles POST /api/assignments/simple
func (h *Handler) RunSimple(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SimpleRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}

	result, err := h.Assign.RunSimple(r.Context(), collections.SimpleRequest{
		Date:  date,
		Scope: allocation.ScopeID(req.Scope),
		Actor: actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// =============================================================================
// CONFIG ENDPOINTS
// =============================================================================

// GetSuggested handles GET /api/configs/suggested?scope=&date=
// Anonymous callers get the existing config, or a new suggestion generated
// as actor "system".
func (h *Handler) GetSuggested(w http.ResponseWriter, r *http.Request) {
	scope := allocation.ScopeID(strings.TrimSpace(r.URL.Query().Get("scope")))
	if scope == "" {
		writeError(w, http.StatusBadRequest, "invalid", "scope is required", nil)
		return
	}
	date, err := h.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}

	actor, _ := actorFromContext(r.Context())
	if actor == "" {
		actor = "system"
	}

	cfg, err := h.Configs.GetOrGenerate(r.Context(), scope, date, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLevelConfigDTO(cfg))
}

// GetConfig handles GET /api/configs/{id}
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	id := allocation.ConfigID(chi.URLParam(r, "id"))

	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLevelConfigDTO(cfg))
}

// ApproveConfig handles POST /api/configs/{id}/approve
func (h *Handler) ApproveConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := allocation.ConfigID(chi.URLParam(r, "id"))

	cfg, err := h.Configs.Approve(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLevelConfigDTO(cfg))
}

// SaveConfig handles POST /api/configs
func (h *Handler) SaveConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req SaveConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}

	split := make(allocation.Split, len(req.Percentages))
	for _, name := range sortedKeys(req.Percentages) {
		level, err := allocation.ParseLevel(name)
		if err != nil || !level.Ranked() {
			writeError(w, http.StatusBadRequest, "invalid", fmt.Sprintf("unknown level %q", name), nil)
			return
		}
		split[level] = req.Percentages[name]
	}

	cfg, err := h.Configs.Save(r.Context(), collections.SaveRequest{
		Scope:    allocation.ScopeID(req.Scope),
		Date:     date,
		Split:    split,
		Approver: actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLevelConfigDTO(cfg))
}

// =============================================================================
// ROSTER ENDPOINTS
// =============================================================================

// SetDuty handles PUT /api/roster
func (h *Handler) SetDuty(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req DutyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	if req.AgentID == "" || req.Scope == "" {
		writeError(w, http.StatusBadRequest, "invalid", "agent_id and scope are required", nil)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}
	working := true
	if req.Working != nil {
		working = *req.Working
	}

	rec, err := h.Roster.SetDuty(r.Context(), collections.DutyChange{
		AgentID: allocation.AgentID(req.AgentID),
		Scope:   allocation.ScopeID(req.Scope),
		Date:    date,
		Working: working,
		Actor:   actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDutyDTO(rec))
}

// RemoveDuty handles DELETE /api/roster
func (h *Handler) RemoveDuty(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}

	var req DutyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	if req.AgentID == "" || req.Scope == "" {
		writeError(w, http.StatusBadRequest, "invalid", "agent_id and scope are required", nil)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid date", err)
		return
	}

	removed, err := h.Roster.RemoveDuty(r.Context(), allocation.AgentID(req.AgentID), allocation.ScopeID(req.Scope), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "duty entry not found", nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetAgentLevel handles PUT /api/agents/{id}/level
func (h *Handler) SetAgentLevel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	agentID := allocation.AgentID(chi.URLParam(r, "id"))

	var req LevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid request body", err)
		return
	}
	level, err := allocation.ParseLevel(req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	rec, err := h.Roster.SetAgentLevel(r.Context(), agentID, allocation.ScopeID(req.Scope), level, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLevelRecordDTOs([]allocation.LevelRecord{*rec})[0])
}

// LevelHistory handles GET /api/agents/{id}/levels?scope=
func (h *Handler) LevelHistory(w http.ResponseWriter, r *http.Request) {
	agentID := allocation.AgentID(chi.URLParam(r, "id"))
	scope := allocation.ScopeID(r.URL.Query().Get("scope"))
	if scope == "" {
		writeError(w, http.StatusBadRequest, "invalid", "scope is required", nil)
		return
	}

	recs, err := h.Roster.LevelHistory(r.Context(), agentID, scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLevelRecordDTOs(recs))
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ApplySeed handles POST /api/seed with a YAML body.
func (h *Handler) ApplySeed(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSeedBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "failed to read body", err)
		return
	}
	seed, err := factory.ParseSeed(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid", "invalid seed document", err)
		return
	}

	res, err := seed.Apply(r.Context(), h.Store, actor, h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if len(seed.Weights) > 0 {
		h.Configs.SetWeights(seed.WeightTable())
		h.logger().Printf("[Seed] Base weights overridden by %s", actor)
	}

	writeJSON(w, http.StatusOK, res)
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return h.today(), nil
	}
	return allocation.ParseDay(s)
}

func requireActor(w http.ResponseWriter, r *http.Request) (allocation.ActorID, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return "", false
	}
	return actor, true
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind, message string, err error) {
	resp := ErrorResponse{Error: message, Kind: kind}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps engine errors onto statuses and kinds.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case allocation.IsNothingToDo(err):
		writeError(w, http.StatusUnprocessableEntity, "nothing_to_do", err.Error(), nil)
	case allocation.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid", err.Error(), nil)
	case allocation.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case allocation.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "failed", "internal error", err)
	}
}
