/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external contract: levels travel as their
  snake_case names, percentages as decimal strings, dates as YYYY-MM-DD.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Assignment:
    StratifiedRunRequest, SimpleRunRequest, RunResultDTO, AgentSummaryDTO

  Config:
    LevelConfigDTO, SaveConfigRequest

  Roster:
    DutyRequest, DutyDTO, LevelRequest, LevelRecordDTO

VALIDATION:
  Validation is done in handlers and services, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - collections/summary.go: RunResult
*/
package api

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/factory"
)

// =============================================================================
// ASSIGNMENT
// =============================================================================

// StratifiedRunRequest triggers a stratified run.
type StratifiedRunRequest struct {
	Scope    string `json:"scope"`
	Date     string `json:"date"`
	ConfigID string `json:"config_id"`
}

// SimpleRunRequest triggers a simple run. Empty date means today; empty
// scope means every scope.
type SimpleRunRequest struct {
	Date  string `json:"date,omitempty"`
	Scope string `json:"scope,omitempty"`
}

// RunResultDTO summarizes a committed run.
type RunResultDTO struct {
	RunID          string            `json:"run_id"`
	Mode           string            `json:"mode"`
	Scope          string            `json:"scope,omitempty"`
	Date           string            `json:"date"`
	ConfigID       string            `json:"config_id,omitempty"`
	Actor          string            `json:"actor"`
	At             time.Time         `json:"at"`
	TotalAssigned  int               `json:"total_assigned"`
	PerLevel       map[string]int    `json:"per_level"`
	Agents         []AgentSummaryDTO `json:"agents"`
	LeftoverPlaced int               `json:"leftover_placed"`
	Unplaced       []string          `json:"unplaced"`
	Contended      []string          `json:"contended"`
	ExcludedAgents []string          `json:"excluded_agents"`
}

// AgentSummaryDTO is one agent's share of a run.
type AgentSummaryDTO struct {
	AgentID string         `json:"agent_id"`
	Name    string         `json:"name"`
	Level   string         `json:"level"`
	Total   int            `json:"total"`
	DPD     map[string]int `json:"dpd"`
}

func toRunResultDTO(r *collections.RunResult) RunResultDTO {
	dto := RunResultDTO{
		RunID:          r.RunID,
		Mode:           r.Mode,
		Scope:          string(r.Scope),
		Date:           allocation.FormatDay(r.Date),
		ConfigID:       string(r.ConfigID),
		Actor:          string(r.Actor),
		At:             r.At,
		TotalAssigned:  r.TotalAssigned,
		PerLevel:       make(map[string]int, len(r.PerLevel)),
		Agents:         make([]AgentSummaryDTO, 0, len(r.Agents)),
		LeftoverPlaced: r.LeftoverPlaced,
		Unplaced:       idStrings(r.Unplaced),
		Contended:      idStrings(r.Contended),
		ExcludedAgents: idStrings(r.ExcludedAgents),
	}
	for l, n := range r.PerLevel {
		dto.PerLevel[l.String()] = n
	}
	for _, a := range r.Agents {
		s := AgentSummaryDTO{
			AgentID: string(a.AgentID),
			Name:    a.Name,
			Level:   a.Level.String(),
			Total:   a.Total,
			DPD:     make(map[string]int, len(a.DPD)),
		}
		for _, dpd := range a.SortedDPDs() {
			s.DPD[strconv.Itoa(dpd)] = a.DPD[dpd]
		}
		dto.Agents = append(dto.Agents, s)
	}
	return dto
}

func idStrings[T ~string](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// =============================================================================
// LEVEL CONFIG
// =============================================================================

// LevelConfigDTO represents a level config in API responses.
type LevelConfigDTO struct {
	ID            string                     `json:"id"`
	Scope         string                     `json:"scope"`
	Date          string                     `json:"date"`
	State         string                     `json:"state"`
	Active        bool                       `json:"active"`
	Percentages   map[string]decimal.Decimal `json:"percentages"`
	AgentCounts   map[string]int             `json:"agent_counts"`
	CaseCount     int                        `json:"case_count"`
	BasedOn       *string                    `json:"based_on,omitempty"`
	CreatedBy     string                     `json:"created_by"`
	CreatedAt     time.Time                  `json:"created_at"`
	ApprovedBy    *string                    `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time                 `json:"approved_at,omitempty"`
	LastRunAt     *time.Time                 `json:"last_run_at,omitempty"`
	AssignedCount int                        `json:"assigned_count"`
}

// SaveConfigRequest saves an explicit approved config. Percentages are keyed
// by level name and may be sent as numbers or strings.
type SaveConfigRequest struct {
	Scope       string                     `json:"scope"`
	Date        string                     `json:"date"`
	Percentages map[string]decimal.Decimal `json:"percentages"`
}

func toLevelConfigDTO(cfg *allocation.LevelConfig) LevelConfigDTO {
	dto := LevelConfigDTO{
		ID:            string(cfg.ID),
		Scope:         string(cfg.Scope),
		Date:          allocation.FormatDay(cfg.Date),
		State:         string(cfg.State),
		Active:        cfg.Active,
		Percentages:   make(map[string]decimal.Decimal, len(allocation.Levels)),
		AgentCounts:   make(map[string]int, len(cfg.AgentCounts)),
		CaseCount:     cfg.CaseCount,
		CreatedBy:     string(cfg.CreatedBy),
		CreatedAt:     cfg.CreatedAt,
		ApprovedAt:    cfg.ApprovedAt,
		LastRunAt:     cfg.LastRunAt,
		AssignedCount: cfg.AssignedCount,
	}
	for _, l := range allocation.Levels {
		dto.Percentages[l.String()] = cfg.Split.Get(l).Round(2)
	}
	for l, n := range cfg.AgentCounts {
		dto.AgentCounts[l.String()] = n
	}
	if cfg.BasedOn != nil {
		s := string(*cfg.BasedOn)
		dto.BasedOn = &s
	}
	if cfg.ApprovedBy != nil {
		s := string(*cfg.ApprovedBy)
		dto.ApprovedBy = &s
	}
	return dto
}

// =============================================================================
// ROSTER
// =============================================================================

// DutyRequest sets or removes one agent's duty entry for a date.
type DutyRequest struct {
	AgentID string `json:"agent_id"`
	Scope   string `json:"scope"`
	Date    string `json:"date"`
	Working *bool  `json:"working,omitempty"`
}

// DutyDTO represents a stored duty entry.
type DutyDTO struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Scope     string    `json:"scope"`
	Date      string    `json:"date"`
	Working   bool      `json:"working"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDutyDTO(d *allocation.DutyRecord) DutyDTO {
	return DutyDTO{
		ID:        d.ID,
		AgentID:   string(d.AgentID),
		Scope:     string(d.Scope),
		Date:      allocation.FormatDay(d.Date),
		Working:   d.Working,
		UpdatedBy: string(d.UpdatedBy),
		UpdatedAt: d.UpdatedAt,
	}
}

// LevelRequest changes an agent's level in a scope.
type LevelRequest struct {
	Scope string `json:"scope"`
	Level string `json:"level"`
}

// LevelRecordDTO is one entry of an agent's level history.
type LevelRecordDTO struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Scope     string    `json:"scope"`
	Level     string    `json:"level"`
	Active    bool      `json:"active"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toLevelRecordDTOs(recs []allocation.LevelRecord) []LevelRecordDTO {
	out := make([]LevelRecordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, LevelRecordDTO{
			ID:        r.ID,
			AgentID:   string(r.AgentID),
			Scope:     string(r.Scope),
			Level:     r.Level.String(),
			Active:    r.Active,
			CreatedBy: string(r.CreatedBy),
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Scope       string `json:"scope"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	Status   string             `json:"status"`
	Scenario ScenarioDTO        `json:"scenario"`
	Seeded   factory.SeedResult `json:"seeded"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details string `json:"details,omitempty"`
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
