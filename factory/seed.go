/*
Package factory provides YAML seed documents for the collections engine.

PURPOSE:
  Converts a YAML document into agents, level records, duty entries and
  cases, and writes them through the store in one transaction. Operators
  and demos describe a day's roster and case pool without code changes.

YAML SCHEMA:
  weights:               # optional base weight override
    team_leader: 10
    senior: 30
    mid_level: 35
    junior: 25
  agents:
    - id: ana
      name: Ana Ruiz
      auth_id: auth0|ana   # optional
      active: true         # optional, default true
      levels:
        bucket-a: senior
  duty:
    - date: 2024-06-03
      scope: bucket-a
      working: [ana, ben]
      off: [cy]
  cases:
    - id: case-1
      scope: bucket-a
      dpd: 30
      created_at: 2024-06-01T08:00:00Z   # optional
  generate:              # optional bulk pool
    - scope: bucket-a
      prefix: gen
      count: 120
      dpd: [0, 30, 60]   # cycled

USAGE:
  seed, err := factory.ParseSeed(data)
  res, err := seed.Apply(ctx, store, "seed", time.Now())
  lifecycle.SetWeights(seed.WeightTable())

NOTES:
  Seeding writes duty entries directly. The roster edit cutoff applies to
  operators using RosterService, not to bulk loads of historical days.

SEE ALSO:
  - allocation/store.go: Store interfaces written through
  - collections/config.go: ConfigLifecycle consumes WeightTable
  - scenarios.go: Built-in demo days rendered into seeds
*/
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/collections-engine/allocation"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

// Seed is the YAML representation of a seed document.
type Seed struct {
	Weights  map[string]float64 `yaml:"weights,omitempty"`
	Agents   []AgentYAML        `yaml:"agents"`
	Duty     []DutyYAML         `yaml:"duty"`
	Cases    []CaseYAML         `yaml:"cases"`
	Generate []GenerateYAML     `yaml:"generate,omitempty"`
}

// AgentYAML describes one agent and its level per scope.
type AgentYAML struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	AuthID string            `yaml:"auth_id,omitempty"`
	Active *bool             `yaml:"active,omitempty"`
	Levels map[string]string `yaml:"levels,omitempty"`
}

// DutyYAML lists who works and who is off for a scope on a date.
type DutyYAML struct {
	Date    string   `yaml:"date"`
	Scope   string   `yaml:"scope"`
	Working []string `yaml:"working"`
	Off     []string `yaml:"off,omitempty"`
}

// CaseYAML is one unassigned case.
type CaseYAML struct {
	ID        string     `yaml:"id"`
	Scope     string     `yaml:"scope"`
	DPD       int        `yaml:"dpd"`
	CreatedAt *time.Time `yaml:"created_at,omitempty"`
}

// GenerateYAML produces Count cases cycling through DPD values.
type GenerateYAML struct {
	Scope  string `yaml:"scope"`
	Prefix string `yaml:"prefix,omitempty"`
	Count  int    `yaml:"count"`
	DPD    []int  `yaml:"dpd"`
}

// SeedResult counts what Apply wrote.
type SeedResult struct {
	Agents int `json:"agents"`
	Levels int `json:"levels"`
	Duty   int `json:"duty"`
	Cases  int `json:"cases"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseSeed parses and validates a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid seed yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks references, levels, dates and weights.
func (s *Seed) Validate() error {
	known := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if known[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %s", i, a.ID)
		}
		known[a.ID] = true
		for scope, name := range a.Levels {
			if scope == "" {
				return fmt.Errorf("agent %s: empty scope in levels", a.ID)
			}
			l, err := allocation.ParseLevel(name)
			if err != nil || !l.Ranked() {
				return fmt.Errorf("agent %s scope %s: %w: %q", a.ID, scope, allocation.ErrInvalidLevel, name)
			}
		}
	}

	for i, d := range s.Duty {
		if _, err := allocation.ParseDay(d.Date); err != nil {
			return fmt.Errorf("duty[%d]: %w", i, err)
		}
		if d.Scope == "" {
			return fmt.Errorf("duty[%d]: %w", i, allocation.ErrScopeRequired)
		}
		for _, id := range append(append([]string{}, d.Working...), d.Off...) {
			if !known[id] {
				return fmt.Errorf("duty[%d]: unknown agent %s", i, id)
			}
		}
	}

	caseIDs := make(map[string]bool, len(s.Cases))
	for i, c := range s.Cases {
		if c.ID == "" || c.Scope == "" {
			return fmt.Errorf("cases[%d]: id and scope are required", i)
		}
		if c.DPD < 0 {
			return fmt.Errorf("cases[%d]: dpd must be >= 0", i)
		}
		if caseIDs[c.ID] {
			return fmt.Errorf("cases[%d]: duplicate id %s", i, c.ID)
		}
		caseIDs[c.ID] = true
	}

	for i, g := range s.Generate {
		if g.Scope == "" || g.Count <= 0 || len(g.DPD) == 0 {
			return fmt.Errorf("generate[%d]: scope, positive count and dpd are required", i)
		}
		for _, dpd := range g.DPD {
			if dpd < 0 {
				return fmt.Errorf("generate[%d]: dpd must be >= 0", i)
			}
		}
	}

	if len(s.Weights) > 0 {
		if _, err := s.weightTable(); err != nil {
			return err
		}
	}
	return nil
}

// WeightTable returns the override from the document, or the defaults.
func (s *Seed) WeightTable() allocation.Weights {
	w, err := s.weightTable()
	if err != nil || len(w) == 0 {
		return allocation.DefaultWeights
	}
	return w
}

func (s *Seed) weightTable() (allocation.Weights, error) {
	if len(s.Weights) == 0 {
		return nil, nil
	}
	w := make(allocation.Weights, len(allocation.Levels))
	for _, l := range allocation.Levels {
		w[l] = allocation.DefaultWeights.Get(l)
	}
	for name, v := range s.Weights {
		l, err := allocation.ParseLevel(name)
		if err != nil || !l.Ranked() {
			return nil, fmt.Errorf("weights: %w: %q", allocation.ErrInvalidLevel, name)
		}
		if v < 0 {
			return nil, fmt.Errorf("weights: %s must be >= 0", name)
		}
		w[l] = decimal.NewFromFloat(v)
	}
	return w, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Apply writes the document through store in a single transaction.
// Existing agents and cases with the same ids are overwritten.
func (s *Seed) Apply(ctx context.Context, store allocation.TxStore, actor allocation.ActorID, now time.Time) (*SeedResult, error) {
	res := &SeedResult{}
	err := store.WithTx(ctx, func(tx allocation.Store) error {
		*res = SeedResult{}

		for _, a := range s.Agents {
			active := a.Active == nil || *a.Active
			agent := allocation.Agent{
				ID:     allocation.AgentID(a.ID),
				AuthID: a.AuthID,
				Name:   a.Name,
				Active: active,
			}
			if agent.Name == "" {
				agent.Name = a.ID
			}
			if err := tx.SaveAgent(ctx, agent); err != nil {
				return err
			}
			res.Agents++

			for scope, name := range a.Levels {
				n, err := applyLevel(ctx, tx, agent.ID, allocation.ScopeID(scope), name, actor, now)
				if err != nil {
					return err
				}
				res.Levels += n
			}
		}

		for _, d := range s.Duty {
			date, _ := allocation.ParseDay(d.Date)
			for _, id := range d.Working {
				if err := upsertDuty(ctx, tx, id, d.Scope, date, true, actor, now); err != nil {
					return err
				}
				res.Duty++
			}
			for _, id := range d.Off {
				if err := upsertDuty(ctx, tx, id, d.Scope, date, false, actor, now); err != nil {
					return err
				}
				res.Duty++
			}
		}

		for i, c := range s.Cases {
			created := now.Add(time.Duration(i) * time.Millisecond)
			if c.CreatedAt != nil {
				created = c.CreatedAt.UTC()
			}
			err := tx.SaveCase(ctx, allocation.Case{
				ID:        allocation.CaseID(c.ID),
				Scope:     allocation.ScopeID(c.Scope),
				DPD:       c.DPD,
				Status:    allocation.CaseStatusPending,
				CreatedAt: created,
			})
			if err != nil {
				return err
			}
			res.Cases++
		}

		for _, g := range s.Generate {
			for _, c := range g.Cases(now) {
				if err := tx.SaveCase(ctx, c); err != nil {
					return err
				}
				res.Cases++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}
	return res, nil
}

// Cases expands a generator block. Creation times increase with the index
// so the pool has a stable oldest-first order.
func (g GenerateYAML) Cases(base time.Time) []allocation.Case {
	prefix := g.Prefix
	if prefix == "" {
		prefix = g.Scope
	}
	cases := make([]allocation.Case, 0, g.Count)
	for i := 0; i < g.Count; i++ {
		cases = append(cases, allocation.Case{
			ID:        allocation.CaseID(fmt.Sprintf("%s-%05d", prefix, i+1)),
			Scope:     allocation.ScopeID(g.Scope),
			DPD:       g.DPD[i%len(g.DPD)],
			Status:    allocation.CaseStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Second).UTC(),
		})
	}
	return cases
}

// applyLevel appends a level record unless the active one already matches.
func applyLevel(ctx context.Context, tx allocation.Store, agent allocation.AgentID, scope allocation.ScopeID, name string, actor allocation.ActorID, now time.Time) (int, error) {
	level, err := allocation.ParseLevel(name)
	if err != nil {
		return 0, err
	}
	current, err := tx.ActiveLevel(ctx, agent, scope)
	if err != nil {
		return 0, err
	}
	if current != nil && current.Level == level {
		return 0, nil
	}
	if _, err := tx.DeactivateLevels(ctx, agent, scope); err != nil {
		return 0, err
	}
	err = tx.InsertLevel(ctx, allocation.LevelRecord{
		ID:        uuid.NewString(),
		AgentID:   agent,
		Scope:     scope,
		Level:     level,
		Active:    true,
		CreatedBy: actor,
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func upsertDuty(ctx context.Context, tx allocation.Store, agent, scope string, date time.Time, working bool, actor allocation.ActorID, now time.Time) error {
	id := uuid.NewString()
	existing, err := tx.GetDuty(ctx, allocation.AgentID(agent), allocation.ScopeID(scope), date)
	if err != nil {
		return err
	}
	if existing != nil {
		id = existing.ID
	}
	return tx.UpsertDuty(ctx, allocation.DutyRecord{
		ID:        id,
		AgentID:   allocation.AgentID(agent),
		Scope:     allocation.ScopeID(scope),
		Date:      date,
		Working:   working,
		UpdatedBy: actor,
		UpdatedAt: now.UTC(),
	})
}
