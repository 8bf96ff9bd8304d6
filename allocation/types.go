/*
Package allocation provides the case-to-agent assignment engine.

PURPOSE:
  This package contains the storage-agnostic types and algorithms that decide
  which collections case goes to which agent. Nothing here touches a database
  or HTTP; the collections package wires these algorithms to stores.

KEY CONCEPTS IN THIS FILE (types.go):
  - Level: Closed set of agent seniority tiers (plus "unleveled")
  - Case: A unit of collections work, stratified by DPD (days past due)
  - Agent / RosterEntry: Who is on duty for a scope and date, at which level
  - Split: Percentage share per level, held as decimal.Decimal
  - Placement: The resolved (case, agent, level) triple of a run

DESIGN PRINCIPLES:
  1. Closed enums: levels are an iota enum with exhaustive switches, never strings
  2. Precision: percentages use decimal.Decimal so 33.33 + 33.33 + 33.34 is exactly 100
  3. Type Safety: distinct id types prevent mixing agent, case and scope ids
  4. Determinism: every ordering (levels, DPD buckets, agents) is explicit

USAGE:
  split := allocation.NewSplit(25, 25, 25, 25)
  if err := split.Validate(); err != nil {
      return err
  }
  quota := allocation.QuotaFor(10, split)

SEE ALSO:
  - quota.go: QuotaCalculator
  - stratified.go: DPD-stratified allocation
  - roundrobin.go: Round-robin, leftover and simple assigners
  - plan.go: Planner combining all of the above
*/
package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CaseID string
type AgentID string
type ScopeID string
type ActorID string
type ConfigID string

// =============================================================================
// LEVEL - Agent seniority tier
// =============================================================================

// Level is an agent seniority tier within a scope.
type Level int

const (
	// LevelUnleveled marks a roster agent with no resolvable level. Such agents
	// only take part in the simple path and in leftover reconciliation.
	LevelUnleveled Level = iota
	LevelTeamLeader
	LevelSenior
	LevelMidLevel
	LevelJunior
)

// Levels is the fixed order used for every iteration over levels.
var Levels = []Level{LevelTeamLeader, LevelSenior, LevelMidLevel, LevelJunior}

func (l Level) String() string {
	switch l {
	case LevelTeamLeader:
		return "team_leader"
	case LevelSenior:
		return "senior"
	case LevelMidLevel:
		return "mid_level"
	case LevelJunior:
		return "junior"
	case LevelUnleveled:
		return "unleveled"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Ranked reports whether l is one of the four quota-bearing levels.
func (l Level) Ranked() bool {
	switch l {
	case LevelTeamLeader, LevelSenior, LevelMidLevel, LevelJunior:
		return true
	}
	return false
}

// ParseLevel accepts the canonical names plus a few spellings seen in rosters.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "team_leader", "team-leader", "teamleader", "tl":
		return LevelTeamLeader, nil
	case "senior":
		return LevelSenior, nil
	case "mid_level", "mid-level", "midlevel", "mid":
		return LevelMidLevel, nil
	case "junior":
		return LevelJunior, nil
	case "unleveled", "":
		return LevelUnleveled, nil
	}
	return LevelUnleveled, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// =============================================================================
// CASE - Unit of collections work
// =============================================================================

type CaseStatus string

const (
	CaseStatusPending   CaseStatus = "pending"
	CaseStatusAssigned  CaseStatus = "assigned"
	CaseStatusCompleted CaseStatus = "completed"
)

// Case is a phone collection case. AssignedAgent, AssignedBy and AssignedAt
// are either all nil or all set.
type Case struct {
	ID        CaseID
	Scope     ScopeID
	DPD       int
	Status    CaseStatus
	CreatedAt time.Time

	AssignedAgent *AgentID
	AssignedBy    *ActorID
	AssignedAt    *time.Time
}

func (c Case) IsAssigned() bool {
	return c.AssignedAgent != nil
}

// =============================================================================
// AGENT / ROSTER
// =============================================================================

// Agent is a staff identity eligible for assignment.
type Agent struct {
	ID     AgentID
	AuthID string // stable id from the identity provider
	Name   string
	Active bool
}

// RosterEntry is an agent on duty for a scope and date, with the level that
// agent holds in the scope at run time.
type RosterEntry struct {
	Agent   Agent
	Scope   ScopeID
	Date    time.Time
	Level   Level
	Working bool
}

// =============================================================================
// SPLIT - Percentage share per level
// =============================================================================

var (
	Hundred = decimal.NewFromInt(100)

	// PercentTolerance is how far a split may drift from 100 and still be valid.
	PercentTolerance = decimal.RequireFromString("0.01")
)

// Split maps each ranked level to its percentage share of a case pool.
// Missing levels count as zero.
type Split map[Level]decimal.Decimal

// NewSplit builds a split in Levels order.
func NewSplit(teamLeader, senior, midLevel, junior float64) Split {
	return Split{
		LevelTeamLeader: decimal.NewFromFloat(teamLeader),
		LevelSenior:     decimal.NewFromFloat(senior),
		LevelMidLevel:   decimal.NewFromFloat(midLevel),
		LevelJunior:     decimal.NewFromFloat(junior),
	}
}

func (s Split) Get(l Level) decimal.Decimal {
	if v, ok := s[l]; ok {
		return v
	}
	return decimal.Zero
}

func (s Split) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range Levels {
		sum = sum.Add(s.Get(l))
	}
	return sum
}

// Validate checks every share is in [0,100], no unranked level carries a
// share, and the shares sum to 100 within PercentTolerance.
func (s Split) Validate() error {
	for l, v := range s {
		if !l.Ranked() {
			return fmt.Errorf("%w: %s cannot carry a share", ErrInvalidPercentages, l)
		}
		if v.IsNegative() || v.GreaterThan(Hundred) {
			return fmt.Errorf("%w: %s share %s out of range", ErrInvalidPercentages, l, v)
		}
	}
	sum := s.Sum()
	if sum.Sub(Hundred).Abs().GreaterThan(PercentTolerance) {
		return &PercentageSumError{Sum: sum}
	}
	return nil
}

// Largest returns the level with the biggest share; ties go to the earlier
// level in Levels order.
func (s Split) Largest() Level {
	best := Levels[0]
	for _, l := range Levels[1:] {
		if s.Get(l).GreaterThan(s.Get(best)) {
			best = l
		}
	}
	return best
}

// Floats returns the split as plain floats, for DTOs and tables.
func (s Split) Floats() map[Level]float64 {
	out := make(map[Level]float64, len(Levels))
	for _, l := range Levels {
		out[l] = s.Get(l).InexactFloat64()
	}
	return out
}

// =============================================================================
// PLACEMENT - Result of a run
// =============================================================================

// Placement is the resolved triple for one case. Level is the level of the
// agent that received the case; Leftover marks placements made by the
// LeftoverReconciler rather than by the agent's own level.
type Placement struct {
	Case     Case
	Agent    Agent
	Level    Level
	Leftover bool
}
