/*
config.go - Level configs and suggested splits

PURPOSE:
  A LevelConfig supplies the split a stratified run consumes. It moves one
  way through its lifecycle:

    suggested ──approve──▶ approved
        │
        └──superseded by a newer suggestion or an explicit save

  At most one active approved and one active suggested config exist per
  (scope, date). Enforcing that is the store's job, inside a transaction.

SUGGESTION:
  SuggestSplit derives percentages from roster composition:
    raw[l] = weight[l] × agents[l] / totalAgents
    pct[l] = raw[l] / Σraw × 100, rounded to 2 places
  Rounding drift is added to the largest percentage so the split sums to 100.

SEE ALSO:
  - collections/config.go: ConfigLifecycle service
*/
package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ConfigState string

const (
	ConfigSuggested ConfigState = "suggested"
	ConfigApproved  ConfigState = "approved"
)

// LevelConfig is a quota configuration for one scope and date.
type LevelConfig struct {
	ID     ConfigID
	Scope  ScopeID
	Date   time.Time
	Split  Split
	State  ConfigState
	Active bool

	// Snapshot of roster and case pool when the config was generated.
	AgentCounts map[Level]int
	CaseCount   int

	// BasedOn points at the suggestion an explicitly saved config came from.
	BasedOn *ConfigID

	CreatedBy  ActorID
	CreatedAt  time.Time
	ApprovedBy *ActorID
	ApprovedAt *time.Time

	// Run bookkeeping, stamped in the same transaction as the case claims.
	LastRunAt     *time.Time
	AssignedCount int
}

// Usable reports whether cfg may drive a committed run for scope and date.
func (cfg LevelConfig) Usable(scope ScopeID, date time.Time) error {
	if cfg.State != ConfigApproved || !cfg.Active {
		return fmt.Errorf("%w: %s is %s (active=%t)", ErrConfigNotApproved, cfg.ID, cfg.State, cfg.Active)
	}
	if cfg.Scope != scope || !SameDay(cfg.Date, date) {
		return fmt.Errorf("%w: %s belongs to %s/%s", ErrConfigScopeMismatch, cfg.ID, cfg.Scope, FormatDay(cfg.Date))
	}
	return nil
}

// =============================================================================
// BASE WEIGHTS
// =============================================================================

// Weights is the base ratio each level contributes per on-duty agent.
type Weights map[Level]decimal.Decimal

// DefaultWeights is the constant base ratio table, in Levels order.
var DefaultWeights = Weights{
	LevelTeamLeader: decimal.NewFromInt(10),
	LevelSenior:     decimal.NewFromInt(30),
	LevelMidLevel:   decimal.NewFromInt(35),
	LevelJunior:     decimal.NewFromInt(25),
}

func (w Weights) Get(l Level) decimal.Decimal {
	if v, ok := w[l]; ok {
		return v
	}
	return decimal.Zero
}

// CountLevels tallies working, ranked roster entries per level.
func CountLevels(roster []RosterEntry) map[Level]int {
	counts := make(map[Level]int, len(Levels))
	for _, l := range Levels {
		counts[l] = 0
	}
	for _, e := range roster {
		if e.Working && e.Level.Ranked() {
			counts[e.Level]++
		}
	}
	return counts
}

// SuggestSplit derives a split from per-level agent counts. It fails with
// ErrNothingToSuggest when no ranked agent carries any weight.
func SuggestSplit(counts map[Level]int, weights Weights) (Split, error) {
	total := 0
	for _, l := range Levels {
		total += counts[l]
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no leveled agents on duty", ErrNothingToSuggest)
	}

	t := decimal.NewFromInt(int64(total))
	raw := make(map[Level]decimal.Decimal, len(Levels))
	rawSum := decimal.Zero
	for _, l := range Levels {
		share := decimal.NewFromInt(int64(counts[l])).Div(t)
		raw[l] = weights.Get(l).Mul(share)
		rawSum = rawSum.Add(raw[l])
	}
	if !rawSum.IsPositive() {
		return nil, fmt.Errorf("%w: weights are zero for every level on duty", ErrNothingToSuggest)
	}

	split := make(Split, len(Levels))
	for _, l := range Levels {
		split[l] = raw[l].Div(rawSum).Mul(Hundred).Round(2)
	}
	if drift := Hundred.Sub(split.Sum()); !drift.IsZero() {
		largest := split.Largest()
		split[largest] = split[largest].Add(drift)
	}
	return split, nil
}
