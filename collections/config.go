/*
config.go - Level config lifecycle

PURPOSE:
  Produces the approved split a stratified run consumes.

LIFECYCLE:
  ┌────────────┐   Approve(id)    ┌──────────┐
  │ suggested  │ ───────────────▶ │ approved │
  └────────────┘                  └──────────┘
        │  Save(percentages) creates a new approved config
        └────────────────────────▶ based_on = suggestion

  One-way: a suggestion is never rejected back, it is superseded.

OPERATIONS:
  GenerateSuggested: needs ≥1 on-duty roster entry and ≥1 unassigned case.
                     Returns the existing active suggestion when there is one.
  GetOrGenerate:     Active approved, else active suggested, else generate.
  Approve:           Suggested only. Deactivates prior approved configs for
                     the scope and date, then promotes, in one transaction.
  Save:              Explicit split (sum 100 ±0.01). Copies counts from the
                     active suggestion, deactivates prior approved configs and
                     inserts the new approved config, in one transaction.

SEE ALSO:
  - allocation/config.go: LevelConfig and SuggestSplit
  - assign.go: Consumes approved configs
*/
package collections

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/metrics"
)

// ConfigLifecycle manages suggested and approved level configs.
type ConfigLifecycle struct {
	Store  allocation.TxStore
	Logger *log.Logger
	Now    func() time.Time

	// weightTable is swapped by seeds while requests read it.
	weightsMu   sync.RWMutex
	weightTable allocation.Weights
}

func NewConfigLifecycle(store allocation.TxStore) *ConfigLifecycle {
	return &ConfigLifecycle{Store: store, weightTable: allocation.DefaultWeights}
}

func (c *ConfigLifecycle) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *ConfigLifecycle) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// Weights returns the base weight table used for suggestions.
func (c *ConfigLifecycle) Weights() allocation.Weights {
	c.weightsMu.RLock()
	defer c.weightsMu.RUnlock()
	if len(c.weightTable) > 0 {
		return c.weightTable
	}
	return allocation.DefaultWeights
}

// SetWeights replaces the base weight table; an empty table restores the
// defaults. The table is copied.
func (c *ConfigLifecycle) SetWeights(w allocation.Weights) {
	table := make(allocation.Weights, len(w))
	for l, v := range w {
		table[l] = v
	}
	c.weightsMu.Lock()
	c.weightTable = table
	c.weightsMu.Unlock()
}

// =============================================================================
// SUGGEST
// =============================================================================

// GenerateSuggested returns the active suggestion for scope and date,
// creating one from the current roster and case pool when none exists.
func (c *ConfigLifecycle) GenerateSuggested(ctx context.Context, scope allocation.ScopeID, date time.Time, actor allocation.ActorID) (*allocation.LevelConfig, error) {
	if scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	day := allocation.DayOf(date)

	var out *allocation.LevelConfig
	created := false
	err := c.Store.WithTx(ctx, func(tx allocation.Store) error {
		existing, err := tx.ActiveConfig(ctx, scope, day, allocation.ConfigSuggested)
		if err != nil {
			return fmt.Errorf("load suggestion: %w", err)
		}
		if existing != nil {
			out = existing
			return nil
		}

		roster, err := tx.OnDuty(ctx, scope, day)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		if len(roster) == 0 {
			return fmt.Errorf("%w: nobody on duty for %s on %s", allocation.ErrNothingToSuggest, scope, allocation.FormatDay(day))
		}
		cases, err := tx.Unassigned(ctx, scope, 0)
		if err != nil {
			return fmt.Errorf("load cases: %w", err)
		}
		if len(cases) == 0 {
			return fmt.Errorf("%w: no unassigned cases in %s", allocation.ErrNothingToSuggest, scope)
		}

		counts := allocation.CountLevels(roster)
		split, err := allocation.SuggestSplit(counts, c.Weights())
		if err != nil {
			return err
		}

		cfg := allocation.LevelConfig{
			ID:          allocation.ConfigID(uuid.New().String()),
			Scope:       scope,
			Date:        day,
			Split:       split,
			State:       allocation.ConfigSuggested,
			Active:      true,
			AgentCounts: counts,
			CaseCount:   len(cases),
			CreatedBy:   actor,
			CreatedAt:   c.now(),
		}
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			return fmt.Errorf("insert suggestion: %w", err)
		}
		out = &cfg
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		metrics.ConfigTransitionsTotal.WithLabelValues("suggested").Inc()
		c.logger().Printf("[Config] suggested %s for %s on %s (%d cases)",
			out.ID, scope, allocation.FormatDay(day), out.CaseCount)
	}
	return out, nil
}

// GetOrGenerate returns the active approved config, else the active
// suggestion, else a freshly generated suggestion.
func (c *ConfigLifecycle) GetOrGenerate(ctx context.Context, scope allocation.ScopeID, date time.Time, actor allocation.ActorID) (*allocation.LevelConfig, error) {
	if scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	approved, err := c.Store.ActiveConfig(ctx, scope, allocation.DayOf(date), allocation.ConfigApproved)
	if err != nil {
		return nil, fmt.Errorf("load approved config: %w", err)
	}
	if approved != nil {
		return approved, nil
	}
	return c.GenerateSuggested(ctx, scope, date, actor)
}

// =============================================================================
// APPROVE / SAVE
// =============================================================================

// Approve promotes an active suggestion to the active approved config for
// its scope and date.
func (c *ConfigLifecycle) Approve(ctx context.Context, id allocation.ConfigID, approver allocation.ActorID) (*allocation.LevelConfig, error) {
	var out *allocation.LevelConfig
	err := c.Store.WithTx(ctx, func(tx allocation.Store) error {
		cfg, err := tx.GetConfig(ctx, id)
		if err != nil {
			return err
		}
		if cfg.State != allocation.ConfigSuggested {
			return fmt.Errorf("%w: %s is %s", allocation.ErrConfigNotSuggested, id, cfg.State)
		}
		if !cfg.Active {
			return fmt.Errorf("%w: %s was superseded", allocation.ErrConfigNotSuggested, id)
		}

		if _, err := tx.DeactivateConfigs(ctx, cfg.Scope, cfg.Date, allocation.ConfigApproved); err != nil {
			return fmt.Errorf("deactivate approved configs: %w", err)
		}
		if err := tx.PromoteConfig(ctx, id, approver, c.now()); err != nil {
			return fmt.Errorf("promote %s: %w", id, err)
		}
		out, err = tx.GetConfig(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ConfigTransitionsTotal.WithLabelValues("approved").Inc()
	c.logger().Printf("[Config] %s approved by %s", id, approver)
	return out, nil
}

// SaveRequest carries an explicit split for a scope and date.
type SaveRequest struct {
	Scope    allocation.ScopeID
	Date     time.Time
	Split    allocation.Split
	Approver allocation.ActorID
}

// Save stores an explicit split as the active approved config, based on the
// current suggestion.
func (c *ConfigLifecycle) Save(ctx context.Context, req SaveRequest) (*allocation.LevelConfig, error) {
	if req.Scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	if err := req.Split.Validate(); err != nil {
		return nil, err
	}
	day := allocation.DayOf(req.Date)

	var out *allocation.LevelConfig
	err := c.Store.WithTx(ctx, func(tx allocation.Store) error {
		suggestion, err := tx.ActiveConfig(ctx, req.Scope, day, allocation.ConfigSuggested)
		if err != nil {
			return fmt.Errorf("load suggestion: %w", err)
		}
		if suggestion == nil {
			return fmt.Errorf("%w for %s on %s", allocation.ErrNoSuggestion, req.Scope, allocation.FormatDay(day))
		}

		if _, err := tx.DeactivateConfigs(ctx, req.Scope, day, allocation.ConfigApproved); err != nil {
			return fmt.Errorf("deactivate approved configs: %w", err)
		}

		now := c.now()
		approver := req.Approver
		basedOn := suggestion.ID
		cfg := allocation.LevelConfig{
			ID:          allocation.ConfigID(uuid.New().String()),
			Scope:       req.Scope,
			Date:        day,
			Split:       cloneSplit(req.Split),
			State:       allocation.ConfigApproved,
			Active:      true,
			AgentCounts: suggestion.AgentCounts,
			CaseCount:   suggestion.CaseCount,
			BasedOn:     &basedOn,
			CreatedBy:   approver,
			CreatedAt:   now,
			ApprovedBy:  &approver,
			ApprovedAt:  &now,
		}
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			return fmt.Errorf("insert approved config: %w", err)
		}
		out = &cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ConfigTransitionsTotal.WithLabelValues("saved").Inc()
	c.logger().Printf("[Config] saved %s for %s on %s based on %s",
		out.ID, req.Scope, allocation.FormatDay(day), *out.BasedOn)
	return out, nil
}

func cloneSplit(s allocation.Split) allocation.Split {
	out := make(allocation.Split, len(allocation.Levels))
	for _, l := range allocation.Levels {
		out[l] = s.Get(l)
	}
	return out
}
