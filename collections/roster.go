package collections

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/collections-engine/allocation"
)

// DefaultRosterCutoffHour is the hour (UTC) after which today's roster is frozen.
const DefaultRosterCutoffHour = 10

// RosterService maintains duty entries and agent level history.
//
// A duty entry may be created, changed or removed until the cutoff hour of
// its own day; after that it is immutable. Level changes never overwrite:
// the active record is deactivated and a new one appended.
type RosterService struct {
	Store      allocation.TxStore
	CutoffHour int
	Logger     *log.Logger
	Now        func() time.Time
}

func NewRosterService(store allocation.TxStore) *RosterService {
	return &RosterService{Store: store, CutoffHour: DefaultRosterCutoffHour}
}

func (r *RosterService) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *RosterService) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *RosterService) checkEditable(agent allocation.AgentID, date time.Time) error {
	if allocation.RosterEditable(date, r.now(), r.CutoffHour) {
		return nil
	}
	return &allocation.RosterLockedError{
		AgentID: agent,
		Date:    allocation.DayOf(date),
		Cutoff:  allocation.RosterCutoff(date, r.CutoffHour),
	}
}

// =============================================================================
// DUTY
// =============================================================================

// DutyChange sets whether an agent works a scope on a date.
type DutyChange struct {
	AgentID allocation.AgentID
	Scope   allocation.ScopeID
	Date    time.Time
	Working bool
	Actor   allocation.ActorID
}

// SetDuty upserts the single duty entry for (agent, scope, date).
func (r *RosterService) SetDuty(ctx context.Context, ch DutyChange) (*allocation.DutyRecord, error) {
	if ch.Scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	if err := r.checkEditable(ch.AgentID, ch.Date); err != nil {
		return nil, err
	}

	var out *allocation.DutyRecord
	err := r.Store.WithTx(ctx, func(tx allocation.Store) error {
		if _, err := tx.GetAgent(ctx, ch.AgentID); err != nil {
			return err
		}
		rec := allocation.DutyRecord{
			ID:        uuid.New().String(),
			AgentID:   ch.AgentID,
			Scope:     ch.Scope,
			Date:      allocation.DayOf(ch.Date),
			Working:   ch.Working,
			UpdatedBy: ch.Actor,
			UpdatedAt: r.now(),
		}
		if err := tx.UpsertDuty(ctx, rec); err != nil {
			return fmt.Errorf("upsert duty: %w", err)
		}
		stored, err := tx.GetDuty(ctx, ch.AgentID, ch.Scope, ch.Date)
		if err != nil {
			return err
		}
		out = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveDuty deletes the duty entry, reporting whether one existed.
func (r *RosterService) RemoveDuty(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (bool, error) {
	if err := r.checkEditable(agent, date); err != nil {
		return false, err
	}
	removed, err := r.Store.DeleteDuty(ctx, agent, scope, allocation.DayOf(date))
	if err != nil {
		return false, fmt.Errorf("delete duty: %w", err)
	}
	return removed, nil
}

// =============================================================================
// LEVELS
// =============================================================================

// SetAgentLevel makes level the agent's active level in scope. Setting the
// level the agent already holds is a no-op.
func (r *RosterService) SetAgentLevel(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, level allocation.Level, actor allocation.ActorID) (*allocation.LevelRecord, error) {
	if scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	if !level.Ranked() {
		return nil, fmt.Errorf("%w: %s cannot be assigned", allocation.ErrInvalidLevel, level)
	}

	var out *allocation.LevelRecord
	changed := false
	err := r.Store.WithTx(ctx, func(tx allocation.Store) error {
		if _, err := tx.GetAgent(ctx, agent); err != nil {
			return err
		}
		current, err := tx.ActiveLevel(ctx, agent, scope)
		if err != nil {
			return fmt.Errorf("load level: %w", err)
		}
		if current != nil && current.Level == level {
			out = current
			return nil
		}

		if _, err := tx.DeactivateLevels(ctx, agent, scope); err != nil {
			return fmt.Errorf("deactivate levels: %w", err)
		}
		rec := allocation.LevelRecord{
			ID:        uuid.New().String(),
			AgentID:   agent,
			Scope:     scope,
			Level:     level,
			Active:    true,
			CreatedBy: actor,
			CreatedAt: r.now(),
		}
		if err := tx.InsertLevel(ctx, rec); err != nil {
			return fmt.Errorf("insert level: %w", err)
		}
		out = &rec
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.logger().Printf("[Roster] agent %s is now %s in %s", agent, level, scope)
	}
	return out, nil
}

// LevelHistory lists an agent's level records in scope, newest first.
func (r *RosterService) LevelHistory(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) ([]allocation.LevelRecord, error) {
	if _, err := r.Store.GetAgent(ctx, agent); err != nil {
		return nil, err
	}
	return r.Store.LevelHistory(ctx, agent, scope)
}
