/*
assign.go - Assignment runs

PURPOSE:
  Executes the two run types against a TxStore:

  RunStratified: approved level config + DPD stratification + leftovers
  RunSimple:     plain round-robin of the oldest cases over everyone on duty

RUN FLOW (both modes):
  ┌───────────────────────────── one transaction ─────────────────────────┐
  │ load preconditions ─▶ plan (pure) ─▶ claim each placement ─▶ bookkeep │
  └───────────────────────────────────────────────────────────────────────┘
  Any error rolls the whole run back. Precondition errors come back as
  allocation sentinels (ErrNoAgents, ErrNoCases, ...); storage failures come
  back wrapped in *allocation.RunError.

CLAIMS:
  Placements are committed with Claim, a conditional update on
  "still unassigned". A claim that changes nothing means a concurrent run
  took the case; it is reported in Contended and not counted.

PARTIAL DATA:
  On-duty agents with no level in the scope are excluded from stratified
  runs and logged as a warning. They still take part in simple runs.

SEE ALSO:
  - allocation/plan.go: Planning
  - config.go: Where approved configs come from
*/
package collections

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/metrics"
)

const (
	ModeStratified = "stratified"
	ModeSimple     = "simple"

	// DefaultSimpleBatchSize bounds how many cases one simple run claims.
	DefaultSimpleBatchSize = 300
)

// AssignmentService runs case assignment.
type AssignmentService struct {
	Store  allocation.TxStore
	Logger *log.Logger

	// SimpleBatchSize caps the cases a simple run takes; <= 0 uses the default.
	SimpleBatchSize int

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

func NewAssignmentService(store allocation.TxStore) *AssignmentService {
	return &AssignmentService{Store: store, SimpleBatchSize: DefaultSimpleBatchSize}
}

func (s *AssignmentService) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *AssignmentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AssignmentService) batchSize() int {
	if s.SimpleBatchSize > 0 {
		return s.SimpleBatchSize
	}
	return DefaultSimpleBatchSize
}

// =============================================================================
// STRATIFIED RUN
// =============================================================================

// StratifiedRequest triggers a level-stratified run.
type StratifiedRequest struct {
	Scope    allocation.ScopeID
	Date     time.Time
	ConfigID allocation.ConfigID
	Actor    allocation.ActorID
}

// RunStratified assigns every unassigned case in the scope according to an
// approved level config.
func (s *AssignmentService) RunStratified(ctx context.Context, req StratifiedRequest) (*RunResult, error) {
	start := time.Now()
	result, err := s.runStratified(ctx, req)
	s.observe(ModeStratified, start, result, err)
	return result, err
}

func (s *AssignmentService) runStratified(ctx context.Context, req StratifiedRequest) (*RunResult, error) {
	if req.Scope == "" {
		return nil, allocation.ErrScopeRequired
	}
	if req.Date.IsZero() {
		req.Date = allocation.DayOf(s.now())
	}

	result := newRunResult(ModeStratified)
	result.RunID = uuid.New().String()
	result.Scope = req.Scope
	result.Date = allocation.DayOf(req.Date)
	result.ConfigID = req.ConfigID
	result.Actor = req.Actor

	err := s.Store.WithTx(ctx, func(tx allocation.Store) error {
		cfg, err := tx.GetConfig(ctx, req.ConfigID)
		if err != nil {
			if errors.Is(err, allocation.ErrConfigNotFound) {
				return fmt.Errorf("%w: %s", allocation.ErrConfigNotFound, req.ConfigID)
			}
			return s.runError(req.Scope, "load config", err)
		}
		if err := cfg.Usable(req.Scope, req.Date); err != nil {
			return err
		}

		roster, err := tx.OnDuty(ctx, req.Scope, req.Date)
		if err != nil {
			return s.runError(req.Scope, "load roster", err)
		}
		ranked := s.excludeUnleveled(req.Scope, roster, result)
		if len(ranked) == 0 {
			return fmt.Errorf("%w: no leveled agents on duty for %s on %s",
				allocation.ErrNoAgents, req.Scope, allocation.FormatDay(req.Date))
		}

		cases, err := tx.Unassigned(ctx, req.Scope, 0)
		if err != nil {
			return s.runError(req.Scope, "load cases", err)
		}
		if len(cases) == 0 {
			return fmt.Errorf("%w: scope %s has no unassigned cases", allocation.ErrNoCases, req.Scope)
		}

		plan := allocation.PlanStratified(cases, ranked, cfg.Split)
		result.Unplaced = caseIDs(plan.Unplaced)
		if err := s.commit(ctx, tx, plan.Placements, req.Actor, result); err != nil {
			return s.runError(req.Scope, "claim cases", err)
		}
		if err := tx.RecordRun(ctx, cfg.ID, len(result.Placements), result.At); err != nil {
			return s.runError(req.Scope, "record run", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.summarize()
	s.logger().Printf("[Assign] stratified run %s scope=%s config=%s assigned=%d leftover=%d unplaced=%d contended=%d",
		result.RunID, result.Scope, result.ConfigID, result.TotalAssigned,
		result.LeftoverPlaced, len(result.Unplaced), len(result.Contended))
	return result, nil
}

func (s *AssignmentService) excludeUnleveled(scope allocation.ScopeID, roster []allocation.RosterEntry, result *RunResult) []allocation.RosterEntry {
	ranked := make([]allocation.RosterEntry, 0, len(roster))
	for _, e := range roster {
		if e.Level.Ranked() {
			ranked = append(ranked, e)
			continue
		}
		result.ExcludedAgents = append(result.ExcludedAgents, e.Agent.ID)
		metrics.AgentsExcludedTotal.Inc()
		s.logger().Printf("[Assign] warning: agent %s on duty in %s has no level, excluded from stratified run",
			e.Agent.ID, scope)
	}
	return ranked
}

// =============================================================================
// SIMPLE RUN
// =============================================================================

// SimpleRequest triggers an unstratified run. A zero Date means today; an
// empty Scope pools every scope.
type SimpleRequest struct {
	Date  time.Time
	Scope allocation.ScopeID
	Actor allocation.ActorID
}

// RunSimple round-robins the oldest unassigned cases, up to the batch size,
// over every agent on duty.
func (s *AssignmentService) RunSimple(ctx context.Context, req SimpleRequest) (*RunResult, error) {
	start := time.Now()
	result, err := s.runSimple(ctx, req)
	s.observe(ModeSimple, start, result, err)
	return result, err
}

func (s *AssignmentService) runSimple(ctx context.Context, req SimpleRequest) (*RunResult, error) {
	if req.Date.IsZero() {
		req.Date = allocation.DayOf(s.now())
	}

	result := newRunResult(ModeSimple)
	result.RunID = uuid.New().String()
	result.Scope = req.Scope
	result.Date = allocation.DayOf(req.Date)
	result.Actor = req.Actor

	err := s.Store.WithTx(ctx, func(tx allocation.Store) error {
		roster, err := tx.OnDuty(ctx, req.Scope, req.Date)
		if err != nil {
			return s.runError(req.Scope, "load roster", err)
		}
		if len(roster) == 0 {
			return fmt.Errorf("%w: nobody on duty on %s", allocation.ErrNoAgents, allocation.FormatDay(req.Date))
		}

		cases, err := tx.Unassigned(ctx, req.Scope, s.batchSize())
		if err != nil {
			return s.runError(req.Scope, "load cases", err)
		}
		if len(cases) == 0 {
			return allocation.ErrNoCases
		}

		plan := allocation.PlanSimple(cases, roster)
		result.Unplaced = caseIDs(plan.Unplaced)
		if err := s.commit(ctx, tx, plan.Placements, req.Actor, result); err != nil {
			return s.runError(req.Scope, "claim cases", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.summarize()
	s.logger().Printf("[Assign] simple run %s date=%s assigned=%d contended=%d",
		result.RunID, allocation.FormatDay(result.Date), result.TotalAssigned, len(result.Contended))
	return result, nil
}

// =============================================================================
// SHARED
// =============================================================================

// commit claims every placement and keeps only the claims that landed.
func (s *AssignmentService) commit(ctx context.Context, tx allocation.Store, placements []allocation.Placement, actor allocation.ActorID, result *RunResult) error {
	at := s.now()
	result.At = at
	for _, p := range placements {
		ok, err := tx.Claim(ctx, p.Case.ID, p.Agent.ID, actor, at)
		if err != nil {
			return fmt.Errorf("claim %s: %w", p.Case.ID, err)
		}
		if !ok {
			result.Contended = append(result.Contended, p.Case.ID)
			continue
		}

		agentID, by, when := p.Agent.ID, actor, at
		p.Case.AssignedAgent = &agentID
		p.Case.AssignedBy = &by
		p.Case.AssignedAt = &when
		p.Case.Status = allocation.CaseStatusAssigned
		result.Placements = append(result.Placements, p)
	}
	return nil
}

func (s *AssignmentService) runError(scope allocation.ScopeID, op string, err error) error {
	return &allocation.RunError{Scope: scope, Op: op, Err: err}
}

func (s *AssignmentService) observe(mode string, start time.Time, result *RunResult, err error) {
	metrics.ObserveRun(mode, Outcome(err), time.Since(start).Seconds())
	if err != nil {
		if !allocation.IsNothingToDo(err) {
			s.logger().Printf("[Assign] %s run failed: %v", mode, err)
		}
		return
	}
	for l, n := range result.PerLevel {
		metrics.CasesAssignedTotal.WithLabelValues(mode, l.String()).Add(float64(n))
	}
	metrics.LeftoverPlacedTotal.Add(float64(result.LeftoverPlaced))
	metrics.UnplacedTotal.WithLabelValues(mode).Add(float64(len(result.Unplaced)))
	metrics.ContendedTotal.WithLabelValues(mode).Add(float64(len(result.Contended)))
}

// Outcome classifies a run error for metrics and API responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "assigned"
	case allocation.IsNothingToDo(err):
		return "nothing_to_do"
	case allocation.IsNotFound(err):
		return "not_found"
	case allocation.IsClientError(err), allocation.IsConflict(err):
		return "invalid"
	}
	return "failed"
}
