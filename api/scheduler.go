/*
scheduler.go - Automated assignment scheduler

PURPOSE:
  Periodically assigns new cases for each configured scope so cases that
  arrive during the day do not wait for an operator.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Per scope: if today has an active approved config, runs the stratified
    path with it; otherwise falls back to the simple path for that scope
  - "Nothing to do" outcomes (no agents on duty, no cases) are logged at
    info level, never treated as failures
  - Runs are idempotent: already assigned cases are never selected again

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active
  - Scopes: Which scopes to process

USAGE:
  scheduler := NewAssignmentScheduler(store, handler.Assign)
  scheduler.Scopes = []allocation.ScopeID{"bucket-a"}
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Manual run endpoints
  - collections/assign.go: AssignmentService
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/collections-engine/allocation"
	"github.com/warp/collections-engine/collections"
)

// SchedulerActor is recorded as AssignedBy for scheduled runs.
const SchedulerActor allocation.ActorID = "scheduler"

// AssignmentScheduler handles automated periodic assignment.
type AssignmentScheduler struct {
	Store         allocation.ConfigStore
	Assign        *collections.AssignmentService
	Scopes        []allocation.ScopeID
	CheckInterval time.Duration
	Enabled       bool
	Logger        *log.Logger

	// Now is the clock; nil uses time.Now.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAssignmentScheduler creates a new scheduler.
func NewAssignmentScheduler(store allocation.ConfigStore, assign *collections.AssignmentService) *AssignmentScheduler {
	return &AssignmentScheduler{
		Store:         store,
		Assign:        assign,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

func (s *AssignmentScheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *AssignmentScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start begins the scheduler.
func (s *AssignmentScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger().Println("[Scheduler] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger().Printf("[Scheduler] Started with check interval: %v, scopes: %v", s.CheckInterval, s.Scopes)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *AssignmentScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger().Println("[Scheduler] Stopped")
	}
}

func (s *AssignmentScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// ScopeOutcome is the result of one scope in a scheduler pass.
type ScopeOutcome struct {
	Scope    allocation.ScopeID
	Mode     string
	Outcome  string
	Assigned int
	Err      error
}

// RunNow processes every configured scope once and reports what happened.
func (s *AssignmentScheduler) RunNow(ctx context.Context) []ScopeOutcome {
	today := allocation.DayOf(s.now())
	outcomes := make([]ScopeOutcome, 0, len(s.Scopes))

	for _, scope := range s.Scopes {
		out := s.processScope(ctx, scope, today)
		outcomes = append(outcomes, out)

		switch {
		case out.Err == nil:
			s.logger().Printf("[Scheduler] %s %s: %d assigned", scope, out.Mode, out.Assigned)
		case allocation.IsNothingToDo(out.Err):
			s.logger().Printf("[Scheduler] %s %s: nothing to do (%v)", scope, out.Mode, out.Err)
		default:
			s.logger().Printf("[Scheduler] Error processing %s: %v", scope, out.Err)
		}
	}
	return outcomes
}

func (s *AssignmentScheduler) processScope(ctx context.Context, scope allocation.ScopeID, day time.Time) ScopeOutcome {
	out := ScopeOutcome{Scope: scope}

	cfg, err := s.Store.ActiveConfig(ctx, scope, day, allocation.ConfigApproved)
	if err != nil {
		out.Err = err
		out.Outcome = collections.Outcome(err)
		return out
	}

	var result *collections.RunResult
	if cfg != nil {
		out.Mode = collections.ModeStratified
		result, err = s.Assign.RunStratified(ctx, collections.StratifiedRequest{
			Scope:    scope,
			Date:     day,
			ConfigID: cfg.ID,
			Actor:    SchedulerActor,
		})
	} else {
		out.Mode = collections.ModeSimple
		result, err = s.Assign.RunSimple(ctx, collections.SimpleRequest{
			Date:  day,
			Scope: scope,
			Actor: SchedulerActor,
		})
	}

	out.Err = err
	out.Outcome = collections.Outcome(err)
	if result != nil {
		out.Assigned = result.TotalAssigned
	}
	return out
}
