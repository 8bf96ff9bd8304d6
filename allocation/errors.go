/*
errors.go - Centralized error types for the assignment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Services wrap these errors with context; the API maps them to statuses.

ERROR CATEGORIES:
  1. Nothing to do - Empty preconditions (no agents, no cases). Routine.
  2. Client errors - Bad percentages, wrong lifecycle state, locked roster.
  3. Not found    - Unknown config, agent or case.
  4. Failures     - Anything else, usually storage errors inside a run.

USAGE:
  result, err := svc.RunStratified(ctx, req)
  switch {
  case allocation.IsNothingToDo(err):
      // no cases today, log and move on
  case err != nil:
      // alarming, the run rolled back
  }

SEE ALSO:
  - collections/assign.go: Wraps storage failures in RunError
  - api/handlers.go: Maps categories to HTTP status codes
*/
package allocation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoAgents is returned when no eligible agent is on duty for a run.
	ErrNoAgents = errors.New("no agents available")

	// ErrNoCases is returned when the scope has no unassigned cases.
	ErrNoCases = errors.New("no cases available")

	// ErrNothingToSuggest is returned when a suggestion cannot be generated
	// because the roster or the case pool is empty.
	ErrNothingToSuggest = errors.New("no data to suggest from")

	// ErrConfigNotFound is returned when a referenced level config doesn't exist.
	ErrConfigNotFound = errors.New("level config not found")

	// ErrConfigNotApproved is returned when a run references a config that is
	// not an active approved config.
	ErrConfigNotApproved = errors.New("level config is not approved")

	// ErrConfigNotSuggested is returned when approving a config that is no
	// longer in the suggested state.
	ErrConfigNotSuggested = errors.New("level config is not a suggestion")

	// ErrConfigScopeMismatch is returned when a config is used outside the
	// scope and date it was created for.
	ErrConfigScopeMismatch = errors.New("level config does not match scope and date")

	// ErrNoSuggestion is returned when saving explicit percentages without an
	// active suggestion to copy counts from.
	ErrNoSuggestion = errors.New("no active suggested config")

	// ErrInvalidPercentages is returned for malformed level splits.
	ErrInvalidPercentages = errors.New("invalid percentages")

	// ErrScopeRequired is returned when an operation needs a scope and got none.
	ErrScopeRequired = errors.New("scope is required")

	// ErrInvalidLevel is returned for unknown level names.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrRosterLocked is returned when editing a duty entry past its cutoff.
	ErrRosterLocked = errors.New("roster entry is locked")

	// ErrActiveConflict is returned by stores when a write would leave two
	// active rows where only one may exist.
	ErrActiveConflict = errors.New("another active record exists")

	// ErrAgentNotFound is returned when a referenced agent doesn't exist.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrCaseNotFound is returned when a referenced case doesn't exist.
	ErrCaseNotFound = errors.New("case not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PercentageSumError reports a split that does not add up to 100.
type PercentageSumError struct {
	Sum decimal.Decimal
}

func (e *PercentageSumError) Error() string {
	return fmt.Sprintf("percentages must sum to 100 (±%s), got %s", PercentTolerance, e.Sum)
}

func (e *PercentageSumError) Unwrap() error {
	return ErrInvalidPercentages
}

// RosterLockedError reports an edit attempted after the roster cutoff.
type RosterLockedError struct {
	AgentID AgentID
	Date    time.Time
	Cutoff  time.Time
}

func (e *RosterLockedError) Error() string {
	return fmt.Sprintf("roster for agent %s on %s locked since %s",
		e.AgentID, FormatDay(e.Date), e.Cutoff.Format(time.RFC3339))
}

func (e *RosterLockedError) Unwrap() error {
	return ErrRosterLocked
}

// RunError wraps a failure that happened while executing a run. The run's
// transaction has been rolled back when this is returned.
type RunError struct {
	Scope ScopeID
	Op    string
	Err   error
}

func (e *RunError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for scope %s: %v", e.Op, e.Scope, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNothingToDo returns true for empty-precondition outcomes that callers
// should treat as routine.
func IsNothingToDo(err error) bool {
	return errors.Is(err, ErrNoAgents) ||
		errors.Is(err, ErrNoCases) ||
		errors.Is(err, ErrNothingToSuggest)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPercentages) ||
		errors.Is(err, ErrInvalidLevel) ||
		errors.Is(err, ErrScopeRequired) ||
		errors.Is(err, ErrConfigScopeMismatch)
}

// IsConflict returns true when the target exists but is in the wrong state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConfigNotApproved) ||
		errors.Is(err, ErrConfigNotSuggested) ||
		errors.Is(err, ErrNoSuggestion) ||
		errors.Is(err, ErrRosterLocked) ||
		errors.Is(err, ErrActiveConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrAgentNotFound) ||
		errors.Is(err, ErrCaseNotFound)
}
