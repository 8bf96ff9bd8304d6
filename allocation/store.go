/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between assignment logic and storage. The engine reads
  the roster and case pool through narrow interfaces and writes only through
  Claim and the config operations.

KEY INTERFACES:
  RosterProvider: Agents on duty for a scope and date, with their levels
  CaseInventory:  Unassigned cases, oldest first
  CaseClaimer:    Conditional assignment of one case
  ConfigStore:    Level config lifecycle rows
  RosterStore:    Agents, duty entries and level history
  TxStore:        All of the above plus WithTx for atomic runs

CLAIM CONTRACT:
  Claim must behave like
    UPDATE cases SET ... WHERE id = ? AND assigned_agent IS NULL
  and report whether a row changed. A false return means another run got
  there first; the case is simply not counted, never double-assigned.

ONE ACTIVE ROW:
  DeactivateConfigs + InsertConfig (or PromoteConfig) and DeactivateLevels +
  InsertLevel are always called together inside WithTx, so readers never
  observe zero or two active rows.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - allocation/store/memory.go: In-memory for testing

SEE ALSO:
  - collections/*.go: Services built on these interfaces
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// READ SIDE - What a run consumes
// =============================================================================

// RosterProvider resolves the agents on duty. An empty scope means every scope.
type RosterProvider interface {
	// OnDuty returns working entries for active agents, in roster order, each
	// resolved to the agent's active level in the entry's scope
	// (LevelUnleveled when none).
	OnDuty(ctx context.Context, scope ScopeID, date time.Time) ([]RosterEntry, error)
}

// CaseInventory resolves unassigned cases. An empty scope means every scope.
type CaseInventory interface {
	// Unassigned returns cases with no assigned agent, oldest first.
	// limit <= 0 means no limit.
	Unassigned(ctx context.Context, scope ScopeID, limit int) ([]Case, error)
}

// CaseClaimer assigns a case only if it is still unassigned.
type CaseClaimer interface {
	Claim(ctx context.Context, id CaseID, agent AgentID, by ActorID, at time.Time) (bool, error)
}

// =============================================================================
// CONFIG STORE
// =============================================================================

type ConfigStore interface {
	// GetConfig returns ErrConfigNotFound for unknown ids.
	GetConfig(ctx context.Context, id ConfigID) (*LevelConfig, error)

	// ActiveConfig returns the active config in state for scope and date,
	// or nil when there is none.
	ActiveConfig(ctx context.Context, scope ScopeID, date time.Time, state ConfigState) (*LevelConfig, error)

	InsertConfig(ctx context.Context, cfg LevelConfig) error

	// DeactivateConfigs clears the active flag on every config in state for
	// scope and date and returns how many changed.
	DeactivateConfigs(ctx context.Context, scope ScopeID, date time.Time, state ConfigState) (int, error)

	// PromoteConfig turns a suggested config into an active approved one.
	PromoteConfig(ctx context.Context, id ConfigID, approver ActorID, at time.Time) error

	// RecordRun stamps run bookkeeping on a config.
	RecordRun(ctx context.Context, id ConfigID, assigned int, at time.Time) error
}

// =============================================================================
// ROSTER STORE - Agents, duty entries, level history
// =============================================================================

// DutyRecord is a stored roster entry keyed by (agent, scope, date).
type DutyRecord struct {
	ID        string
	AgentID   AgentID
	Scope     ScopeID
	Date      time.Time
	Working   bool
	UpdatedBy ActorID
	UpdatedAt time.Time
}

// LevelRecord is one row of an agent's append-only level history in a scope.
type LevelRecord struct {
	ID        string
	AgentID   AgentID
	Scope     ScopeID
	Level     Level
	Active    bool
	CreatedBy ActorID
	CreatedAt time.Time
}

type RosterStore interface {
	SaveAgent(ctx context.Context, agent Agent) error

	// GetAgent returns ErrAgentNotFound for unknown ids.
	GetAgent(ctx context.Context, id AgentID) (*Agent, error)
	ListAgents(ctx context.Context) ([]Agent, error)

	// GetDuty returns nil when no entry exists.
	GetDuty(ctx context.Context, agent AgentID, scope ScopeID, date time.Time) (*DutyRecord, error)
	UpsertDuty(ctx context.Context, rec DutyRecord) error
	DeleteDuty(ctx context.Context, agent AgentID, scope ScopeID, date time.Time) (bool, error)

	// ActiveLevel returns nil when the agent has no level in scope.
	ActiveLevel(ctx context.Context, agent AgentID, scope ScopeID) (*LevelRecord, error)
	DeactivateLevels(ctx context.Context, agent AgentID, scope ScopeID) (int, error)
	InsertLevel(ctx context.Context, rec LevelRecord) error

	// LevelHistory lists records newest first.
	LevelHistory(ctx context.Context, agent AgentID, scope ScopeID) ([]LevelRecord, error)
}

// CaseStore covers case ingestion and lookup, which happen outside runs.
type CaseStore interface {
	SaveCase(ctx context.Context, c Case) error

	// GetCase returns ErrCaseNotFound for unknown ids.
	GetCase(ctx context.Context, id CaseID) (*Case, error)
}

// =============================================================================
// COMBINED / TRANSACTIONAL
// =============================================================================

type Store interface {
	RosterProvider
	CaseInventory
	CaseClaimer
	ConfigStore
	RosterStore
	CaseStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the Store passed to fn
	// is rolled back. If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
