/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements allocation.TxStore using SQLite. The same statements run on
  PostgreSQL with minor dialect changes (partial unique indexes, ON CONFLICT).

INTERFACES IMPLEMENTED:
  allocation.RosterProvider: Duty roster joined with active agent levels
  allocation.CaseInventory:  Unassigned cases, oldest first
  allocation.CaseClaimer:    Conditional UPDATE claim
  allocation.ConfigStore:    Level config lifecycle rows
  allocation.RosterStore:    Agents, duty entries, level history
  allocation.TxStore:        WithTx

KEY TABLES:
  agents:        Staff identities
  agent_levels:  Append-only level history per (agent, scope)
  duty_roster:   One row per (agent, scope, date)
  cases:         Collections cases with assignment columns
  level_configs: Suggested/approved splits, self-referencing based_on

INDEXES:
  - idx_agent_levels_one_active: at most one active level per (agent, scope)
  - idx_level_configs_one_active: at most one active config per (scope, date, state)
  - idx_cases_unassigned: hot path for case selection

CLAIMS:
  Claim is
    UPDATE cases SET ... WHERE id = ? AND assigned_agent IS NULL
  and uses RowsAffected as the truth. Two runs racing for the same case can
  never both win.

CONCURRENCY:
  The pool is limited to one connection, so ":memory:" databases stay a
  single database and SQLite sees one writer. WithTx additionally serializes
  transactions in process.

USAGE:
  store, err := sqlite.New("./data/collections.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - allocation/store.go: Interface definitions
  - allocation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/collections-engine/allocation"
)

const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements allocation.TxStore using SQLite.
type Store struct {
	*queries
	db   *sql.DB
	txMu sync.Mutex
}

// queries holds every statement; bound to the pool or to a transaction.
type queries struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		auth_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Append-only level history: changing level deactivates, never overwrites
	CREATE TABLE IF NOT EXISTS agent_levels (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		scope TEXT NOT NULL,
		level TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_agent_levels_one_active
		ON agent_levels(agent_id, scope) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_agent_levels_history
		ON agent_levels(agent_id, scope, created_at DESC);

	CREATE TABLE IF NOT EXISTS duty_roster (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL REFERENCES agents(id),
		scope TEXT NOT NULL,
		date TEXT NOT NULL,
		working BOOLEAN NOT NULL DEFAULT TRUE,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		UNIQUE(agent_id, scope, date)
	);

	CREATE INDEX IF NOT EXISTS idx_duty_roster_date_scope
		ON duty_roster(date, scope);

	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		dpd INTEGER NOT NULL CHECK (dpd >= 0),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		assigned_agent TEXT REFERENCES agents(id),
		assigned_by TEXT,
		assigned_at TEXT,
		CHECK ((assigned_agent IS NULL) = (assigned_at IS NULL)),
		CHECK ((assigned_agent IS NULL) = (assigned_by IS NULL))
	);

	CREATE INDEX IF NOT EXISTS idx_cases_unassigned
		ON cases(scope, created_at, id) WHERE assigned_agent IS NULL;
	CREATE INDEX IF NOT EXISTS idx_cases_agent
		ON cases(assigned_agent);

	CREATE TABLE IF NOT EXISTS level_configs (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		date TEXT NOT NULL,
		state TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		pct_team_leader TEXT NOT NULL,
		pct_senior TEXT NOT NULL,
		pct_mid_level TEXT NOT NULL,
		pct_junior TEXT NOT NULL,
		agent_counts_json TEXT NOT NULL DEFAULT '{}',
		case_count INTEGER NOT NULL DEFAULT 0,
		based_on TEXT REFERENCES level_configs(id),
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		last_run_at TEXT,
		assigned_count INTEGER NOT NULL DEFAULT 0
	);

	-- At most one active suggested and one active approved config per day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_level_configs_one_active
		ON level_configs(scope, date, state) WHERE active = 1;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (allocation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store allocation.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// =============================================================================
// ROSTER PROVIDER / CASE INVENTORY / CLAIM
// =============================================================================

// OnDuty returns working entries for active agents with their active level.
func (s *queries) OnDuty(ctx context.Context, scope allocation.ScopeID, date time.Time) ([]allocation.RosterEntry, error) {
	query := `
		SELECT a.id, a.auth_id, a.name, a.active, d.scope, d.date, COALESCE(l.level, '')
		FROM duty_roster d
		JOIN agents a ON a.id = d.agent_id
		LEFT JOIN agent_levels l
		       ON l.agent_id = d.agent_id AND l.scope = d.scope AND l.active = 1
		WHERE d.date = ? AND d.working = 1 AND a.active = 1
		  AND (? = '' OR d.scope = ?)
		ORDER BY a.name, a.id
	`

	rows, err := s.q.QueryContext(ctx, query, allocation.FormatDay(date), scope, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()

	var entries []allocation.RosterEntry
	for rows.Next() {
		var (
			e     allocation.RosterEntry
			day   string
			level string
		)
		if err := rows.Scan(&e.Agent.ID, &e.Agent.AuthID, &e.Agent.Name, &e.Agent.Active, &e.Scope, &day, &level); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		if e.Date, err = allocation.ParseDay(day); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry %s: bad date %q: %w", e.Agent.ID, day, err)
		}
		e.Working = true
		// An unknown stored level degrades to unleveled, which the run excludes.
		e.Level, _ = allocation.ParseLevel(level)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const caseColumns = `id, scope, dpd, status, created_at, assigned_agent, assigned_by, assigned_at`

// Unassigned returns unassigned cases, oldest first.
func (s *queries) Unassigned(ctx context.Context, scope allocation.ScopeID, limit int) ([]allocation.Case, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT ` + caseColumns + `
		FROM cases
		WHERE assigned_agent IS NULL AND (? = '' OR scope = ?)
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return s.queryCases(ctx, query, scope, scope, limit)
}

// Claim assigns a case only if it is still unassigned.
func (s *queries) Claim(ctx context.Context, id allocation.CaseID, agent allocation.AgentID, by allocation.ActorID, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE cases
		SET assigned_agent = ?, assigned_by = ?, assigned_at = ?, status = ?
		WHERE id = ? AND assigned_agent IS NULL
	`, agent, by, formatTS(at), allocation.CaseStatusAssigned, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// =============================================================================
// CASE STORE
// =============================================================================

// SaveCase inserts or replaces a case.
func (s *queries) SaveCase(ctx context.Context, c allocation.Case) error {
	if c.Status == "" {
		c.Status = allocation.CaseStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			dpd = excluded.dpd,
			status = excluded.status,
			assigned_agent = excluded.assigned_agent,
			assigned_by = excluded.assigned_by,
			assigned_at = excluded.assigned_at
	`

	var assignedAt *string
	if c.AssignedAt != nil {
		t := formatTS(*c.AssignedAt)
		assignedAt = &t
	}
	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.Scope, c.DPD, c.Status, formatTS(c.CreatedAt),
		c.AssignedAgent, c.AssignedBy, assignedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save case: %w", err)
	}
	return nil
}

// GetCase retrieves a case by ID.
func (s *queries) GetCase(ctx context.Context, id allocation.CaseID) (*allocation.Case, error) {
	cases, err := s.queryCases(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, allocation.ErrCaseNotFound
	}
	return &cases[0], nil
}

// CasesByAgent returns the cases currently assigned to an agent.
func (s *queries) CasesByAgent(ctx context.Context, agent allocation.AgentID) ([]allocation.Case, error) {
	return s.queryCases(ctx, `SELECT `+caseColumns+` FROM cases WHERE assigned_agent = ? ORDER BY assigned_at, id`, agent)
}

func (s *queries) queryCases(ctx context.Context, query string, args ...any) ([]allocation.Case, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var cases []allocation.Case
	for rows.Next() {
		var (
			c          allocation.Case
			createdAt  string
			agent      sql.NullString
			by         sql.NullString
			assignedAt sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Scope, &c.DPD, &c.Status, &createdAt, &agent, &by, &assignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		c.CreatedAt = parseTS(createdAt)
		if agent.Valid {
			id := allocation.AgentID(agent.String)
			actor := allocation.ActorID(by.String)
			at := parseTS(assignedAt.String)
			c.AssignedAgent, c.AssignedBy, c.AssignedAt = &id, &actor, &at
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// =============================================================================
// CONFIG STORE (allocation.ConfigStore interface)
// =============================================================================

const configColumns = `id, scope, date, state, active,
	pct_team_leader, pct_senior, pct_mid_level, pct_junior,
	agent_counts_json, case_count, based_on, created_by, created_at,
	approved_by, approved_at, last_run_at, assigned_count`

// GetConfig retrieves a config by ID.
func (s *queries) GetConfig(ctx context.Context, id allocation.ConfigID) (*allocation.LevelConfig, error) {
	cfgs, err := s.queryConfigs(ctx, `SELECT `+configColumns+` FROM level_configs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, allocation.ErrConfigNotFound
	}
	return &cfgs[0], nil
}

// ActiveConfig returns the active config in state for scope and date.
func (s *queries) ActiveConfig(ctx context.Context, scope allocation.ScopeID, date time.Time, state allocation.ConfigState) (*allocation.LevelConfig, error) {
	cfgs, err := s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM level_configs
		WHERE scope = ? AND date = ? AND state = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1
	`, scope, allocation.FormatDay(date), state)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, nil
	}
	return &cfgs[0], nil
}

// ListConfigs returns every config for scope and date, newest first.
func (s *queries) ListConfigs(ctx context.Context, scope allocation.ScopeID, date time.Time) ([]allocation.LevelConfig, error) {
	return s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM level_configs
		WHERE scope = ? AND date = ?
		ORDER BY created_at DESC
	`, scope, allocation.FormatDay(date))
}

// InsertConfig persists a new config.
func (s *queries) InsertConfig(ctx context.Context, cfg allocation.LevelConfig) error {
	counts := make(map[string]int, len(cfg.AgentCounts))
	for l, n := range cfg.AgentCounts {
		counts[l.String()] = n
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return err
	}

	var approvedBy, approvedAt, lastRunAt *string
	if cfg.ApprovedBy != nil {
		v := string(*cfg.ApprovedBy)
		approvedBy = &v
	}
	if cfg.ApprovedAt != nil {
		v := formatTS(*cfg.ApprovedAt)
		approvedAt = &v
	}
	if cfg.LastRunAt != nil {
		v := formatTS(*cfg.LastRunAt)
		lastRunAt = &v
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO level_configs (`+configColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cfg.ID, cfg.Scope, allocation.FormatDay(cfg.Date), cfg.State, cfg.Active,
		cfg.Split.Get(allocation.LevelTeamLeader),
		cfg.Split.Get(allocation.LevelSenior),
		cfg.Split.Get(allocation.LevelMidLevel),
		cfg.Split.Get(allocation.LevelJunior),
		string(countsJSON), cfg.CaseCount, cfg.BasedOn, cfg.CreatedBy, formatTS(cfg.CreatedAt),
		approvedBy, approvedAt, lastRunAt, cfg.AssignedCount,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s config for %s on %s", allocation.ErrActiveConflict,
				cfg.State, cfg.Scope, allocation.FormatDay(cfg.Date))
		}
		return fmt.Errorf("failed to insert config: %w", err)
	}
	return nil
}

// DeactivateConfigs clears the active flag for scope, date and state.
func (s *queries) DeactivateConfigs(ctx context.Context, scope allocation.ScopeID, date time.Time, state allocation.ConfigState) (int, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE level_configs SET active = 0
		WHERE scope = ? AND date = ? AND state = ? AND active = 1
	`, scope, allocation.FormatDay(date), state)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate configs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PromoteConfig turns a suggested config into the active approved one.
func (s *queries) PromoteConfig(ctx context.Context, id allocation.ConfigID, approver allocation.ActorID, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE level_configs
		SET state = ?, active = 1, approved_by = ?, approved_at = ?
		WHERE id = ? AND state = ?
	`, allocation.ConfigApproved, approver, formatTS(at), id, allocation.ConfigSuggested)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: approved config for %s", allocation.ErrActiveConflict, id)
		}
		return fmt.Errorf("failed to promote config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetConfig(ctx, id); err != nil {
			return err
		}
		return allocation.ErrConfigNotSuggested
	}
	return nil
}

// RecordRun stamps run bookkeeping on a config.
func (s *queries) RecordRun(ctx context.Context, id allocation.ConfigID, assigned int, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE level_configs
		SET assigned_count = assigned_count + ?, last_run_at = ?
		WHERE id = ?
	`, assigned, formatTS(at), id)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return allocation.ErrConfigNotFound
	}
	return nil
}

func (s *queries) queryConfigs(ctx context.Context, query string, args ...any) ([]allocation.LevelConfig, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var cfgs []allocation.LevelConfig
	for rows.Next() {
		var (
			cfg                        allocation.LevelConfig
			day, createdAt, countsJSON string
			tl, senior, mid, junior    decimal.Decimal
			basedOn, approvedBy        sql.NullString
			approvedAt, lastRunAt      sql.NullString
		)
		err := rows.Scan(
			&cfg.ID, &cfg.Scope, &day, &cfg.State, &cfg.Active,
			&tl, &senior, &mid, &junior,
			&countsJSON, &cfg.CaseCount, &basedOn, &cfg.CreatedBy, &createdAt,
			&approvedBy, &approvedAt, &lastRunAt, &cfg.AssignedCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}

		if cfg.Date, err = allocation.ParseDay(day); err != nil {
			return nil, fmt.Errorf("failed to scan config %s: bad date %q: %w", cfg.ID, day, err)
		}
		cfg.CreatedAt = parseTS(createdAt)
		cfg.Split = allocation.Split{
			allocation.LevelTeamLeader: tl,
			allocation.LevelSenior:     senior,
			allocation.LevelMidLevel:   mid,
			allocation.LevelJunior:     junior,
		}

		var counts map[string]int
		if err := json.Unmarshal([]byte(countsJSON), &counts); err != nil {
			return nil, fmt.Errorf("config %s has malformed agent counts: %w", cfg.ID, err)
		}
		cfg.AgentCounts = make(map[allocation.Level]int, len(counts))
		for name, n := range counts {
			if l, err := allocation.ParseLevel(name); err == nil {
				cfg.AgentCounts[l] = n
			}
		}

		if basedOn.Valid {
			id := allocation.ConfigID(basedOn.String)
			cfg.BasedOn = &id
		}
		if approvedBy.Valid {
			a := allocation.ActorID(approvedBy.String)
			cfg.ApprovedBy = &a
		}
		if approvedAt.Valid {
			t := parseTS(approvedAt.String)
			cfg.ApprovedAt = &t
		}
		if lastRunAt.Valid {
			t := parseTS(lastRunAt.String)
			cfg.LastRunAt = &t
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, rows.Err()
}

// =============================================================================
// AGENTS
// =============================================================================

// SaveAgent inserts or updates an agent.
func (s *queries) SaveAgent(ctx context.Context, a allocation.Agent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO agents (id, auth_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			auth_id = excluded.auth_id,
			name = excluded.name,
			active = excluded.active
	`, a.ID, a.AuthID, a.Name, a.Active, formatTS(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *queries) GetAgent(ctx context.Context, id allocation.AgentID) (*allocation.Agent, error) {
	var a allocation.Agent
	err := s.q.QueryRowContext(ctx,
		"SELECT id, auth_id, name, active FROM agents WHERE id = ?", id,
	).Scan(&a.ID, &a.AuthID, &a.Name, &a.Active)
	if err == sql.ErrNoRows {
		return nil, allocation.ErrAgentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAgents returns all agents ordered by name.
func (s *queries) ListAgents(ctx context.Context) ([]allocation.Agent, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT id, auth_id, name, active FROM agents ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []allocation.Agent
	for rows.Next() {
		var a allocation.Agent
		if err := rows.Scan(&a.ID, &a.AuthID, &a.Name, &a.Active); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// =============================================================================
// DUTY ROSTER
// =============================================================================

// GetDuty returns the duty entry for (agent, scope, date), or nil.
func (s *queries) GetDuty(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (*allocation.DutyRecord, error) {
	var (
		d         allocation.DutyRecord
		day       string
		updatedAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, agent_id, scope, date, working, updated_by, updated_at
		FROM duty_roster WHERE agent_id = ? AND scope = ? AND date = ?
	`, agent, scope, allocation.FormatDay(date)).Scan(&d.ID, &d.AgentID, &d.Scope, &day, &d.Working, &d.UpdatedBy, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if d.Date, err = allocation.ParseDay(day); err != nil {
		return nil, fmt.Errorf("failed to scan duty entry %s: bad date %q: %w", d.ID, day, err)
	}
	d.UpdatedAt = parseTS(updatedAt)
	return &d, nil
}

// UpsertDuty writes the single entry for (agent, scope, date).
func (s *queries) UpsertDuty(ctx context.Context, d allocation.DutyRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO duty_roster (id, agent_id, scope, date, working, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, scope, date) DO UPDATE SET
			working = excluded.working,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`, d.ID, d.AgentID, d.Scope, allocation.FormatDay(d.Date), d.Working, d.UpdatedBy, formatTS(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert duty: %w", err)
	}
	return nil
}

// DeleteDuty removes a duty entry.
func (s *queries) DeleteDuty(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM duty_roster WHERE agent_id = ? AND scope = ? AND date = ?",
		agent, scope, allocation.FormatDay(date))
	if err != nil {
		return false, fmt.Errorf("failed to delete duty: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// =============================================================================
// AGENT LEVELS
// =============================================================================

const levelColumns = `id, agent_id, scope, level, active, created_by, created_at`

// ActiveLevel returns the agent's active level record in scope, or nil.
func (s *queries) ActiveLevel(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) (*allocation.LevelRecord, error) {
	recs, err := s.queryLevels(ctx, `
		SELECT `+levelColumns+` FROM agent_levels
		WHERE agent_id = ? AND scope = ? AND active = 1
	`, agent, scope)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// DeactivateLevels clears the active flag on the agent's level in scope.
func (s *queries) DeactivateLevels(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) (int, error) {
	res, err := s.q.ExecContext(ctx,
		"UPDATE agent_levels SET active = 0 WHERE agent_id = ? AND scope = ? AND active = 1",
		agent, scope)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate levels: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// InsertLevel appends a level record.
func (s *queries) InsertLevel(ctx context.Context, rec allocation.LevelRecord) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO agent_levels (`+levelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.AgentID, rec.Scope, rec.Level.String(), rec.Active, rec.CreatedBy, formatTS(rec.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: level for %s in %s", allocation.ErrActiveConflict, rec.AgentID, rec.Scope)
		}
		return fmt.Errorf("failed to insert level: %w", err)
	}
	return nil
}

// LevelHistory lists level records newest first.
func (s *queries) LevelHistory(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) ([]allocation.LevelRecord, error) {
	return s.queryLevels(ctx, `
		SELECT `+levelColumns+` FROM agent_levels
		WHERE agent_id = ? AND scope = ?
		ORDER BY created_at DESC, rowid DESC
	`, agent, scope)
}

func (s *queries) queryLevels(ctx context.Context, query string, args ...any) ([]allocation.LevelRecord, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query levels: %w", err)
	}
	defer rows.Close()

	var recs []allocation.LevelRecord
	for rows.Next() {
		var (
			r         allocation.LevelRecord
			level     string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.AgentID, &r.Scope, &level, &r.Active, &r.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan level: %w", err)
		}
		r.Level, _ = allocation.ParseLevel(level)
		r.CreatedAt = parseTS(createdAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo seeding).
func (s *Store) Reset(ctx context.Context) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tables := []string{"cases", "duty_roster", "agent_levels", "level_configs", "agents"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ allocation.TxStore = (*Store)(nil)
	_ allocation.Store   = (*queries)(nil)
)
