// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/collections-engine/allocation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements allocation.TxStore in process memory. WithTx snapshots
// the whole state and restores it when fn fails.
type Memory struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	agents  map[allocation.AgentID]allocation.Agent
	duty    []allocation.DutyRecord
	levels  []allocation.LevelRecord
	cases   map[allocation.CaseID]allocation.Case
	configs map[allocation.ConfigID]allocation.LevelConfig
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		agents:  make(map[allocation.AgentID]allocation.Agent),
		cases:   make(map[allocation.CaseID]allocation.Case),
		configs: make(map[allocation.ConfigID]allocation.LevelConfig),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.agents {
		c.agents[k] = v
	}
	c.duty = append(c.duty, s.duty...)
	c.levels = append(c.levels, s.levels...)
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.configs {
		c.configs[k] = v
	}
	return c
}

// WithTx runs fn against the store; a failing fn leaves no trace.
func (m *Memory) WithTx(ctx context.Context, fn func(allocation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// Reset clears all data.
func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) OnDuty(ctx context.Context, scope allocation.ScopeID, date time.Time) ([]allocation.RosterEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.onDuty(scope, date), nil
}

func (m *Memory) Unassigned(ctx context.Context, scope allocation.ScopeID, limit int) ([]allocation.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.unassigned(scope, limit), nil
}

func (m *Memory) Claim(ctx context.Context, id allocation.CaseID, agent allocation.AgentID, by allocation.ActorID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.claim(id, agent, by, at), nil
}

func (m *Memory) GetConfig(ctx context.Context, id allocation.ConfigID) (*allocation.LevelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getConfig(id)
}

func (m *Memory) ActiveConfig(ctx context.Context, scope allocation.ScopeID, date time.Time, st allocation.ConfigState) (*allocation.LevelConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.activeConfig(scope, date, st), nil
}

func (m *Memory) InsertConfig(ctx context.Context, cfg allocation.LevelConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertConfig(cfg)
}

func (m *Memory) DeactivateConfigs(ctx context.Context, scope allocation.ScopeID, date time.Time, st allocation.ConfigState) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deactivateConfigs(scope, date, st), nil
}

func (m *Memory) PromoteConfig(ctx context.Context, id allocation.ConfigID, approver allocation.ActorID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.promote(id, approver, at)
}

func (m *Memory) RecordRun(ctx context.Context, id allocation.ConfigID, assigned int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.recordRun(id, assigned, at)
}

func (m *Memory) SaveAgent(ctx context.Context, agent allocation.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.agents[agent.ID] = agent
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, id allocation.AgentID) (*allocation.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getAgent(id)
}

func (m *Memory) ListAgents(ctx context.Context) ([]allocation.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAgents(), nil
}

func (m *Memory) GetDuty(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (*allocation.DutyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getDuty(agent, scope, date), nil
}

func (m *Memory) UpsertDuty(ctx context.Context, rec allocation.DutyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.upsertDuty(rec)
	return nil
}

func (m *Memory) DeleteDuty(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteDuty(agent, scope, date), nil
}

func (m *Memory) ActiveLevel(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) (*allocation.LevelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.activeLevel(agent, scope), nil
}

func (m *Memory) DeactivateLevels(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deactivateLevels(agent, scope), nil
}

func (m *Memory) InsertLevel(ctx context.Context, rec allocation.LevelRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertLevel(rec)
}

func (m *Memory) LevelHistory(ctx context.Context, agent allocation.AgentID, scope allocation.ScopeID) ([]allocation.LevelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.levelHistory(agent, scope), nil
}

func (m *Memory) SaveCase(ctx context.Context, c allocation.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.cases[c.ID] = c
	return nil
}

func (m *Memory) GetCase(ctx context.Context, id allocation.CaseID) (*allocation.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getCase(id)
}

// =============================================================================
// TRANSACTION VIEW - Same operations, lock already held by WithTx
// =============================================================================

type memTx struct {
	st *state
}

func (t *memTx) OnDuty(_ context.Context, scope allocation.ScopeID, date time.Time) ([]allocation.RosterEntry, error) {
	return t.st.onDuty(scope, date), nil
}

func (t *memTx) Unassigned(_ context.Context, scope allocation.ScopeID, limit int) ([]allocation.Case, error) {
	return t.st.unassigned(scope, limit), nil
}

func (t *memTx) Claim(_ context.Context, id allocation.CaseID, agent allocation.AgentID, by allocation.ActorID, at time.Time) (bool, error) {
	return t.st.claim(id, agent, by, at), nil
}

func (t *memTx) GetConfig(_ context.Context, id allocation.ConfigID) (*allocation.LevelConfig, error) {
	return t.st.getConfig(id)
}

func (t *memTx) ActiveConfig(_ context.Context, scope allocation.ScopeID, date time.Time, st allocation.ConfigState) (*allocation.LevelConfig, error) {
	return t.st.activeConfig(scope, date, st), nil
}

func (t *memTx) InsertConfig(_ context.Context, cfg allocation.LevelConfig) error {
	return t.st.insertConfig(cfg)
}

func (t *memTx) DeactivateConfigs(_ context.Context, scope allocation.ScopeID, date time.Time, st allocation.ConfigState) (int, error) {
	return t.st.deactivateConfigs(scope, date, st), nil
}

func (t *memTx) PromoteConfig(_ context.Context, id allocation.ConfigID, approver allocation.ActorID, at time.Time) error {
	return t.st.promote(id, approver, at)
}

func (t *memTx) RecordRun(_ context.Context, id allocation.ConfigID, assigned int, at time.Time) error {
	return t.st.recordRun(id, assigned, at)
}

func (t *memTx) SaveAgent(_ context.Context, agent allocation.Agent) error {
	t.st.agents[agent.ID] = agent
	return nil
}

func (t *memTx) GetAgent(_ context.Context, id allocation.AgentID) (*allocation.Agent, error) {
	return t.st.getAgent(id)
}

func (t *memTx) ListAgents(_ context.Context) ([]allocation.Agent, error) {
	return t.st.listAgents(), nil
}

func (t *memTx) GetDuty(_ context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (*allocation.DutyRecord, error) {
	return t.st.getDuty(agent, scope, date), nil
}

func (t *memTx) UpsertDuty(_ context.Context, rec allocation.DutyRecord) error {
	t.st.upsertDuty(rec)
	return nil
}

func (t *memTx) DeleteDuty(_ context.Context, agent allocation.AgentID, scope allocation.ScopeID, date time.Time) (bool, error) {
	return t.st.deleteDuty(agent, scope, date), nil
}

func (t *memTx) ActiveLevel(_ context.Context, agent allocation.AgentID, scope allocation.ScopeID) (*allocation.LevelRecord, error) {
	return t.st.activeLevel(agent, scope), nil
}

func (t *memTx) DeactivateLevels(_ context.Context, agent allocation.AgentID, scope allocation.ScopeID) (int, error) {
	return t.st.deactivateLevels(agent, scope), nil
}

func (t *memTx) InsertLevel(_ context.Context, rec allocation.LevelRecord) error {
	return t.st.insertLevel(rec)
}

func (t *memTx) LevelHistory(_ context.Context, agent allocation.AgentID, scope allocation.ScopeID) ([]allocation.LevelRecord, error) {
	return t.st.levelHistory(agent, scope), nil
}

func (t *memTx) SaveCase(_ context.Context, c allocation.Case) error {
	t.st.cases[c.ID] = c
	return nil
}

func (t *memTx) GetCase(_ context.Context, id allocation.CaseID) (*allocation.Case, error) {
	return t.st.getCase(id)
}

// =============================================================================
// STATE OPERATIONS
// =============================================================================

func (s *state) onDuty(scope allocation.ScopeID, date time.Time) []allocation.RosterEntry {
	var entries []allocation.RosterEntry
	for _, d := range s.duty {
		if !d.Working || !allocation.SameDay(d.Date, date) {
			continue
		}
		if scope != "" && d.Scope != scope {
			continue
		}
		agent, ok := s.agents[d.AgentID]
		if !ok || !agent.Active {
			continue
		}
		level := allocation.LevelUnleveled
		if rec := s.activeLevel(d.AgentID, d.Scope); rec != nil {
			level = rec.Level
		}
		entries = append(entries, allocation.RosterEntry{
			Agent:   agent,
			Scope:   d.Scope,
			Date:    allocation.DayOf(d.Date),
			Level:   level,
			Working: true,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Agent.Name != entries[j].Agent.Name {
			return entries[i].Agent.Name < entries[j].Agent.Name
		}
		return entries[i].Agent.ID < entries[j].Agent.ID
	})
	return entries
}

func (s *state) unassigned(scope allocation.ScopeID, limit int) []allocation.Case {
	var out []allocation.Case
	for _, c := range s.cases {
		if c.IsAssigned() || (scope != "" && c.Scope != scope) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *state) claim(id allocation.CaseID, agent allocation.AgentID, by allocation.ActorID, at time.Time) bool {
	c, ok := s.cases[id]
	if !ok || c.IsAssigned() {
		return false
	}
	c.AssignedAgent = &agent
	c.AssignedBy = &by
	c.AssignedAt = &at
	c.Status = allocation.CaseStatusAssigned
	s.cases[id] = c
	return true
}

func (s *state) getCase(id allocation.CaseID) (*allocation.Case, error) {
	c, ok := s.cases[id]
	if !ok {
		return nil, allocation.ErrCaseNotFound
	}
	return &c, nil
}

func (s *state) getConfig(id allocation.ConfigID) (*allocation.LevelConfig, error) {
	cfg, ok := s.configs[id]
	if !ok {
		return nil, allocation.ErrConfigNotFound
	}
	return &cfg, nil
}

func (s *state) activeConfig(scope allocation.ScopeID, date time.Time, st allocation.ConfigState) *allocation.LevelConfig {
	var found *allocation.LevelConfig
	for _, cfg := range s.configs {
		if !cfg.Active || cfg.State != st || cfg.Scope != scope || !allocation.SameDay(cfg.Date, date) {
			continue
		}
		if found == nil || cfg.CreatedAt.After(found.CreatedAt) {
			c := cfg
			found = &c
		}
	}
	return found
}

// insertConfig mirrors the partial unique index on active configs.
func (s *state) insertConfig(cfg allocation.LevelConfig) error {
	if _, exists := s.configs[cfg.ID]; exists {
		return fmt.Errorf("%w: config %s already exists", allocation.ErrActiveConflict, cfg.ID)
	}
	if cfg.Active && s.activeConfig(cfg.Scope, cfg.Date, cfg.State) != nil {
		return fmt.Errorf("%w: %s config for %s on %s", allocation.ErrActiveConflict,
			cfg.State, cfg.Scope, allocation.FormatDay(cfg.Date))
	}
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *state) deactivateConfigs(scope allocation.ScopeID, date time.Time, st allocation.ConfigState) int {
	n := 0
	for id, cfg := range s.configs {
		if cfg.Active && cfg.State == st && cfg.Scope == scope && allocation.SameDay(cfg.Date, date) {
			cfg.Active = false
			s.configs[id] = cfg
			n++
		}
	}
	return n
}

func (s *state) promote(id allocation.ConfigID, approver allocation.ActorID, at time.Time) error {
	cfg, ok := s.configs[id]
	if !ok {
		return allocation.ErrConfigNotFound
	}
	if cfg.State != allocation.ConfigSuggested {
		return allocation.ErrConfigNotSuggested
	}
	if s.activeConfig(cfg.Scope, cfg.Date, allocation.ConfigApproved) != nil {
		return fmt.Errorf("%w: approved config for %s", allocation.ErrActiveConflict, id)
	}
	cfg.State = allocation.ConfigApproved
	cfg.Active = true
	cfg.ApprovedBy = &approver
	cfg.ApprovedAt = &at
	s.configs[id] = cfg
	return nil
}

func (s *state) recordRun(id allocation.ConfigID, assigned int, at time.Time) error {
	cfg, ok := s.configs[id]
	if !ok {
		return allocation.ErrConfigNotFound
	}
	cfg.AssignedCount += assigned
	cfg.LastRunAt = &at
	s.configs[id] = cfg
	return nil
}

func (s *state) getAgent(id allocation.AgentID) (*allocation.Agent, error) {
	a, ok := s.agents[id]
	if !ok {
		return nil, allocation.ErrAgentNotFound
	}
	return &a, nil
}

func (s *state) listAgents() []allocation.Agent {
	out := make([]allocation.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) dutyIndex(agent allocation.AgentID, scope allocation.ScopeID, date time.Time) int {
	for i, d := range s.duty {
		if d.AgentID == agent && d.Scope == scope && allocation.SameDay(d.Date, date) {
			return i
		}
	}
	return -1
}

func (s *state) getDuty(agent allocation.AgentID, scope allocation.ScopeID, date time.Time) *allocation.DutyRecord {
	if i := s.dutyIndex(agent, scope, date); i >= 0 {
		d := s.duty[i]
		return &d
	}
	return nil
}

func (s *state) upsertDuty(rec allocation.DutyRecord) {
	rec.Date = allocation.DayOf(rec.Date)
	if i := s.dutyIndex(rec.AgentID, rec.Scope, rec.Date); i >= 0 {
		rec.ID = s.duty[i].ID
		s.duty[i] = rec
		return
	}
	s.duty = append(s.duty, rec)
}

func (s *state) deleteDuty(agent allocation.AgentID, scope allocation.ScopeID, date time.Time) bool {
	i := s.dutyIndex(agent, scope, date)
	if i < 0 {
		return false
	}
	s.duty = append(s.duty[:i], s.duty[i+1:]...)
	return true
}

func (s *state) activeLevel(agent allocation.AgentID, scope allocation.ScopeID) *allocation.LevelRecord {
	for i := len(s.levels) - 1; i >= 0; i-- {
		r := s.levels[i]
		if r.Active && r.AgentID == agent && r.Scope == scope {
			return &r
		}
	}
	return nil
}

func (s *state) insertLevel(rec allocation.LevelRecord) error {
	if rec.Active && s.activeLevel(rec.AgentID, rec.Scope) != nil {
		return fmt.Errorf("%w: level for %s in %s", allocation.ErrActiveConflict, rec.AgentID, rec.Scope)
	}
	s.levels = append(s.levels, rec)
	return nil
}

func (s *state) deactivateLevels(agent allocation.AgentID, scope allocation.ScopeID) int {
	n := 0
	for i := range s.levels {
		r := &s.levels[i]
		if r.Active && r.AgentID == agent && r.Scope == scope {
			r.Active = false
			n++
		}
	}
	return n
}

func (s *state) levelHistory(agent allocation.AgentID, scope allocation.ScopeID) []allocation.LevelRecord {
	var out []allocation.LevelRecord
	for i := len(s.levels) - 1; i >= 0; i-- {
		r := s.levels[i]
		if r.AgentID == agent && r.Scope == scope {
			out = append(out, r)
		}
	}
	return out
}

var (
	_ allocation.TxStore = (*Memory)(nil)
	_ allocation.Store   = (*memTx)(nil)
)
