package collections

import (
	"sort"
	"time"

	"github.com/warp/collections-engine/allocation"
)

// =============================================================================
// RUN RESULT
// =============================================================================

// AgentSummary is one agent's share of a run.
type AgentSummary struct {
	AgentID allocation.AgentID
	Name    string
	Level   allocation.Level
	Total   int
	// DPD histogram: days past due -> cases received
	DPD map[int]int
}

// RunResult describes a committed run. Placements only holds claims that
// actually changed a case.
type RunResult struct {
	RunID    string
	Mode     string
	Scope    allocation.ScopeID
	Date     time.Time
	ConfigID allocation.ConfigID
	Actor    allocation.ActorID
	At       time.Time

	TotalAssigned  int
	PerLevel       map[allocation.Level]int
	Agents         []AgentSummary
	Placements     []allocation.Placement
	LeftoverPlaced int

	Unplaced       []allocation.CaseID
	Contended      []allocation.CaseID
	ExcludedAgents []allocation.AgentID
}

func newRunResult(mode string) *RunResult {
	return &RunResult{Mode: mode, PerLevel: make(map[allocation.Level]int)}
}

// summarize fills the per-level and per-agent breakdowns from placements.
// Agents appear in the order they first received a case.
func (r *RunResult) summarize() {
	r.TotalAssigned = len(r.Placements)
	r.LeftoverPlaced = 0

	byAgent := make(map[allocation.AgentID]*AgentSummary)
	var order []allocation.AgentID
	for _, p := range r.Placements {
		r.PerLevel[p.Level]++
		if p.Leftover {
			r.LeftoverPlaced++
		}

		s, ok := byAgent[p.Agent.ID]
		if !ok {
			s = &AgentSummary{
				AgentID: p.Agent.ID,
				Name:    p.Agent.Name,
				Level:   p.Level,
				DPD:     make(map[int]int),
			}
			byAgent[p.Agent.ID] = s
			order = append(order, p.Agent.ID)
		}
		s.Total++
		s.DPD[p.Case.DPD]++
	}

	r.Agents = make([]AgentSummary, 0, len(order))
	for _, id := range order {
		r.Agents = append(r.Agents, *byAgent[id])
	}
}

// SortedDPDs returns the histogram keys in ascending order.
func (s AgentSummary) SortedDPDs() []int {
	keys := make([]int, 0, len(s.DPD))
	for k := range s.DPD {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func caseIDs(cases []allocation.Case) []allocation.CaseID {
	out := make([]allocation.CaseID, len(cases))
	for i, c := range cases {
		out[i] = c.ID
	}
	return out
}
