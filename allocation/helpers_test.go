package allocation_test

import (
	"fmt"
	"time"

	"github.com/warp/collections-engine/allocation"
)

var t0 = time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC)

// casesAt builds one case per DPD value, oldest first.
func casesAt(dpds ...int) []allocation.Case {
	out := make([]allocation.Case, len(dpds))
	for i, dpd := range dpds {
		out[i] = allocation.Case{
			ID:        allocation.CaseID(fmt.Sprintf("case-%03d", i+1)),
			Scope:     "bucket-a",
			DPD:       dpd,
			Status:    allocation.CaseStatusPending,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func repeat(n, dpd int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = dpd
	}
	return out
}

func onDuty(id string, level allocation.Level) allocation.RosterEntry {
	return allocation.RosterEntry{
		Agent:   allocation.Agent{ID: allocation.AgentID(id), Name: id, Active: true},
		Scope:   "bucket-a",
		Date:    allocation.DayOf(t0),
		Level:   level,
		Working: true,
	}
}

func perAgent(placements []allocation.Placement) map[allocation.AgentID]int {
	out := make(map[allocation.AgentID]int)
	for _, p := range placements {
		out[p.Agent.ID]++
	}
	return out
}
