/*
roundrobin.go - Round-robin placement of cases onto agents

PURPOSE:
  The three assigners that turn an ordered case list into placements:

  RoundRobin: one level's cases onto that level's agents
  Leftover:   cases that found no agent in their level, onto every agent
  Simple:     the whole pool onto every agent, no levels involved

MECHANICS:
  All three share one loop: case i goes to agents[i mod len(agents)].
  Agent i (0-indexed) therefore receives the cases at positions i, i+M,
  i+2M, ... and every agent ends with ⌊N/M⌋ or ⌈N/M⌉ cases.

CURSOR RESET:
  The cursor starts at 0 on every call. The planner calls RoundRobin once per
  (level, DPD bucket), so across buckets the agents listed first in a level
  receive slightly more than those listed last. Known fairness limitation.

SEE ALSO:
  - plan.go: Decides which cases reach which assigner
*/
package allocation

// RoundRobin places cases onto agents in rotating order. Each placement
// carries the agent's own roster level. With no agents, nothing is placed.
func RoundRobin(cases []Case, agents []RosterEntry) []Placement {
	return rotate(cases, agents, false)
}

// Leftover places cases that could not be placed within their level onto
// the pooled agents of every level.
func Leftover(cases []Case, agents []RosterEntry) []Placement {
	return rotate(cases, agents, true)
}

// Simple places an unstratified pool onto an unstratified agent list.
func Simple(cases []Case, agents []RosterEntry) []Placement {
	return rotate(cases, agents, false)
}

func rotate(cases []Case, agents []RosterEntry, leftover bool) []Placement {
	if len(agents) == 0 || len(cases) == 0 {
		return nil
	}

	placements := make([]Placement, 0, len(cases))
	cursor := 0
	for _, c := range cases {
		entry := agents[cursor]
		placements = append(placements, Placement{
			Case:     c,
			Agent:    entry.Agent,
			Level:    entry.Level,
			Leftover: leftover,
		})
		cursor = (cursor + 1) % len(agents)
	}
	return placements
}
