/*
plan.go - From case pool and roster to placements

PURPOSE:
  Combines the stratified allocation with the round-robin assigners into one
  deterministic plan. Nothing is persisted here; the collections package
  claims each placement inside a transaction.

STRATIFIED FLOW:
  1. Bucket cases by DPD, Stratify with the approved split
  2. For each bucket (ascending DPD), walk the bucket's case list and hand
     each level, in Levels order, its next PerBucket[level][dpd] cases
  3. A level with on-duty agents round-robins its slice onto them; a level
     with none sends the slice to the leftover list
  4. Leftover cases round-robin onto every ranked agent; if there is none
     they stay Unplaced

GUARANTEES:
  - A case appears in at most one placement
  - Every input case ends in exactly one of Placements or Unplaced
  - Identical inputs produce identical plans

SEE ALSO:
  - stratified.go, roundrobin.go
  - collections/assign.go: Executes plans
*/
package allocation

// Plan is the outcome of planning one run.
type Plan struct {
	Stratified StratifiedPlan
	Placements []Placement

	// LeftoverInput is what reached the LeftoverReconciler.
	LeftoverInput []Case

	// Unplaced cases found no agent at all.
	Unplaced []Case
}

// LeftoverPlaced counts placements made by the LeftoverReconciler.
func (p Plan) LeftoverPlaced() int {
	n := 0
	for _, pl := range p.Placements {
		if pl.Leftover {
			n++
		}
	}
	return n
}

// ByLevel groups working, ranked roster entries by level, preserving roster
// order. Unranked or non-working entries are dropped.
func ByLevel(roster []RosterEntry) map[Level][]RosterEntry {
	out := make(map[Level][]RosterEntry, len(Levels))
	for _, e := range roster {
		if !e.Working || !e.Level.Ranked() {
			continue
		}
		out[e.Level] = append(out[e.Level], e)
	}
	return out
}

// Pooled flattens grouped entries in Levels order.
func Pooled(byLevel map[Level][]RosterEntry) []RosterEntry {
	var out []RosterEntry
	for _, l := range Levels {
		out = append(out, byLevel[l]...)
	}
	return out
}

// PlanStratified plans a level-stratified run.
func PlanStratified(cases []Case, roster []RosterEntry, split Split) Plan {
	buckets := BucketByDPD(cases)
	strat := Stratify(buckets, split)
	agents := ByLevel(roster)

	plan := Plan{Stratified: strat}
	for _, dpd := range buckets.DPDs() {
		bucket := buckets[dpd]
		next := 0
		for _, l := range Levels {
			n := strat.PerBucket[l][dpd]
			if n <= 0 {
				continue
			}
			if next+n > len(bucket) {
				n = len(bucket) - next
			}
			slice := bucket[next : next+n]
			next += n

			if len(agents[l]) == 0 {
				plan.LeftoverInput = append(plan.LeftoverInput, slice...)
				continue
			}
			plan.Placements = append(plan.Placements, RoundRobin(slice, agents[l])...)
		}
		if next < len(bucket) {
			plan.LeftoverInput = append(plan.LeftoverInput, bucket[next:]...)
		}
	}

	if len(plan.LeftoverInput) > 0 {
		pool := Pooled(agents)
		if len(pool) == 0 {
			plan.Unplaced = append(plan.Unplaced, plan.LeftoverInput...)
		} else {
			plan.Placements = append(plan.Placements, Leftover(plan.LeftoverInput, pool)...)
		}
	}
	return plan
}

// PlanSimple plans an unstratified run over every working agent, each agent
// counted once in first-seen roster order.
func PlanSimple(cases []Case, roster []RosterEntry) Plan {
	seen := make(map[AgentID]bool, len(roster))
	var agents []RosterEntry
	for _, e := range roster {
		if !e.Working || seen[e.Agent.ID] {
			continue
		}
		seen[e.Agent.ID] = true
		agents = append(agents, e)
	}

	plan := Plan{Placements: Simple(cases, agents)}
	if len(agents) == 0 {
		plan.Unplaced = append(plan.Unplaced, cases...)
	}
	return plan
}
