/*
quota.go - Integer case quotas from a percentage split

PURPOSE:
  Turns "25% of 7 cases" into whole cases while guaranteeing the quotas add
  up to exactly the pool size.

ALGORITHM:
  1. For each level: round(total × pct / 100), half-up
  2. Sum the rounded values
  3. Drift (sum ≠ total) is absorbed one case at a time by levels in
     descending share order, starting with the largest share. Removing never
     takes a level below zero.

REMAINDER POLICY:
  Drift always lands on the largest-share level first (ties broken by Levels
  order), so identical inputs always produce identical quotas. Moving one
  case per level keeps equal shares within one case of each other:
  QuotaFor(10, 25/25/25/25) rounds to 3+3+3+3 and yields {2, 2, 3, 3}.

EXAMPLE:
  QuotaFor(7, {tl:33.33, senior:33.33, mid:33.34})
  rounded: 2, 2, 2 = 6 -> drift +1 -> mid (largest) -> {2, 2, 3}

SEE ALSO:
  - stratified.go: Applies QuotaFor per DPD bucket
*/
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Quota is the number of cases allocated to each level.
type Quota map[Level]int

func (q Quota) Total() int {
	n := 0
	for _, v := range q {
		n += v
	}
	return n
}

// Clone returns an independent copy of q.
func (q Quota) Clone() Quota {
	out := make(Quota, len(q))
	for l, v := range q {
		out[l] = v
	}
	return out
}

// QuotaFor computes the per-level allocation of total cases under split.
// The result always sums to total and holds no negative value. A negative
// total is treated as zero.
func QuotaFor(total int, split Split) Quota {
	quota := make(Quota, len(Levels))
	for _, l := range Levels {
		quota[l] = 0
	}
	if total <= 0 {
		return quota
	}

	t := decimal.NewFromInt(int64(total))
	sum := 0
	for _, l := range Levels {
		share := t.Mul(split.Get(l)).Div(Hundred).Round(0)
		n := int(share.IntPart())
		if n < 0 {
			n = 0
		}
		quota[l] = n
		sum += n
	}

	drift := total - sum
	if drift == 0 {
		return quota
	}

	order := byShareDesc(split)
	if drift > 0 {
		order = positiveFirst(order, split)
	}
	for drift > 0 {
		for _, l := range order {
			if drift == 0 {
				break
			}
			quota[l]++
			drift--
		}
	}

	// Over-allocated: take back one case per level, never below zero.
	for drift < 0 {
		moved := false
		for _, l := range order {
			if drift == 0 {
				break
			}
			if quota[l] == 0 {
				continue
			}
			quota[l]--
			drift++
			moved = true
		}
		if !moved {
			break
		}
	}
	return quota
}

// positiveFirst keeps only levels with a positive share, unless none has one.
func positiveFirst(order []Level, split Split) []Level {
	var out []Level
	for _, l := range order {
		if split.Get(l).IsPositive() {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return order
	}
	return out
}

// byShareDesc orders levels by descending share, stable on Levels order.
func byShareDesc(split Split) []Level {
	order := make([]Level, len(Levels))
	copy(order, Levels)
	sort.SliceStable(order, func(i, j int) bool {
		return split.Get(order[i]).GreaterThan(split.Get(order[j]))
	})
	return order
}
