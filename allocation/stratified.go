/*
stratified.go - DPD-stratified allocation of quotas

PURPOSE:
  A plain quota split lets one level monopolize a DPD band: with a global
  quota computed once, the first level to be served could take every case at
  DPD 90. Stratification applies the split inside each DPD bucket so each
  level gets a slice of every band, then reconciles back to the global quota.

ALGORITHM:
  1. Global quota = QuotaFor(total cases, split)
  2. For each bucket in ascending DPD order:
       local = QuotaFor(bucket size, split)
       each level takes min(local, remaining global) and its remaining
       global counter is decremented
  3. Reconciliation, per level in Levels order:
       short -> pull one unit at a time from the bucket with the most
                unallocated cases (ties: lowest DPD)
       over  -> release one unit at a time from the bucket where the level
                holds the most (ties: lowest DPD)

INVARIANT:
  When the buckets hold at least as many cases as the global quota sums to,
  every level's per-bucket allocations add up to its global quota, and no
  bucket is allocated beyond its size.

SEE ALSO:
  - quota.go: QuotaFor
  - plan.go: Turns a StratifiedPlan into concrete case lists
*/
package allocation

import "sort"

// =============================================================================
// BUCKETS - Cases grouped by DPD
// =============================================================================

// Buckets groups cases by DPD. Each bucket keeps the order of its input.
type Buckets map[int][]Case

// BucketByDPD groups cases by their DPD, preserving input order within a bucket.
func BucketByDPD(cases []Case) Buckets {
	b := make(Buckets)
	for _, c := range cases {
		b[c.DPD] = append(b[c.DPD], c)
	}
	return b
}

// DPDs returns the bucket keys in ascending order.
func (b Buckets) DPDs() []int {
	keys := make([]int, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func (b Buckets) Total() int {
	n := 0
	for _, cs := range b {
		n += len(cs)
	}
	return n
}

// =============================================================================
// STRATIFIED PLAN
// =============================================================================

// StratifiedPlan is the per-level, per-DPD case count produced by Stratify.
type StratifiedPlan struct {
	Global    Quota
	PerBucket map[Level]map[int]int
}

func newStratifiedPlan(global Quota) StratifiedPlan {
	p := StratifiedPlan{Global: global, PerBucket: make(map[Level]map[int]int, len(Levels))}
	for _, l := range Levels {
		p.PerBucket[l] = make(map[int]int)
	}
	return p
}

// LevelTotal sums a level's allocations across all buckets.
func (p StratifiedPlan) LevelTotal(l Level) int {
	n := 0
	for _, v := range p.PerBucket[l] {
		n += v
	}
	return n
}

// BucketAllocated sums all levels' allocations in one bucket.
func (p StratifiedPlan) BucketAllocated(dpd int) int {
	n := 0
	for _, l := range Levels {
		n += p.PerBucket[l][dpd]
	}
	return n
}

// =============================================================================
// STRATIFY
// =============================================================================

// Stratify computes the global quota from the total case count and allocates
// it across DPD buckets.
func Stratify(buckets Buckets, split Split) StratifiedPlan {
	return StratifyWithQuota(buckets, split, QuotaFor(buckets.Total(), split))
}

// StratifyWithQuota allocates an externally computed global quota across
// DPD buckets.
func StratifyWithQuota(buckets Buckets, split Split, global Quota) StratifiedPlan {
	plan := newStratifiedPlan(global.Clone())
	remaining := global.Clone()
	dpds := buckets.DPDs()

	for _, dpd := range dpds {
		local := QuotaFor(len(buckets[dpd]), split)
		for _, l := range Levels {
			n := local[l]
			if n > remaining[l] {
				n = remaining[l]
			}
			if n <= 0 {
				continue
			}
			plan.PerBucket[l][dpd] = n
			remaining[l] -= n
		}
	}

	reconcile(&plan, buckets, dpds)
	return plan
}

func reconcile(plan *StratifiedPlan, buckets Buckets, dpds []int) {
	for _, l := range Levels {
		diff := plan.Global[l] - plan.LevelTotal(l)

		for diff > 0 {
			dpd, free := mostUnallocated(plan, buckets, dpds)
			if free == 0 {
				break
			}
			plan.PerBucket[l][dpd]++
			diff--
		}

		for diff < 0 {
			dpd, held := largestHolding(plan, l, dpds)
			if held == 0 {
				break
			}
			plan.PerBucket[l][dpd]--
			if plan.PerBucket[l][dpd] == 0 {
				delete(plan.PerBucket[l], dpd)
			}
			diff++
		}
	}
}

// mostUnallocated finds the bucket with the most cases not yet claimed by
// any level. Ties resolve to the lowest DPD.
func mostUnallocated(plan *StratifiedPlan, buckets Buckets, dpds []int) (int, int) {
	bestDPD, bestFree := 0, 0
	for _, dpd := range dpds {
		free := len(buckets[dpd]) - plan.BucketAllocated(dpd)
		if free > bestFree {
			bestDPD, bestFree = dpd, free
		}
	}
	return bestDPD, bestFree
}

func largestHolding(plan *StratifiedPlan, l Level, dpds []int) (int, int) {
	bestDPD, best := 0, 0
	for _, dpd := range dpds {
		if n := plan.PerBucket[l][dpd]; n > best {
			bestDPD, best = dpd, n
		}
	}
	return bestDPD, best
}
