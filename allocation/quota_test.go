package allocation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/collections-engine/allocation"
)

// =============================================================================
// QUOTA TESTS
// =============================================================================

func TestQuotaFor_ThirdsSumExactly(t *testing.T) {
	// GIVEN: 7 cases split 33.33 / 33.33 / 33.34
	// WHEN: computing quotas
	// THEN: they sum to 7, never 6 or 9, and the largest share takes the extra case

	split := allocation.NewSplit(33.33, 33.33, 33.34, 0)

	q := allocation.QuotaFor(7, split)

	assert.Equal(t, 7, q.Total())
	assert.Equal(t, 2, q[allocation.LevelTeamLeader])
	assert.Equal(t, 2, q[allocation.LevelSenior])
	assert.Equal(t, 3, q[allocation.LevelMidLevel])
	assert.Equal(t, 0, q[allocation.LevelJunior])
}

func TestQuotaFor_EqualSharesStayWithinOne(t *testing.T) {
	// GIVEN: 10 cases split evenly; half-up rounding gives 3+3+3+3 = 12
	// WHEN: computing quotas
	// THEN: the over-allocation is taken back one case per level

	q := allocation.QuotaFor(10, allocation.NewSplit(25, 25, 25, 25))

	assert.Equal(t, allocation.Quota{
		allocation.LevelTeamLeader: 2,
		allocation.LevelSenior:     2,
		allocation.LevelMidLevel:   3,
		allocation.LevelJunior:     3,
	}, q)
}

func TestQuotaFor_ZeroShareGetsNothing(t *testing.T) {
	q := allocation.QuotaFor(9, allocation.NewSplit(50, 50, 0, 0))

	assert.Equal(t, 9, q.Total())
	assert.Equal(t, 0, q[allocation.LevelMidLevel])
	assert.Equal(t, 0, q[allocation.LevelJunior])
	assert.InDelta(t, q[allocation.LevelTeamLeader], q[allocation.LevelSenior], 1)
}

func TestQuotaFor_EmptyAndNegativeTotals(t *testing.T) {
	split := allocation.NewSplit(10, 20, 30, 40)

	for _, total := range []int{0, -5} {
		q := allocation.QuotaFor(total, split)
		assert.Equal(t, 0, q.Total())
		for _, l := range allocation.Levels {
			assert.Equal(t, 0, q[l])
		}
	}
}

func TestQuotaFor_SumAndNonNegativity(t *testing.T) {
	// GIVEN: a spread of pool sizes and valid splits
	// THEN: every quota sums to the pool and holds no negative value

	splits := []allocation.Split{
		allocation.NewSplit(25, 25, 25, 25),
		allocation.NewSplit(33.33, 33.33, 33.34, 0),
		allocation.NewSplit(3.64, 21.82, 38.18, 36.36),
		allocation.NewSplit(0, 0, 100, 0),
		allocation.NewSplit(12.5, 12.5, 37.5, 37.5),
		allocation.NewSplit(99.99, 0.01, 0, 0),
		allocation.NewSplit(16.67, 16.67, 33.33, 33.33),
	}

	for _, split := range splits {
		for total := 0; total <= 101; total++ {
			q := allocation.QuotaFor(total, split)
			assert.Equal(t, total, q.Total(), "total=%d split=%v", total, split)
			for _, l := range allocation.Levels {
				assert.GreaterOrEqual(t, q[l], 0, "total=%d level=%s", total, l)
			}
		}
	}
}

func TestQuotaFor_Deterministic(t *testing.T) {
	split := allocation.NewSplit(16.67, 16.67, 33.33, 33.33)

	first := allocation.QuotaFor(13, split)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, allocation.QuotaFor(13, split))
	}
}

// =============================================================================
// STRATIFIED ALLOCATION TESTS
// =============================================================================

func TestBucketByDPD_AscendingAndStable(t *testing.T) {
	cases := casesAt(90, 0, 30, 0, 90)

	b := allocation.BucketByDPD(cases)

	assert.Equal(t, []int{0, 30, 90}, b.DPDs())
	assert.Equal(t, 5, b.Total())
	assert.Equal(t, allocation.CaseID("case-002"), b[0][0].ID)
	assert.Equal(t, allocation.CaseID("case-004"), b[0][1].ID)
	assert.Equal(t, allocation.CaseID("case-001"), b[90][0].ID)
}

func TestStratify_EveryLevelGetsEveryBand(t *testing.T) {
	// GIVEN: four DPD bands of 8 cases and an even split
	// WHEN: stratifying
	// THEN: each level gets 2 cases from every band, not 8 from one

	var dpds []int
	for _, dpd := range []int{0, 30, 60, 90} {
		dpds = append(dpds, repeat(8, dpd)...)
	}
	buckets := allocation.BucketByDPD(casesAt(dpds...))

	plan := allocation.Stratify(buckets, allocation.NewSplit(25, 25, 25, 25))

	for _, l := range allocation.Levels {
		assert.Equal(t, 8, plan.Global[l])
		for _, dpd := range []int{0, 30, 60, 90} {
			assert.Equal(t, 2, plan.PerBucket[l][dpd], "level=%s dpd=%d", l, dpd)
		}
	}
}

func TestStratify_ReconcilesShortLevels(t *testing.T) {
	// GIVEN: three single-case bands; local quotas of 1 case round to nothing
	// but the global quota of 3 gives senior, mid and junior one case each
	// WHEN: stratifying
	// THEN: reconciliation pulls each short level from the emptiest band,
	// lowest DPD first

	buckets := allocation.BucketByDPD(casesAt(0, 30, 60))

	plan := allocation.Stratify(buckets, allocation.NewSplit(25, 25, 25, 25))

	assert.Equal(t, 0, plan.LevelTotal(allocation.LevelTeamLeader))
	assert.Equal(t, 1, plan.PerBucket[allocation.LevelSenior][0])
	assert.Equal(t, 1, plan.PerBucket[allocation.LevelMidLevel][30])
	assert.Equal(t, 1, plan.PerBucket[allocation.LevelJunior][60])
}

func TestStratify_LevelTotalsMatchGlobal(t *testing.T) {
	// GIVEN: uneven bands and several splits
	// THEN: per-level totals equal the global quota and no band is over-allocated

	layouts := [][]int{
		append(append(repeat(7, 0), repeat(3, 15)...), repeat(11, 90)...),
		append(repeat(1, 5), repeat(1, 6)...),
		append(append(append(repeat(2, 1), repeat(5, 2)...), repeat(1, 3)...), repeat(9, 4)...),
		repeat(13, 45),
	}
	splits := []allocation.Split{
		allocation.NewSplit(25, 25, 25, 25),
		allocation.NewSplit(33.33, 33.33, 33.34, 0),
		allocation.NewSplit(3.64, 21.82, 38.18, 36.36),
		allocation.NewSplit(0, 0, 0, 100),
	}

	for _, layout := range layouts {
		buckets := allocation.BucketByDPD(casesAt(layout...))
		for _, split := range splits {
			plan := allocation.Stratify(buckets, split)

			assert.Equal(t, buckets.Total(), plan.Global.Total())
			for _, l := range allocation.Levels {
				assert.Equal(t, plan.Global[l], plan.LevelTotal(l), "level=%s split=%v", l, split)
			}
			for _, dpd := range buckets.DPDs() {
				assert.LessOrEqual(t, plan.BucketAllocated(dpd), len(buckets[dpd]), "dpd=%d", dpd)
			}
		}
	}
}

func TestStratify_Deterministic(t *testing.T) {
	buckets := allocation.BucketByDPD(casesAt(append(append(repeat(5, 90), repeat(4, 0)...), repeat(6, 30)...)...))
	split := allocation.NewSplit(10, 30, 35, 25)

	first := allocation.Stratify(buckets, split)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, allocation.Stratify(buckets, split))
	}
}
