package judging

import (
	"math"
	"sort"
)

// aggregate computes the robust combined score for a set of votes. It is
// fully deterministic: the same votes always produce the same aggregate.
func aggregate(votes []JudgeVote, expected int, weights map[string]float64, scoreMin, scoreMax float64) *AggregatedScore {
	responded := make([]JudgeVote, 0, len(votes))
	for i := range votes {
		if !votes[i].Missing() {
			responded = append(responded, votes[i])
		}
	}

	agg := &AggregatedScore{
		Dimensions:    make(map[string]float64, len(weights)),
		VotesUsed:     len(responded),
		VotesExpected: expected,
	}

	if len(responded) == 0 {
		return agg
	}

	scoreRange := scoreMax - scoreMin

	dims := make([]string, 0, len(weights))
	for dim := range weights {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	excluded := make(map[string]bool)
	spreadSum := 0.0
	spreadDims := 0

	for _, dim := range dims {
		values := make([]float64, 0, len(responded))
		owners := make([]string, 0, len(responded))
		for i := range responded {
			if v, ok := responded[i].Dimensions[dim]; ok {
				values = append(values, v)
				owners = append(owners, responded[i].JudgeID)
			}
		}
		if len(values) == 0 {
			continue
		}

		kept, keptOwners := rejectOutliers(values, owners)
		for _, owner := range owners {
			if !contains(keptOwners, owner) {
				excluded[owner] = true
			}
		}

		var dimValue float64
		if len(kept) >= 3 {
			dimValue = median(kept)
		} else {
			dimValue = mean(kept)
		}
		agg.Dimensions[dim] = dimValue

		if scoreRange > 0 && len(kept) > 1 {
			spreadSum += (maxOf(kept) - minOf(kept)) / scoreRange
			spreadDims++
		}
	}

	for _, dim := range dims {
		if v, ok := agg.Dimensions[dim]; ok {
			agg.Value += weights[dim] * v
		}
	}

	spread := 0.0
	if spreadDims > 0 {
		spread = spreadSum / float64(spreadDims)
	}
	if spread > 1 {
		spread = 1
	}
	agg.Agreement = 1 - spread
	agg.OutliersExcluded = len(excluded)

	participation := 0.0
	if expected > 0 {
		participation = float64(len(responded)) / float64(expected)
	}
	agg.Confidence = participation * agg.Agreement

	return agg
}

// rejectOutliers drops values farther than 1.5×IQR from the median. Rejection
// is skipped when fewer than 3 values are available.
func rejectOutliers(values []float64, owners []string) ([]float64, []string) {
	if len(values) < 3 {
		return values, owners
	}

	med := median(values)
	q1, q3 := quartiles(values)
	iqr := q3 - q1
	if iqr <= 0 {
		return values, owners
	}

	bound := 1.5 * iqr
	kept := make([]float64, 0, len(values))
	keptOwners := make([]string, 0, len(owners))
	for i, v := range values {
		if math.Abs(v-med) <= bound {
			kept = append(kept, v)
			keptOwners = append(keptOwners, owners[i])
		}
	}
	return kept, keptOwners
}

// median returns the middle value of the inputs without mutating them.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// quartiles returns Q1 and Q3 using Tukey's hinges.
func quartiles(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0, 0
	}

	lower := sorted[:n/2]
	var upper []float64
	if n%2 == 0 {
		upper = sorted[n/2:]
	} else {
		upper = sorted[n/2+1:]
	}
	return median(lower), median(upper)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
