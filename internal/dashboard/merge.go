package dashboard

import (
	"sort"
	"strconv"
)

// BucketCount is one slice of a counted time series. Label is the normalized
// bucket key: a 2-digit hour, "2006-01-02", or "2006-01". Label formatting
// must match between sources before a merge or the merge silently fragments.
type BucketCount struct {
	Label string `bson:"_id" json:"_id"`
	Count int64  `bson:"count" json:"count"`
}

// MergeSeries sums counts for identical labels across all input series,
// preserving every label that appears anywhere. The result is sorted
// ascending: numerically when labels are bare hours, lexicographically
// otherwise (which orders "2006-01" and "2006-01-02" labels by date).
// The merge is commutative and associative over its inputs.
func MergeSeries(series ...[]BucketCount) []BucketCount {
	totals := make(map[string]int64)
	for _, s := range series {
		for _, bc := range s {
			totals[bc.Label] += bc.Count
		}
	}

	merged := make([]BucketCount, 0, len(totals))
	for label, count := range totals {
		merged = append(merged, BucketCount{Label: label, Count: count})
	}
	sort.Slice(merged, func(i, j int) bool {
		return labelLess(merged[i].Label, merged[j].Label)
	})
	return merged
}

// SeriesTotal sums all counts of a series.
func SeriesTotal(series []BucketCount) int64 {
	var total int64
	for _, bc := range series {
		total += bc.Count
	}
	return total
}

// labelLess orders hour labels numerically and everything else
// lexicographically.
func labelLess(a, b string) bool {
	if ai, err := strconv.Atoi(a); err == nil {
		if bi, err := strconv.Atoi(b); err == nil {
			return ai < bi
		}
	}
	return a < b
}
