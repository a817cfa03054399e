package rollup

import "math"

// WeightedItem is the shape every hierarchy node reduces to once its own
// progress is known: planned effort and percent complete.
type WeightedItem struct {
	Weight   float64
	Progress float64
}

// Aggregate returns the weighted-average progress of items, rounded to the
// nearest integer percent. An empty set or a zero total weight aggregates to
// 0: zero planned effort contributes nothing regardless of item progress.
func Aggregate(items []WeightedItem) int {
	var total, sum float64
	for _, it := range items {
		if it.Weight <= 0 {
			continue
		}
		total += it.Weight
		sum += it.Progress * it.Weight
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(sum / total))
}
