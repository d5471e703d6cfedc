package stats

import (
	"sort"

	"github.com/verte-zerg/prayerwall/internal/model"
)

// TopPrayers returns the n most prayed items. Ties sort by title.
func TopPrayers(items []model.ItemStats, n int) []model.ItemStats {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	sorted := make([]model.ItemStats, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count == sorted[j].Count {
			return sorted[i].Title < sorted[j].Title
		}
		return sorted[i].Count > sorted[j].Count
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}
