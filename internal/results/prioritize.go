// internal/results/prioritize.go
package results

import (
	"sort"
)

// Prioritize returns the n highest scoring records, most significant first.
// Records that scored zero are left out. Ties keep exploration order. The
// input slice is not reordered.
func Prioritize(records []ClickRecord, n int) []ClickRecord {
	ranked := make([]ClickRecord, 0, len(records))
	for _, r := range records {
		if r.Score > 0 {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
