package hebench

import "sort"

const (
	badgeExcellence = "excellence"
	badgeBalanced   = "balanced"

	excellenceThreshold = 0.90
	balancedThreshold   = 0.80
	masteryThreshold    = 0.95
)

// ComputeBadges awards achievement badges from final accuracies. Pure
// post-processing; the runner never calls it.
func ComputeBadges(accuracy float64, categories map[Category]float64) []string {
	badges := []string{}
	if accuracy >= excellenceThreshold {
		badges = append(badges, badgeExcellence)
	}
	if len(categories) > 0 {
		balanced := true
		for _, categoryAccuracy := range categories {
			if categoryAccuracy < balancedThreshold {
				balanced = false
				break
			}
		}
		if balanced {
			badges = append(badges, badgeBalanced)
		}
	}
	mastery := make([]string, 0, len(categories))
	for category, categoryAccuracy := range categories {
		if categoryAccuracy >= masteryThreshold {
			mastery = append(mastery, string(category)+"-mastery")
		}
	}
	sort.Strings(mastery)
	return append(badges, mastery...)
}
