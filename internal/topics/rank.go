package topics

import (
	"sort"
	"strings"

	"github.com/kehsibha/walter/internal/models"
)

// PickTop ranks preferences by priority and selects up to max topics,
// aiming for category diversity. A duplicate category is deferred while
// earlier slots remain, then a second pass fills any leftover slots with
// the highest-priority topics regardless of category. Deterministic for a
// given input order.
func PickTop(preferences []models.Preference, max int) []models.Preference {
	if max <= 0 {
		return nil
	}

	prefs := make([]models.Preference, len(preferences))
	copy(prefs, preferences)
	sort.SliceStable(prefs, func(i, j int) bool {
		return prefs[i].Priority > prefs[j].Priority
	})

	picked := make([]models.Preference, 0, max)
	usedCategories := make(map[string]bool)

	diversityCutoff := max - 1
	if diversityCutoff < 1 {
		diversityCutoff = 1
	}

	for _, p := range prefs {
		if len(picked) >= max {
			break
		}
		cat := normalizeCategory(p.Category)
		if cat != "" && usedCategories[cat] && len(picked) < diversityCutoff {
			continue
		}
		picked = append(picked, p)
		if cat != "" {
			usedCategories[cat] = true
		}
	}

	// Fill remaining slots even if categories repeat.
	for _, p := range prefs {
		if len(picked) >= max {
			break
		}
		if containsTopic(picked, p.Topic) {
			continue
		}
		picked = append(picked, p)
	}

	return picked
}

func normalizeCategory(cat *string) string {
	if cat == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*cat))
}

func containsTopic(prefs []models.Preference, topic string) bool {
	for _, p := range prefs {
		if p.Topic == topic {
			return true
		}
	}
	return false
}
