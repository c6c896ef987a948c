package topics

import (
	"fmt"
	"testing"

	"github.com/kehsibha/walter/internal/models"
)

func strPtr(s string) *string { return &s }

func TestPickTopPriorityOrder(t *testing.T) {
	prefs := []models.Preference{
		{Topic: "Local housing", Priority: 5},
		{Topic: "AI policy", Priority: 9},
	}

	got := PickTop(prefs, 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(got))
	}
	if got[0].Topic != "AI policy" {
		t.Errorf("expected AI policy first, got %s", got[0].Topic)
	}
	if got[1].Topic != "Local housing" {
		t.Errorf("expected Local housing second, got %s", got[1].Topic)
	}
}

func TestPickTopCategoryDiversity(t *testing.T) {
	prefs := []models.Preference{
		{Topic: "Premier League", Category: strPtr("sports"), Priority: 10},
		{Topic: "F1", Category: strPtr("sports"), Priority: 9},
		{Topic: "NBA", Category: strPtr("Sports"), Priority: 8},
		{Topic: "AI policy", Category: strPtr("tech"), Priority: 7},
		{Topic: "Chips", Category: strPtr("tech"), Priority: 6},
	}

	got := PickTop(prefs, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 topics, got %d", len(got))
	}
	// First pass defers the repeated sports/tech entries while earlier slots
	// remain, so the diverse picks lead and backfill goes by priority.
	if got[0].Topic != "Premier League" {
		t.Errorf("expected Premier League first, got %s", got[0].Topic)
	}
	if got[1].Topic != "AI policy" {
		t.Errorf("expected AI policy second, got %s", got[1].Topic)
	}
}

func TestPickTopBackfillRepeatsCategories(t *testing.T) {
	prefs := []models.Preference{
		{Topic: "Premier League", Category: strPtr("sports"), Priority: 10},
		{Topic: "F1", Category: strPtr("sports"), Priority: 9},
		{Topic: "NBA", Category: strPtr("sports"), Priority: 8},
	}

	got := PickTop(prefs, 3)
	if len(got) != 3 {
		t.Fatalf("expected backfill to repeat categories, got %d topics", len(got))
	}
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p.Topic] {
			t.Errorf("duplicate topic %s", p.Topic)
		}
		seen[p.Topic] = true
	}
}

func TestPickTopBounds(t *testing.T) {
	for k := 0; k <= 8; k++ {
		for max := 1; max <= 6; max++ {
			prefs := make([]models.Preference, k)
			for i := range prefs {
				prefs[i] = models.Preference{Topic: fmt.Sprintf("topic-%d", i), Priority: i % 4}
			}

			got := PickTop(prefs, max)

			want := k
			if max < want {
				want = max
			}
			if len(got) != want {
				t.Fatalf("k=%d max=%d: expected %d picks, got %d", k, max, want, len(got))
			}
			seen := map[string]bool{}
			for _, p := range got {
				if seen[p.Topic] {
					t.Fatalf("k=%d max=%d: duplicate topic %s", k, max, p.Topic)
				}
				seen[p.Topic] = true
			}
		}
	}
}

func TestPickTopDoesNotMutateInput(t *testing.T) {
	prefs := []models.Preference{
		{Topic: "b", Priority: 1},
		{Topic: "a", Priority: 9},
	}
	PickTop(prefs, 5)
	if prefs[0].Topic != "b" {
		t.Errorf("input slice was reordered")
	}
}
