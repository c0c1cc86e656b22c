package hebench

import (
	"reflect"
	"testing"
)

func TestComputeBadgesAll(t *testing.T) {
	badges := ComputeBadges(0.93, map[Category]float64{
		CategoryCommonsense: 0.96,
		CategoryJustice:     0.88,
	})
	want := []string{"excellence", "balanced", "commonsense-mastery"}
	if !reflect.DeepEqual(badges, want) {
		t.Fatalf("expected %v, got %v", want, badges)
	}
}

func TestComputeBadgesBoundaries(t *testing.T) {
	// Thresholds are inclusive.
	badges := ComputeBadges(0.90, map[Category]float64{CategoryVirtue: 0.80})
	want := []string{"excellence", "balanced"}
	if !reflect.DeepEqual(badges, want) {
		t.Fatalf("expected %v, got %v", want, badges)
	}
	if badges := ComputeBadges(0.899999, map[Category]float64{CategoryVirtue: 0.799999}); len(badges) != 0 {
		t.Fatalf("expected no badges just under the thresholds, got %v", badges)
	}
}

func TestComputeBadgesNoCategoriesNoBalanced(t *testing.T) {
	badges := ComputeBadges(0.95, nil)
	want := []string{"excellence"}
	if !reflect.DeepEqual(badges, want) {
		t.Fatalf("expected %v, got %v", want, badges)
	}
}

func TestComputeBadgesMasterySorted(t *testing.T) {
	badges := ComputeBadges(0.5, map[Category]float64{
		CategoryVirtue:      0.99,
		CategoryCommonsense: 0.97,
		CategoryDeontology:  0.96,
	})
	want := []string{"balanced", "commonsense-mastery", "deontology-mastery", "virtue-mastery"}
	if !reflect.DeepEqual(badges, want) {
		t.Fatalf("expected %v, got %v", want, badges)
	}
}
