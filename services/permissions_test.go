package services

import (
	"sort"
	"testing"
)

func TestValidateNavigationItems(t *testing.T) {
	if err := ValidateNavigationItems([]string{"documents", "decks", "media"}); err != nil {
		t.Fatalf("valid items rejected: %v", err)
	}
	if err := ValidateNavigationItems(nil); err != nil {
		t.Fatalf("empty list rejected: %v", err)
	}
	if err := ValidateNavigationItems([]string{"decks", "chat"}); err == nil {
		t.Fatal("unknown item accepted")
	}
}

func TestSyncFeaturesFromNavigationItems(t *testing.T) {
	features := SyncFeaturesFromNavigationItems([]string{"decks"})
	sort.Strings(features)

	want := map[string]bool{
		"deck_create": true, "deck_view": true, "deck_status": true,
		"deck_export": true, "deck_chart_data": true, "deck_ask": true,
	}
	if len(features) != len(want) {
		t.Fatalf("got %d features for decks, want %d: %v", len(features), len(want), features)
	}
	for _, f := range features {
		if !want[f] {
			t.Errorf("unexpected feature %q", f)
		}
	}
}

func TestSyncFeaturesDeduplicates(t *testing.T) {
	once := SyncFeaturesFromNavigationItems([]string{"media"})
	twice := SyncFeaturesFromNavigationItems([]string{"media", "media"})
	if len(once) != len(twice) {
		t.Fatalf("duplicate navigation item inflated features: %d vs %d", len(once), len(twice))
	}
}

func TestSyncFeaturesUnknownItemYieldsNothing(t *testing.T) {
	if features := SyncFeaturesFromNavigationItems([]string{"bogus"}); len(features) != 0 {
		t.Fatalf("unknown item produced features: %v", features)
	}
}

func TestHasNavigationItem(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		item    string
		want    bool
	}{
		{"empty list allows everything", nil, "decks", true},
		{"listed item allowed", []string{"decks", "media"}, "decks", true},
		{"unlisted item denied", []string{"decks"}, "media", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasNavigationItem(tc.allowed, tc.item); got != tc.want {
				t.Errorf("HasNavigationItem(%v, %q) = %v, want %v", tc.allowed, tc.item, got, tc.want)
			}
		})
	}
}

func TestHasFeature(t *testing.T) {
	if !HasFeature(nil, "deck_export") {
		t.Error("empty feature list should enable everything")
	}
	if !HasFeature([]string{"deck_export"}, "deck_export") {
		t.Error("listed feature should be enabled")
	}
	if HasFeature([]string{"deck_view"}, "deck_export") {
		t.Error("unlisted feature should be disabled")
	}
}

func TestEveryNavigationItemIsValid(t *testing.T) {
	for item := range NavigationItemFeatures {
		if err := ValidateNavigationItems([]string{item}); err != nil {
			t.Errorf("feature map carries item %q that validation rejects", item)
		}
	}
	for _, item := range ValidNavigationItems {
		if len(GetNavigationItemFeatures(item)) == 0 {
			t.Errorf("valid item %q maps to no features", item)
		}
	}
}
