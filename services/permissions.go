package services

import (
	"fmt"
)

// Navigation item to features mapping
// When a navigation item is enabled, all its features are automatically enabled
var NavigationItemFeatures = map[string][]string{
	"dashboard": {
		"dashboard_view",
		"dashboard_stats",
		"dashboard_quick_actions",
	},
	"documents": {
		"document_upload",
		"document_view",
		"document_delete",
		"document_manage",
		"document_sensitive_flag",
		"document_status",
	},
	"decks": {
		"deck_create",
		"deck_view",
		"deck_status",
		"deck_export",
		"deck_chart_data",
		"deck_ask",
	},
	"branding": {
		"branding_logo_update",
		"branding_theme_update",
		"branding_color_update",
		"branding_tagline_update",
	},
	"snapshots": {
		"snapshot_request",
		"snapshot_view",
		"snapshot_refresh",
		"snapshot_cancel",
	},
	"analytics": {
		"analytics_view",
		"analytics_export",
		"analytics_charts",
		"analytics_metrics",
	},
	"token_usage": {
		"token_usage_view",
		"token_usage_history",
		"token_usage_charts",
		"token_limit_view",
	},
	"media": {
		"media_upload",
		"media_view",
		"media_delete",
		"media_manage",
	},
	"website_embed": {
		"website_embed_configure",
		"website_embed_enable",
		"website_embed_view",
	},
}

// ValidNavigationItems - List of all valid navigation items
var ValidNavigationItems = []string{
	"dashboard",
	"documents",
	"decks",
	"branding",
	"snapshots",
	"analytics",
	"token_usage",
	"media",
	"website_embed",
}

// GetNavigationItemFeatures returns all features for a navigation item
func GetNavigationItemFeatures(navigationItem string) []string {
	if features, exists := NavigationItemFeatures[navigationItem]; exists {
		return features
	}
	return []string{}
}

// SyncFeaturesFromNavigationItems automatically populates enabled features based on navigation items
func SyncFeaturesFromNavigationItems(navigationItems []string) []string {
	enabledFeatures := make(map[string]bool)

	for _, item := range navigationItems {
		features := GetNavigationItemFeatures(item)
		for _, feature := range features {
			enabledFeatures[feature] = true
		}
	}

	result := make([]string, 0, len(enabledFeatures))
	for feature := range enabledFeatures {
		result = append(result, feature)
	}

	return result
}

// ValidateNavigationItems validates that all navigation items are valid
func ValidateNavigationItems(items []string) error {
	validMap := make(map[string]bool)
	for _, item := range ValidNavigationItems {
		validMap[item] = true
	}

	for _, item := range items {
		if !validMap[item] {
			return fmt.Errorf("invalid navigation item: %s", item)
		}
	}

	return nil
}

// HasNavigationItem checks if a navigation item is in the allowed list
func HasNavigationItem(allowedItems []string, item string) bool {
	// If allowedItems is empty, all items are allowed (backward compatible)
	if len(allowedItems) == 0 {
		return true
	}

	for _, allowed := range allowedItems {
		if allowed == item {
			return true
		}
	}
	return false
}

// HasFeature checks if a feature is in the enabled list
func HasFeature(enabledFeatures []string, feature string) bool {
	// If enabledFeatures is empty, all features are enabled (backward compatible)
	if len(enabledFeatures) == 0 {
		return true
	}

	for _, enabled := range enabledFeatures {
		if enabled == feature {
			return true
		}
	}
	return false
}
