package services

import (
	"strings"
	"testing"

	"brand-deck-platform/internal/config"
	"brand-deck-platform/models"
)

func TestShouldSkipAlertHierarchy(t *testing.T) {
	a := &AlertEvaluator{config: &config.Config{}}

	cases := []struct {
		sent  string
		level string
		skip  bool
	}{
		{"", "warn", false},
		{"none", "critical", false},
		{"warn", "warn", true},
		{"warn", "critical", false},
		{"critical", "warn", true},
		{"critical", "exhausted", false},
		{"exhausted", "critical", true},
		{"exhausted", "exhausted", true},
	}

	for _, tc := range cases {
		brand := models.Brand{AlertLevelSent: tc.sent}
		if got := a.shouldSkipAlert(brand, tc.level); got != tc.skip {
			t.Errorf("shouldSkipAlert(sent=%q, level=%q) = %v, want %v", tc.sent, tc.level, got, tc.skip)
		}
	}
}

func TestGenerateQuotaAlertContent(t *testing.T) {
	s := NewSMTPEmailSender(&config.Config{})

	data := QuotaAlertData{
		BrandName:       "Acme",
		UsedTokens:      85000,
		TotalTokens:     100000,
		RemainingTokens: 15000,
		PercentUsed:     85,
	}

	subject, htmlBody, textBody, err := s.generateEmailContent("warn", data)
	if err != nil {
		t.Fatalf("generateEmailContent: %v", err)
	}
	if !strings.Contains(subject, "Acme") || !strings.Contains(subject, "85%") {
		t.Errorf("subject should carry brand and rounded percent, got %q", subject)
	}
	if !strings.Contains(htmlBody, "85000") || !strings.Contains(textBody, "15000") {
		t.Error("bodies should carry the token figures")
	}

	if _, _, _, err := s.generateEmailContent("panic", data); err == nil {
		t.Error("unknown alert level should error")
	}
}
