package services

import (
	"fmt"
	"testing"
)

func parseHSLA(t *testing.T, s string) (h, sat, l int, a float64) {
	t.Helper()
	if _, err := fmt.Sscanf(s, "hsla(%d, %d%%, %d%%, %f)", &h, &sat, &l, &a); err != nil {
		t.Fatalf("unparseable hsla string %q: %v", s, err)
	}
	return h, sat, l, a
}

func TestDeriveContrastText(t *testing.T) {
	cases := []struct {
		hex  string
		want string
	}{
		{"#000000", "#ffffff"},
		{"#ffffff", "#000000"},
		{"#ff0000", "#ffffff"}, // red luminance 0.2126
		{"#ffff00", "#000000"}, // yellow is bright
		{"#1a1a2e", "#ffffff"},
		{"not-a-color", "#ffffff"}, // falls back to the default brand color
	}

	for _, tc := range cases {
		if got := DeriveContrastText(tc.hex); got != tc.want {
			t.Errorf("DeriveContrastText(%q) = %q, want %q", tc.hex, got, tc.want)
		}
	}
}

func TestDeriveContrastTextBinary(t *testing.T) {
	// Whatever the input, the result must be one of exactly two tokens.
	for _, hex := range []string{"#123456", "#abcdef", "#808080", "#f7f7f7", "#0a0a0a", ""} {
		got := DeriveContrastText(hex)
		if got != "#000000" && got != "#ffffff" {
			t.Fatalf("DeriveContrastText(%q) = %q, expected a pure black or white token", hex, got)
		}
	}
}

func TestDistributionHueRotation(t *testing.T) {
	_, borders := DeriveDistributionColors("#ff0000", 3)
	if len(borders) != 3 {
		t.Fatalf("expected 3 borders, got %d", len(borders))
	}

	hues := make([]int, 3)
	for i, b := range borders {
		hues[i], _, _, _ = parseHSLA(t, b)
	}

	for i := 1; i < 3; i++ {
		diff := (hues[i] - hues[i-1] + 360) % 360
		if diff != 120 {
			t.Errorf("segments %d and %d are %d degrees apart, want 120", i-1, i, diff)
		}
	}
}

func TestDistributionFillAndBorder(t *testing.T) {
	fills, borders := DeriveDistributionColors("#ff0000", 4)
	if len(fills) != 4 || len(borders) != 4 {
		t.Fatalf("expected 4 fills and 4 borders, got %d/%d", len(fills), len(borders))
	}

	for i := range fills {
		fh, fs, fl, fa := parseHSLA(t, fills[i])
		bh, bs, bl, ba := parseHSLA(t, borders[i])

		if fh != bh || fs != bs {
			t.Errorf("segment %d: fill and border disagree on hue/saturation: %s vs %s", i, fills[i], borders[i])
		}
		if bl-fl != 10 {
			t.Errorf("segment %d: fill lightness %d should sit 10 under border %d", i, fl, bl)
		}
		if fa != 0.6 || ba != 1.0 {
			t.Errorf("segment %d: alphas %.1f/%.1f, want 0.6/1.0", i, fa, ba)
		}
	}
}

func TestSeriesLightnessRange(t *testing.T) {
	// #ff0000 has lightness 50, so the series runs from 60 down to 30.
	_, borders := DeriveSeriesColors("#ff0000", 3)
	want := []int{60, 45, 30}
	for i, b := range borders {
		h, _, l, a := parseHSLA(t, b)
		if h != 0 {
			t.Errorf("series %d: hue %d changed, should stay fixed", i, h)
		}
		if l != want[i] {
			t.Errorf("series %d: lightness %d, want %d", i, l, want[i])
		}
		if a != 1.0 {
			t.Errorf("series %d: border alpha %.1f, want 1.0", i, a)
		}
	}

	fills, _ := DeriveSeriesColors("#ff0000", 3)
	for i, f := range fills {
		_, _, l, a := parseHSLA(t, f)
		if l != want[i]-5 {
			t.Errorf("series %d: fill lightness %d, want %d", i, l, want[i]-5)
		}
		if a != 0.6 {
			t.Errorf("series %d: fill alpha %.1f, want 0.6", i, a)
		}
	}
}

func TestSeriesSingleEntry(t *testing.T) {
	fills, borders := DeriveSeriesColors("#336699", 1)
	if len(fills) != 1 || len(borders) != 1 {
		t.Fatalf("expected a single color pair, got %d/%d", len(fills), len(borders))
	}
}

func TestPaletteEmptyForZeroSegments(t *testing.T) {
	if fills, borders := DeriveDistributionColors("#ff0000", 0); fills != nil || borders != nil {
		t.Errorf("expected empty palettes for zero segments")
	}
	if fills, borders := DeriveSeriesColors("#ff0000", -1); fills != nil || borders != nil {
		t.Errorf("expected empty palettes for negative count")
	}
}

func TestHexToHSLRoundTrip(t *testing.T) {
	cases := []struct {
		hex     string
		h, s, l float64
	}{
		{"#ff0000", 0, 100, 50},
		{"#00ff00", 120, 100, 50},
		{"#0000ff", 240, 100, 50},
		{"#ffffff", 0, 0, 100},
		{"#000000", 0, 0, 0},
		{"#808080", 0, 0, 50.2},
	}

	for _, tc := range cases {
		h, s, l, err := hexToHSL(tc.hex)
		if err != nil {
			t.Fatalf("hexToHSL(%q) failed: %v", tc.hex, err)
		}
		if !closeTo(h, tc.h, 0.5) || !closeTo(s, tc.s, 0.5) || !closeTo(l, tc.l, 0.5) {
			t.Errorf("hexToHSL(%q) = (%.1f, %.1f, %.1f), want (%.1f, %.1f, %.1f)",
				tc.hex, h, s, l, tc.h, tc.s, tc.l)
		}
	}
}

func TestHexShorthand(t *testing.T) {
	h1, s1, l1, err := hexToHSL("#f00")
	if err != nil {
		t.Fatalf("shorthand hex rejected: %v", err)
	}
	h2, s2, l2, _ := hexToHSL("#ff0000")
	if h1 != h2 || s1 != s2 || l1 != l2 {
		t.Errorf("#f00 and #ff0000 disagree: (%v,%v,%v) vs (%v,%v,%v)", h1, s1, l1, h2, s2, l2)
	}
}

func closeTo(got, want, tol float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tol
}
