package services

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// defaultBrandColor is used when a brand's primary color cannot be parsed.
// Chart generation never fails on a bad color.
const defaultBrandColor = "#4e79a7"

// DeriveDistributionColors builds the fill/border palettes for a
// proportional-distribution chart with n segments. Each segment rotates the
// hue by 360/n degrees; fills drop lightness by 10 at alpha 0.6, borders
// keep the base lightness at alpha 1.0.
func DeriveDistributionColors(hex string, n int) (fills []string, borders []string) {
	if n <= 0 {
		return nil, nil
	}

	h, s, l, err := hexToHSL(hex)
	if err != nil {
		h, s, l, _ = hexToHSL(defaultBrandColor)
	}

	step := 360.0 / float64(n)
	fills = make([]string, n)
	borders = make([]string, n)
	for i := 0; i < n; i++ {
		hue := math.Mod(h+step*float64(i), 360)
		fills[i] = hslaString(hue, s, math.Max(l-10, 0), 0.6)
		borders[i] = hslaString(hue, s, l, 1.0)
	}
	return fills, borders
}

// DeriveSeriesColors builds the fill/border palettes for a comparison or
// trend chart with n series. Hue and saturation stay fixed; lightness runs
// linearly from min(l+10, 90) down to max(l-20, 10). Fills sit 5 lightness
// points under their border at alpha 0.6, borders at alpha 1.0.
func DeriveSeriesColors(hex string, n int) (fills []string, borders []string) {
	if n <= 0 {
		return nil, nil
	}

	h, s, l, err := hexToHSL(hex)
	if err != nil {
		h, s, l, _ = hexToHSL(defaultBrandColor)
	}

	hi := math.Min(l+10, 90)
	lo := math.Max(l-20, 10)

	fills = make([]string, n)
	borders = make([]string, n)
	for i := 0; i < n; i++ {
		light := hi
		if n > 1 {
			light = hi - (hi-lo)*float64(i)/float64(n-1)
		}
		fills[i] = hslaString(h, s, math.Max(light-5, 0), 0.6)
		borders[i] = hslaString(h, s, light, 1.0)
	}
	return fills, borders
}

// DeriveContrastText picks the readable text color for the given background.
// Relative luminance uses the sRGB linearization with the 0.2126/0.7152/0.0722
// channel weights; the result is always one of exactly two values.
func DeriveContrastText(hex string) string {
	r, g, b, err := hexToRGB(hex)
	if err != nil {
		r, g, b, _ = hexToRGB(defaultBrandColor)
	}

	lum := 0.2126*linearize(r) + 0.7152*linearize(g) + 0.0722*linearize(b)
	if lum > 0.5 {
		return "#000000"
	}
	return "#ffffff"
}

func linearize(c float64) float64 {
	if c <= 0.03928 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// hexToRGB parses #rgb or #rrggbb into channel values in [0, 1].
func hexToRGB(hex string) (r, g, b float64, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hex)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q", hex)
	}

	r = float64(v>>16&0xff) / 255
	g = float64(v>>8&0xff) / 255
	b = float64(v&0xff) / 255
	return r, g, b, nil
}

// hexToHSL converts a hex color to hue [0, 360), saturation and lightness
// as percentages.
func hexToHSL(hex string) (h, s, l float64, err error) {
	r, g, b, err := hexToRGB(hex)
	if err != nil {
		return 0, 0, 0, err
	}

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	l = (max + min) / 2

	if max == min {
		// Achromatic
		return 0, 0, l * 100, nil
	}

	d := max - min
	if l > 0.5 {
		s = d / (2 - max - min)
	} else {
		s = d / (max + min)
	}

	switch max {
	case r:
		h = (g - b) / d
		if g < b {
			h += 6
		}
	case g:
		h = (b-r)/d + 2
	case b:
		h = (r-g)/d + 4
	}
	h *= 60

	return h, s * 100, l * 100, nil
}

func hslaString(h, s, l, a float64) string {
	return fmt.Sprintf("hsla(%d, %d%%, %d%%, %.1f)",
		int(math.Round(h))%360, int(math.Round(s)), int(math.Round(l)), a)
}
