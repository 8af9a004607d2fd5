package book

import "testing"

func TestDecimalsOf(t *testing.T) {
	tests := []struct {
		step string
		want int
	}{
		{"0.01", 2},
		{"0.010", 2},
		{"0.5", 1},
		{"0.00001", 5},
		{"1", 0},
		{"10", 0},
		{"1.0", 0},
	}
	for _, tt := range tests {
		if got := decimalsOf(tt.step); got != tt.want {
			t.Errorf("decimalsOf(%q) = %d, want %d", tt.step, got, tt.want)
		}
	}
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		step     string
		up       bool
		want     float64
	}{
		{"bid floors at 0.01", 100.016, "0.01", false, 100.01},
		{"ask ceils at 0.01", 100.011, "0.01", true, 100.02},
		{"bid floors at 0.5", 100.3, "0.5", false, 100.0},
		{"ask ceils at 0.5", 100.2, "0.5", true, 100.5},
		{"exact multiple stays put", 100.5, "0.5", true, 100.5},
		{"integer step floors", 103, "5", false, 100},
		{"integer step ceils", 101, "5", true, 105},
		{"tiny step", 0.123456, "0.0001", false, 0.1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := stepValue(tt.step)
			got := roundToStep(tt.price, step, decimalsOf(tt.step), tt.up)
			if got != tt.want {
				t.Errorf("roundToStep(%v, %q, up=%v) = %v, want %v", tt.price, tt.step, tt.up, got, tt.want)
			}
		})
	}
}

func TestStepValueRejectsUnusable(t *testing.T) {
	for _, step := range []string{"", "0", "-0.5", "abc", "NaN", "+Inf"} {
		if got := stepValue(step); got != 0 {
			t.Errorf("stepValue(%q) = %v, want 0", step, got)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		value    float64
		decimals int
		want     string
	}{
		{100, 2, "100.00"},
		{100.5, 2, "100.50"},
		{1234.5, 2, "1,234.50"},
		{1234567.891, 3, "1,234,567.891"},
		{0, 2, "0"},
		{-4321.5, 1, "-4,321.5"},
		{42, 0, "42"},
		{1000, 0, "1,000"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.value, tt.decimals); got != tt.want {
			t.Errorf("formatNumber(%v, %d) = %q, want %q", tt.value, tt.decimals, got, tt.want)
		}
	}
}
