package book

import (
	"math"
	"strconv"
	"strings"
)

// maxStepDecimals caps the pow10 factor used for sub-unit aggregation.
const maxStepDecimals = 15

// decimalsOf counts significant digits after the decimal point in a
// step string, trailing zeros stripped. "0.010" -> 2, "0.5" -> 1,
// "1" -> 0.
func decimalsOf(step string) int {
	i := strings.IndexByte(step, '.')
	if i < 0 {
		return 0
	}
	frac := strings.TrimRight(step[i+1:], "0")
	if len(frac) > maxStepDecimals {
		return maxStepDecimals
	}
	return len(frac)
}

// stepValue parses a step string; 0 signals an unusable step.
func stepValue(step string) float64 {
	v, err := strconv.ParseFloat(step, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

// roundToStep buckets a price onto a multiple of step: floor for bids,
// ceil for asks. Steps below 1 go through a pow10-scaled integer space
// so 0.1-style steps land on clean buckets despite binary doubles.
func roundToStep(price, step float64, decimals int, up bool) float64 {
	if step >= 1 {
		q := price / step
		if up {
			q = math.Ceil(q)
		} else {
			q = math.Floor(q)
		}
		return q * step
	}
	factor := math.Pow(10, float64(decimals))
	scaledStep := math.Round(step * factor)
	if scaledStep < 1 {
		scaledStep = 1
	}
	scaled := price * factor
	var q float64
	if up {
		q = math.Ceil(scaled / scaledStep)
	} else {
		q = math.Floor(scaled / scaledStep)
	}
	return q * scaledStep / factor
}

// formatNumber renders value with a fixed decimal count and comma
// thousands separators. Trailing zeros are kept so "0.01" aggregation
// always shows two decimals. Zero and non-finite values render "0".
func formatNumber(value float64, decimals int) string {
	if value == 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return "0"
	}
	if decimals < 0 {
		decimals = 0
	}
	if decimals > maxStepDecimals {
		decimals = maxStepDecimals
	}
	s := strconv.FormatFloat(value, 'f', decimals, 64)

	dot := strings.IndexByte(s, '.')
	end := dot
	if end < 0 {
		end = len(s)
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if end-start <= 3 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + (end-start-1)/3)
	b.WriteString(s[:start])
	for i := start; i < end; i++ {
		if i > start && (end-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	if dot >= 0 {
		b.WriteString(s[dot:])
	}
	return b.String()
}
