package geo

import "math"

// Sum adds the numeric values of a column, skipping anything unparsable.
func Sum(values []any) float64 {
	var total float64
	for _, v := range values {
		if f, ok := toFloat(v); ok {
			total += f
		}
	}
	return total
}

// Denominator is the largest numeric value, floored to 1 when the maximum is
// zero or no value is numeric.
func Denominator(values []any) float64 {
	maxValue, found := 0.0, false
	for _, v := range values {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		if !found || f > maxValue {
			maxValue, found = f, true
		}
	}
	if !found || maxValue == 0 {
		return 1
	}
	return maxValue
}

// FillColor shades a cell from yellow (low) to red (at denominator).
func FillColor(value, denominator float64) [4]int {
	if denominator == 0 {
		denominator = 1
	}
	green := 255 * (1 - value/denominator)
	green = math.Max(0, math.Min(255, green))
	return [4]int{255, int(math.Round(green)), 0, 180}
}
