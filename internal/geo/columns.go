package geo

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"delinquency-map/internal/domain"
)

// CoerceNumeric parses every value as a float64. Unparsable and non-finite
// values become nil.
func CoerceNumeric(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if f, ok := toFloat(v); ok {
			out[i] = f
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !finite(f) {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return !finite(x)
	case float32:
		return !finite(float64(x))
	}
	return false
}

// ScrubNonFinite returns a copy of result where every NaN or infinite float
// is nil. Columns without such values are shared with result.
func ScrubNonFinite(result domain.TabularResult) domain.TabularResult {
	out := result
	for _, c := range result.Columns {
		var scrubbed []any
		for r, v := range c.Values {
			if v == nil || !isNull(v) {
				continue
			}
			if scrubbed == nil {
				scrubbed = append([]any(nil), c.Values...)
			}
			scrubbed[r] = nil
		}
		if scrubbed != nil {
			out = out.WithColumn(c.Name, scrubbed)
		}
	}
	return out
}

// DropIncomplete removes every row holding a null in any required column. A
// required column absent from result is a schema violation.
func DropIncomplete(result domain.TabularResult, required []string) (domain.TabularResult, error) {
	cols := make([]domain.Column, 0, len(required))
	for _, name := range required {
		c, ok := result.Column(name)
		if !ok {
			return domain.TabularResult{}, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		cols = append(cols, c)
	}

	keep := make([]int, 0, result.Len())
rows:
	for r := 0; r < result.Len(); r++ {
		for _, c := range cols {
			if isNull(c.Values[r]) {
				continue rows
			}
		}
		keep = append(keep, r)
	}
	return result.SelectRows(keep), nil
}

// RequireColumns fails with ErrMissingColumn naming the first absent column.
func RequireColumns(result domain.TabularResult, names ...string) error {
	for _, name := range names {
		if !result.HasColumn(name) {
			return fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	return nil
}

// ApplyFilters keeps the rows whose value is accepted by every restricted
// column of selection. Relative row order is preserved.
func ApplyFilters(result domain.TabularResult, selection domain.FilterSelection) (domain.TabularResult, error) {
	type restriction struct {
		values   []any
		accepted map[string]struct{}
	}
	var active []restriction
	for name, accepted := range selection {
		if len(accepted) == 0 {
			continue
		}
		c, ok := result.Column(name)
		if !ok {
			return domain.TabularResult{}, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
		set := make(map[string]struct{}, len(accepted))
		for _, a := range accepted {
			set[a] = struct{}{}
		}
		active = append(active, restriction{values: c.Values, accepted: set})
	}
	if len(active) == 0 {
		return result, nil
	}

	keep := make([]int, 0, result.Len())
rows:
	for r := 0; r < result.Len(); r++ {
		for _, f := range active {
			if isNull(f.values[r]) {
				continue rows
			}
			if _, ok := f.accepted[categoryKey(f.values[r])]; !ok {
				continue rows
			}
		}
		keep = append(keep, r)
	}
	return result.SelectRows(keep), nil
}

// DistinctValues returns the sorted distinct non-null values of a column.
func DistinctValues(result domain.TabularResult, column string) []string {
	c, ok := result.Column(column)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, v := range c.Values {
		if isNull(v) {
			continue
		}
		k := categoryKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func categoryKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
