// Package geo turns raw warehouse results into renderable H3 datasets.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"delinquency-map/internal/domain"
)

// HexColumn is the column every normalized result carries the canonical cell
// identifier in.
const HexColumn = "h3"

const hexWidth = 15

var (
	ErrNoSpatialColumn = errors.New("geo: no spatial index column")
	ErrMissingColumn   = errors.New("geo: missing column")
)

// LocateSpatialColumn returns the column holding the H3 index. When explicit is
// set it must name an existing column. Otherwise the first column, in result
// order, whose name contains "h3" case-insensitively wins; later matches are
// ignored.
func LocateSpatialColumn(result domain.TabularResult, explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if !result.HasColumn(explicit) {
			return "", fmt.Errorf("%w: configured column %q not present", ErrNoSpatialColumn, explicit)
		}
		return explicit, nil
	}
	for _, c := range result.Columns {
		if strings.Contains(strings.ToLower(c.Name), HexColumn) {
			return c.Name, nil
		}
	}
	return "", ErrNoSpatialColumn
}

// CanonicalizeHexID converts an H3 index value to its 15-character,
// zero-padded lowercase hex form. Numbers are converted, strings pass through
// unchanged, and nil or anything unconvertible yields ok == false.
func CanonicalizeHexID(v any) (string, bool) {
	n, ok := unsignedIndex(v)
	if !ok {
		if s, isString := v.(string); isString {
			return s, true
		}
		return "", false
	}
	return fmt.Sprintf("%0*x", hexWidth, n), true
}

func unsignedIndex(v any) (uint64, bool) {
	switch x := v.(type) {
	case int64:
		return nonNegative(x)
	case int:
		return nonNegative(int64(x))
	case int32:
		return nonNegative(int64(x))
	case uint64:
		return x, true
	case uint32:
		return uint64(x), true
	case float64:
		return floatIndex(x)
	case float32:
		return floatIndex(float64(x))
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return nonNegative(i)
		}
		if f, err := x.Float64(); err == nil {
			return floatIndex(f)
		}
	}
	return 0, false
}

func nonNegative(i int64) (uint64, bool) {
	if i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func floatIndex(f float64) (uint64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.Exp2(64) {
		return 0, false
	}
	return uint64(f), true
}

// CanonicalizeColumn maps CanonicalizeHexID over values; failures become nil.
func CanonicalizeColumn(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if id, ok := CanonicalizeHexID(v); ok {
			out[i] = id
		}
	}
	return out
}
