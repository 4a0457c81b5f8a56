package geo

import (
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"delinquency-map/internal/domain"
)

func table(t *testing.T, cols ...domain.Column) domain.TabularResult {
	t.Helper()
	result, err := domain.NewTabularResult(cols...)
	require.NoError(t, err)
	return result
}

func col(name string, values ...any) domain.Column {
	return domain.Column{Name: name, Values: values}
}

func TestLocateSpatialColumn_SubstringFallback(t *testing.T) {
	result := table(t, col("bairro"), col("cell_H3_res9"), col("h3_parent"))
	name, err := LocateSpatialColumn(result, "")
	require.NoError(t, err)
	require.Equal(t, "cell_H3_res9", name)
}

func TestLocateSpatialColumn_Explicit(t *testing.T) {
	result := table(t, col("h3_parent"), col("cell"))
	name, err := LocateSpatialColumn(result, "cell")
	require.NoError(t, err)
	require.Equal(t, "cell", name)

	_, err = LocateSpatialColumn(result, "missing")
	require.ErrorIs(t, err, ErrNoSpatialColumn)
	require.Contains(t, err.Error(), "missing")
}

func TestLocateSpatialColumn_NotFound(t *testing.T) {
	_, err := LocateSpatialColumn(table(t, col("bairro"), col("contagem_clientes")), "")
	require.ErrorIs(t, err, ErrNoSpatialColumn)
}

func TestCanonicalizeHexID(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"int64", int64(613196570357137407), "8828308299fffff", true},
		{"small int pads", 255, "0000000000000ff", true},
		{"float64", float64(4096), "000000000001000", true},
		{"json number", json.Number("613196570357137407"), "8828308299fffff", true},
		{"string passes through", "already-a-string", "already-a-string", true},
		{"canonical string", "8828308299fffff", "8828308299fffff", true},
		{"nil", nil, "", false},
		{"negative", int64(-1), "", false},
		{"nan", math.NaN(), "", false},
		{"infinite", math.Inf(1), "", false},
		{"bool", true, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CanonicalizeHexID(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalizeHexID_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	inputs := []int64{0, 1, 1<<60 - 1}
	for i := 0; i < 1000; i++ {
		inputs = append(inputs, rng.Int63n(1<<60))
	}
	for _, n := range inputs {
		id, ok := CanonicalizeHexID(n)
		require.True(t, ok)
		require.Len(t, id, 15)
		require.Regexp(t, `^[0-9a-f]{15}$`, id)
		back, err := strconv.ParseUint(id, 16, 64)
		require.NoError(t, err)
		require.Equal(t, uint64(n), back)
	}
}

func TestCanonicalizeColumn_FailuresBecomeNil(t *testing.T) {
	got := CanonicalizeColumn([]any{int64(15), nil, -3.0, "x"})
	require.Equal(t, []any{"00000000000000f", nil, nil, "x"}, got)
}
