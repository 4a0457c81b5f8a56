package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDenominator_ZeroMaxFloorsToOne(t *testing.T) {
	require.Equal(t, 1.0, Denominator([]any{0.0, 0.0, 0.0}))
	require.Equal(t, 1.0, Denominator(nil))
	require.Equal(t, 1.0, Denominator([]any{nil, "x"}))
	require.Equal(t, 8.0, Denominator([]any{2.0, 8.0, nil, 3.0}))
}

func TestFillColor(t *testing.T) {
	require.Equal(t, [4]int{255, 255, 0, 180}, FillColor(0, 1))
	require.Equal(t, [4]int{255, 0, 0, 180}, FillColor(10, 10))
	require.Equal(t, [4]int{255, 128, 0, 180}, FillColor(5, 10))
	require.Equal(t, [4]int{255, 255, 0, 180}, FillColor(0, 0))
	require.Equal(t, [4]int{255, 0, 0, 180}, FillColor(20, 10))
}

func TestSum(t *testing.T) {
	require.Equal(t, 10.5, Sum([]any{int64(3), 2.5, "5", nil, "abc"}))
}
