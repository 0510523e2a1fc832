package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	// Sample standard deviation of {2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.138, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 0.001)
}

func TestCalculateReturns(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "simple series",
			values: []float64{100, 110, 99},
			want:   []float64{0.10, -0.10},
		},
		{
			name:   "too short",
			values: []float64{100},
			want:   []float64{},
		},
		{
			name:   "zero value skipped",
			values: []float64{0, 100},
			want:   []float64{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateReturns(tt.values)
			assert.Equal(t, len(tt.want), len(got))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9)
			}
		})
	}
}

func TestSharpeRatio(t *testing.T) {
	// Flat returns have zero volatility, ratio must not blow up
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0.05))
	assert.Equal(t, 0.0, SharpeRatio([]float64{0.01}, 0.05))

	returns := []float64{0.01, -0.005, 0.02, 0.003, -0.01}
	got := SharpeRatio(returns, 0.0)
	annualReturn := Mean(returns) * 252
	vol := AnnualizedVolatility(returns)
	assert.InDelta(t, annualReturn/vol, got, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		want    float64
	}{
		{
			name:    "empty",
			returns: nil,
			want:    0,
		},
		{
			name:    "monotonic gains",
			returns: []float64{0.01, 0.02, 0.03},
			want:    0,
		},
		{
			name:    "single drop",
			returns: []float64{0.10, -0.20},
			want:    0.20,
		},
		{
			name:    "recovery does not erase drawdown",
			returns: []float64{-0.10, 0.50},
			want:    0.10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.returns), 1e-9)
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(-1, 0, 1))
	assert.Equal(t, 1.0, Clamp(2, 0, 1))
	assert.Equal(t, 0.3, Clamp01(0.3))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, 0.5, Sanitize(0.5, 0))
	assert.Equal(t, 0.2, Sanitize(math.NaN(), 0.2))
	assert.Equal(t, 0.2, Sanitize(math.Inf(1), 0.2))
	assert.Equal(t, 0.2, Sanitize(math.Inf(-1), 0.2))
}
