package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCVaR(t *testing.T) {
	tests := []struct {
		name       string
		returns    []float64
		confidence float64
		want       float64
	}{
		{
			name:       "empty series",
			returns:    nil,
			confidence: 0.95,
			want:       0,
		},
		{
			name:       "single observation is its own tail",
			returns:    []float64{-0.08},
			confidence: 0.95,
			want:       -0.08,
		},
		{
			name: "short series floors tail to one worst return",
			// floor(7 * 0.05) = 0, floored to 1
			returns:    []float64{-0.20, -0.10, -0.05, 0.0, 0.05, 0.10, 0.15},
			confidence: 0.95,
			want:       -0.20,
		},
		{
			name: "tail averages worst observations",
			// floor(10 * 0.20) = 2: average of -0.30 and -0.20
			returns:    []float64{-0.30, -0.20, -0.10, 0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06},
			confidence: 0.80,
			want:       -0.25,
		},
		{
			name:       "all gains yields positive tail",
			returns:    []float64{0.01, 0.02, 0.03},
			confidence: 0.95,
			want:       0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCVaR(tt.returns, tt.confidence), 1e-9)
		})
	}
}

func TestCalculateCVaR_UnsortedInputUnchanged(t *testing.T) {
	returns := []float64{0.05, -0.20, 0.10}
	_ = CalculateCVaR(returns, 0.95)
	assert.Equal(t, []float64{0.05, -0.20, 0.10}, returns)
}
