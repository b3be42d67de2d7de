package indicators

import (
	"math"
	"testing"

	"fusionbot/internal/domain"
)

func closesToKlines(closes ...float64) []*domain.Kline {
	out := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		out[i] = &domain.Kline{Close: c}
	}
	return out
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		closes      []float64
		want        float64
		expectError bool
	}{
		{
			name:   "alternating gains and losses",
			period: 3,
			closes: []float64{100, 102, 101, 103, 102, 104},
			// Wilder smoothing: RS reaches 3.4 after two smoothing steps.
			want: 77.272727,
		},
		{
			name:   "only gains read max",
			period: 3,
			closes: []float64{100, 102, 104, 106},
			want:   100,
		},
		{
			name:   "only losses read min",
			period: 3,
			closes: []float64{106, 104, 102, 100},
			want:   0,
		},
		{
			name:   "flat series reads neutral",
			period: 3,
			closes: []float64{100, 100, 100, 100},
			want:   50,
		},
		{
			name:        "insufficient data",
			period:      7,
			closes:      []float64{100, 102, 101, 103, 102, 104},
			expectError: true,
		},
		{
			name:        "non-positive period",
			period:      0,
			closes:      []float64{100, 102},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RSI(closesToKlines(tt.closes...), tt.period)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}
