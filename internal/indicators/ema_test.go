package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		closes      []float64
		want        float64
		expectError bool
	}{
		{
			name:   "averages the last period closes",
			period: 3,
			closes: []float64{100, 102, 104, 106, 108},
			want:   106,
		},
		{
			name:   "window equals the series",
			period: 4,
			closes: []float64{100, 102, 104, 106},
			want:   103,
		},
		{
			name:        "insufficient data",
			period:      5,
			closes:      []float64{100, 102},
			expectError: true,
		},
		{
			name:        "non-positive period",
			period:      0,
			closes:      []float64{100},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SMA(closesToKlines(tt.closes...), tt.period)

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

func TestEMA(t *testing.T) {
	tests := []struct {
		name        string
		period      int
		closes      []float64
		want        float64
		expectError bool
	}{
		{
			name:   "seeded with the opening SMA",
			period: 3,
			closes: []float64{100, 102, 104, 106, 108},
			// Seed 102, multiplier 0.5: 104 after 106, 106 after 108.
			want: 106,
		},
		{
			name:   "window equals the series falls back to the seed",
			period: 3,
			closes: []float64{100, 102, 104},
			want:   102,
		},
		{
			name:   "weights recent closes over old ones",
			period: 3,
			closes: []float64{100, 100, 100, 120},
			want:   110,
		},
		{
			name:        "insufficient data",
			period:      5,
			closes:      []float64{100, 102},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EMA(closesToKlines(tt.closes...), tt.period)

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
