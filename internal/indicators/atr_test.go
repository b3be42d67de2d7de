package indicators

import (
	"math"
	"testing"

	"fusionbot/internal/domain"
)

func TestATR(t *testing.T) {
	klines := []*domain.Kline{
		{High: 110, Low: 100, Close: 105},
		{High: 112, Low: 104, Close: 110},
		{High: 115, Low: 108, Close: 114},
		{High: 116, Low: 112, Close: 113},
		{High: 114, Low: 109, Close: 110},
	}

	tests := []struct {
		name        string
		period      int
		klines      []*domain.Kline
		want        float64
		expectError bool
	}{
		{
			name:   "Wilder smoothing over full series",
			period: 3,
			klines: klines,
			// TRs are 10, 8, 7, 4, 5; seed avg 25/3 then smoothed twice.
			want: 6.259259,
		},
		{
			name:   "gap down widens the true range",
			period: 2,
			klines: []*domain.Kline{{High: 110, Low: 100, Close: 105}, {High: 98, Low: 95, Close: 96}, {High: 99, Low: 96, Close: 98}},
			want:   6.5, // TRs 10, 10, 3; seed 10 then smoothed once
		},
		{
			name:        "insufficient data",
			period:      5,
			klines:      klines,
			expectError: true,
		},
		{
			name:        "non-positive period",
			period:      0,
			klines:      klines,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ATR(tt.klines, tt.period)

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
