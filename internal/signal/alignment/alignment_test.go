package alignment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusionbot/internal/adapters/logger"
	"fusionbot/internal/domain"
)

func bullishTF(role domain.TimeframeRole) domain.TimeframeIndicators {
	return domain.TimeframeIndicators{Role: role, EMAFast: 105, EMASlow: 100, Close: 110, HasData: true}
}

func bearishTF(role domain.TimeframeRole) domain.TimeframeIndicators {
	return domain.TimeframeIndicators{Role: role, EMAFast: 95, EMASlow: 100, Close: 90, HasData: true}
}

func TestGate_CalculateAlignment(t *testing.T) {
	g, err := New(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name         string
		direction    domain.Direction
		price        float64
		perTF        map[domain.TimeframeRole]domain.TimeframeIndicators
		wantScore    int
		wantAligned  bool
	}{
		{
			name:      "all timeframes bullish for long",
			direction: domain.Long,
			price:     110,
			perTF: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bullishTF(domain.RolePrimary),
				domain.RoleTrend1:  bullishTF(domain.RoleTrend1),
				domain.RoleTrend2:  bullishTF(domain.RoleTrend2),
			},
			wantScore:   100,
			wantAligned: true,
		},
		{
			name:      "all timeframes bearish for short",
			direction: domain.Short,
			price:     90,
			perTF: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bearishTF(domain.RolePrimary),
				domain.RoleTrend1:  bearishTF(domain.RoleTrend1),
				domain.RoleTrend2:  bearishTF(domain.RoleTrend2),
			},
			wantScore:   100,
			wantAligned: true,
		},
		{
			name:      "higher frames oppose the long",
			direction: domain.Long,
			price:     110,
			perTF: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bullishTF(domain.RolePrimary),
				domain.RoleTrend1:  bearishTF(domain.RoleTrend1),
				domain.RoleTrend2:  bearishTF(domain.RoleTrend2),
			},
			wantScore:   40, // primary only
			wantAligned: false,
		},
		{
			name:      "primary partial credit, trend1 full",
			direction: domain.Long,
			price:     103, // above slow but below fast EMA on primary
			perTF: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bullishTF(domain.RolePrimary),
				domain.RoleTrend1:  {Role: domain.RoleTrend1, EMAFast: 101, EMASlow: 100, Close: 0, HasData: true},
			},
			// primary ema sub-condition 40*0.6=24; trend1 price 103 > fast 101
			// earns the full 35; trend2 missing contributes nothing.
			wantScore:   59,
			wantAligned: false,
		},
		{
			name:      "missing data contributes zero",
			direction: domain.Long,
			price:     110,
			perTF: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bullishTF(domain.RolePrimary),
				domain.RoleTrend1:  {Role: domain.RoleTrend1}, // HasData false
			},
			wantScore:   40,
			wantAligned: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := g.CalculateAlignment(tt.direction, tt.price, tt.perTF)
			assert.Equal(t, tt.wantScore, res.Score)
			assert.Equal(t, tt.wantAligned, res.Aligned)
			assert.GreaterOrEqual(t, res.Score, 0)
			assert.LessOrEqual(t, res.Score, 100)
		})
	}
}

func TestGate_AlignedExactlyAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinAlignmentScore = 40
	g, err := New(cfg)
	require.NoError(t, err)

	res := g.CalculateAlignment(domain.Long, 110, map[domain.TimeframeRole]domain.TimeframeIndicators{
		domain.RolePrimary: bullishTF(domain.RolePrimary),
	})
	assert.Equal(t, 40, res.Score)
	assert.True(t, res.Aligned)
}

type stubProvider struct {
	data map[domain.TimeframeRole]domain.TimeframeIndicators
	errs map[domain.TimeframeRole]error
}

func (p *stubProvider) TimeframeIndicators(_ context.Context, role domain.TimeframeRole) (domain.TimeframeIndicators, error) {
	if err, ok := p.errs[role]; ok {
		return domain.TimeframeIndicators{Role: role}, err
	}
	return p.data[role], nil
}

func TestGate_ConfirmTrend(t *testing.T) {
	g, err := New(DefaultConfig())
	require.NoError(t, err)
	log := logger.NewNop()

	t.Run("all frames agree", func(t *testing.T) {
		p := &stubProvider{data: map[domain.TimeframeRole]domain.TimeframeIndicators{
			domain.RolePrimary: bullishTF(domain.RolePrimary),
			domain.RoleTrend1:  bullishTF(domain.RoleTrend1),
			domain.RoleTrend2:  bullishTF(domain.RoleTrend2),
		}}
		conf := g.ConfirmTrend(context.Background(), log, p, domain.Long)
		assert.True(t, conf.IsAligned)
		assert.InDelta(t, 1.0, conf.Score, 1e-9)
	})

	t.Run("partial fetch failure renormalizes weights", func(t *testing.T) {
		p := &stubProvider{
			data: map[domain.TimeframeRole]domain.TimeframeIndicators{
				domain.RolePrimary: bullishTF(domain.RolePrimary),
				domain.RoleTrend1:  bullishTF(domain.RoleTrend1),
			},
			errs: map[domain.TimeframeRole]error{
				domain.RoleTrend2: errors.New("exchange timeout"),
			},
		}
		conf := g.ConfirmTrend(context.Background(), log, p, domain.Long)
		// The two available frames both agree, so the renormalized score is 1.
		assert.True(t, conf.IsAligned)
		assert.InDelta(t, 1.0, conf.Score, 1e-9)
		assert.Len(t, conf.Details, 2)
	})

	t.Run("total data loss fails closed", func(t *testing.T) {
		boom := errors.New("exchange down")
		p := &stubProvider{errs: map[domain.TimeframeRole]error{
			domain.RolePrimary: boom,
			domain.RoleTrend1:  boom,
			domain.RoleTrend2:  boom,
		}}
		conf := g.ConfirmTrend(context.Background(), log, p, domain.Long)
		assert.False(t, conf.IsAligned)
		assert.Zero(t, conf.Score)
	})

	t.Run("frames disagree below threshold", func(t *testing.T) {
		p := &stubProvider{data: map[domain.TimeframeRole]domain.TimeframeIndicators{
			domain.RolePrimary: bearishTF(domain.RolePrimary),
			domain.RoleTrend1:  bullishTF(domain.RoleTrend1),
			domain.RoleTrend2:  bearishTF(domain.RoleTrend2),
		}}
		conf := g.ConfirmTrend(context.Background(), log, p, domain.Long)
		assert.False(t, conf.IsAligned)
		assert.InDelta(t, 0.35, conf.Score, 1e-9)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"weights must sum to 100", func(c *Config) { c.Timeframes[0].Weight = 50 }, true},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }, true},
		{"confirmation weights must sum to 1", func(c *Config) { c.ConfirmPrimaryWeight = 0.9 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
