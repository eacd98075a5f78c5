package searcher

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"zero exit bonus", func(c *Config) { c.LoopExitBonus = 0 }, "loop_exit_bonus"},
		{"negative coverage", func(c *Config) { c.CoverageBonus = -1 }, "coverage_bonus"},
		{"coverage not below exit", func(c *Config) { c.CoverageBonus = c.LoopExitBonus }, "below loop_exit_bonus"},
		{"negative penalty", func(c *Config) { c.ForkPenalty = -1 }, "fork_penalty"},
		{"negative cap", func(c *Config) { c.PenaltyCap = -1 }, "penalty_cap"},
		{"zero quota", func(c *Config) { c.PromotionQuota = 0 }, "promotion_quota"},
		{"zero decay interval", func(c *Config) { c.DecayInterval = 0 }, "decay_interval"},
		{"negative decay", func(c *Config) { c.DecayAmount = -1 }, "decay_amount"},
		{"default below low water", func(c *Config) { c.LowWater = 10 }, "below low_water"},
		{"unknown mode", func(c *Config) { c.PenaltyMode = "quadratic" }, "unknown penalty_mode"},
		{"uncapped exponential", func(c *Config) {
			c.PenaltyMode = PenaltyExponential
			c.PenaltyCap = 0
		}, "requires a penalty_cap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestConfig_Penalty(t *testing.T) {
	linear := DefaultConfig()
	exp := DefaultConfig()
	exp.PenaltyMode = PenaltyExponential
	uncapped := DefaultConfig()
	uncapped.PenaltyCap = 0

	tests := []struct {
		name  string
		cfg   Config
		count uint64
		want  int64
	}{
		{"no forks", linear, 0, 0},
		{"linear first", linear, 1, 10},
		{"linear fifth", linear, 5, 50},
		{"linear capped", linear, 1000, DefaultPenaltyCap},
		{"exponential first", exp, 1, 10},
		{"exponential fourth", exp, 4, 80},
		{"exponential capped", exp, 8, DefaultPenaltyCap},
		{"exponential huge shift", exp, 200, DefaultPenaltyCap},
		{"uncapped linear saturates", uncapped, math.MaxUint64, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Penalty(tt.count))
		})
	}
}

func TestConfig_PenaltyZeroScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForkPenalty = 0
	assert.Equal(t, int64(0), cfg.Penalty(42))
}

func TestParseConfig_Overrides(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
loop_exit_bonus: 500
penalty_mode: exponential
promotion_quota: 2
`))
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.LoopExitBonus)
	assert.Equal(t, PenaltyExponential, cfg.PenaltyMode)
	assert.Equal(t, 2, cfg.PromotionQuota)
	assert.Equal(t, DefaultCoverageBonus, cfg.CoverageBonus, "unset keys keep their default")
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_UnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte("loop_exit_bonsu: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop_exit_bonsu")
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("coverage_bonus: 100\n"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searcher.yaml")
	require.NoError(t, os.WriteFile(path, []byte("low_water: -200\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(-200), cfg.LowWater)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSearcherError_Format(t *testing.T) {
	err := newDesyncError(7, assert.AnError)
	assert.Equal(t, "DESYNC: pool bookkeeping out of sync (state=s7): "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, IsDesyncError(err))
	assert.False(t, IsEmptyError(err))
}
