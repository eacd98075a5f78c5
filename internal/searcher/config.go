package searcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"

	"gopkg.in/yaml.v3"
)

// PenaltyMode selects how the repeated-fork penalty grows with the fork count.
type PenaltyMode string

const (
	// PenaltyLinear: ForkPenalty * count.
	PenaltyLinear PenaltyMode = "linear"
	// PenaltyExponential: ForkPenalty * 2^(count-1). Requires a PenaltyCap.
	PenaltyExponential PenaltyMode = "exponential"
)

// Default tuning. The exact penalty form and promotion quota are heuristics;
// every value can be overridden per searcher.
const (
	DefaultPriority       int64  = 0
	DefaultLoopExitBonus  int64  = 100
	DefaultCoverageBonus  int64  = 20
	DefaultForkPenalty    int64  = 10
	DefaultPenaltyCap     int64  = 1000
	DefaultLowWater       int64  = -50
	DefaultPromotionQuota int    = 4
	DefaultDecayInterval  uint64 = 5
	DefaultDecayAmount    int64  = 10
)

// Config holds the numeric parameters of the scheduling heuristic.
type Config struct {
	// DefaultPriority is the neutral priority of a state admitted without
	// a fork notification, and the base of fork children's priorities.
	DefaultPriority int64 `yaml:"default_priority" json:"default_priority"`

	// LoopExitBonus is added when a child lands on a loop exit.
	LoopExitBonus int64 `yaml:"loop_exit_bonus" json:"loop_exit_bonus"`

	// CoverageBonus is added when a child covers a new edge or block.
	// Must stay below LoopExitBonus so loop exits dominate.
	CoverageBonus int64 `yaml:"coverage_bonus" json:"coverage_bonus"`

	// ForkPenalty scales the repeated-fork penalty for children that stay
	// in the fork site's loop.
	ForkPenalty int64       `yaml:"fork_penalty" json:"fork_penalty"`
	PenaltyMode PenaltyMode `yaml:"penalty_mode" json:"penalty_mode"`

	// PenaltyCap bounds the penalty. 0 means uncapped (linear mode only).
	PenaltyCap int64 `yaml:"penalty_cap" json:"penalty_cap"`

	// LowWater is the park threshold: a state whose priority falls strictly
	// below it moves to the waiting pool.
	LowWater int64 `yaml:"low_water" json:"low_water"`

	// PromotionQuota is the number of longest-waiting states promoted back
	// to active on every timer tick.
	PromotionQuota int `yaml:"promotion_quota" json:"promotion_quota"`

	// DecayInterval is the number of ticks a state may stay current before
	// its priority decays by DecayAmount. Decay never goes below LowWater.
	DecayInterval uint64 `yaml:"decay_interval" json:"decay_interval"`
	DecayAmount   int64  `yaml:"decay_amount" json:"decay_amount"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultPriority: DefaultPriority,
		LoopExitBonus:   DefaultLoopExitBonus,
		CoverageBonus:   DefaultCoverageBonus,
		ForkPenalty:     DefaultForkPenalty,
		PenaltyMode:     PenaltyLinear,
		PenaltyCap:      DefaultPenaltyCap,
		LowWater:        DefaultLowWater,
		PromotionQuota:  DefaultPromotionQuota,
		DecayInterval:   DefaultDecayInterval,
		DecayAmount:     DefaultDecayAmount,
	}
}

// Validate checks the parameters for consistency.
func (c Config) Validate() error {
	switch {
	case c.LoopExitBonus <= 0:
		return newConfigError("loop_exit_bonus must be positive, got %d", c.LoopExitBonus)
	case c.CoverageBonus < 0:
		return newConfigError("coverage_bonus must not be negative, got %d", c.CoverageBonus)
	case c.CoverageBonus >= c.LoopExitBonus:
		return newConfigError("coverage_bonus (%d) must be below loop_exit_bonus (%d)", c.CoverageBonus, c.LoopExitBonus)
	case c.ForkPenalty < 0:
		return newConfigError("fork_penalty must not be negative, got %d", c.ForkPenalty)
	case c.PenaltyCap < 0:
		return newConfigError("penalty_cap must not be negative, got %d", c.PenaltyCap)
	case c.PromotionQuota < 1:
		return newConfigError("promotion_quota must be at least 1, got %d", c.PromotionQuota)
	case c.DecayInterval < 1:
		return newConfigError("decay_interval must be at least 1, got %d", c.DecayInterval)
	case c.DecayAmount < 0:
		return newConfigError("decay_amount must not be negative, got %d", c.DecayAmount)
	case c.DefaultPriority < c.LowWater:
		return newConfigError("default_priority (%d) is below low_water (%d)", c.DefaultPriority, c.LowWater)
	}

	switch c.PenaltyMode {
	case PenaltyLinear:
	case PenaltyExponential:
		if c.PenaltyCap == 0 {
			return newConfigError("exponential penalty_mode requires a penalty_cap")
		}
	default:
		return newConfigError("unknown penalty_mode %q", c.PenaltyMode)
	}
	return nil
}

// Penalty returns the repeated-fork penalty for a site forked count times.
func (c Config) Penalty(count uint64) int64 {
	if count == 0 || c.ForkPenalty == 0 {
		return 0
	}

	var p int64
	switch c.PenaltyMode {
	case PenaltyExponential:
		shift := count - 1
		if shift >= 63 || c.ForkPenalty > math.MaxInt64>>shift {
			p = math.MaxInt64
		} else {
			p = c.ForkPenalty << shift
		}
	default:
		hi, lo := bits.Mul64(uint64(c.ForkPenalty), count)
		if hi != 0 || lo > math.MaxInt64 {
			p = math.MaxInt64
		} else {
			p = int64(lo)
		}
	}

	if c.PenaltyCap > 0 && p > c.PenaltyCap {
		p = c.PenaltyCap
	}
	return p
}

// ParseConfig decodes YAML overrides on top of DefaultConfig and validates
// the result. Unknown keys are rejected to catch typos.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}
