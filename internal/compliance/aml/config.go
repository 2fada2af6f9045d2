// =============================
// AML Detection Thresholds Loader
// =============================
// Thresholds differ by jurisdiction, so every number used by the detectors,
// the deduplicator and the risk scorer is loaded from a YAML profile.

package aml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is a complete jurisdiction profile
type Config struct {
	Detection   DetectionConfig `yaml:"detection" json:"detection"`
	DedupWindow time.Duration   `yaml:"dedup_window" json:"dedup_window"`
	Scoring     ScoringConfig   `yaml:"scoring" json:"scoring"`
}

// DetectionConfig holds per-detector thresholds
type DetectionConfig struct {
	Velocity         VelocityConfig         `yaml:"velocity" json:"velocity"`
	LargeTransaction LargeTransactionConfig `yaml:"large_transaction" json:"large_transaction"`
	Structuring      StructuringConfig      `yaml:"structuring" json:"structuring"`
	RapidMovement    RapidMovementConfig    `yaml:"rapid_movement" json:"rapid_movement"`
	DormantAccount   DormantAccountConfig   `yaml:"dormant_account" json:"dormant_account"`
}

type VelocityConfig struct {
	Window    time.Duration `yaml:"window" json:"window"`
	MinTrades int           `yaml:"min_trades" json:"min_trades"`
	RiskScore int           `yaml:"risk_score" json:"risk_score"`
}

type LargeTransactionConfig struct {
	Threshold decimal.Decimal `yaml:"threshold_usd" json:"threshold_usd"`
	RiskScore int             `yaml:"risk_score" json:"risk_score"`
}

type StructuringConfig struct {
	Window             time.Duration   `yaml:"window" json:"window"`
	SingleTradeCeiling decimal.Decimal `yaml:"single_trade_ceiling_usd" json:"single_trade_ceiling_usd"`
	AggregateThreshold decimal.Decimal `yaml:"aggregate_threshold_usd" json:"aggregate_threshold_usd"`
	MinTrades          int             `yaml:"min_trades" json:"min_trades"`
	RiskScore          int             `yaml:"risk_score" json:"risk_score"`
}

type RapidMovementConfig struct {
	Window time.Duration `yaml:"window" json:"window"`
	// Both the buy and the sell total must strictly exceed this value.
	MinSideValue decimal.Decimal `yaml:"min_side_value_usd" json:"min_side_value_usd"`
	RiskScore    int             `yaml:"risk_score" json:"risk_score"`
}

type DormantAccountConfig struct {
	DormancyPeriod time.Duration `yaml:"dormancy_period" json:"dormancy_period"`
	// Burst value that must be strictly exceeded. LoadConfig sets it to the
	// large transaction threshold when the profile leaves it out.
	MinWindowValue decimal.Decimal `yaml:"min_window_value_usd" json:"min_window_value_usd"`
	RiskScore      int             `yaml:"risk_score" json:"risk_score"`
}

// ScoringConfig controls time decay in the user risk score
type ScoringConfig struct {
	DecayHorizon time.Duration `yaml:"decay_horizon" json:"decay_horizon"`
	DecayFloor   float64       `yaml:"decay_floor" json:"decay_floor"`
}

// Lookback is the longest window any detector needs
func (c DetectionConfig) Lookback() time.Duration {
	max := c.Velocity.Window
	for _, w := range []time.Duration{c.Structuring.Window, c.RapidMovement.Window} {
		if w > max {
			max = w
		}
	}
	return max
}

// DefaultConfig returns the reference US profile
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			Velocity: VelocityConfig{
				Window:    time.Hour,
				MinTrades: 20,
				RiskScore: 65,
			},
			LargeTransaction: LargeTransactionConfig{
				Threshold: decimal.NewFromInt(10000),
				RiskScore: 70,
			},
			Structuring: StructuringConfig{
				Window:             24 * time.Hour,
				SingleTradeCeiling: decimal.NewFromInt(9500),
				AggregateThreshold: decimal.NewFromInt(25000),
				MinTrades:          3,
				RiskScore:          85,
			},
			RapidMovement: RapidMovementConfig{
				Window:       4 * time.Hour,
				MinSideValue: decimal.NewFromInt(5000),
				RiskScore:    75,
			},
			DormantAccount: DormantAccountConfig{
				DormancyPeriod: 90 * 24 * time.Hour,
				MinWindowValue: decimal.NewFromInt(10000),
				RiskScore:      80,
			},
		},
		DedupWindow: 24 * time.Hour,
		Scoring: ScoringConfig{
			DecayHorizon: 168 * time.Hour,
			DecayFloor:   0.1,
		},
	}
}

// LoadConfig overlays the YAML profile at path on top of DefaultConfig.
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join("configs", "detection.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: thresholds file not found: %s", ErrConfiguration, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading thresholds file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: error parsing thresholds file: %v", ErrConfiguration, err)
	}

	var explicit struct {
		Detection struct {
			DormantAccount struct {
				MinWindowValue *decimal.Decimal `yaml:"min_window_value_usd"`
			} `yaml:"dormant_account"`
		} `yaml:"detection"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("%w: error parsing thresholds file: %v", ErrConfiguration, err)
	}
	if explicit.Detection.DormantAccount.MinWindowValue == nil {
		cfg.Detection.DormantAccount.MinWindowValue = cfg.Detection.LargeTransaction.Threshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects profiles the detectors cannot run with
func (c *Config) Validate() error {
	d := c.Detection
	checks := []struct {
		ok  bool
		msg string
	}{
		{d.Velocity.Window > 0, "velocity.window must be positive"},
		{d.Velocity.MinTrades > 0, "velocity.min_trades must be positive"},
		{d.LargeTransaction.Threshold.IsPositive(), "large_transaction.threshold_usd must be positive"},
		{d.Structuring.Window > 0, "structuring.window must be positive"},
		{d.Structuring.SingleTradeCeiling.IsPositive(), "structuring.single_trade_ceiling_usd must be positive"},
		{d.Structuring.AggregateThreshold.IsPositive(), "structuring.aggregate_threshold_usd must be positive"},
		{d.Structuring.MinTrades > 0, "structuring.min_trades must be positive"},
		{d.RapidMovement.Window > 0, "rapid_movement.window must be positive"},
		{!d.RapidMovement.MinSideValue.IsNegative(), "rapid_movement.min_side_value_usd must not be negative"},
		{d.DormantAccount.DormancyPeriod > 0, "dormant_account.dormancy_period must be positive"},
		{!d.DormantAccount.MinWindowValue.IsNegative(), "dormant_account.min_window_value_usd must not be negative"},
		{c.DedupWindow > 0, "dedup_window must be positive"},
		{c.Scoring.DecayHorizon > 0, "scoring.decay_horizon must be positive"},
		{c.Scoring.DecayFloor > 0 && c.Scoring.DecayFloor <= 1, "scoring.decay_floor must be in (0, 1]"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", ErrConfiguration, chk.msg)
		}
	}

	for name, score := range map[string]int{
		"velocity":          d.Velocity.RiskScore,
		"large_transaction": d.LargeTransaction.RiskScore,
		"structuring":       d.Structuring.RiskScore,
		"rapid_movement":    d.RapidMovement.RiskScore,
		"dormant_account":   d.DormantAccount.RiskScore,
	} {
		if score < 0 || score > 100 {
			return fmt.Errorf("%w: %s.risk_score must be between 0 and 100", ErrConfiguration, name)
		}
	}
	return nil
}
