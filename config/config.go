// Package config loads the finality engine configuration and the validator
// registry backing the static stake oracle.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/finlabs/ffg/types"
)

// Config is the static configuration surface of the finality engine.
// Immutable after construction.
type Config struct {
	// EpochLength is the number of blocks per epoch.
	EpochLength uint64 `yaml:"epoch_length"`
	// JustificationThresholdPercent is the supermajority bound. Must be >= 50;
	// the nominal 67 uses the exact floor(2*total/3)+1 Casper threshold. The
	// computed threshold is capped at the total active stake, so 100 means
	// unanimity.
	JustificationThresholdPercent uint64 `yaml:"justification_threshold_percent"`
	// MaxSyncAttempts bounds recovery retries before the engine halts.
	MaxSyncAttempts uint32 `yaml:"max_sync_attempts"`
	// SyncTimeout bounds each recovery attempt and every stake oracle call.
	SyncTimeout time.Duration `yaml:"sync_timeout"`
	// InactivityLeakEpochs governs the economic leak policy downstream.
	// Exposed for consumers; the engine itself does not act on it.
	InactivityLeakEpochs uint64 `yaml:"inactivity_leak_epochs"`
}

// Default returns the nominal configuration.
func Default() Config {
	return Config{
		EpochLength:                   32,
		JustificationThresholdPercent: 67,
		MaxSyncAttempts:               3,
		SyncTimeout:                   60 * time.Second,
		InactivityLeakEpochs:          4,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.EpochLength == 0 {
		return fmt.Errorf("epoch_length must be positive")
	}
	if c.JustificationThresholdPercent < 50 {
		return fmt.Errorf("justification_threshold_percent %d below 50", c.JustificationThresholdPercent)
	}
	if c.JustificationThresholdPercent > 100 {
		return fmt.Errorf("justification_threshold_percent %d above 100", c.JustificationThresholdPercent)
	}
	if c.MaxSyncAttempts == 0 {
		return fmt.Errorf("max_sync_attempts must be positive")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive")
	}
	return nil
}

// Load reads a yaml config file. Missing fields fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validatorEntry is the yaml registry row.
type validatorEntry struct {
	ID     uint64 `yaml:"id"`
	Pubkey string `yaml:"pubkey"`
	Stake  uint64 `yaml:"stake"`
}

// LoadValidators loads a validators.yaml registry into oracle records.
func LoadValidators(path string) ([]types.Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validators: %w", err)
	}

	var entries []validatorEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse validators: %w", err)
	}

	validators := make([]types.Validator, 0, len(entries))
	for _, e := range entries {
		v := types.Validator{
			ID:    types.ValidatorID(e.ID),
			Stake: types.Gwei(e.Stake),
		}
		raw, err := hex.DecodeString(e.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("validator %d pubkey: %w", e.ID, err)
		}
		if len(raw) != len(v.Pubkey) {
			return nil, fmt.Errorf("validator %d pubkey: got %d bytes, want %d", e.ID, len(raw), len(v.Pubkey))
		}
		copy(v.Pubkey[:], raw)
		validators = append(validators, v)
	}
	return validators, nil
}
