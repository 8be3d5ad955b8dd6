// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"math/big"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultLogLevel                   = "info"
	defaultStorageLocation            = "./.icm-offramp-storage"
	defaultAPIPort                    = 8080
	defaultMetricsPort                = 9090
	defaultPermissionlessExecSeconds  = 8 * 60 * 60
	defaultPredecessorNonceDepth      = 8
	defaultCollaboratorBudgetSeconds  = 5
	defaultMaxReturnDataBytes         = 512
	defaultGasForCallExactCheckString = "5000"
)

// LaneConfig identifies the single source-to-destination lane this engine
// executes for.
type LaneConfig struct {
	SourceBlockchainID      string `mapstructure:"source-blockchain-id" json:"source-blockchain-id"`
	DestinationBlockchainID string `mapstructure:"destination-blockchain-id" json:"destination-blockchain-id"`
	OnRampAddress           string `mapstructure:"on-ramp-address" json:"on-ramp-address"`

	// convenience fields to access the parsed values after initialization
	sourceBlockchainID      ids.ID
	destinationBlockchainID ids.ID
	onRampAddress           common.Address
}

func (c *LaneConfig) Validate() error {
	sourceID, err := ids.FromString(c.SourceBlockchainID)
	if err != nil {
		return fmt.Errorf("invalid source blockchain ID %q: %w", c.SourceBlockchainID, err)
	}
	destinationID, err := ids.FromString(c.DestinationBlockchainID)
	if err != nil {
		return fmt.Errorf("invalid destination blockchain ID %q: %w", c.DestinationBlockchainID, err)
	}
	if sourceID == destinationID {
		return fmt.Errorf("source and destination blockchain IDs must differ")
	}
	if !common.IsHexAddress(c.OnRampAddress) {
		return fmt.Errorf("invalid on-ramp address %q", c.OnRampAddress)
	}
	c.sourceBlockchainID = sourceID
	c.destinationBlockchainID = destinationID
	c.onRampAddress = common.HexToAddress(c.OnRampAddress)
	return nil
}

func (c *LaneConfig) GetSourceBlockchainID() ids.ID {
	return c.sourceBlockchainID
}

func (c *LaneConfig) GetDestinationBlockchainID() ids.ID {
	return c.destinationBlockchainID
}

func (c *LaneConfig) GetOnRampAddress() common.Address {
	return c.onRampAddress
}

// RateLimitConfig configures the aggregate-value token bucket. Values are
// decimal strings since they regularly exceed 64 bits.
type RateLimitConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Capacity string `mapstructure:"capacity" json:"capacity"`
	Rate     string `mapstructure:"rate" json:"rate"`

	// convenience fields to access the parsed values after initialization
	capacity *big.Int
	rate     *big.Int
}

func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		c.capacity = new(big.Int)
		c.rate = new(big.Int)
		return nil
	}
	capacity, ok := new(big.Int).SetString(c.Capacity, 10)
	if !ok || capacity.Sign() <= 0 {
		return fmt.Errorf("invalid rate limit capacity %q", c.Capacity)
	}
	rate, ok := new(big.Int).SetString(c.Rate, 10)
	if !ok || rate.Sign() <= 0 {
		return fmt.Errorf("invalid rate limit rate %q", c.Rate)
	}
	if rate.Cmp(capacity) >= 0 {
		return fmt.Errorf("rate limit rate %s must be less than capacity %s", c.Rate, c.Capacity)
	}
	c.capacity = capacity
	c.rate = rate
	return nil
}

func (c *RateLimitConfig) GetCapacity() *big.Int {
	return c.capacity
}

func (c *RateLimitConfig) GetRate() *big.Int {
	return c.rate
}

type Config struct {
	LogLevel                           string          `mapstructure:"log-level" json:"log-level"`
	APIPort                            uint16          `mapstructure:"api-port" json:"api-port"`
	MetricsPort                        uint16          `mapstructure:"metrics-port" json:"metrics-port"`
	StorageLocation                    string          `mapstructure:"storage-location" json:"storage-location"`
	RedisURL                           string          `mapstructure:"redis-url" json:"redis-url"`
	Lane                               LaneConfig      `mapstructure:"lane" json:"lane"`
	RateLimit                          RateLimitConfig `mapstructure:"rate-limit" json:"rate-limit"`
	PermissionlessExecThresholdSeconds uint64          `mapstructure:"permissionless-exec-threshold-seconds" json:"permissionless-exec-threshold-seconds"`
	PredecessorNonceDepth              int             `mapstructure:"predecessor-nonce-depth" json:"predecessor-nonce-depth"`
	CollaboratorCallBudgetSeconds      uint64          `mapstructure:"collaborator-call-budget-seconds" json:"collaborator-call-budget-seconds"`
	MaxReturnDataBytes                 int             `mapstructure:"max-return-data-bytes" json:"max-return-data-bytes"`
	GasForCallExactCheck               string          `mapstructure:"gas-for-call-exact-check" json:"gas-for-call-exact-check"`
	AdminAPIKey                        string          `mapstructure:"admin-api-key" json:"admin-api-key"`
	SubmitterAPIKey                    string          `mapstructure:"submitter-api-key" json:"submitter-api-key"`

	// convenience field to access the parsed gas figure after initialization
	gasForCallExactCheck *big.Int
}

// Validate the configuration, parsing the string-typed fields into their
// usable forms.
func (c *Config) Validate() error {
	if _, err := logging.ToLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.StorageLocation == "" && c.RedisURL == "" {
		return fmt.Errorf("either storage location or redis URL must be set")
	}
	if err := c.Lane.Validate(); err != nil {
		return fmt.Errorf("invalid lane config: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}
	if c.PredecessorNonceDepth < 0 {
		return fmt.Errorf("predecessor nonce depth must not be negative")
	}
	gas, ok := new(big.Int).SetString(c.GasForCallExactCheck, 10)
	if !ok || gas.Sign() < 0 {
		return fmt.Errorf("invalid gas for call exact check %q", c.GasForCallExactCheck)
	}
	c.gasForCallExactCheck = gas
	return nil
}

func (c *Config) GetGasForCallExactCheck() *big.Int {
	return c.gasForCallExactCheck
}
