// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const (
	testSourceBlockchainID      = "yH8D7ThNJkxmtkuv2jgBa4P1Rn3Qpr4pPr7QYNfcdoS6k6HWp"
	testDestinationBlockchainID = "2D8RG4UpSXbPbvPCAWppNJyqTG2i2CAXSkTgmTBBvs7GKNZjsY"
	testOnRampAddress           = "0x253b2784c75e510dd0ff1da844684a1ac0aa5fcf"
)

func validTestConfig() Config {
	return Config{
		LogLevel:        defaultLogLevel,
		APIPort:         defaultAPIPort,
		MetricsPort:     defaultMetricsPort,
		StorageLocation: defaultStorageLocation,
		Lane: LaneConfig{
			SourceBlockchainID:      testSourceBlockchainID,
			DestinationBlockchainID: testDestinationBlockchainID,
			OnRampAddress:           testOnRampAddress,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Capacity: "1000",
			Rate:     "10",
		},
		PermissionlessExecThresholdSeconds: defaultPermissionlessExecSeconds,
		PredecessorNonceDepth:              defaultPredecessorNonceDepth,
		CollaboratorCallBudgetSeconds:      defaultCollaboratorBudgetSeconds,
		MaxReturnDataBytes:                 defaultMaxReturnDataBytes,
		GasForCallExactCheck:               defaultGasForCallExactCheckString,
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name           string
		configModifier func(Config) Config
		expectError    bool
	}{
		{
			name:           "valid config",
			configModifier: func(c Config) Config { return c },
			expectError:    false,
		},
		{
			name: "invalid log level",
			configModifier: func(c Config) Config {
				c.LogLevel = "loud"
				return c
			},
			expectError: true,
		},
		{
			name: "no storage backend",
			configModifier: func(c Config) Config {
				c.StorageLocation = ""
				c.RedisURL = ""
				return c
			},
			expectError: true,
		},
		{
			name: "redis only is sufficient",
			configModifier: func(c Config) Config {
				c.StorageLocation = ""
				c.RedisURL = "redis://localhost:6379"
				return c
			},
			expectError: false,
		},
		{
			name: "invalid source blockchain ID",
			configModifier: func(c Config) Config {
				c.Lane.SourceBlockchainID = "not-an-id"
				return c
			},
			expectError: true,
		},
		{
			name: "source and destination must differ",
			configModifier: func(c Config) Config {
				c.Lane.DestinationBlockchainID = c.Lane.SourceBlockchainID
				return c
			},
			expectError: true,
		},
		{
			name: "invalid on-ramp address",
			configModifier: func(c Config) Config {
				c.Lane.OnRampAddress = "0x1234"
				return c
			},
			expectError: true,
		},
		{
			name: "rate must be below capacity",
			configModifier: func(c Config) Config {
				c.RateLimit.Rate = c.RateLimit.Capacity
				return c
			},
			expectError: true,
		},
		{
			name: "non-numeric rate limit capacity",
			configModifier: func(c Config) Config {
				c.RateLimit.Capacity = "a lot"
				return c
			},
			expectError: true,
		},
		{
			name: "disabled rate limit skips value checks",
			configModifier: func(c Config) Config {
				c.RateLimit = RateLimitConfig{Enabled: false}
				return c
			},
			expectError: false,
		},
		{
			name: "negative predecessor nonce depth",
			configModifier: func(c Config) Config {
				c.PredecessorNonceDepth = -1
				return c
			},
			expectError: true,
		},
		{
			name: "non-numeric gas for call exact check",
			configModifier: func(c Config) Config {
				c.GasForCallExactCheck = "plenty"
				return c
			},
			expectError: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			cfg := testCase.configModifier(validTestConfig())
			err := cfg.Validate()
			if testCase.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigParsedAccessors(t *testing.T) {
	cfg := validTestConfig()
	require.NoError(t, cfg.Validate())

	require.Equal(t, testSourceBlockchainID, cfg.Lane.GetSourceBlockchainID().String())
	require.Equal(t, testDestinationBlockchainID, cfg.Lane.GetDestinationBlockchainID().String())
	require.Equal(t, common.HexToAddress(testOnRampAddress), cfg.Lane.GetOnRampAddress())

	require.Equal(t, big.NewInt(1000), cfg.RateLimit.GetCapacity())
	require.Equal(t, big.NewInt(10), cfg.RateLimit.GetRate())
	require.Equal(t, big.NewInt(5000), cfg.GetGasForCallExactCheck())
}
