// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBuildConfig(t *testing.T) {
	v := viper.New()
	cfgBytes, err := os.ReadFile("../sample-offramp-config.json")
	require.NoError(t, err)
	configFile := string(cfgBytes)
	buf := bytes.NewBufferString(configFile)
	v.SetConfigType("json")
	require.NoError(t, v.ReadConfig(buf))
	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Equal(t, defaultLogLevel, cfg.LogLevel)
	require.Equal(t, defaultStorageLocation, cfg.StorageLocation)
	require.Equal(t, uint16(defaultAPIPort), cfg.APIPort)
	require.Equal(t, uint16(defaultMetricsPort), cfg.MetricsPort)
	require.Equal(t, uint64(defaultPermissionlessExecSeconds), cfg.PermissionlessExecThresholdSeconds)
	require.Equal(t, defaultPredecessorNonceDepth, cfg.PredecessorNonceDepth)
	require.Equal(t, uint64(defaultCollaboratorBudgetSeconds), cfg.CollaboratorCallBudgetSeconds)
	require.Equal(t, defaultMaxReturnDataBytes, cfg.MaxReturnDataBytes)
	require.Equal(t, defaultGasForCallExactCheckString, cfg.GasForCallExactCheck)

	require.Equal(t, testSourceBlockchainID, cfg.Lane.SourceBlockchainID)
	require.Equal(t, testDestinationBlockchainID, cfg.Lane.DestinationBlockchainID)
	require.Equal(t, testOnRampAddress, cfg.Lane.OnRampAddress)

	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, "1000000000000000000000", cfg.RateLimit.Capacity)
	require.Equal(t, "100000000000000000", cfg.RateLimit.Rate)

	require.Equal(t, "sample-admin-key", cfg.AdminAPIKey)
	require.Equal(t, "sample-submitter-key", cfg.SubmitterAPIKey)
}

func TestBuildConfigEnvOverride(t *testing.T) {
	v := viper.New()
	v.AutomaticEnv()
	cfgBytes, err := os.ReadFile("../sample-offramp-config.json")
	require.NoError(t, err)
	buf := bytes.NewBuffer(cfgBytes)
	v.SetConfigType("json")
	require.NoError(t, v.ReadConfig(buf))

	t.Setenv("LOG_LEVEL", "debug")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg, err := BuildConfig(v)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}
