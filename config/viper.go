// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Build the viper instance. The config file must be provided via the command
// line flag or environment variable. All config keys may be provided via
// config file or environment variable.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens
	// are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) {
		DisplayUsageText()
		return nil, fmt.Errorf("config file not set")
	}

	filename := v.GetString(ConfigFileKey)
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(StorageLocationKey, defaultStorageLocation)
	v.SetDefault(APIPortKey, defaultAPIPort)
	v.SetDefault(MetricsPortKey, defaultMetricsPort)
	v.SetDefault(PermissionlessExecThresholdSecondsKey, defaultPermissionlessExecSeconds)
	v.SetDefault(PredecessorNonceDepthKey, defaultPredecessorNonceDepth)
	v.SetDefault(CollaboratorCallBudgetSecondsKey, defaultCollaboratorBudgetSeconds)
	v.SetDefault(MaxReturnDataBytesKey, defaultMaxReturnDataBytes)
	v.SetDefault(GasForCallExactCheckKey, defaultGasForCallExactCheckString)
}

// BuildConfig constructs the off-ramp config using Viper.
// The following precedence order is used. Each item takes precedence over the
// item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	cfg.LogLevel = v.GetString(LogLevelKey)
	cfg.StorageLocation = v.GetString(StorageLocationKey)
	cfg.RedisURL = v.GetString(RedisURLKey)
	cfg.APIPort = v.GetUint16(APIPortKey)
	cfg.MetricsPort = v.GetUint16(MetricsPortKey)
	cfg.PermissionlessExecThresholdSeconds = v.GetUint64(PermissionlessExecThresholdSecondsKey)
	cfg.PredecessorNonceDepth = v.GetInt(PredecessorNonceDepthKey)
	cfg.CollaboratorCallBudgetSeconds = v.GetUint64(CollaboratorCallBudgetSecondsKey)
	cfg.MaxReturnDataBytes = v.GetInt(MaxReturnDataBytesKey)
	cfg.GasForCallExactCheck = v.GetString(GasForCallExactCheckKey)
	cfg.AdminAPIKey = v.GetString(AdminAPIKeyKey)
	cfg.SubmitterAPIKey = v.GetString(SubmitterAPIKeyKey)
	if err := v.UnmarshalKey(LaneKey, &cfg.Lane); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal lane config: %w", err)
	}
	if err := v.UnmarshalKey(RateLimitKey, &cfg.RateLimit); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal rate limit config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}
