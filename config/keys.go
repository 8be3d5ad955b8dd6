// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

// Top-level configuration keys
const (
	ConfigFileKey                         = "config-file"
	LogLevelKey                           = "log-level"
	APIPortKey                            = "api-port"
	MetricsPortKey                        = "metrics-port"
	StorageLocationKey                    = "storage-location"
	RedisURLKey                           = "redis-url"
	LaneKey                               = "lane"
	RateLimitKey                          = "rate-limit"
	PermissionlessExecThresholdSecondsKey = "permissionless-exec-threshold-seconds"
	PredecessorNonceDepthKey              = "predecessor-nonce-depth"
	CollaboratorCallBudgetSecondsKey      = "collaborator-call-budget-seconds"
	MaxReturnDataBytesKey                 = "max-return-data-bytes"
	GasForCallExactCheckKey               = "gas-for-call-exact-check"
	AdminAPIKeyKey                        = "admin-api-key"
	SubmitterAPIKeyKey                    = "submitter-api-key"
)
