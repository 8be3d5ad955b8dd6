// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"fmt"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/icm-offramp/config"
	"go.uber.org/zap"
)

// NewOffRampDatabase selects and constructs the configured storage backend.
// Redis takes precedence over the JSON file store when a URL is configured.
func NewOffRampDatabase(
	logger logging.Logger,
	cfg *config.Config,
	laneIDs []LaneID,
) (OffRampDatabase, error) {
	dbConnect := func() (OffRampDatabase, error) {
		return NewJSONFileStorage(logger, cfg.StorageLocation, laneIDs)
	}
	usedDB := "JSON"
	if cfg.RedisURL != "" {
		dbConnect = func() (OffRampDatabase, error) {
			return NewRedisDatabase(logger, cfg.RedisURL)
		}
		usedDB = "Redis"
	}
	db, err := dbConnect()
	if err != nil {
		logger.Error(
			fmt.Sprintf("Failed to create %s database", usedDB),
			zap.Error(err),
		)
		return nil, err
	}
	return db, nil
}
