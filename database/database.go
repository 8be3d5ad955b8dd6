// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:generate mockgen -source=$GOFILE -destination=./mocks/mock_database.go -package=mocks

package database

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound              = errors.New("key not found")
	ErrLaneNotFound             = errors.New("no database entry for lane")
	ErrDatabaseMisconfiguration = errors.New("database misconfiguration")
)

// OffRampDatabase is a key-value store for execution engine state, with each
// lane maintaining its own namespace. Implementations must be thread-safe.
type OffRampDatabase interface {
	Get(laneID common.Hash, key DataKey) ([]byte, error)
	Put(laneID common.Hash, key DataKey, value []byte) error
}

// DataCategory partitions a lane's namespace by the kind of state stored.
type DataCategory int

const (
	ExecutionStateWordCategory DataCategory = iota
	SenderNonceCategory
	RateBucketCategory
)

func (c DataCategory) String() string {
	switch c {
	case ExecutionStateWordCategory:
		return "stateWord"
	case SenderNonceCategory:
		return "senderNonce"
	case RateBucketCategory:
		return "rateBucket"
	}
	return "unknown"
}

// DataKey identifies a single value within a lane's namespace.
type DataKey struct {
	Category DataCategory
	Index    string
}

func (k DataKey) String() string {
	if k.Index == "" {
		return k.Category.String()
	}
	return fmt.Sprintf("%s-%s", k.Category, k.Index)
}

// StateWordKey addresses the packed execution state word holding sequence
// numbers [128*word, 128*word+127].
func StateWordKey(word uint64) DataKey {
	return DataKey{
		Category: ExecutionStateWordCategory,
		Index:    strconv.FormatUint(word, 10),
	}
}

// SenderNonceKey addresses the last consumed nonce for a sender.
func SenderNonceKey(sender common.Address) DataKey {
	return DataKey{
		Category: SenderNonceCategory,
		Index:    sender.Hex(),
	}
}

// RateBucketKey addresses the persisted token bucket snapshot.
func RateBucketKey() DataKey {
	return DataKey{Category: RateBucketCategory}
}

// IsKeyNotFoundError returns true if an error returned by an OffRampDatabase
// indicates the requested key was not found.
func IsKeyNotFoundError(err error) bool {
	return errors.Is(err, ErrLaneNotFound) || errors.Is(err, ErrKeyNotFound)
}
