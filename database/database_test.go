// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var testNonceSender = common.HexToAddress("0x27aE10273D17Cd7e80de8580A51f476960626e5f")

func TestDataKeyString(t *testing.T) {
	testCases := []struct {
		name     string
		key      DataKey
		expected string
	}{
		{
			name:     "state word",
			key:      StateWordKey(7),
			expected: "stateWord-7",
		},
		{
			name:     "sender nonce",
			key:      SenderNonceKey(testNonceSender),
			expected: "senderNonce-" + testNonceSender.Hex(),
		},
		{
			name:     "rate bucket",
			key:      RateBucketKey(),
			expected: "rateBucket",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expected, testCase.key.String())
		})
	}
}

func TestCalculateLaneID(t *testing.T) {
	sourceChainID := ids.GenerateTestID()
	destinationChainID := ids.GenerateTestID()
	onRampAddress := common.HexToAddress("0xd81545385803bCD83bd59f58Ba2d2c0562387F83")

	laneID := NewLaneID(sourceChainID, destinationChainID, onRampAddress)
	require.Equal(
		t,
		CalculateLaneID(sourceChainID, destinationChainID, onRampAddress),
		laneID.ID,
	)

	// The same inputs always derive the same lane ID.
	require.Equal(
		t,
		laneID.ID,
		CalculateLaneID(sourceChainID, destinationChainID, onRampAddress),
	)

	// Swapping source and destination derives a distinct lane.
	require.NotEqual(
		t,
		laneID.ID,
		CalculateLaneID(destinationChainID, sourceChainID, onRampAddress),
	)

	// A different on-ramp on the same chain pair is also a distinct lane.
	require.NotEqual(
		t,
		laneID.ID,
		CalculateLaneID(sourceChainID, destinationChainID, testNonceSender),
	)
}

func TestMemoryDatabase(t *testing.T) {
	db := NewMemoryDatabase()
	laneID := common.HexToHash("0x01")

	_, err := db.Get(laneID, RateBucketKey())
	require.ErrorIs(t, err, ErrLaneNotFound)
	require.True(t, IsKeyNotFoundError(err))

	value := []byte{0x00, 0xAA, 0xFF}
	require.NoError(t, db.Put(laneID, StateWordKey(0), value))

	_, err = db.Get(laneID, StateWordKey(1))
	require.ErrorIs(t, err, ErrKeyNotFound)

	got, err := db.Get(laneID, StateWordKey(0))
	require.NoError(t, err)
	require.Equal(t, value, got)

	// The stored value is not aliased to the caller's slice.
	value[0] = 0xFF
	got2, err := db.Get(laneID, StateWordKey(0))
	require.NoError(t, err)
	require.Equal(t, byte(0x00), got2[0])

	// Reads return independent copies.
	got2[1] = 0x00
	got3, err := db.Get(laneID, StateWordKey(0))
	require.NoError(t, err)
	require.Equal(t, byte(0xAA), got3[1])
}
