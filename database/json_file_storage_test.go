// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createLaneIDs(sourceChainIDs []ids.ID) []LaneID {
	destinationChainID := ids.GenerateTestID()
	onRampAddress := common.HexToAddress("0xd81545385803bCD83bd59f58Ba2d2c0562387F83")

	var laneIDs []LaneID
	for _, sourceChainID := range sourceChainIDs {
		laneIDs = append(laneIDs, NewLaneID(
			sourceChainID,
			destinationChainID,
			onRampAddress,
		))
	}
	return laneIDs
}

// Test that the JSON database can write and read to a single lane concurrently.
func TestConcurrentWriteReadSingleLane(t *testing.T) {
	laneIDs := createLaneIDs(
		[]ids.ID{
			ids.GenerateTestID(),
		},
	)
	jsonStorage := setupJsonStorage(t, laneIDs)

	// Test writing to the JSON database concurrently.
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		idx := i
		go func() {
			defer wg.Done()
			testWrite(jsonStorage, laneIDs[0], uint64(idx))
		}()
	}
	wg.Wait()

	// Write one final time to ensure that concurrent writes don't cause any issues.
	finalTargetValue := uint64(11)
	testWrite(jsonStorage, laneIDs[0], finalTargetValue)

	nonceData, err := jsonStorage.Get(laneIDs[0].ID, SenderNonceKey(testNonceSender))
	if err != nil {
		t.Fatalf("failed to retrieve from JSON storage. err: %v", err)
	}
	nonce, success := new(big.Int).SetString(string(nonceData), 10)
	if !success {
		t.Fatalf("failed to convert sender nonce to big.Int. err: %v", err)
	}
	assert.Equal(t, finalTargetValue, nonce.Uint64(), "sender nonce is not correct.")
}

// Test that the JSON database can write and read from multiple lanes
// concurrently. Writes to any given lane are not concurrent.
func TestConcurrentWriteReadMultipleLanes(t *testing.T) {
	laneIDs := createLaneIDs(
		[]ids.ID{
			ids.GenerateTestID(),
			ids.GenerateTestID(),
			ids.GenerateTestID(),
		},
	)
	jsonStorage := setupJsonStorage(t, laneIDs)

	// Test writing to the JSON database concurrently.
	wg := sync.WaitGroup{}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		index := i
		go func() {
			defer wg.Done()
			testWrite(jsonStorage, laneIDs[index], uint64(index))
		}()
	}
	wg.Wait()

	// Write one final time to ensure that concurrent writes don't cause any issues.
	finalTargetValue := uint64(3)
	for _, laneID := range laneIDs {
		testWrite(jsonStorage, laneID, finalTargetValue)
	}

	for i, laneID := range laneIDs {
		nonceData, err := jsonStorage.Get(laneID.ID, SenderNonceKey(testNonceSender))
		if err != nil {
			t.Fatalf("failed to retrieve from JSON storage. lane: %d err: %v", i, err)
		}
		nonce, success := new(big.Int).SetString(string(nonceData), 10)
		if !success {
			t.Fatalf("failed to convert sender nonce to big.Int. err: %v", err)
		}
		assert.Equal(t, finalTargetValue, nonce.Uint64(), fmt.Sprintf("sender nonce is not correct. lane: %d", i))
	}
}

// Test that binary values survive a round trip through the JSON file and a
// storage restart from the same directory.
func TestBinaryValueRoundTripAcrossRestart(t *testing.T) {
	laneIDs := createLaneIDs(
		[]ids.ID{
			ids.GenerateTestID(),
		},
	)
	logger := logging.NoLog{}
	storageDir := t.TempDir()

	jsonStorage, err := NewJSONFileStorage(logger, storageDir, laneIDs)
	require.NoError(t, err)

	stateWord := make([]byte, 32)
	for i := range stateWord {
		stateWord[i] = byte(0xAA)
	}
	require.NoError(t, jsonStorage.Put(laneIDs[0].ID, StateWordKey(0), stateWord))

	// Reopen the storage from the same directory and read the value back.
	reopened, err := NewJSONFileStorage(logger, storageDir, laneIDs)
	require.NoError(t, err)

	got, err := reopened.Get(laneIDs[0].ID, StateWordKey(0))
	require.NoError(t, err)
	require.Equal(t, stateWord, got)
}

func TestJSONStorageUnknownLaneAndKey(t *testing.T) {
	laneIDs := createLaneIDs(
		[]ids.ID{
			ids.GenerateTestID(),
		},
	)
	jsonStorage := setupJsonStorage(t, laneIDs)

	// No file has been written for the lane yet.
	_, err := jsonStorage.Get(laneIDs[0].ID, RateBucketKey())
	require.ErrorIs(t, err, ErrLaneNotFound)
	require.True(t, IsKeyNotFoundError(err))

	require.NoError(t, jsonStorage.Put(laneIDs[0].ID, RateBucketKey(), []byte("{}")))

	_, err = jsonStorage.Get(laneIDs[0].ID, SenderNonceKey(testNonceSender))
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.True(t, IsKeyNotFoundError(err))

	// A lane the storage was not configured for is a misconfiguration.
	_, err = jsonStorage.Get(common.HexToHash("0x01"), RateBucketKey())
	require.ErrorIs(t, err, ErrDatabaseMisconfiguration)
	require.False(t, IsKeyNotFoundError(err))
}

func setupJsonStorage(t *testing.T, laneIDs []LaneID) *JSONFileStorage {
	logger := logging.NewLogger(
		"icm-offramp-test",
		logging.NewWrappedCore(
			logging.Info,
			os.Stdout,
			logging.JSON.ConsoleEncoder(),
		),
	)
	storageDir := t.TempDir()

	jsonStorage, err := NewJSONFileStorage(logger, storageDir, laneIDs)
	if err != nil {
		t.Fatal(err)
	}
	return jsonStorage
}

func testWrite(storage *JSONFileStorage, laneID LaneID, nonce uint64) {
	err := storage.Put(laneID.ID, SenderNonceKey(testNonceSender), []byte(strconv.FormatUint(nonce, 10)))
	if err != nil {
		fmt.Printf("failed to put data: %v", err)
		return
	}
}
