// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"context"
	"testing"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testSender      = common.HexToAddress("0x0100000000000000000000000000000000000001")
	testOtherSender = common.HexToAddress("0x0100000000000000000000000000000000000002")
)

func TestNonceTrackerFreshSender(t *testing.T) {
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), nil, 0)
	ctx := context.Background()

	nonce, err := tracker.CurrentNonce(ctx, testSender)
	require.NoError(t, err)
	require.Zero(t, nonce)

	reason, err := tracker.checkOrdering(ctx, testSender, 1)
	require.NoError(t, err)
	require.Equal(t, skipNone, reason)

	// Nonce 2 before nonce 1 is consumed.
	reason, err = tracker.checkOrdering(ctx, testSender, 2)
	require.NoError(t, err)
	require.Equal(t, skipIncorrectNonce, reason)
}

func TestNonceTrackerSequentialConsumption(t *testing.T) {
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), nil, 0)
	ctx := context.Background()

	for nonce := uint64(1); nonce <= 3; nonce++ {
		reason, err := tracker.checkOrdering(ctx, testSender, nonce)
		require.NoError(t, err)
		require.Equal(t, skipNone, reason)
		require.NoError(t, tracker.recordNonce(testSender, nonce))
	}

	nonce, err := tracker.CurrentNonce(ctx, testSender)
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)

	// Replaying an already consumed nonce skips.
	reason, err := tracker.checkOrdering(ctx, testSender, 3)
	require.NoError(t, err)
	require.Equal(t, skipIncorrectNonce, reason)

	// Senders do not interfere with each other.
	reason, err = tracker.checkOrdering(ctx, testOtherSender, 1)
	require.NoError(t, err)
	require.Equal(t, skipNone, reason)
}

func TestNonceTrackerPredecessorFallback(t *testing.T) {
	predecessor := &fakePredecessor{
		nonces: map[common.Address]uint64{testSender: 4},
	}
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), predecessor, 4)
	ctx := context.Background()

	nonce, err := tracker.CurrentNonce(ctx, testSender)
	require.NoError(t, err)
	require.Equal(t, uint64(4), nonce)

	// The predecessor consumed up to 4, so 5 continues the sequence.
	reason, err := tracker.checkOrdering(ctx, testSender, 5)
	require.NoError(t, err)
	require.Equal(t, skipNone, reason)

	// A lower or higher nonce presumes in-flight predecessor messages.
	reason, err = tracker.checkOrdering(ctx, testSender, 4)
	require.NoError(t, err)
	require.Equal(t, skipPreviousRampInFlight, reason)

	reason, err = tracker.checkOrdering(ctx, testSender, 7)
	require.NoError(t, err)
	require.Equal(t, skipPreviousRampInFlight, reason)
}

func TestNonceTrackerPredecessorChainWalk(t *testing.T) {
	oldest := &fakePredecessor{
		nonces: map[common.Address]uint64{testSender: 2},
	}
	middle := &fakePredecessor{
		nonces:      map[common.Address]uint64{testOtherSender: 9},
		predecessor: oldest,
	}
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), middle, 4)
	ctx := context.Background()

	// testSender's nonce lives two engines back.
	nonce, err := tracker.CurrentNonce(ctx, testSender)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)

	nonce, err = tracker.CurrentNonce(ctx, testOtherSender)
	require.NoError(t, err)
	require.Equal(t, uint64(9), nonce)
}

func TestNonceTrackerPredecessorDepthCap(t *testing.T) {
	deep := &fakePredecessor{
		nonces: map[common.Address]uint64{testSender: 6},
	}
	shallow := &fakePredecessor{predecessor: deep}
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), shallow, 1)

	// The chain walk stops before reaching the engine that knows the nonce.
	nonce, err := tracker.CurrentNonce(context.Background(), testSender)
	require.NoError(t, err)
	require.Zero(t, nonce)
}

func TestNonceTrackerLocalNonceShadowsPredecessor(t *testing.T) {
	predecessor := &fakePredecessor{
		nonces: map[common.Address]uint64{testSender: 4},
	}
	tracker := NewNonceTracker(logging.NoLog{}, newMemKV(), predecessor, 4)
	ctx := context.Background()

	require.NoError(t, tracker.recordNonce(testSender, 5))

	nonce, err := tracker.CurrentNonce(ctx, testSender)
	require.NoError(t, err)
	require.Equal(t, uint64(5), nonce)

	// Once a local nonce exists the predecessor is no longer consulted.
	reason, err := tracker.checkOrdering(ctx, testSender, 6)
	require.NoError(t, err)
	require.Equal(t, skipNone, reason)
}
