// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"context"
	"strconv"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/math"
	"github.com/ava-labs/icm-offramp/database"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// skipReason distinguishes the two deliberate no-op outcomes of the ordering
// check. Skipped messages keep their UNTOUCHED state and can be re-delivered
// in a later batch.
type skipReason int

const (
	skipNone skipReason = iota
	skipIncorrectNonce
	skipPreviousRampInFlight
)

// NonceTracker maintains the per-sender expected-nonce counters, with a
// transitional fallback to the predecessor engine chain during migrations.
type NonceTracker struct {
	logger      logging.Logger
	kv          keyValueStore
	predecessor PredecessorEngine
	maxDepth    int
}

func NewNonceTracker(
	logger logging.Logger,
	kv keyValueStore,
	predecessor PredecessorEngine,
	maxDepth int,
) *NonceTracker {
	return &NonceTracker{
		logger:      logger,
		kv:          kv,
		predecessor: predecessor,
		maxDepth:    maxDepth,
	}
}

// localNonce returns the locally recorded nonce for [sender], 0 if none. A
// zero nonce with a configured predecessor is not necessarily "never used";
// see checkOrdering.
func (t *NonceTracker) localNonce(sender common.Address) (uint64, error) {
	value, err := t.kv.Get(database.SenderNonceKey(sender))
	if database.IsKeyNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(value), 10, 64)
}

// predecessorNonce walks the predecessor chain for the first engine that
// recorded a nonce for [sender], bounded by maxDepth to guard against a
// pathological deployment history.
func (t *NonceTracker) predecessorNonce(ctx context.Context, sender common.Address) (uint64, error) {
	engine := t.predecessor
	for depth := 0; engine != nil && depth < t.maxDepth; depth++ {
		nonce, err := engine.GetSenderNonce(ctx, sender)
		if err != nil {
			return 0, err
		}
		if nonce != 0 {
			return nonce, nil
		}
		engine = engine.Predecessor()
	}
	return 0, nil
}

// CurrentNonce returns the sender's nonce, transitively consulting the
// predecessor chain when no local nonce is recorded.
func (t *NonceTracker) CurrentNonce(ctx context.Context, sender common.Address) (uint64, error) {
	nonce, err := t.localNonce(sender)
	if err != nil {
		return 0, err
	}
	if nonce != 0 || t.predecessor == nil {
		return nonce, nil
	}
	return t.predecessorNonce(ctx, sender)
}

// checkOrdering applies the per-message ordering rules for an UNTOUCHED
// message: the predecessor transition first, then the strict prev+1 check.
// A non-nil error aborts the batch; a skip reason leaves all state untouched.
func (t *NonceTracker) checkOrdering(
	ctx context.Context,
	sender common.Address,
	messageNonce uint64,
) (skipReason, error) {
	prevNonce, err := t.localNonce(sender)
	if err != nil {
		return skipNone, err
	}

	if prevNonce == 0 && t.predecessor != nil {
		predecessorNonce, err := t.predecessorNonce(ctx, sender)
		if err != nil {
			return skipNone, err
		}
		expected, err := math.Add64(predecessorNonce, 1)
		if err != nil {
			return skipNone, err
		}
		if expected != messageNonce {
			// The sender's messages are presumably still in flight on the
			// predecessor engine.
			t.logger.Debug(
				"Skipping message: previous ramp in flight",
				zap.String("sender", sender.Hex()),
				zap.Uint64("predecessorNonce", predecessorNonce),
				zap.Uint64("messageNonce", messageNonce),
			)
			return skipPreviousRampInFlight, nil
		}
		// Adopt the predecessor's nonce as the local baseline. A no-op when
		// the predecessor nonce is itself 0, i.e. a brand-new sender.
		prevNonce = predecessorNonce
	}

	expected, err := math.Add64(prevNonce, 1)
	if err != nil {
		return skipNone, err
	}
	if expected != messageNonce {
		t.logger.Debug(
			"Skipping message: incorrect nonce",
			zap.String("sender", sender.Hex()),
			zap.Uint64("prevNonce", prevNonce),
			zap.Uint64("messageNonce", messageNonce),
		)
		return skipIncorrectNonce, nil
	}
	return skipNone, nil
}

// recordNonce persists [nonce] as the sender's last consumed nonce. Called
// only on UNTOUCHED-to-terminal transitions.
func (t *NonceTracker) recordNonce(sender common.Address, nonce uint64) error {
	return t.kv.Put(
		database.SenderNonceKey(sender),
		[]byte(strconv.FormatUint(nonce, 10)),
	)
}
