// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:generate mockgen -source=$GOFILE -destination=./mocks/mock_collaborators.go -package=mocks

package offramp

import (
	"context"
	"math/big"
	"time"

	"github.com/ava-labs/icm-offramp/types"
	"github.com/ethereum/go-ethereum/common"
)

// CommitStore answers whether a set of leaves is included in a previously
// committed Merkle root. It is the only collaborator whose failure is always
// fatal to a batch.
type CommitStore interface {
	// Verify reconstructs the root covered by the multiproof and returns the
	// unix timestamp at which that root was committed. A zero timestamp means
	// the root is not known to the commit store.
	Verify(
		ctx context.Context,
		hashedLeaves []common.Hash,
		proofs []common.Hash,
		proofFlagBits *big.Int,
	) (uint64, error)

	// ExpectedNextSequenceNumber is consulted once, at engine construction,
	// to refuse binding to a commit source that already has history.
	ExpectedNextSequenceNumber(ctx context.Context) (uint64, error)
}

// Router delivers a decoded message to its destination receiver and reports
// the outcome.
type Router interface {
	// SupportsMessageReceiver reports whether [receiver] is a contract
	// advertising the message receiver capability. Plain accounts and
	// contracts without the capability silently receive only tokens.
	SupportsMessageReceiver(ctx context.Context, receiver common.Address) (bool, error)

	// RouteMessage calls the receiver with the message. A false success with
	// return data indicates the receiver rejected the message; an error
	// indicates a fault in routing itself.
	RouteMessage(
		ctx context.Context,
		message *types.Message,
		gasForCallExactCheck *big.Int,
		gasLimit *big.Int,
		receiver common.Address,
	) (bool, []byte, *big.Int, error)
}

// PriceOracle converts token amounts into a common USD-like unit for rate
// limiting. Prices carry pricePrecision fractional digits.
type PriceOracle interface {
	GetTokenPrice(ctx context.Context, token common.Address) (*big.Int, time.Time, error)
}

// PredecessorEngine is the nonce-lookup capability of a prior execution
// engine on the same lane, consulted during migrations. Predecessor returns
// the next engine in the upgrade chain, or nil when the chain ends.
type PredecessorEngine interface {
	GetSenderNonce(ctx context.Context, sender common.Address) (uint64, error)
	Predecessor() PredecessorEngine
}
