// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:generate mockgen -source=$GOFILE -destination=./mocks/mock_pool.go -package=mocks

package tokens

import (
	"context"
	"math/big"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ethereum/go-ethereum/common"
)

// TokenPool is a per-token plug-in converting a locked/burned source-chain
// amount into a released/minted destination-chain amount. Pools are trusted
// to mint or release exactly the amount requested.
type TokenPool interface {
	// ReleaseOrMint releases or mints [amount] of the pool's token to
	// [receiver]. [extraData] is the concatenation of the pool's own
	// source-side data and the off-chain attestation blob for the transfer.
	ReleaseOrMint(
		ctx context.Context,
		originalSender []byte,
		receiver common.Address,
		amount *big.Int,
		sourceChainID ids.ID,
		extraData []byte,
	) error

	// GetToken returns the destination-chain token this pool manages.
	GetToken() common.Address
}
