// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"strings"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LaneID uniquely identifies a (source chain, destination chain) pair serviced
// by one execution engine instance. It doubles as the database namespace key
// for all of the lane's persisted state.
type LaneID struct {
	SourceChainID      ids.ID
	DestinationChainID ids.ID
	OnRampAddress      common.Address
	ID                 common.Hash
}

func NewLaneID(
	sourceChainID ids.ID,
	destinationChainID ids.ID,
	onRampAddress common.Address,
) LaneID {
	return LaneID{
		SourceChainID:      sourceChainID,
		DestinationChainID: destinationChainID,
		OnRampAddress:      onRampAddress,
		ID: CalculateLaneID(
			sourceChainID,
			destinationChainID,
			onRampAddress,
		),
	}
}

// Standalone utility to calculate a lane ID.
func CalculateLaneID(
	sourceChainID ids.ID,
	destinationChainID ids.ID,
	onRampAddress common.Address,
) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(strings.Join(
			[]string{
				sourceChainID.String(),
				destinationChainID.String(),
				onRampAddress.String(),
			},
			"-",
		)),
	)
}
