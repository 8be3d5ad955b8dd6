// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"encoding/binary"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LeafDomainSeparator distinguishes leaf hashes from internal node hashes so
// that an internal node can never be replayed as a message leaf.
var LeafDomainSeparator = common.Hash{}

// MetadataHash scopes every leaf to a single lane. Identical messages on
// different lanes therefore hash to different leaves.
func MetadataHash(sourceChainID ids.ID, destinationChainID ids.ID, onRamp common.Address) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("OffRampMessageHashV1"),
		sourceChainID[:],
		destinationChainID[:],
		onRamp.Bytes(),
	)
}

// LeafHash computes the canonical leaf hash of a message under the given lane
// metadata hash. The result must equal the message's MessageID; a mismatch is
// an integrity violation, not a recoverable error.
func LeafHash(m *Message, metadataHash common.Hash) common.Hash {
	var fixed [16]byte
	binary.BigEndian.PutUint64(fixed[:8], m.SequenceNumber)
	binary.BigEndian.PutUint64(fixed[8:], m.Nonce)

	tokenPreimage := make([]byte, 0, len(m.TokenAmounts)*(common.AddressLength+common.HashLength))
	for _, ta := range m.TokenAmounts {
		tokenPreimage = append(tokenPreimage, ta.Token.Bytes()...)
		tokenPreimage = append(tokenPreimage, common.BigToHash(ta.Amount).Bytes()...)
	}

	sourceTokenDataPreimage := make([]byte, 0, len(m.SourceTokenData)*common.HashLength)
	for _, std := range m.SourceTokenData {
		h := crypto.Keccak256Hash(std)
		sourceTokenDataPreimage = append(sourceTokenDataPreimage, h.Bytes()...)
	}

	return crypto.Keccak256Hash(
		LeafDomainSeparator.Bytes(),
		metadataHash.Bytes(),
		fixed[:],
		m.Sender.Bytes(),
		m.Receiver.Bytes(),
		common.BigToHash(m.GasLimit).Bytes(),
		m.FeeToken.Bytes(),
		common.BigToHash(m.FeeTokenAmount).Bytes(),
		crypto.Keccak256(m.Data),
		crypto.Keccak256(tokenPreimage),
		crypto.Keccak256(sourceTokenDataPreimage),
	)
}
