// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxTokensPerMessage bounds the number of token transfers a single
	// message may carry. Messages exceeding this are malformed.
	MaxTokensPerMessage = 5

	// MaxDataBytes bounds the arbitrary payload size of a single message.
	MaxDataBytes = 30_000
)

var (
	ErrInvalidMessageID = errors.New("message ID does not match recomputed leaf hash")
	ErrMessageShape     = errors.New("malformed message")
)

// TokenAmount is a single token transfer carried by a cross-chain message.
type TokenAmount struct {
	Token  common.Address
	Amount *big.Int
}

// Message is a single cross-chain message as delivered to the destination
// chain. Messages are immutable once constructed; sequence numbers are
// per-lane and nonces are per-sender-per-lane.
type Message struct {
	SourceChainID   ids.ID
	Sender          common.Address
	Receiver        common.Address
	SequenceNumber  uint64
	Nonce           uint64
	GasLimit        *big.Int
	FeeToken        common.Address
	FeeTokenAmount  *big.Int
	Data            []byte
	TokenAmounts    []TokenAmount
	SourceTokenData [][]byte

	// MessageID is the content-derived identifier assigned on the source
	// chain. It must equal the independently recomputed leaf hash.
	MessageID common.Hash
}

// ValidateShape performs the basic structural checks on a message: token/data
// list parity and the token-count and payload-size ceilings. Failures are
// always fatal to the enclosing batch.
func (m *Message) ValidateShape(offchainTokenData [][]byte) error {
	if len(m.TokenAmounts) != len(offchainTokenData) {
		return fmt.Errorf(
			"%w: %d token amounts but %d offchain token data entries",
			ErrMessageShape,
			len(m.TokenAmounts),
			len(offchainTokenData),
		)
	}
	if len(m.TokenAmounts) != len(m.SourceTokenData) {
		return fmt.Errorf(
			"%w: %d token amounts but %d source token data entries",
			ErrMessageShape,
			len(m.TokenAmounts),
			len(m.SourceTokenData),
		)
	}
	if len(m.TokenAmounts) > MaxTokensPerMessage {
		return fmt.Errorf(
			"%w: %d token transfers exceeds maximum of %d",
			ErrMessageShape,
			len(m.TokenAmounts),
			MaxTokensPerMessage,
		)
	}
	if len(m.Data) > MaxDataBytes {
		return fmt.Errorf(
			"%w: %d payload bytes exceeds maximum of %d",
			ErrMessageShape,
			len(m.Data),
			MaxDataBytes,
		)
	}
	return nil
}

// ExecutionReport is a batch of messages to execute together with the Merkle
// multiproof anchoring them to a committed root. OffchainTokenData carries one
// inner list per message, one attestation blob per token transfer.
type ExecutionReport struct {
	Messages          []Message
	OffchainTokenData [][][]byte
	Proofs            []common.Hash
	ProofFlagBits     *big.Int
}

// ExecutionState is the persisted per-sequence-number message state.
type ExecutionState uint8

const (
	ExecutionStateUntouched ExecutionState = iota
	ExecutionStateInProgress
	ExecutionStateSuccess
	ExecutionStateFailure
)

func (s ExecutionState) String() string {
	switch s {
	case ExecutionStateUntouched:
		return "UNTOUCHED"
	case ExecutionStateInProgress:
		return "IN_PROGRESS"
	case ExecutionStateSuccess:
		return "SUCCESS"
	case ExecutionStateFailure:
		return "FAILURE"
	}
	return "UNKNOWN"
}

// IsTerminal returns true for the states that end a message's lifecycle on
// the automatic execution path.
func (s ExecutionState) IsTerminal() bool {
	return s == ExecutionStateSuccess || s == ExecutionStateFailure
}
