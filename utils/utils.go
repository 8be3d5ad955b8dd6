// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ZeroAddress = common.Address{}

	// Errors
	ErrNilInput = errors.New("nil input")
	ErrTooLarge = errors.New("exceeds uint256 maximum value")
)

// BigToHashSafe ensures that a bignum value is able to fit into a 32 byte
// buffer before converting it to a common.Hash.
// Returns an error if overflow/truncation would occur by trying to perform
// this operation.
func BigToHashSafe(in *big.Int) (common.Hash, error) {
	if in == nil {
		return common.Hash{}, ErrNilInput
	}

	bytes := in.Bytes()
	if len(bytes) > common.HashLength {
		return common.Hash{}, ErrTooLarge
	}

	return common.BytesToHash(bytes), nil
}

// SanitizeHexString removes the "0x" prefix from a hex string if it exists.
// Otherwise, returns the original string.
func SanitizeHexString(hex string) string {
	return strings.TrimPrefix(hex, "0x")
}

// CapBytes truncates [data] to at most [max] bytes. Collaborator return data
// is capped before it is stored or logged so a malicious collaborator cannot
// overrun the caller.
func CapBytes(data []byte, max int) []byte {
	if len(data) <= max {
		return data
	}
	return data[:max]
}
