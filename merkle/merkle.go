// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkle

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxNumHashes caps the total number of hash combination steps in a single
// multiproof. This bounds the worst-case compute of verification.
const MaxNumHashes = 256

// internalDomainSeparator prefixes every internal node hash so internal nodes
// can never collide with domain-separated leaves.
var internalDomainSeparator = common.HexToHash(
	"0x0000000000000000000000000000000000000000000000000000000000000001",
)

var (
	ErrInvalidProof        = errors.New("invalid multiproof")
	ErrLeavesCannotBeEmpty = errors.New("leaves cannot be empty")
)

// HashInternalNode combines two child hashes into their parent. The
// lexicographically smaller child is hashed first, so sibling order at every
// level is canonical regardless of proof-supplied ordering.
func HashInternalNode(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(internalDomainSeparator.Bytes(), a.Bytes(), b.Bytes())
}

// ComputeRoot reconstructs the Merkle root covered by [leaves] using the
// supplied proof nodes and flag bits. Bit i of [proofFlagBits] selects whether
// combination step i sources its first operand from the leaf/computed-hash
// cursors (bit set) or from the proof cursor (bit clear). The second operand
// always comes from the leaf/computed-hash cursors; hashing two proof nodes
// together would be computable off-chain and is structurally disallowed.
//
// Every leaf, proof node, and intermediate hash except the final root must be
// consumed exactly once, otherwise the proof is invalid.
func ComputeRoot(leaves, proofs []common.Hash, proofFlagBits *big.Int) (common.Hash, error) {
	if len(leaves) == 0 {
		return common.Hash{}, ErrLeavesCannotBeEmpty
	}
	if len(leaves) > MaxNumHashes+1 || len(proofs) > MaxNumHashes+1 {
		return common.Hash{}, ErrInvalidProof
	}
	totalHashes := len(leaves) + len(proofs) - 1
	if totalHashes > MaxNumHashes {
		return common.Hash{}, ErrInvalidProof
	}
	if totalHashes == 0 {
		return leaves[0], nil
	}
	if proofFlagBits == nil {
		return common.Hash{}, ErrInvalidProof
	}

	hashes := make([]common.Hash, totalHashes)
	var leafPos, hashPos, proofPos int

	// Consumes the next unused leaf, preferring leaves over computed hashes.
	// A computed hash may only be consumed once its step has run.
	sourceFromHashes := func(step int) (common.Hash, bool) {
		if leafPos < len(leaves) {
			h := leaves[leafPos]
			leafPos++
			return h, true
		}
		if hashPos >= step {
			return common.Hash{}, false
		}
		h := hashes[hashPos]
		hashPos++
		return h, true
	}

	for i := 0; i < totalHashes; i++ {
		var (
			a  common.Hash
			ok bool
		)
		if proofFlagBits.Bit(i) == 1 {
			a, ok = sourceFromHashes(i)
			if !ok {
				return common.Hash{}, ErrInvalidProof
			}
		} else {
			if proofPos >= len(proofs) {
				return common.Hash{}, ErrInvalidProof
			}
			a = proofs[proofPos]
			proofPos++
		}
		b, ok := sourceFromHashes(i)
		if !ok {
			return common.Hash{}, ErrInvalidProof
		}
		hashes[i] = HashInternalNode(a, b)
	}

	// Everything except the final root must have been consumed.
	if proofPos != len(proofs) || leafPos != len(leaves) || hashPos != totalHashes-1 {
		return common.Hash{}, ErrInvalidProof
	}
	return hashes[totalHashes-1], nil
}
