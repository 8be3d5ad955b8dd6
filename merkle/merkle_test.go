// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func hashOf(s string) common.Hash {
	return crypto.Keccak256Hash([]byte(s))
}

func TestHashInternalNodeIsOrderCanonical(t *testing.T) {
	a := hashOf("a")
	b := hashOf("b")
	require.Equal(t, HashInternalNode(a, b), HashInternalNode(b, a))
	require.NotEqual(t, HashInternalNode(a, b), HashInternalNode(a, a))
}

func TestComputeRootSingleLeaf(t *testing.T) {
	leaf := hashOf("only")
	root, err := ComputeRoot([]common.Hash{leaf}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, leaf, root)
}

func TestComputeRoot(t *testing.T) {
	l0 := hashOf("l0")
	l1 := hashOf("l1")
	l2 := hashOf("l2")
	l3 := hashOf("l3")
	p0 := hashOf("p0")

	testCases := []struct {
		name          string
		leaves        []common.Hash
		proofs        []common.Hash
		proofFlagBits *big.Int
		expectedRoot  common.Hash
	}{
		{
			name:          "two leaves no proof",
			leaves:        []common.Hash{l0, l1},
			proofFlagBits: big.NewInt(0b1),
			expectedRoot:  HashInternalNode(l0, l1),
		},
		{
			name:          "one leaf one proof",
			leaves:        []common.Hash{l0},
			proofs:        []common.Hash{p0},
			proofFlagBits: big.NewInt(0b0),
			expectedRoot:  HashInternalNode(p0, l0),
		},
		{
			name:          "four leaves full tree",
			leaves:        []common.Hash{l0, l1, l2, l3},
			proofFlagBits: big.NewInt(0b111),
			expectedRoot: HashInternalNode(
				HashInternalNode(l0, l1),
				HashInternalNode(l2, l3),
			),
		},
		{
			name:          "two leaves one proof",
			leaves:        []common.Hash{l0, l1},
			proofs:        []common.Hash{p0},
			proofFlagBits: big.NewInt(0b01),
			expectedRoot:  HashInternalNode(p0, HashInternalNode(l0, l1)),
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			root, err := ComputeRoot(testCase.leaves, testCase.proofs, testCase.proofFlagBits)
			require.NoError(t, err)
			require.Equal(t, testCase.expectedRoot, root)
		})
	}
}

func TestComputeRootRejectsMalformedProofs(t *testing.T) {
	l0 := hashOf("l0")
	l1 := hashOf("l1")
	p0 := hashOf("p0")

	testCases := []struct {
		name          string
		leaves        []common.Hash
		proofs        []common.Hash
		proofFlagBits *big.Int
		expectedErr   error
	}{
		{
			name:        "empty leaves",
			expectedErr: ErrLeavesCannotBeEmpty,
		},
		{
			name:          "missing proof node",
			leaves:        []common.Hash{l0, l1},
			proofFlagBits: big.NewInt(0b0),
			expectedErr:   ErrInvalidProof,
		},
		{
			name:          "leftover proof node",
			leaves:        []common.Hash{l0, l1},
			proofs:        []common.Hash{p0},
			proofFlagBits: big.NewInt(0b11),
			expectedErr:   ErrInvalidProof,
		},
		{
			name:        "nil flag bits",
			leaves:      []common.Hash{l0},
			proofs:      []common.Hash{p0},
			expectedErr: ErrInvalidProof,
		},
		{
			name:          "too many hash steps",
			leaves:        make([]common.Hash, MaxNumHashes+1),
			proofs:        make([]common.Hash, 1),
			proofFlagBits: big.NewInt(0),
			expectedErr:   ErrInvalidProof,
		},
		{
			name:          "leaf count over cap",
			leaves:        make([]common.Hash, MaxNumHashes+2),
			proofFlagBits: big.NewInt(0),
			expectedErr:   ErrInvalidProof,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := ComputeRoot(testCase.leaves, testCase.proofs, testCase.proofFlagBits)
			require.ErrorIs(t, err, testCase.expectedErr)
		})
	}
}

func TestComputeRootCorruptionChangesRoot(t *testing.T) {
	l0 := hashOf("l0")
	l1 := hashOf("l1")
	p0 := hashOf("p0")

	root, err := ComputeRoot([]common.Hash{l0, l1}, []common.Hash{p0}, big.NewInt(0b01))
	require.NoError(t, err)

	corrupted, err := ComputeRoot([]common.Hash{l0, hashOf("tampered")}, []common.Hash{p0}, big.NewInt(0b01))
	require.NoError(t, err)
	require.NotEqual(t, root, corrupted)
}
