// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package merkle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var (
	ErrRootAlreadyCommitted = errors.New("root already committed")
	ErrInvalidCommitRoot    = errors.New("invalid commit root")
)

// InMemoryCommitStore records committed Merkle roots with their commit
// timestamps and verifies multiproofs against them. It serves deployments
// where the commitment source runs in the same process as the execution
// engine; remote commit stores satisfy the same method set over a transport.
type InMemoryCommitStore struct {
	lock    sync.RWMutex
	roots   map[common.Hash]uint64
	nextSeq uint64
}

func NewInMemoryCommitStore() *InMemoryCommitStore {
	return &InMemoryCommitStore{
		roots:   make(map[common.Hash]uint64),
		nextSeq: 1,
	}
}

// Commit records [root] as committed at unix time [timestamp]. The interval
// [minSeq, maxSeq] advances the expected next sequence number.
func (s *InMemoryCommitStore) Commit(root common.Hash, timestamp uint64, maxSeq uint64) error {
	if root == (common.Hash{}) || timestamp == 0 {
		return ErrInvalidCommitRoot
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.roots[root]; ok {
		return ErrRootAlreadyCommitted
	}
	s.roots[root] = timestamp
	if maxSeq >= s.nextSeq {
		s.nextSeq = maxSeq + 1
	}
	return nil
}

// Verify reconstructs the root covered by the multiproof and returns its
// commit timestamp, zero when the root was never committed.
func (s *InMemoryCommitStore) Verify(
	_ context.Context,
	hashedLeaves []common.Hash,
	proofs []common.Hash,
	proofFlagBits *big.Int,
) (uint64, error) {
	root, err := ComputeRoot(hashedLeaves, proofs, proofFlagBits)
	if err != nil {
		return 0, err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.roots[root], nil
}

func (s *InMemoryCommitStore) ExpectedNextSequenceNumber(_ context.Context) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.nextSeq, nil
}
