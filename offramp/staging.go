// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"github.com/ava-labs/icm-offramp/database"
	"github.com/ethereum/go-ethereum/common"
)

// laneKV binds an OffRampDatabase to a single lane's namespace.
type laneKV struct {
	db     database.OffRampDatabase
	laneID common.Hash
}

func (l laneKV) Get(key database.DataKey) ([]byte, error) {
	return l.db.Get(l.laneID, key)
}

func (l laneKV) Put(key database.DataKey, value []byte) error {
	return l.db.Put(l.laneID, key, value)
}

// stagedKV buffers writes over a backing store until flushed. Batches stage
// all of their state mutations here so that a fatal error unwinds the entire
// batch by discarding the overlay; nothing reaches the backing store until
// the batch completes.
type stagedKV struct {
	backing keyValueStore
	pending map[string][]byte
	order   []database.DataKey
}

func newStagedKV(backing keyValueStore) *stagedKV {
	return &stagedKV{
		backing: backing,
		pending: make(map[string][]byte),
	}
}

func (s *stagedKV) Get(key database.DataKey) ([]byte, error) {
	if value, ok := s.pending[key.String()]; ok {
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	return s.backing.Get(key)
}

func (s *stagedKV) Put(key database.DataKey, value []byte) error {
	if _, ok := s.pending[key.String()]; !ok {
		s.order = append(s.order, key)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.pending[key.String()] = stored
	return nil
}

// flush writes the staged mutations to the backing store in first-write
// order.
func (s *stagedKV) flush() error {
	for _, key := range s.order {
		if err := s.backing.Put(key, s.pending[key.String()]); err != nil {
			return err
		}
	}
	return nil
}
