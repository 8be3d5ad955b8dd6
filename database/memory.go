// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package database

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var _ OffRampDatabase = &MemoryDatabase{}

// MemoryDatabase is an in-process OffRampDatabase. It backs tests and
// deployments that explicitly opt out of durable storage.
type MemoryDatabase struct {
	lock  sync.RWMutex
	state map[common.Hash]map[string][]byte
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		state: make(map[common.Hash]map[string][]byte),
	}
}

func (m *MemoryDatabase) Get(laneID common.Hash, key DataKey) ([]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	lane, ok := m.state[laneID]
	if !ok {
		return nil, ErrLaneNotFound
	}
	val, ok := lane[key.String()]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MemoryDatabase) Put(laneID common.Hash, key DataKey, value []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	lane, ok := m.state[laneID]
	if !ok {
		lane = make(map[string][]byte)
		m.state[laneID] = lane
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	lane[key.String()] = stored
	return nil
}
