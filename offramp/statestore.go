// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"fmt"
	"math/big"

	"github.com/ava-labs/icm-offramp/database"
	"github.com/ava-labs/icm-offramp/types"
)

const (
	// statesPerWord packs 128 two-bit execution states into one 256-bit word.
	statesPerWord = 128
	stateBits     = 2
	stateWordLen  = 32
)

var stateMask = big.NewInt(1<<stateBits - 1)

// keyValueStore is the slice of the database a single lane's components
// operate on. Both the raw lane namespace and the batch staging overlay
// implement it.
type keyValueStore interface {
	Get(key database.DataKey) ([]byte, error)
	Put(key database.DataKey, value []byte) error
}

// StateStore reads and writes the packed per-sequence-number execution
// states. Each message's 2 bits live in word floor(seq/128) at bit offset
// (seq mod 128)*2. Bits never written read as UNTOUCHED.
type StateStore struct {
	kv keyValueStore
}

func NewStateStore(kv keyValueStore) *StateStore {
	return &StateStore{kv: kv}
}

// GetExecutionState returns the recorded state for [seq].
func (s *StateStore) GetExecutionState(seq uint64) (types.ExecutionState, error) {
	word, err := s.loadWord(seq / statesPerWord)
	if err != nil {
		return types.ExecutionStateUntouched, err
	}
	bits := new(big.Int).Rsh(word, bitOffset(seq))
	bits.And(bits, stateMask)
	return types.ExecutionState(bits.Uint64()), nil
}

// SetExecutionState overwrites the 2-bit field for [seq], leaving the other
// 127 states in the word untouched.
func (s *StateStore) SetExecutionState(seq uint64, state types.ExecutionState) error {
	word, err := s.loadWord(seq / statesPerWord)
	if err != nil {
		return err
	}
	offset := bitOffset(seq)
	clear := new(big.Int).Lsh(stateMask, offset)
	word.AndNot(word, clear)
	word.Or(word, new(big.Int).Lsh(big.NewInt(int64(state)), offset))

	value := make([]byte, stateWordLen)
	word.FillBytes(value)
	return s.kv.Put(database.StateWordKey(seq/statesPerWord), value)
}

func (s *StateStore) loadWord(wordIndex uint64) (*big.Int, error) {
	value, err := s.kv.Get(database.StateWordKey(wordIndex))
	if database.IsKeyNotFoundError(err) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(value) != stateWordLen {
		return nil, fmt.Errorf(
			"%w: state word %d has %d bytes",
			database.ErrDatabaseMisconfiguration,
			wordIndex,
			len(value),
		)
	}
	return new(big.Int).SetBytes(value), nil
}

func bitOffset(seq uint64) uint {
	return uint(seq%statesPerWord) * stateBits
}
