// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"context"
	"math/big"
	"time"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/icm-offramp/database"
	"github.com/ava-labs/icm-offramp/merkle"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ethereum/go-ethereum/common"
)

// memKV is an in-memory keyValueStore for exercising the stores directly,
// without a lane-namespaced database underneath.
type memKV struct {
	values map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{values: make(map[string][]byte)}
}

func (m *memKV) Get(key database.DataKey) ([]byte, error) {
	value, ok := m.values[key.String()]
	if !ok {
		return nil, database.ErrKeyNotFound
	}
	return value, nil
}

func (m *memKV) Put(key database.DataKey, value []byte) error {
	m.values[key.String()] = value
	return nil
}

// fakePredecessor is a hand-rolled PredecessorEngine with fixed per-sender
// nonces and an optional next engine in the chain.
type fakePredecessor struct {
	nonces      map[common.Address]uint64
	predecessor PredecessorEngine
}

func (f *fakePredecessor) GetSenderNonce(_ context.Context, sender common.Address) (uint64, error) {
	return f.nonces[sender], nil
}

func (f *fakePredecessor) Predecessor() PredecessorEngine {
	return f.predecessor
}

// fakeRouter scripts receiver support and routing outcomes per receiver
// address.
type fakeRouter struct {
	supported  map[common.Address]bool
	rejections map[common.Address][]byte
	routeCalls int
}

func (f *fakeRouter) SupportsMessageReceiver(_ context.Context, receiver common.Address) (bool, error) {
	return f.supported[receiver], nil
}

func (f *fakeRouter) RouteMessage(
	_ context.Context,
	_ *types.Message,
	_ *big.Int,
	_ *big.Int,
	receiver common.Address,
) (bool, []byte, *big.Int, error) {
	f.routeCalls++
	if payload, ok := f.rejections[receiver]; ok {
		return false, payload, big.NewInt(21_000), nil
	}
	return true, nil, big.NewInt(21_000), nil
}

// fakeOracle prices every token at [price]; a nil price reports the price as
// unavailable with a nil value.
type fakeOracle struct {
	price *big.Int
}

func (f *fakeOracle) GetTokenPrice(_ context.Context, _ common.Address) (*big.Int, time.Time, error) {
	return f.price, time.Now(), nil
}

// fakePool releases every request, recording the released amounts, unless
// failErr is set.
type fakePool struct {
	token    common.Address
	released []*big.Int
	failErr  error
}

func (f *fakePool) ReleaseOrMint(
	_ context.Context,
	_ []byte,
	_ common.Address,
	amount *big.Int,
	_ ids.ID,
	_ []byte,
) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.released = append(f.released, new(big.Int).Set(amount))
	return nil
}

func (f *fakePool) GetToken() common.Address {
	return f.token
}

// recordingSink buffers every event it receives for assertions.
type recordingSink struct {
	stateChanges     []ExecutionStateChangedEvent
	incorrectNonce   []SkippedMessageEvent
	previousInFlight []SkippedMessageEvent
}

func (s *recordingSink) ExecutionStateChanged(event ExecutionStateChangedEvent) {
	s.stateChanges = append(s.stateChanges, event)
}

func (s *recordingSink) SkippedIncorrectNonce(event SkippedMessageEvent) {
	s.incorrectNonce = append(s.incorrectNonce, event)
}

func (s *recordingSink) SkippedSenderWithPreviousRampMessageInflight(event SkippedMessageEvent) {
	s.previousInFlight = append(s.previousInFlight, event)
}

func (s *recordingSink) PoolAdded(common.Address, common.Address) {}

func (s *recordingSink) PoolRemoved(common.Address, common.Address) {}

func (s *recordingSink) RateLimiterConfigSet(ratelimiter.Config) {}

// buildReport assembles a single-batch execution report over [messages],
// committing its root to [store] at [commitTime]. Leaf ordering follows the
// message ordering; the multiproof pairs leaves left to right.
func buildReport(
	store *merkle.InMemoryCommitStore,
	metadataHash common.Hash,
	commitTime uint64,
	messages ...types.Message,
) (*types.ExecutionReport, error) {
	leaves := make([]common.Hash, len(messages))
	maxSeq := uint64(0)
	for i := range messages {
		messages[i].MessageID = types.LeafHash(&messages[i], metadataHash)
		leaves[i] = messages[i].MessageID
		if messages[i].SequenceNumber > maxSeq {
			maxSeq = messages[i].SequenceNumber
		}
	}

	root, flagBits, proofs := multiproofFor(leaves)
	if err := store.Commit(root, commitTime, maxSeq); err != nil {
		return nil, err
	}
	offchain := make([][][]byte, len(messages))
	for i := range messages {
		offchain[i] = make([][]byte, len(messages[i].TokenAmounts))
	}
	return &types.ExecutionReport{
		Messages:          messages,
		OffchainTokenData: offchain,
		Proofs:            proofs,
		ProofFlagBits:     flagBits,
	}, nil
}

// multiproofFor folds the leaves pairwise into a root with every combination
// step sourcing both operands from the leaf/computed cursors, which is the
// all-ones flag mask and an empty proof set. An odd tail is combined with the
// preceding computed hash.
func multiproofFor(leaves []common.Hash) (common.Hash, *big.Int, []common.Hash) {
	if len(leaves) == 1 {
		return leaves[0], nil, nil
	}
	totalHashes := len(leaves) - 1
	flagBits := new(big.Int)
	for i := 0; i < totalHashes; i++ {
		flagBits.SetBit(flagBits, i, 1)
	}
	root, err := merkle.ComputeRoot(leaves, nil, flagBits)
	if err != nil {
		panic(err)
	}
	return root, flagBits, nil
}
