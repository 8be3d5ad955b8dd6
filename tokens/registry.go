// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokens

import (
	"fmt"
	"sync"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

var (
	ErrUnsupportedToken    = errors.New("unsupported token")
	ErrPoolAlreadyAdded    = errors.New("pool already added")
	ErrPoolDoesNotExist    = errors.New("pool does not exist")
	ErrTokenPoolMismatch   = errors.New("token pool mismatch")
	ErrInvalidTokenPoolCfg = errors.New("invalid token pool config")
)

// PoolUpdate pairs a source-chain token with the pool servicing it on the
// destination chain.
type PoolUpdate struct {
	SourceToken common.Address
	Pool        TokenPool
}

// Registry maintains the bijective source-token to pool and destination-token
// to pool maps. Every registered pool appears in exactly one entry per side.
// Mutation is admin-gated by the caller; lookups are safe for concurrent use.
type Registry struct {
	logger logging.Logger

	lock             sync.RWMutex
	poolsBySource    map[common.Address]TokenPool
	poolsByDestToken map[common.Address]TokenPool
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		logger:           logger,
		poolsBySource:    make(map[common.Address]TokenPool),
		poolsByDestToken: make(map[common.Address]TokenPool),
	}
}

// ApplyPoolUpdates removes [removals] then adds [additions], failing with the
// registry unchanged if any entry is missing, mismatched, or duplicated.
func (r *Registry) ApplyPoolUpdates(removals []PoolUpdate, additions []PoolUpdate) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	removedDestTokens := make(map[common.Address]bool, len(removals))
	for _, update := range removals {
		if err := r.checkRemoval(update); err != nil {
			return err
		}
		removedDestTokens[r.poolsBySource[update.SourceToken].GetToken()] = true
	}
	staged := make(map[common.Address]TokenPool, len(additions))
	stagedDestTokens := make(map[common.Address]bool, len(additions))
	for _, update := range additions {
		if update.Pool == nil {
			return errors.Wrap(ErrInvalidTokenPoolCfg, "nil pool")
		}
		if _, ok := r.poolsBySource[update.SourceToken]; ok {
			return errors.Wrap(ErrPoolAlreadyAdded, update.SourceToken.Hex())
		}
		if _, ok := staged[update.SourceToken]; ok {
			return errors.Wrap(ErrPoolAlreadyAdded, update.SourceToken.Hex())
		}
		// Both sides of the mapping are one to one, so a pool whose dest
		// token is already served is rejected unless that entry is being
		// removed in this same update.
		destToken := update.Pool.GetToken()
		if _, ok := r.poolsByDestToken[destToken]; ok && !removedDestTokens[destToken] {
			return errors.Wrap(ErrPoolAlreadyAdded, destToken.Hex())
		}
		if stagedDestTokens[destToken] {
			return errors.Wrap(ErrPoolAlreadyAdded, destToken.Hex())
		}
		staged[update.SourceToken] = update.Pool
		stagedDestTokens[destToken] = true
	}

	for _, update := range removals {
		pool := r.poolsBySource[update.SourceToken]
		delete(r.poolsBySource, update.SourceToken)
		if r.poolsByDestToken[pool.GetToken()] == pool {
			delete(r.poolsByDestToken, pool.GetToken())
		}
		r.logger.Info(
			"Token pool removed",
			zap.String("sourceToken", update.SourceToken.Hex()),
			zap.String("destToken", pool.GetToken().Hex()),
		)
	}
	for _, update := range additions {
		r.poolsBySource[update.SourceToken] = update.Pool
		r.poolsByDestToken[update.Pool.GetToken()] = update.Pool
		r.logger.Info(
			"Token pool added",
			zap.String("sourceToken", update.SourceToken.Hex()),
			zap.String("destToken", update.Pool.GetToken().Hex()),
		)
	}
	return nil
}

func (r *Registry) checkRemoval(update PoolUpdate) error {
	pool, ok := r.poolsBySource[update.SourceToken]
	if !ok {
		return errors.Wrap(ErrPoolDoesNotExist, update.SourceToken.Hex())
	}
	if update.Pool != nil && pool != update.Pool {
		return errors.Wrap(
			ErrTokenPoolMismatch,
			fmt.Sprintf("source token %s", update.SourceToken.Hex()),
		)
	}
	return nil
}

// GetPoolBySourceToken resolves a source-chain token to its pool.
func (r *Registry) GetPoolBySourceToken(sourceToken common.Address) (TokenPool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	pool, ok := r.poolsBySource[sourceToken]
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedToken, sourceToken.Hex())
	}
	return pool, nil
}

// GetPoolByDestToken resolves a destination-chain token to its pool.
func (r *Registry) GetPoolByDestToken(destToken common.Address) (TokenPool, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	pool, ok := r.poolsByDestToken[destToken]
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedToken, destToken.Hex())
	}
	return pool, nil
}

// SupportedSourceTokens returns the source tokens with a registered pool.
func (r *Registry) SupportedSourceTokens() []common.Address {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return maps.Keys(r.poolsBySource)
}
