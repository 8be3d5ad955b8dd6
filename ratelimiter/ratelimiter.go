// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ratelimiter

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	ErrBucketDisabled = errors.New("rate limiter is disabled")

	// AggregateValueTag marks a consumption of aggregate USD value rather
	// than a specific token.
	AggregateValueTag = common.Address{}
)

// ErrConsumingMoreThanMaxCapacity is returned when a requested amount exceeds
// the bucket capacity outright. No amount of waiting can satisfy the request.
type ErrConsumingMoreThanMaxCapacity struct {
	Capacity  *big.Int
	Requested *big.Int
	Token     common.Address
}

func (e *ErrConsumingMoreThanMaxCapacity) Error() string {
	if e.Token == AggregateValueTag {
		return fmt.Sprintf(
			"aggregate value %s exceeds bucket capacity %s",
			e.Requested, e.Capacity,
		)
	}
	return fmt.Sprintf(
		"token %s amount %s exceeds bucket capacity %s",
		e.Token, e.Requested, e.Capacity,
	)
}

// ErrRateLimitReached is returned when the bucket holds fewer tokens than
// requested. MinWait is a lower bound on the wait before a retry can succeed;
// concurrent consumption can push the real wait higher.
type ErrRateLimitReached struct {
	MinWait   time.Duration
	Available *big.Int
	Requested *big.Int
}

func (e *ErrRateLimitReached) Error() string {
	return fmt.Sprintf(
		"rate limit reached: requested %s, available %s, retry in at least %s",
		e.Requested, e.Available, e.MinWait,
	)
}

// Config is the admin-supplied token bucket configuration.
type Config struct {
	Capacity *big.Int
	Rate     *big.Int
	Enabled  bool
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Capacity == nil || c.Capacity.Sign() <= 0 {
		return errors.New("rate limiter capacity must be positive")
	}
	if c.Rate == nil || c.Rate.Sign() <= 0 {
		return errors.New("rate limiter refill rate must be positive")
	}
	if c.Rate.Cmp(c.Capacity) >= 0 {
		return errors.New("rate limiter refill rate must be less than capacity")
	}
	return nil
}

// TokenBucket is a point-in-time snapshot of the bucket state.
type TokenBucket struct {
	Tokens      *big.Int
	Capacity    *big.Int
	Rate        *big.Int
	LastUpdated time.Time
	Enabled     bool
}

// RateLimiter is a token bucket with continuous linear refill. The bucket is
// shared process-wide mutable state; all methods are safe for concurrent use.
type RateLimiter struct {
	logger logging.Logger
	now    func() time.Time

	lock        sync.Mutex
	tokens      *big.Int
	capacity    *big.Int
	rate        *big.Int
	lastUpdated time.Time
	enabled     bool
}

// New creates a rate limiter with a starting level equal to capacity.
func New(logger logging.Logger, cfg Config, now func() time.Time) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	r := &RateLimiter{
		logger:  logger,
		now:     now,
		enabled: cfg.Enabled,
	}
	if cfg.Enabled {
		r.tokens = new(big.Int).Set(cfg.Capacity)
		r.capacity = new(big.Int).Set(cfg.Capacity)
		r.rate = new(big.Int).Set(cfg.Rate)
	} else {
		r.tokens = new(big.Int)
		r.capacity = new(big.Int)
		r.rate = new(big.Int)
	}
	r.lastUpdated = now()
	return r, nil
}

// Consume removes [amount] from the bucket, refilling it first. A zero amount
// or a disabled bucket is a no-op. [token] tags errors with the asset being
// limited; AggregateValueTag denotes aggregate USD value.
func (r *RateLimiter) Consume(amount *big.Int, token common.Address) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.enabled {
		return nil
	}

	r.refill()

	if amount.Cmp(r.capacity) > 0 {
		return &ErrConsumingMoreThanMaxCapacity{
			Capacity:  new(big.Int).Set(r.capacity),
			Requested: new(big.Int).Set(amount),
			Token:     token,
		}
	}
	if amount.Cmp(r.tokens) > 0 {
		deficit := new(big.Int).Sub(amount, r.tokens)
		// ceil(deficit / rate) seconds
		waitSeconds := new(big.Int).Add(deficit, new(big.Int).Sub(r.rate, big.NewInt(1)))
		waitSeconds.Div(waitSeconds, r.rate)
		return &ErrRateLimitReached{
			MinWait:   time.Duration(waitSeconds.Int64()) * time.Second,
			Available: new(big.Int).Set(r.tokens),
			Requested: new(big.Int).Set(amount),
		}
	}

	r.tokens.Sub(r.tokens, amount)
	r.logger.Debug(
		"Consumed rate limit tokens",
		zap.String("token", token.String()),
		zap.String("amount", amount.String()),
		zap.String("remaining", r.tokens.String()),
	)
	return nil
}

// Refund returns [amount] to the bucket after the consuming settlement was
// unwound, saturating at capacity.
func (r *RateLimiter) Refund(amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.enabled {
		return
	}
	r.tokens.Add(r.tokens, amount)
	if r.tokens.Cmp(r.capacity) > 0 {
		r.tokens.Set(r.capacity)
	}
}

// CurrentState returns the bucket as it would read right now, with the refill
// applied but not persisted.
func (r *RateLimiter) CurrentState() TokenBucket {
	r.lock.Lock()
	defer r.lock.Unlock()
	now := r.now()
	tokens := projectTokens(r.tokens, r.capacity, r.rate, now.Sub(r.lastUpdated))
	return TokenBucket{
		Tokens:      tokens,
		Capacity:    new(big.Int).Set(r.capacity),
		Rate:        new(big.Int).Set(r.rate),
		LastUpdated: now,
		Enabled:     r.enabled,
	}
}

// PersistedState is the durable form of the bucket level, written after every
// committed batch so that a restart does not reset the limiter to full
// capacity.
type PersistedState struct {
	Tokens      string    `json:"tokens"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PersistedState snapshots the current level without projecting the refill;
// the refill is recovered from LastUpdated on restore.
func (r *RateLimiter) PersistedState() PersistedState {
	r.lock.Lock()
	defer r.lock.Unlock()
	return PersistedState{
		Tokens:      r.tokens.String(),
		LastUpdated: r.lastUpdated,
	}
}

// Restore adopts a persisted level, projecting the refill accrued since it
// was written. The configured capacity and rate are unchanged; a level above
// capacity, or one that fails to parse, is rejected.
func (r *RateLimiter) Restore(state PersistedState) error {
	tokens, ok := new(big.Int).SetString(state.Tokens, 10)
	if !ok || tokens.Sign() < 0 {
		return fmt.Errorf("invalid persisted token level %q", state.Tokens)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.enabled {
		return nil
	}
	if tokens.Cmp(r.capacity) > 0 {
		return fmt.Errorf(
			"persisted token level %s exceeds capacity %s",
			tokens.String(),
			r.capacity.String(),
		)
	}
	now := r.now()
	r.tokens = projectTokens(tokens, r.capacity, r.rate, now.Sub(state.LastUpdated))
	r.lastUpdated = now
	return nil
}

// SetConfig atomically replaces the bucket configuration. The current level is
// first projected forward under the old rate and capacity, then clamped to the
// new capacity if it shrank.
func (r *RateLimiter) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	r.refill()

	r.enabled = cfg.Enabled
	if cfg.Enabled {
		r.capacity = new(big.Int).Set(cfg.Capacity)
		r.rate = new(big.Int).Set(cfg.Rate)
		if r.tokens.Cmp(r.capacity) > 0 {
			r.tokens.Set(r.capacity)
		}
	} else {
		r.capacity = new(big.Int)
		r.rate = new(big.Int)
		r.tokens = new(big.Int)
	}
	r.logger.Info(
		"Rate limiter config changed",
		zap.Bool("enabled", r.enabled),
		zap.String("capacity", r.capacity.String()),
		zap.String("rate", r.rate.String()),
		zap.String("tokens", r.tokens.String()),
	)
	return nil
}

// refill advances the bucket to now under the current rate, saturating at
// capacity. Callers must hold the lock.
func (r *RateLimiter) refill() {
	now := r.now()
	r.tokens = projectTokens(r.tokens, r.capacity, r.rate, now.Sub(r.lastUpdated))
	r.lastUpdated = now
}

// projectTokens returns min(capacity, tokens + elapsedSeconds*rate). Pure
// integer linear growth, no compounding.
func projectTokens(tokens, capacity, rate *big.Int, elapsed time.Duration) *big.Int {
	if elapsed < 0 {
		elapsed = 0
	}
	refilled := new(big.Int).Mul(big.NewInt(int64(elapsed/time.Second)), rate)
	refilled.Add(refilled, tokens)
	if refilled.Cmp(capacity) > 0 {
		refilled.Set(capacity)
	}
	return refilled
}
