// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/set"
	"github.com/ava-labs/icm-offramp/database"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/tokens"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ava-labs/icm-offramp/utils"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	defaultCallBudget         = 5 * time.Second
	defaultMaxReturnDataBytes = 512
	defaultPredecessorDepth   = 8

	senderNonceCacheSize = 1024
	senderNonceCacheTTL  = 10 * time.Second
)

var (
	ErrEmptyReport                    = errors.New("empty execution report")
	ErrLengthMismatch                 = errors.New("execution report length mismatch")
	ErrRootNotCommitted               = errors.New("root not committed")
	ErrAlreadyAttempted               = errors.New("message already attempted")
	ErrAlreadyExecuted                = errors.New("message already executed")
	ErrManualExecutionNotYetEnabled   = errors.New("manual execution not yet enabled")
	ErrInvalidManualExecutionGasLimit = errors.New("manual execution gas limit below original")
	ErrInvalidNewState                = errors.New("execution produced a non-terminal state")
	ErrCommitStoreHasHistory          = errors.New("commit store already has history")
)

// Params bundles the collaborators and policy knobs an engine needs. Zero
// call budgets and limits fall back to defaults.
type Params struct {
	Logger      logging.Logger
	Metrics     *OffRampMetrics
	DB          database.OffRampDatabase
	LaneID      database.LaneID
	CommitStore CommitStore
	Router      Router
	Registry    *tokens.Registry
	PriceOracle PriceOracle
	RateLimiter *ratelimiter.RateLimiter
	Events      EventSink

	// Predecessor is the optional prior engine on this lane, consulted for
	// transitional nonces during a migration.
	Predecessor PredecessorEngine

	// PermissionlessExecutionThreshold is the commit age after which anyone
	// may manually execute an untouched message.
	PermissionlessExecutionThreshold time.Duration

	GasForCallExactCheck *big.Int

	VerifyCallBudget    time.Duration
	RouterCallBudget    time.Duration
	PoolCallBudget      time.Duration
	OracleCallBudget    time.Duration
	MaxReturnDataBytes  int
	MaxPredecessorDepth int

	// Now is the clock used for manual execution thresholds; nil means
	// time.Now.
	Now func() time.Time
}

// OffRamp executes batches of cross-chain messages against their committed
// Merkle root for a single lane. The host serializes batches; the engine
// additionally guards itself with a mutex so that overlapping calls cannot
// interleave state mutations.
type OffRamp struct {
	logger       logging.Logger
	metrics      *OffRampMetrics
	db           database.OffRampDatabase
	laneID       database.LaneID
	metadataHash common.Hash
	commitStore  CommitStore
	router       Router
	registry     *tokens.Registry
	priceOracle  PriceOracle
	rateLimiter  *ratelimiter.RateLimiter
	events       EventSink
	predecessor  PredecessorEngine

	permissionlessThreshold time.Duration
	gasForCallExactCheck    *big.Int
	verifyCallBudget        time.Duration
	routerCallBudget        time.Duration
	poolCallBudget          time.Duration
	oracleCallBudget        time.Duration
	maxReturnDataBytes      int
	maxPredecessorDepth     int
	now                     func() time.Time

	nonceCache *lru.LRU[common.Address, uint64]

	execLock sync.Mutex
}

var _ PredecessorEngine = &OffRamp{}

// NewOffRamp constructs the execution engine for one lane. It refuses to bind
// to a commit store that already has history, since replayed roots from an
// unknown past cannot be trusted for exactly-once execution.
func NewOffRamp(ctx context.Context, params Params) (*OffRamp, error) {
	o := &OffRamp{
		logger:      params.Logger,
		metrics:     params.Metrics,
		db:          params.DB,
		laneID:      params.LaneID,
		commitStore: params.CommitStore,
		router:      params.Router,
		registry:    params.Registry,
		priceOracle: params.PriceOracle,
		rateLimiter: params.RateLimiter,
		events:      params.Events,
		predecessor: params.Predecessor,

		permissionlessThreshold: params.PermissionlessExecutionThreshold,
		gasForCallExactCheck:    params.GasForCallExactCheck,
		verifyCallBudget:        params.VerifyCallBudget,
		routerCallBudget:        params.RouterCallBudget,
		poolCallBudget:          params.PoolCallBudget,
		oracleCallBudget:        params.OracleCallBudget,
		maxReturnDataBytes:      params.MaxReturnDataBytes,
		maxPredecessorDepth:     params.MaxPredecessorDepth,
		now:                     params.Now,
	}
	o.metadataHash = types.MetadataHash(
		params.LaneID.SourceChainID,
		params.LaneID.DestinationChainID,
		params.LaneID.OnRampAddress,
	)
	if o.verifyCallBudget == 0 {
		o.verifyCallBudget = defaultCallBudget
	}
	if o.routerCallBudget == 0 {
		o.routerCallBudget = defaultCallBudget
	}
	if o.poolCallBudget == 0 {
		o.poolCallBudget = defaultCallBudget
	}
	if o.oracleCallBudget == 0 {
		o.oracleCallBudget = defaultCallBudget
	}
	if o.maxReturnDataBytes == 0 {
		o.maxReturnDataBytes = defaultMaxReturnDataBytes
	}
	if o.maxPredecessorDepth == 0 {
		o.maxPredecessorDepth = defaultPredecessorDepth
	}
	if o.gasForCallExactCheck == nil {
		o.gasForCallExactCheck = big.NewInt(5_000)
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.nonceCache = lru.NewLRU[common.Address, uint64](senderNonceCacheSize, nil, senderNonceCacheTTL)

	nextSeq, err := utils.CallBounded(ctx, o.verifyCallBudget, o.commitStore.ExpectedNextSequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query commit store: %w", err)
	}
	if nextSeq != 1 {
		return nil, fmt.Errorf("%w: expected next sequence number %d", ErrCommitStoreHasHistory, nextSeq)
	}
	return o, nil
}

func (o *OffRamp) LaneID() database.LaneID {
	return o.laneID
}

// Execute runs the automatic path: only UNTOUCHED messages are legal, and the
// caller is the elected submitter for the current round.
func (o *OffRamp) Execute(ctx context.Context, report *types.ExecutionReport) error {
	return o.executeReport(ctx, report, false, nil)
}

// ManuallyExecute re-submits a batch outside the automatic path. UNTOUCHED
// messages additionally require the commit to be older than the
// permissionless execution threshold; FAILURE messages may always be retried.
// Gas limit overrides apply per message, may only raise the limit, and zero
// keeps the original.
func (o *OffRamp) ManuallyExecute(
	ctx context.Context,
	report *types.ExecutionReport,
	gasLimitOverrides []*big.Int,
) error {
	return o.executeReport(ctx, report, true, gasLimitOverrides)
}

func (o *OffRamp) executeReport(
	ctx context.Context,
	report *types.ExecutionReport,
	manual bool,
	gasLimitOverrides []*big.Int,
) error {
	o.execLock.Lock()
	defer o.execLock.Unlock()

	path := "automatic"
	if manual {
		path = "manual"
	}
	err := o.executeReportLocked(ctx, report, manual, gasLimitOverrides)
	if err != nil {
		o.logger.Error(
			"Batch execution aborted",
			zap.String("path", path),
			zap.Error(err),
		)
		o.metrics.fatalBatchCount.WithLabelValues(o.laneLabels(path)...).Inc()
		return err
	}
	o.metrics.executedBatchCount.WithLabelValues(o.laneLabels(path)...).Inc()
	return nil
}

func (o *OffRamp) executeReportLocked(
	ctx context.Context,
	report *types.ExecutionReport,
	manual bool,
	gasLimitOverrides []*big.Int,
) error {
	if report == nil || len(report.Messages) == 0 {
		return ErrEmptyReport
	}
	if len(report.OffchainTokenData) != len(report.Messages) {
		return fmt.Errorf(
			"%w: %d messages but %d offchain token data lists",
			ErrLengthMismatch,
			len(report.Messages),
			len(report.OffchainTokenData),
		)
	}
	if manual {
		if len(gasLimitOverrides) != len(report.Messages) {
			return fmt.Errorf(
				"%w: %d messages but %d gas limit overrides",
				ErrLengthMismatch,
				len(report.Messages),
				len(gasLimitOverrides),
			)
		}
		for i := range report.Messages {
			override := gasLimitOverrides[i]
			if override != nil && override.Sign() != 0 &&
				override.Cmp(report.Messages[i].GasLimit) < 0 {
				return fmt.Errorf("%w: message index %d", ErrInvalidManualExecutionGasLimit, i)
			}
		}
	}

	// Recompute every leaf and require it to match the carried message ID.
	// A mismatch is an integrity violation, not a recoverable error.
	leaves := make([]common.Hash, len(report.Messages))
	for i := range report.Messages {
		msg := &report.Messages[i]
		leaf := types.LeafHash(msg, o.metadataHash)
		if leaf != msg.MessageID {
			return fmt.Errorf(
				"%w: sequence number %d",
				types.ErrInvalidMessageID,
				msg.SequenceNumber,
			)
		}
		leaves[i] = leaf
	}

	// One verification covers the whole batch.
	commitTimestamp, err := utils.CallBounded(
		ctx,
		o.verifyCallBudget,
		func(cctx context.Context) (uint64, error) {
			return o.commitStore.Verify(cctx, leaves, report.Proofs, report.ProofFlagBits)
		},
	)
	if err != nil {
		return fmt.Errorf("commit store verification failed: %w", err)
	}
	if commitTimestamp == 0 {
		return ErrRootNotCommitted
	}

	staged := newStagedKV(laneKV{db: o.db, laneID: o.laneID.ID})
	store := NewStateStore(staged)
	tracker := NewNonceTracker(o.logger, staged, o.predecessor, o.maxPredecessorDepth)
	var (
		events        eventBuffer
		batchConsumed = new(big.Int)
		stats         batchStats
	)

	for i := range report.Messages {
		msg := &report.Messages[i]
		fatal := o.executeSingleMessage(
			ctx,
			msg,
			report.OffchainTokenData[i],
			manual,
			gasLimitOverrides,
			i,
			commitTimestamp,
			store,
			tracker,
			&events,
			batchConsumed,
			&stats,
		)
		if fatal != nil {
			// Unwind the whole batch: discard the staged writes and return
			// the value consumed by earlier messages.
			o.rateLimiter.Refund(batchConsumed)
			return fatal
		}
	}

	if err := staged.flush(); err != nil {
		o.rateLimiter.Refund(batchConsumed)
		return fmt.Errorf("failed to persist batch state: %w", err)
	}
	// Cached nonces go stale only once the staged writes land.
	for sender := range stats.touchedSenders {
		o.nonceCache.Remove(sender)
	}
	o.persistBucket()
	events.deliver(o.events)
	o.recordBatchMetrics(&stats)
	return nil
}

type batchStats struct {
	succeeded             int
	failedKinds           []string
	skippedIncorrectNonce int
	skippedInFlight       int
	touchedSenders        set.Set[common.Address]
}

func (o *OffRamp) executeSingleMessage(
	ctx context.Context,
	msg *types.Message,
	offchainTokenData [][]byte,
	manual bool,
	gasLimitOverrides []*big.Int,
	index int,
	commitTimestamp uint64,
	store *StateStore,
	tracker *NonceTracker,
	events *eventBuffer,
	batchConsumed *big.Int,
	stats *batchStats,
) error {
	seq := msg.SequenceNumber
	originalState, err := store.GetExecutionState(seq)
	if err != nil {
		return err
	}

	if manual {
		if originalState != types.ExecutionStateUntouched &&
			originalState != types.ExecutionStateFailure {
			return fmt.Errorf("%w: sequence number %d state %s", ErrAlreadyExecuted, seq, originalState)
		}
		if originalState == types.ExecutionStateUntouched {
			commitAge := o.now().Sub(time.Unix(int64(commitTimestamp), 0))
			if commitAge < o.permissionlessThreshold {
				return fmt.Errorf("%w: sequence number %d", ErrManualExecutionNotYetEnabled, seq)
			}
		}
	} else if originalState != types.ExecutionStateUntouched {
		return fmt.Errorf("%w: sequence number %d state %s", ErrAlreadyAttempted, seq, originalState)
	}

	// Defensive shape checks; a valid on-ramp never produces these.
	if err := msg.ValidateShape(offchainTokenData); err != nil {
		return fmt.Errorf("sequence number %d: %w", seq, err)
	}

	// Ordering applies only to first attempts. FAILURE retries already
	// consumed their nonce.
	if originalState == types.ExecutionStateUntouched {
		reason, err := tracker.checkOrdering(ctx, msg.Sender, msg.Nonce)
		if err != nil {
			return err
		}
		if reason != skipNone {
			event := SkippedMessageEvent{
				SequenceNumber: seq,
				Sender:         msg.Sender,
				Nonce:          msg.Nonce,
			}
			if reason == skipIncorrectNonce {
				events.skippedIncorrectNonce(event)
				stats.skippedIncorrectNonce++
			} else {
				events.skippedPreviousRampInFlight(event)
				stats.skippedInFlight++
			}
			return nil
		}
	}

	gasLimit := msg.GasLimit
	if manual {
		if override := gasLimitOverrides[index]; override != nil && override.Sign() != 0 {
			gasLimit = override
		}
	}

	// IN_PROGRESS guards against reentry into this message within the batch.
	if err := store.SetExecutionState(seq, types.ExecutionStateInProgress); err != nil {
		return err
	}

	fault, consumed, fatal := o.executeMessageBody(ctx, msg, offchainTokenData, gasLimit)
	if fatal != nil {
		o.rateLimiter.Refund(consumed)
		return fmt.Errorf("sequence number %d: %w", seq, fatal)
	}

	newState := types.ExecutionStateSuccess
	var failurePayload []byte
	if fault != nil {
		if !fault.recoverable() {
			o.rateLimiter.Refund(consumed)
			return fmt.Errorf("sequence number %d: %w", seq, fault.err)
		}
		newState = types.ExecutionStateFailure
		failurePayload = fault.payload
		// The failed message's settlement is unwound, so its consumption is
		// returned to the bucket.
		o.rateLimiter.Refund(consumed)
		stats.failedKinds = append(stats.failedKinds, fault.kind.String())
	} else {
		batchConsumed.Add(batchConsumed, consumed)
		stats.succeeded++
	}

	if !newState.IsTerminal() {
		return fmt.Errorf("%w: sequence number %d state %s", ErrInvalidNewState, seq, newState)
	}
	if err := store.SetExecutionState(seq, newState); err != nil {
		return err
	}
	if originalState == types.ExecutionStateUntouched {
		if err := tracker.recordNonce(msg.Sender, msg.Nonce); err != nil {
			return err
		}
		stats.touchedSenders.Add(msg.Sender)
	}

	events.stateChanged(ExecutionStateChangedEvent{
		SequenceNumber: seq,
		MessageID:      msg.MessageID,
		State:          newState,
		FailurePayload: failurePayload,
	})
	return nil
}

// executeMessageBody settles the message's tokens and notifies the receiver.
// The returned fault is message-local; a non-nil error aborts the batch. The
// consumed rate limiter value is reported so the caller can refund it when
// the message's effects are unwound.
func (o *OffRamp) executeMessageBody(
	ctx context.Context,
	msg *types.Message,
	offchainTokenData [][]byte,
	gasLimit *big.Int,
) (*messageFault, *big.Int, error) {
	consumed := new(big.Int)
	if len(msg.TokenAmounts) > 0 {
		value, fault, err := o.settleTokens(ctx, msg, offchainTokenData)
		if err != nil {
			return nil, consumed, err
		}
		if fault != nil {
			return fault, consumed, nil
		}
		consumed = value
	}

	supports, err := utils.CallBounded(ctx, o.routerCallBudget, func(cctx context.Context) (bool, error) {
		return o.router.SupportsMessageReceiver(cctx, msg.Receiver)
	})
	if err != nil {
		return o.receiverFaultOrFatal(err, consumed)
	}
	if !supports {
		// A plain account, or a contract without the receiver capability,
		// silently receives only the tokens.
		return nil, consumed, nil
	}

	success, returnData, gasUsed, err := o.routeBounded(ctx, msg, gasLimit)
	if err != nil {
		return o.receiverFaultOrFatal(err, consumed)
	}
	if !success {
		o.logger.Info(
			"Receiver rejected message",
			zap.String("messageID", msg.MessageID.Hex()),
			zap.String("receiver", msg.Receiver.Hex()),
			zap.String("gasUsed", gasUsed.String()),
		)
		return &messageFault{
			kind:    faultReceiverRejected,
			payload: utils.CapBytes(returnData, o.maxReturnDataBytes),
		}, consumed, nil
	}
	return nil, consumed, nil
}

// receiverFaultOrFatal classifies a router error: budget exhaustion is a
// recoverable receiver failure, anything else aborts the batch.
func (o *OffRamp) receiverFaultOrFatal(err error, consumed *big.Int) (*messageFault, *big.Int, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return &messageFault{
			kind:    faultReceiverRejected,
			payload: utils.CapBytes([]byte(err.Error()), o.maxReturnDataBytes),
			err:     err,
		}, consumed, nil
	}
	return nil, consumed, err
}

type routeResult struct {
	success    bool
	returnData []byte
	gasUsed    *big.Int
}

func (o *OffRamp) routeBounded(
	ctx context.Context,
	msg *types.Message,
	gasLimit *big.Int,
) (bool, []byte, *big.Int, error) {
	result, err := utils.CallBounded(ctx, o.routerCallBudget, func(cctx context.Context) (routeResult, error) {
		success, returnData, gasUsed, err := o.router.RouteMessage(
			cctx,
			msg,
			o.gasForCallExactCheck,
			gasLimit,
			msg.Receiver,
		)
		return routeResult{success: success, returnData: returnData, gasUsed: gasUsed}, err
	})
	if result.gasUsed == nil {
		result.gasUsed = new(big.Int)
	}
	return result.success, result.returnData, result.gasUsed, err
}

// GetExecutionState returns the persisted state for a sequence number.
func (o *OffRamp) GetExecutionState(seq uint64) (types.ExecutionState, error) {
	return NewStateStore(laneKV{db: o.db, laneID: o.laneID.ID}).GetExecutionState(seq)
}

// GetSenderNonce returns the sender's last consumed nonce, transitively
// consulting the predecessor chain. Results are cached briefly; the ordering
// checks inside batch execution never read this cache.
func (o *OffRamp) GetSenderNonce(ctx context.Context, sender common.Address) (uint64, error) {
	if nonce, ok := o.nonceCache.Get(sender); ok {
		return nonce, nil
	}
	tracker := NewNonceTracker(
		o.logger,
		laneKV{db: o.db, laneID: o.laneID.ID},
		o.predecessor,
		o.maxPredecessorDepth,
	)
	nonce, err := tracker.CurrentNonce(ctx, sender)
	if err != nil {
		return 0, err
	}
	o.nonceCache.Add(sender, nonce)
	return nonce, nil
}

// Predecessor returns the prior engine on this lane, nil when none is
// configured.
func (o *OffRamp) Predecessor() PredecessorEngine {
	return o.predecessor
}

// ApplyPoolUpdates mutates the token pool registry. Admin-gated by the
// caller.
func (o *OffRamp) ApplyPoolUpdates(removals []tokens.PoolUpdate, additions []tokens.PoolUpdate) error {
	removedDestTokens := make([]common.Address, 0, len(removals))
	for _, update := range removals {
		pool, err := o.registry.GetPoolBySourceToken(update.SourceToken)
		if err != nil {
			return err
		}
		removedDestTokens = append(removedDestTokens, pool.GetToken())
	}
	if err := o.registry.ApplyPoolUpdates(removals, additions); err != nil {
		return err
	}
	for i, update := range removals {
		o.events.PoolRemoved(update.SourceToken, removedDestTokens[i])
	}
	for _, update := range additions {
		o.events.PoolAdded(update.SourceToken, update.Pool.GetToken())
	}
	return nil
}

// CurrentRateLimiterState returns the projected token bucket.
func (o *OffRamp) CurrentRateLimiterState() ratelimiter.TokenBucket {
	return o.rateLimiter.CurrentState()
}

// SetRateLimiterConfig replaces the bucket configuration. Admin-gated by the
// caller.
func (o *OffRamp) SetRateLimiterConfig(cfg ratelimiter.Config) error {
	if err := o.rateLimiter.SetConfig(cfg); err != nil {
		return err
	}
	o.persistBucket()
	o.events.RateLimiterConfigSet(cfg)
	return nil
}

func (o *OffRamp) persistBucket() {
	state := o.rateLimiter.PersistedState()
	value, err := json.Marshal(state)
	if err != nil {
		o.logger.Error("Failed to marshal rate limiter state", zap.Error(err))
		return
	}
	if err := o.db.Put(o.laneID.ID, database.RateBucketKey(), value); err != nil {
		o.logger.Error("Failed to persist rate limiter state", zap.Error(err))
	}
}

func (o *OffRamp) laneLabels(extra ...string) []string {
	labels := []string{
		o.laneID.SourceChainID.String(),
		o.laneID.DestinationChainID.String(),
	}
	return append(labels, extra...)
}

func (o *OffRamp) recordBatchMetrics(stats *batchStats) {
	for i := 0; i < stats.succeeded; i++ {
		o.metrics.successfulExecutionCount.WithLabelValues(o.laneLabels()...).Inc()
	}
	for _, kind := range stats.failedKinds {
		o.metrics.failedExecutionCount.WithLabelValues(o.laneLabels(kind)...).Inc()
	}
	for i := 0; i < stats.skippedIncorrectNonce; i++ {
		o.metrics.skippedMessageCount.WithLabelValues(o.laneLabels("incorrect_nonce")...).Inc()
	}
	for i := 0; i < stats.skippedInFlight; i++ {
		o.metrics.skippedMessageCount.WithLabelValues(o.laneLabels("previous_ramp_in_flight")...).Inc()
	}
	bucket := o.rateLimiter.CurrentState()
	tokens, _ := new(big.Float).SetInt(bucket.Tokens).Float64()
	o.metrics.rateLimiterTokens.WithLabelValues(o.laneLabels()...).Set(tokens)
}
