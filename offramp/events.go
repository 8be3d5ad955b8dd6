// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// ExecutionStateChangedEvent records one message's terminal outcome.
type ExecutionStateChangedEvent struct {
	SequenceNumber uint64
	MessageID      common.Hash
	State          types.ExecutionState
	// FailurePayload preserves the receiver or token-pool failure bytes for
	// observability. Empty on success.
	FailurePayload []byte
}

// SkippedMessageEvent records a deliberate ordering no-op. The message's
// state remains UNTOUCHED and it can be re-delivered in a later batch.
type SkippedMessageEvent struct {
	SequenceNumber uint64
	Sender         common.Address
	Nonce          uint64
}

// EventSink receives the engine's outcome records. Batches buffer their
// events and deliver them only after the batch's effects are committed, so a
// fatally aborted batch surfaces no events.
type EventSink interface {
	ExecutionStateChanged(event ExecutionStateChangedEvent)
	SkippedIncorrectNonce(event SkippedMessageEvent)
	SkippedSenderWithPreviousRampMessageInflight(event SkippedMessageEvent)
	PoolAdded(sourceToken common.Address, destToken common.Address)
	PoolRemoved(sourceToken common.Address, destToken common.Address)
	RateLimiterConfigSet(cfg ratelimiter.Config)
}

var _ EventSink = &LogEventSink{}

// LogEventSink emits every event record as a structured log line.
type LogEventSink struct {
	logger logging.Logger
}

func NewLogEventSink(logger logging.Logger) *LogEventSink {
	return &LogEventSink{logger: logger}
}

func (s *LogEventSink) ExecutionStateChanged(event ExecutionStateChangedEvent) {
	s.logger.Info(
		"Execution state changed",
		zap.Uint64("sequenceNumber", event.SequenceNumber),
		zap.String("messageID", event.MessageID.Hex()),
		zap.String("state", event.State.String()),
		zap.String("failurePayload", hexutil.Encode(event.FailurePayload)),
	)
}

func (s *LogEventSink) SkippedIncorrectNonce(event SkippedMessageEvent) {
	s.logger.Info(
		"Skipped message: incorrect nonce",
		zap.Uint64("sequenceNumber", event.SequenceNumber),
		zap.String("sender", event.Sender.Hex()),
		zap.Uint64("nonce", event.Nonce),
	)
}

func (s *LogEventSink) SkippedSenderWithPreviousRampMessageInflight(event SkippedMessageEvent) {
	s.logger.Info(
		"Skipped message: previous ramp message in flight",
		zap.Uint64("sequenceNumber", event.SequenceNumber),
		zap.String("sender", event.Sender.Hex()),
		zap.Uint64("nonce", event.Nonce),
	)
}

func (s *LogEventSink) PoolAdded(sourceToken common.Address, destToken common.Address) {
	s.logger.Info(
		"Token pool added",
		zap.String("sourceToken", sourceToken.Hex()),
		zap.String("destToken", destToken.Hex()),
	)
}

func (s *LogEventSink) PoolRemoved(sourceToken common.Address, destToken common.Address) {
	s.logger.Info(
		"Token pool removed",
		zap.String("sourceToken", sourceToken.Hex()),
		zap.String("destToken", destToken.Hex()),
	)
}

func (s *LogEventSink) RateLimiterConfigSet(cfg ratelimiter.Config) {
	s.logger.Info(
		"Rate limiter config set",
		zap.Bool("enabled", cfg.Enabled),
		zap.String("capacity", cfg.Capacity.String()),
		zap.String("rate", cfg.Rate.String()),
	)
}

// eventBuffer accumulates a batch's events for delivery after commit.
type eventBuffer struct {
	emits []func(EventSink)
}

func (b *eventBuffer) stateChanged(event ExecutionStateChangedEvent) {
	b.emits = append(b.emits, func(sink EventSink) { sink.ExecutionStateChanged(event) })
}

func (b *eventBuffer) skippedIncorrectNonce(event SkippedMessageEvent) {
	b.emits = append(b.emits, func(sink EventSink) { sink.SkippedIncorrectNonce(event) })
}

func (b *eventBuffer) skippedPreviousRampInFlight(event SkippedMessageEvent) {
	b.emits = append(b.emits, func(sink EventSink) {
		sink.SkippedSenderWithPreviousRampMessageInflight(event)
	})
}

func (b *eventBuffer) deliver(sink EventSink) {
	for _, emit := range b.emits {
		emit(sink)
	}
}
