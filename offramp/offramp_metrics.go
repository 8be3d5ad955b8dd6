// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrFailedToCreateOffRampMetrics = errors.New("failed to create off ramp metrics")

type OffRampMetrics struct {
	successfulExecutionCount *prometheus.CounterVec
	failedExecutionCount     *prometheus.CounterVec
	skippedMessageCount      *prometheus.CounterVec
	fatalBatchCount          *prometheus.CounterVec
	executedBatchCount       *prometheus.CounterVec
	rateLimiterTokens        *prometheus.GaugeVec
}

func NewOffRampMetrics(registerer prometheus.Registerer) (*OffRampMetrics, error) {
	successfulExecutionCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "successful_execution_count",
			Help: "Number of messages that executed successfully",
		},
		[]string{"source_chain_id", "destination_chain_id"},
	)
	if successfulExecutionCount == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(successfulExecutionCount)

	failedExecutionCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "failed_execution_count",
			Help: "Number of messages that reached the FAILURE state",
		},
		[]string{"source_chain_id", "destination_chain_id", "failure_kind"},
	)
	if failedExecutionCount == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(failedExecutionCount)

	skippedMessageCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skipped_message_count",
			Help: "Number of messages skipped by the nonce ordering checks",
		},
		[]string{"source_chain_id", "destination_chain_id", "reason"},
	)
	if skippedMessageCount == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(skippedMessageCount)

	fatalBatchCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fatal_batch_count",
			Help: "Number of batches aborted by a fatal error",
		},
		[]string{"source_chain_id", "destination_chain_id", "path"},
	)
	if fatalBatchCount == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(fatalBatchCount)

	executedBatchCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executed_batch_count",
			Help: "Number of batches that committed",
		},
		[]string{"source_chain_id", "destination_chain_id", "path"},
	)
	if executedBatchCount == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(executedBatchCount)

	rateLimiterTokens := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limiter_tokens",
			Help: "Current token bucket level after the latest batch",
		},
		[]string{"source_chain_id", "destination_chain_id"},
	)
	if rateLimiterTokens == nil {
		return nil, ErrFailedToCreateOffRampMetrics
	}
	registerer.MustRegister(rateLimiterTokens)

	return &OffRampMetrics{
		successfulExecutionCount: successfulExecutionCount,
		failedExecutionCount:     failedExecutionCount,
		skippedMessageCount:      skippedMessageCount,
		fatalBatchCount:          fatalBatchCount,
		executedBatchCount:       executedBatchCount,
		rateLimiterTokens:        rateLimiterTokens,
	}, nil
}
