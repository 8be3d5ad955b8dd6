// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/icm-offramp/offramp"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	ExecutionStateAPIPath    = "/execution-state"
	SenderNonceAPIPath       = "/sender-nonce"
	RateLimiterStateAPIPath  = "/rate-limiter-state"
	RateLimiterConfigAPIPath = "/rate-limiter-config"

	// AdminKeyHeader carries the credential for configuration endpoints.
	AdminKeyHeader = "X-Admin-Key"
)

type ExecutionStateResponse struct {
	SequenceNumber uint64 `json:"sequence-number"`
	State          string `json:"state"`
}

type SenderNonceResponse struct {
	Sender string `json:"sender"`
	Nonce  uint64 `json:"nonce"`
}

type RateLimiterStateResponse struct {
	Tokens      string    `json:"tokens"`
	Capacity    string    `json:"capacity"`
	Rate        string    `json:"rate"`
	LastUpdated time.Time `json:"last-updated"`
	Enabled     bool      `json:"enabled"`
}

type RateLimiterConfigRequest struct {
	Enabled bool `json:"enabled"`
	// Decimal encodings; required when enabled
	Capacity string `json:"capacity"`
	Rate     string `json:"rate"`
}

func HandleExecutionState(logger logging.Logger, engine *offramp.OffRamp) {
	http.Handle(ExecutionStateAPIPath, executionStateAPIHandler(logger, engine))
}

func HandleSenderNonce(logger logging.Logger, engine *offramp.OffRamp) {
	http.Handle(SenderNonceAPIPath, senderNonceAPIHandler(logger, engine))
}

func HandleRateLimiterState(logger logging.Logger, engine *offramp.OffRamp) {
	http.Handle(RateLimiterStateAPIPath, rateLimiterStateAPIHandler(logger, engine))
}

func HandleRateLimiterConfig(logger logging.Logger, engine *offramp.OffRamp, adminKey string) {
	http.Handle(RateLimiterConfigAPIPath, rateLimiterConfigAPIHandler(logger, engine, adminKey))
}

func executionStateAPIHandler(logger logging.Logger, engine *offramp.OffRamp) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seqParam := r.URL.Query().Get("sequence-number")
		seq, err := strconv.ParseUint(seqParam, 10, 64)
		if err != nil {
			http.Error(w, "invalid sequence-number: "+err.Error(), http.StatusBadRequest)
			return
		}
		state, err := engine.GetExecutionState(seq)
		if err != nil {
			logger.Error("error reading execution state", zap.Error(err))
			http.Error(w, "error reading execution state: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSONResponse(logger, w, ExecutionStateResponse{
			SequenceNumber: seq,
			State:          state.String(),
		})
	})
}

func senderNonceAPIHandler(logger logging.Logger, engine *offramp.OffRamp) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		senderParam := r.URL.Query().Get("sender")
		if !common.IsHexAddress(senderParam) {
			http.Error(w, "invalid sender address", http.StatusBadRequest)
			return
		}
		sender := common.HexToAddress(senderParam)
		nonce, err := engine.GetSenderNonce(r.Context(), sender)
		if err != nil {
			logger.Error("error reading sender nonce", zap.Error(err))
			http.Error(w, "error reading sender nonce: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSONResponse(logger, w, SenderNonceResponse{
			Sender: sender.Hex(),
			Nonce:  nonce,
		})
	})
}

func rateLimiterStateAPIHandler(logger logging.Logger, engine *offramp.OffRamp) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		bucket := engine.CurrentRateLimiterState()
		writeJSONResponse(logger, w, RateLimiterStateResponse{
			Tokens:      bucket.Tokens.String(),
			Capacity:    bucket.Capacity.String(),
			Rate:        bucket.Rate.String(),
			LastUpdated: bucket.LastUpdated,
			Enabled:     bucket.Enabled,
		})
	})
}

func rateLimiterConfigAPIHandler(logger logging.Logger, engine *offramp.OffRamp, adminKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(AdminKeyHeader) != adminKey {
			http.Error(w, "caller is not an admin", http.StatusForbidden)
			return
		}
		var req RateLimiterConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("could not decode request body")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cfg := ratelimiter.Config{Enabled: req.Enabled}
		if req.Enabled {
			capacity, err := parseDecimalField(req.Capacity, "capacity")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			rate, err := parseDecimalField(req.Rate, "rate")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			cfg.Capacity = capacity
			cfg.Rate = rate
		}
		if err := engine.SetRateLimiterConfig(cfg); err != nil {
			logger.Error("error setting rate limiter config", zap.Error(err))
			http.Error(w, "error setting rate limiter config: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSONResponse(logger, w, ExecuteResponse{Status: "configured"})
	})
}

func writeJSONResponse(logger logging.Logger, w http.ResponseWriter, body any) {
	resp, err := json.Marshal(body)
	if err != nil {
		logger.Error("error marshalling response", zap.Error(err))
		http.Error(w, "error marshalling response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(resp); err != nil {
		logger.Error("error writing response", zap.Error(err))
	}
}
