// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ava-labs/avalanchego/ids"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/icm-offramp/merkle"
	"github.com/ava-labs/icm-offramp/offramp"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/tokens"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ava-labs/icm-offramp/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

const (
	ExecuteAPIPath       = "/execute"
	ManualExecuteAPIPath = "/execute/manual"

	// SubmitterKeyHeader carries the credential of the elected submitter for
	// the automatic path.
	SubmitterKeyHeader = "X-Submitter-Key"

	executeMaxRetries = 3
)

// TokenAmountRequest is the wire form of a single token transfer.
type TokenAmountRequest struct {
	// Required. Hex encoding of the source token address
	Token string `json:"token"`
	// Required. Decimal encoding of the transfer amount
	Amount string `json:"amount"`
}

// MessageRequest is the wire form of a single cross-chain message.
type MessageRequest struct {
	// Required. cb58 encoding of the source blockchain ID
	SourceBlockchainID string `json:"source-blockchain-id"`
	// Required. Hex encoding of the sender address on the source chain
	Sender string `json:"sender"`
	// Required. Hex encoding of the receiver address on this chain
	Receiver       string `json:"receiver"`
	SequenceNumber uint64 `json:"sequence-number"`
	Nonce          uint64 `json:"nonce"`
	// Required. Decimal encoding of the gas limit for the receiver call
	GasLimit string `json:"gas-limit"`
	// Hex encoding of the fee token address
	FeeToken string `json:"fee-token"`
	// Decimal encoding of the fee amount
	FeeTokenAmount string `json:"fee-token-amount"`
	// Hex encoding of the arbitrary payload
	Data            string               `json:"data"`
	TokenAmounts    []TokenAmountRequest `json:"token-amounts"`
	SourceTokenData []string             `json:"source-token-data"`
	// Required. Hex encoding of the message ID assigned on the source chain
	MessageID string `json:"message-id"`
}

// ExecuteRequest is the wire form of an execution report, plus the manual
// path's optional gas limit overrides.
type ExecuteRequest struct {
	Messages          []MessageRequest `json:"messages"`
	OffchainTokenData [][]string       `json:"offchain-token-data"`
	// Hex encodings of the multiproof hashes
	Proofs []string `json:"proofs"`
	// Decimal encoding of the proof flag bits
	ProofFlagBits string `json:"proof-flag-bits"`
	// Manual path only. Decimal gas limit overrides, one per message; "0"
	// keeps the original limit
	GasLimitOverrides []string `json:"gas-limit-overrides"`
}

type ExecuteResponse struct {
	Status string `json:"status"`
}

func HandleExecute(logger logging.Logger, engine *offramp.OffRamp, submitterKey string) {
	http.Handle(ExecuteAPIPath, executeAPIHandler(logger, engine, submitterKey))
}

func HandleManualExecute(logger logging.Logger, engine *offramp.OffRamp) {
	http.Handle(ManualExecuteAPIPath, manualExecuteAPIHandler(logger, engine))
}

// executeAPIHandler serves the automatic path. Only the elected submitter
// holds the configured key; everyone else uses the manual path.
func executeAPIHandler(logger logging.Logger, engine *offramp.OffRamp, submitterKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SubmitterKeyHeader) != submitterKey {
			http.Error(w, "caller is not the elected submitter", http.StatusForbidden)
			return
		}

		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("could not decode request body")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, _, err := parseExecuteRequest(&req, false)
		if err != nil {
			logger.Warn("invalid execution report", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := engine.Execute(r.Context(), report); err != nil {
			writeExecutionError(logger, w, err)
			return
		}
		writeExecuteResponse(logger, w)
	})
}

func manualExecuteAPIHandler(logger logging.Logger, engine *offramp.OffRamp) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("could not decode request body")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, overrides, err := parseExecuteRequest(&req, true)
		if err != nil {
			logger.Warn("invalid execution report", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var firstSeq uint64
		if len(report.Messages) > 0 {
			firstSeq = report.Messages[0].SequenceNumber
		}

		// Storage faults are worth retrying; semantic rejections are not.
		err = utils.WithMaxRetriesLog(
			func() error {
				err := engine.ManuallyExecute(r.Context(), report, overrides)
				if err != nil && isPermanentExecutionError(err) {
					return backoff.Permanent(err)
				}
				return err
			},
			executeMaxRetries,
			logger,
			"manual execution attempt failed",
			zap.Uint64("firstSequenceNumber", firstSeq),
		)
		if err != nil {
			writeExecutionError(logger, w, err)
			return
		}
		writeExecuteResponse(logger, w)
	})
}

func writeExecuteResponse(logger logging.Logger, w http.ResponseWriter) {
	resp, err := json.Marshal(ExecuteResponse{Status: "executed"})
	if err != nil {
		logger.Error("error marshalling response", zap.Error(err))
		http.Error(w, "error marshalling response: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(resp); err != nil {
		logger.Error("error writing response", zap.Error(err))
	}
}

func writeExecutionError(logger logging.Logger, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if isPermanentExecutionError(err) {
		status = http.StatusUnprocessableEntity
	}
	logger.Error("error executing report", zap.Error(err))
	http.Error(w, "error executing report: "+err.Error(), status)
}

// isPermanentExecutionError reports whether the engine rejected the batch for
// a reason no retry can change.
func isPermanentExecutionError(err error) bool {
	for _, sentinel := range []error{
		offramp.ErrEmptyReport,
		offramp.ErrLengthMismatch,
		offramp.ErrRootNotCommitted,
		offramp.ErrAlreadyAttempted,
		offramp.ErrAlreadyExecuted,
		offramp.ErrManualExecutionNotYetEnabled,
		offramp.ErrInvalidManualExecutionGasLimit,
		offramp.ErrInvalidNewState,
		offramp.ErrPriceNotAvailable,
		types.ErrInvalidMessageID,
		types.ErrMessageShape,
		merkle.ErrInvalidProof,
		tokens.ErrUnsupportedToken,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var capacityErr *ratelimiter.ErrConsumingMoreThanMaxCapacity
	if errors.As(err, &capacityErr) {
		return true
	}
	var limitErr *ratelimiter.ErrRateLimitReached
	return errors.As(err, &limitErr)
}

func parseExecuteRequest(req *ExecuteRequest, manual bool) (*types.ExecutionReport, []*big.Int, error) {
	report := &types.ExecutionReport{
		Messages:          make([]types.Message, len(req.Messages)),
		OffchainTokenData: make([][][]byte, len(req.OffchainTokenData)),
		Proofs:            make([]common.Hash, len(req.Proofs)),
	}
	for i := range req.Messages {
		msg, err := parseMessageRequest(&req.Messages[i])
		if err != nil {
			return nil, nil, err
		}
		report.Messages[i] = *msg
	}
	for i, entries := range req.OffchainTokenData {
		report.OffchainTokenData[i] = make([][]byte, len(entries))
		for j, entry := range entries {
			data, err := decodeHexField(entry, "offchain-token-data")
			if err != nil {
				return nil, nil, err
			}
			report.OffchainTokenData[i][j] = data
		}
	}
	for i, proof := range req.Proofs {
		report.Proofs[i] = common.HexToHash(proof)
	}
	flagBits, err := parseDecimalField(req.ProofFlagBits, "proof-flag-bits")
	if err != nil {
		return nil, nil, err
	}
	report.ProofFlagBits = flagBits

	if !manual {
		return report, nil, nil
	}
	overrides := make([]*big.Int, len(req.GasLimitOverrides))
	for i, override := range req.GasLimitOverrides {
		parsed, err := parseDecimalField(override, "gas-limit-overrides")
		if err != nil {
			return nil, nil, err
		}
		overrides[i] = parsed
	}
	return report, overrides, nil
}

func parseMessageRequest(req *MessageRequest) (*types.Message, error) {
	sourceChainID, err := ids.FromString(req.SourceBlockchainID)
	if err != nil {
		return nil, errors.New("invalid source-blockchain-id: " + err.Error())
	}
	gasLimit, err := parseDecimalField(req.GasLimit, "gas-limit")
	if err != nil {
		return nil, err
	}
	feeTokenAmount, err := parseDecimalField(req.FeeTokenAmount, "fee-token-amount")
	if err != nil {
		return nil, err
	}
	data, err := decodeHexField(req.Data, "data")
	if err != nil {
		return nil, err
	}
	tokenAmounts := make([]types.TokenAmount, len(req.TokenAmounts))
	for i, ta := range req.TokenAmounts {
		amount, err := parseDecimalField(ta.Amount, "token-amounts")
		if err != nil {
			return nil, err
		}
		tokenAmounts[i] = types.TokenAmount{
			Token:  common.HexToAddress(ta.Token),
			Amount: amount,
		}
	}
	sourceTokenData := make([][]byte, len(req.SourceTokenData))
	for i, entry := range req.SourceTokenData {
		decoded, err := decodeHexField(entry, "source-token-data")
		if err != nil {
			return nil, err
		}
		sourceTokenData[i] = decoded
	}
	return &types.Message{
		SourceChainID:   sourceChainID,
		Sender:          common.HexToAddress(req.Sender),
		Receiver:        common.HexToAddress(req.Receiver),
		SequenceNumber:  req.SequenceNumber,
		Nonce:           req.Nonce,
		GasLimit:        gasLimit,
		FeeToken:        common.HexToAddress(req.FeeToken),
		FeeTokenAmount:  feeTokenAmount,
		Data:            data,
		TokenAmounts:    tokenAmounts,
		SourceTokenData: sourceTokenData,
		MessageID:       common.HexToHash(req.MessageID),
	}, nil
}

// parseDecimalField parses a decimal big integer, treating an empty string
// as zero.
func parseDecimalField(value string, field string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, errors.New("invalid " + field)
	}
	return parsed, nil
}

// decodeHexField decodes a 0x-prefixed hex string, treating an empty string
// as empty bytes.
func decodeHexField(value string, field string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	decoded, err := hexutil.Decode(value)
	if err != nil {
		return nil, errors.New("invalid " + field + ": " + err.Error())
	}
	return decoded, nil
}
