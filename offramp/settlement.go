// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package offramp

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ava-labs/icm-offramp/utils"
	"go.uber.org/zap"
)

// pricePrecision is the number of fractional digits carried by oracle
// prices: a price of 10^18 means one whole token is worth one USD unit.
var pricePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var ErrPriceNotAvailable = errors.New("token price not available")

// faultKind classifies a failure inside a single message's execution body.
// Receiver rejections and token handling failures become that message's
// FAILURE state; anything else aborts the whole batch.
type faultKind int

const (
	faultReceiverRejected faultKind = iota + 1
	faultTokenHandling
	faultOther
)

type messageFault struct {
	kind    faultKind
	payload []byte
	err     error
}

func (k faultKind) String() string {
	switch k {
	case faultReceiverRejected:
		return "receiver_rejected"
	case faultTokenHandling:
		return "token_handling"
	default:
		return "other"
	}
}

func (f *messageFault) recoverable() bool {
	return f.kind == faultReceiverRejected || f.kind == faultTokenHandling
}

// releaseTokens walks the message's token transfers, releasing each through
// its pool, and returns the destination token amounts. Pool amounts pass
// through 1:1; pools are trusted to mint or release exactly what was
// requested. An unresolvable token is fatal; a pool call failure is a
// message-local fault.
func (o *OffRamp) releaseTokens(
	ctx context.Context,
	msg *types.Message,
	offchainTokenData [][]byte,
) ([]types.TokenAmount, *messageFault, error) {
	destTokenAmounts := make([]types.TokenAmount, 0, len(msg.TokenAmounts))
	for i, sourceAmount := range msg.TokenAmounts {
		pool, err := o.registry.GetPoolBySourceToken(sourceAmount.Token)
		if err != nil {
			return nil, nil, err
		}

		extraData := make([]byte, 0, len(msg.SourceTokenData[i])+len(offchainTokenData[i]))
		extraData = append(extraData, msg.SourceTokenData[i]...)
		extraData = append(extraData, offchainTokenData[i]...)

		amount := sourceAmount.Amount
		_, err = utils.CallBounded(ctx, o.poolCallBudget, func(cctx context.Context) (struct{}, error) {
			return struct{}{}, pool.ReleaseOrMint(
				cctx,
				msg.Sender.Bytes(),
				msg.Receiver,
				amount,
				msg.SourceChainID,
				extraData,
			)
		})
		if err != nil {
			o.logger.Info(
				"Token handling failed",
				zap.String("messageID", msg.MessageID.Hex()),
				zap.String("sourceToken", sourceAmount.Token.Hex()),
				zap.Error(err),
			)
			return nil, &messageFault{
				kind:    faultTokenHandling,
				payload: utils.CapBytes([]byte(err.Error()), o.maxReturnDataBytes),
				err:     err,
			}, nil
		}

		destTokenAmounts = append(destTokenAmounts, types.TokenAmount{
			Token:  pool.GetToken(),
			Amount: amount,
		})
	}
	return destTokenAmounts, nil, nil
}

// aggregateValue converts the destination token amounts into the common
// USD-like unit. An unpriced asset cannot be rate limited, so a zero price
// is fatal.
func (o *OffRamp) aggregateValue(
	ctx context.Context,
	destTokenAmounts []types.TokenAmount,
) (*big.Int, error) {
	value := new(big.Int)
	for _, ta := range destTokenAmounts {
		token := ta.Token
		price, err := utils.CallBounded(ctx, o.oracleCallBudget, func(cctx context.Context) (*big.Int, error) {
			p, _, err := o.priceOracle.GetTokenPrice(cctx, token)
			return p, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get price for token %s: %w", token.Hex(), err)
		}
		if price == nil || price.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s", ErrPriceNotAvailable, token.Hex())
		}
		tokenValue := new(big.Int).Mul(ta.Amount, price)
		tokenValue.Div(tokenValue, pricePrecision)
		value.Add(value, tokenValue)
	}
	return value, nil
}

// settleTokens releases the message's tokens and charges the aggregate USD
// value against the rate limiter. The consumed value is returned so the
// caller can refund it if the message's effects are later unwound.
func (o *OffRamp) settleTokens(
	ctx context.Context,
	msg *types.Message,
	offchainTokenData [][]byte,
) (*big.Int, *messageFault, error) {
	destTokenAmounts, fault, err := o.releaseTokens(ctx, msg, offchainTokenData)
	if err != nil || fault != nil {
		return nil, fault, err
	}

	value, err := o.aggregateValue(ctx, destTokenAmounts)
	if err != nil {
		return nil, nil, err
	}

	// A rate limit rejection here is a bound on throughput, not a
	// per-message retryable condition; it aborts the batch.
	if err := o.rateLimiter.Consume(value, ratelimiter.AggregateValueTag); err != nil {
		return nil, nil, err
	}
	return value, nil, nil
}
