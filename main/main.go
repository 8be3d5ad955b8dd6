// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ava-labs/avalanchego/api/metrics"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/icm-offramp/api"
	"github.com/ava-labs/icm-offramp/config"
	"github.com/ava-labs/icm-offramp/database"
	"github.com/ava-labs/icm-offramp/merkle"
	"github.com/ava-labs/icm-offramp/offramp"
	"github.com/ava-labs/icm-offramp/ratelimiter"
	"github.com/ava-labs/icm-offramp/tokens"
	"github.com/ava-labs/icm-offramp/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "v0.0.0-dev"

func main() {
	fs := config.BuildFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		config.DisplayUsageText()
		panic(fmt.Errorf("couldn't parse flags: %w", err))
	}
	// If the version flag is set, display the version then exit
	displayVersion, err := fs.GetBool(config.VersionKey)
	if err != nil {
		panic(fmt.Errorf("error reading %s flag value: %w", config.VersionKey, err))
	}
	if displayVersion {
		fmt.Printf("%s\n", version)
		os.Exit(0)
	}
	// If the help flag is set, output the usage text then exit
	help, err := fs.GetBool(config.HelpKey)
	if err != nil {
		panic(fmt.Errorf("error reading %s flag value: %w", config.HelpKey, err))
	}
	if help {
		config.DisplayUsageText()
		os.Exit(0)
	}

	v, err := config.BuildViper(fs)
	if err != nil {
		panic(fmt.Errorf("couldn't configure flags: %w", err))
	}

	cfg, err := config.BuildConfig(v)
	if err != nil {
		panic(fmt.Errorf("couldn't build config: %w", err))
	}

	logLevel, err := logging.ToLevel(cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("error with log level: %w", err))
	}

	logger := logging.NewLogger(
		"icm-offramp",
		logging.NewWrappedCore(
			logLevel,
			os.Stdout,
			logging.JSON.ConsoleEncoder(),
		),
	)

	logger.Info("Initializing icm-offramp")

	laneID := database.NewLaneID(
		cfg.Lane.GetSourceBlockchainID(),
		cfg.Lane.GetDestinationBlockchainID(),
		cfg.Lane.GetOnRampAddress(),
	)

	db, err := database.NewOffRampDatabase(logger, &cfg, []database.LaneID{laneID})
	if err != nil {
		logger.Fatal("Failed to create database", zap.Error(err))
		panic(err)
	}

	rateLimiter, err := ratelimiter.New(logger, ratelimiter.Config{
		Enabled:  cfg.RateLimit.Enabled,
		Capacity: cfg.RateLimit.GetCapacity(),
		Rate:     cfg.RateLimit.GetRate(),
	}, nil)
	if err != nil {
		logger.Fatal("Failed to create rate limiter", zap.Error(err))
		panic(err)
	}
	if err := restoreRateLimiter(db, laneID, rateLimiter); err != nil {
		logger.Warn("Could not restore persisted rate limiter state", zap.Error(err))
	}

	// Initialize metrics gathered through prometheus
	gatherer, registerer, err := initializeMetrics()
	if err != nil {
		logger.Fatal("Failed to set up prometheus metrics", zap.Error(err))
		panic(err)
	}
	offRampMetrics, err := offramp.NewOffRampMetrics(registerer)
	if err != nil {
		logger.Fatal("Failed to create metrics", zap.Error(err))
		panic(err)
	}

	// The registry starts empty. Deployments register their TokenPool
	// implementations through ApplyPoolUpdates before serving traffic.
	registry := tokens.NewRegistry(logger)
	events := offramp.NewLogEventSink(logger)
	commitStore := merkle.NewInMemoryCommitStore()

	callBudget := time.Duration(cfg.CollaboratorCallBudgetSeconds) * time.Second
	engine, err := offramp.NewOffRamp(context.Background(), offramp.Params{
		Logger:      logger,
		Metrics:     offRampMetrics,
		DB:          db,
		LaneID:      laneID,
		CommitStore: commitStore,
		Router:      &tokenOnlyRouter{},
		Registry:    registry,
		PriceOracle: &fixedPriceOracle{},
		RateLimiter: rateLimiter,
		Events:      events,

		PermissionlessExecutionThreshold: time.Duration(cfg.PermissionlessExecThresholdSeconds) * time.Second,
		GasForCallExactCheck:             cfg.GetGasForCallExactCheck(),
		VerifyCallBudget:                 callBudget,
		RouterCallBudget:                 callBudget,
		PoolCallBudget:                   callBudget,
		OracleCallBudget:                 callBudget,
		MaxReturnDataBytes:               cfg.MaxReturnDataBytes,
		MaxPredecessorDepth:              cfg.PredecessorNonceDepth,
	})
	if err != nil {
		logger.Fatal("Failed to create execution engine", zap.Error(err))
		panic(err)
	}

	engineHealth := atomic.NewBool(true)
	api.HandleHealthCheck(engineHealth)
	api.HandleExecute(logger, engine, cfg.SubmitterAPIKey)
	api.HandleManualExecute(logger, engine)
	api.HandleExecutionState(logger, engine)
	api.HandleSenderNonce(logger, engine)
	api.HandleRateLimiterState(logger, engine)
	api.HandleRateLimiterConfig(logger, engine, cfg.AdminAPIKey)

	errGroup, _ := errgroup.WithContext(context.Background())
	errGroup.Go(func() error {
		logger.Info("starting API server", zap.Uint16("port", cfg.APIPort))
		return http.ListenAndServe(fmt.Sprintf(":%d", cfg.APIPort), nil)
	})
	errGroup.Go(func() error {
		return startMetricsServer(logger, gatherer, cfg.MetricsPort)
	})

	err = errGroup.Wait()
	engineHealth.Store(false)
	logger.Error("icm-offramp exiting", zap.Error(err))
}

// tokenOnlyRouter is the reference router for deployments with no onchain
// receiver surface: every receiver is treated as a plain account and token
// transfers settle without a receiver call. Chain-backed deployments swap in
// a Router bound to the destination client.
type tokenOnlyRouter struct{}

func (*tokenOnlyRouter) SupportsMessageReceiver(context.Context, common.Address) (bool, error) {
	return false, nil
}

func (*tokenOnlyRouter) RouteMessage(
	context.Context,
	*types.Message,
	*big.Int,
	*big.Int,
	common.Address,
) (bool, []byte, *big.Int, error) {
	return true, nil, new(big.Int), nil
}

// fixedPriceOracle values every token at one USD unit. Deployments with a
// live price feed swap in an oracle bound to it.
type fixedPriceOracle struct{}

func (*fixedPriceOracle) GetTokenPrice(
	_ context.Context,
	_ common.Address,
) (*big.Int, time.Time, error) {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil), time.Now(), nil
}

// restoreRateLimiter adopts the bucket level persisted by the previous run,
// if any.
func restoreRateLimiter(
	db database.OffRampDatabase,
	laneID database.LaneID,
	rateLimiter *ratelimiter.RateLimiter,
) error {
	value, err := db.Get(laneID.ID, database.RateBucketKey())
	if database.IsKeyNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var state ratelimiter.PersistedState
	if err := json.Unmarshal(value, &state); err != nil {
		return err
	}
	return rateLimiter.Restore(state)
}

func startMetricsServer(logger logging.Logger, gatherer prometheus.Gatherer, port uint16) error {
	http.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	logger.Info("starting metrics server", zap.Uint16("port", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
}

func initializeMetrics() (prometheus.Gatherer, prometheus.Registerer, error) {
	gatherer := metrics.NewMultiGatherer()
	registry := prometheus.NewRegistry()
	if err := gatherer.Register("offramp", registry); err != nil {
		return nil, nil, err
	}
	return gatherer, registry, nil
}
