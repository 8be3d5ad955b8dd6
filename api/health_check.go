// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alexliesenfeld/health"
	"go.uber.org/atomic"
)

const HealthAPIPath = "/health"

func HandleHealthCheck(engineHealth *atomic.Bool) {
	http.Handle(HealthAPIPath, healthCheckHandler(engineHealth))
}

func healthCheckHandler(engineHealth *atomic.Bool) http.Handler {
	return health.NewHandler(health.NewChecker(
		health.WithCheck(health.Check{
			Name: "offramp-engine",
			Check: func(context.Context) error {
				if !engineHealth.Load() {
					return fmt.Errorf("execution engine is unhealthy")
				}
				return nil
			},
		}),
	))
}
