// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.workspace.text")

var (
	textLoads    metric.Int64Counter
	textRetries  metric.Int64Counter
	textFailures metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		textLoads, err = meter.Int64Counter(
			"workspace_text_loads_total",
			metric.WithDescription("Total number of successful file text loads"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		textRetries, err = meter.Int64Counter(
			"workspace_text_load_retries_total",
			metric.WithDescription("Total number of retries on locked files"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		textFailures, err = meter.Int64Counter(
			"workspace_text_load_failures_total",
			metric.WithDescription("Total number of failed file text loads"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordLoad(ctx context.Context, attempts int) {
	if err := initMetrics(); err != nil {
		return
	}
	textLoads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retried", attempts > 1)))
}

func recordRetry(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	textRetries.Add(ctx, 1)
}

func recordFailure(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	textFailures.Add(ctx, 1)
}
