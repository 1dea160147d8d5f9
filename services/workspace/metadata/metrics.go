// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("aleutian.workspace.metadata")
	meter  = otel.Meter("aleutian.workspace.metadata")
)

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	metadataLoads   metric.Int64Counter
	metadataLoadDur metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"workspace_metadata_reference_hits_total",
			metric.WithDescription("Total number of shared metadata reference reuses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"workspace_metadata_reference_misses_total",
			metric.WithDescription("Total number of metadata references created"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		metadataLoads, err = meter.Int64Counter(
			"workspace_metadata_loads_total",
			metric.WithDescription("Total number of binary metadata parses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		metadataLoadDur, err = meter.Float64Histogram(
			"workspace_metadata_load_duration_seconds",
			metric.WithDescription("Duration of binary metadata parses"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordCacheMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordMetadataLoad(ctx context.Context, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	metadataLoads.Add(ctx, 1)
	metadataLoadDur.Record(ctx, d.Seconds())
}
