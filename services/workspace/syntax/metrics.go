// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syntax

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.workspace.syntax")

var (
	parseTotal      metric.Int64Counter
	compileDuration metric.Float64Histogram
	compileErrors   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseTotal, err = meter.Int64Counter(
			"workspace_syntax_parses_total",
			metric.WithDescription("Total number of source files parsed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compileDuration, err = meter.Float64Histogram(
			"workspace_compile_duration_seconds",
			metric.WithDescription("Duration of project compilations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compileErrors, err = meter.Int64Counter(
			"workspace_compile_errors_total",
			metric.WithDescription("Total number of compilations that produced error diagnostics"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordParse(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	parseTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

func recordCompile(ctx context.Context, language string, d time.Duration, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("language", language))
	compileDuration.Record(ctx, d.Seconds(), attrs)
	if failed {
		compileErrors.Add(ctx, 1, attrs)
	}
}
