// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.workspace.resolve")

var (
	decisionsTotal    metric.Int64Counter
	compilationsTotal metric.Int64Counter
	skeletonBuilds    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		decisionsTotal, err = meter.Int64Counter(
			"workspace_reference_decisions_total",
			metric.WithDescription("Total number of project reference decisions by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compilationsTotal, err = meter.Int64Counter(
			"workspace_compilations_total",
			metric.WithDescription("Total number of project compilations computed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		skeletonBuilds, err = meter.Int64Counter(
			"workspace_skeleton_builds_total",
			metric.WithDescription("Total number of skeleton images generated"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordDecision(ctx context.Context, kind DecisionKind) {
	if err := initMetrics(); err != nil {
		return
	}
	decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func recordCompilation(ctx context.Context, language string) {
	if err := initMetrics(); err != nil {
		return
	}
	compilationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("language", language)))
}

func recordSkeletonBuild(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	skeletonBuilds.Add(ctx, 1)
}
