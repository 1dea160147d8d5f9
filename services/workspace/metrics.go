// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("aleutian.workspace")

var (
	publishTotal    metric.Int64Counter
	rejectedTotal   metric.Int64Counter
	diagnosticTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		publishTotal, err = meter.Int64Counter(
			"workspace_solution_publications_total",
			metric.WithDescription("Total number of solution snapshots made current"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectedTotal, err = meter.Int64Counter(
			"workspace_rejected_changes_total",
			metric.WithDescription("Total number of change sets rejected as unsupported"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		diagnosticTotal, err = meter.Int64Counter(
			"workspace_diagnostics_total",
			metric.WithDescription("Total number of workspace diagnostics by kind"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPublish() {
	if err := initMetrics(); err != nil {
		return
	}
	publishTotal.Add(context.Background(), 1)
}

func recordRejected() {
	if err := initMetrics(); err != nil {
		return
	}
	rejectedTotal.Add(context.Background(), 1)
}

func recordDiagnostic(kind DiagnosticKind) {
	if err := initMetrics(); err != nil {
		return
	}
	diagnosticTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}
