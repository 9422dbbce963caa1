// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace label is bounded by the fixed namespace set, op by the
// operation names below; cardinality stays small.
var (
	storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_store_operations_total",
		Help: "Total record store operations by operation and status",
	}, []string{"op", "status"})

	storeOperationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riskcore_store_operation_seconds",
		Help:    "Record store operation latency",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"op"})

	storeUpgradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_store_upgrades_total",
		Help: "Total schema upgrade transactions by status",
	}, []string{"status"})

	storeRecordsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "riskcore_store_records",
		Help: "Record count per namespace, refreshed on Count calls",
	}, []string{"namespace"})
)
