// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package predict

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	predictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "riskcore_predictions_total",
		Help: "Predictions served, partitioned by risk bucket.",
	}, []string{"bucket"})

	predictionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "riskcore_prediction_seconds",
		Help:    "End-to-end prediction pipeline latency.",
		Buckets: prometheus.DefBuckets,
	})

	predictionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "riskcore_prediction_errors_total",
		Help: "Predictions that failed before producing a score.",
	})
)
