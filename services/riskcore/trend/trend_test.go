// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

func pathOf(features ...string) []tree.FeatureObservation {
	path := make([]tree.FeatureObservation, 0, len(features))
	for _, f := range features {
		path = append(path, tree.FeatureObservation{Feature: f})
	}
	return path
}

// TestCompute_Classifications covers the three bands around the 5%
// stability threshold.
func TestCompute_Classifications(t *testing.T) {
	tests := []struct {
		name        string
		current     float64
		history     []float64
		wantClass   Classification
		wantPercent float64
	}{
		{"well above average", 8.0, []float64{4, 4, 4}, Increasing, 100},
		{"well below average", 2.0, []float64{4, 4, 4}, Decreasing, -50},
		{"inside stable band", 4.1, []float64{4, 4, 4}, Stable, 2.5},
		{"exactly average", 4.0, []float64{4, 4, 4}, Stable, 0},
		{"zero average", 3.0, []float64{0, 0}, Stable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			historical := make([]map[string]float64, len(tt.history))
			for i, v := range tt.history {
				historical[i] = map[string]float64{"stress_level": v}
			}

			trends := Compute(
				map[string]float64{"stress_level": tt.current},
				historical,
				pathOf("stress_level"),
			)
			require.Len(t, trends, 1)
			assert.Equal(t, tt.wantClass, trends[0].Classification)
			assert.InDelta(t, tt.wantPercent, trends[0].ChangePercent, 1e-9)
		})
	}
}

// TestCompute_EmptyHistory verifies degradation to stable with the
// average pinned to the current value.
func TestCompute_EmptyHistory(t *testing.T) {
	trends := Compute(
		map[string]float64{"sleep_hours": 6.5},
		nil,
		pathOf("sleep_hours"),
	)

	require.Len(t, trends, 1)
	assert.Equal(t, Stable, trends[0].Classification)
	assert.Equal(t, 6.5, trends[0].Average)
	assert.Equal(t, 0.0, trends[0].ChangePercent)
}

// TestCompute_SkipsUnusableHistory verifies NaN and absent entries are
// excluded from the mean, and a feature with no usable entry at all
// degrades to stable.
func TestCompute_SkipsUnusableHistory(t *testing.T) {
	historical := []map[string]float64{
		{"sleep_hours": 6},
		{"sleep_hours": math.NaN()},
		{"screen_time_hours": 2}, // sleep absent
		{"sleep_hours": 8},
	}

	trends := Compute(
		map[string]float64{"sleep_hours": 7, "hydration_low": 1},
		historical,
		pathOf("sleep_hours", "hydration_low"),
	)
	require.Len(t, trends, 2)

	// Mean over the two usable entries: (6+8)/2 = 7.
	assert.Equal(t, 7.0, trends[0].Average)
	assert.Equal(t, Stable, trends[0].Classification)

	// hydration_low never appears in history.
	assert.Equal(t, 1.0, trends[1].Average)
	assert.Equal(t, Stable, trends[1].Classification)
}

// TestCompute_ScaleInvariance verifies changePercent is invariant under
// positive scaling of current and history together.
func TestCompute_ScaleInvariance(t *testing.T) {
	base := Compute(
		map[string]float64{"screen_time_hours": 6},
		[]map[string]float64{{"screen_time_hours": 4}, {"screen_time_hours": 5}},
		pathOf("screen_time_hours"),
	)
	scaled := Compute(
		map[string]float64{"screen_time_hours": 600},
		[]map[string]float64{{"screen_time_hours": 400}, {"screen_time_hours": 500}},
		pathOf("screen_time_hours"),
	)

	require.Len(t, base, 1)
	require.Len(t, scaled, 1)
	assert.InDelta(t, base[0].ChangePercent, scaled[0].ChangePercent, 1e-9)
	assert.Equal(t, base[0].Classification, scaled[0].Classification)
}

// TestCompute_DedupePreservesFirstVisitOrder verifies each feature
// yields one trend in the order the path first visits it.
func TestCompute_DedupePreservesFirstVisitOrder(t *testing.T) {
	trends := Compute(
		map[string]float64{"sleep_hours": 5, "screen_time_hours": 3},
		nil,
		pathOf("sleep_hours", "screen_time_hours", "sleep_hours"),
	)

	require.Len(t, trends, 2)
	assert.Equal(t, "sleep_hours", trends[0].Feature)
	assert.Equal(t, "screen_time_hours", trends[1].Feature)
}
