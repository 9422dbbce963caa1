// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package trend classifies feature trajectories: each feature visited
// during an evaluation is compared against its mean over a historical
// window and classified as increasing, decreasing or stable.
package trend

import (
	"math"

	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

// Classification of a feature's trajectory relative to its history.
type Classification string

const (
	Increasing Classification = "increasing"
	Decreasing Classification = "decreasing"
	Stable     Classification = "stable"
)

// StableBandPercent is the |changePercent| band classified as stable.
const StableBandPercent = 5.0

// Trend compares one feature's current value to its historical mean.
type Trend struct {
	// Feature is the feature name.
	Feature string `json:"feature"`

	// Current is the feature's value in the record being scored.
	Current float64 `json:"current"`

	// Average is the arithmetic mean over the historical window.
	// Equals Current when the window is empty.
	Average float64 `json:"average"`

	// Classification is increasing, decreasing or stable.
	Classification Classification `json:"classification"`

	// ChangePercent is (current - average) / |average| * 100, 0 when
	// the average is zero. Invariant under positive scaling of all
	// values.
	ChangePercent float64 `json:"changePercent"`
}

// Compute derives one Trend per unique feature appearing in the path,
// in first-visit order.
//
// Description:
//
//	The historical window is caller-supplied (the pipeline passes the
//	most recent 7 days of snapshots), pre-filtered and pre-sorted. An
//	empty window is valid, not an error: every trend degrades to stable
//	with average = current. NaN and absent entries are excluded from
//	the mean; a feature with no usable history also degrades to stable.
//
// Thread Safety: Pure function.
func Compute(current map[string]float64, historical []map[string]float64, path []tree.FeatureObservation) []Trend {
	seen := make(map[string]struct{}, len(path))
	trends := make([]Trend, 0, len(path))

	for _, obs := range path {
		if _, ok := seen[obs.Feature]; ok {
			continue
		}
		seen[obs.Feature] = struct{}{}

		cur := current[obs.Feature]
		avg, ok := historicalMean(obs.Feature, historical)
		if !ok {
			trends = append(trends, Trend{
				Feature:        obs.Feature,
				Current:        cur,
				Average:        cur,
				Classification: Stable,
				ChangePercent:  0,
			})
			continue
		}

		changePercent := 0.0
		if avg != 0 {
			changePercent = (cur - avg) / math.Abs(avg) * 100
		}

		trends = append(trends, Trend{
			Feature:        obs.Feature,
			Current:        cur,
			Average:        avg,
			Classification: classify(changePercent),
			ChangePercent:  changePercent,
		})
	}

	return trends
}

// historicalMean returns the mean of a feature over the window, skipping
// NaN and absent entries. ok is false when no usable value exists.
func historicalMean(feature string, historical []map[string]float64) (float64, bool) {
	sum := 0.0
	n := 0
	for _, h := range historical {
		v, present := h[feature]
		if !present || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func classify(changePercent float64) Classification {
	switch {
	case math.Abs(changePercent) < StableBandPercent:
		return Stable
	case changePercent > 0:
		return Increasing
	default:
		return Decreasing
	}
}
