// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package explain converts a traversal path and trends into ranked risk
// drivers and natural-language recommendations.
package explain

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cephalolabs/cephalo/services/riskcore/tree"
	"github.com/cephalolabs/cephalo/services/riskcore/trend"
)

// Scoring weights and bounds.
const (
	// MaxDrivers is how many ranked drivers are reported.
	MaxDrivers = 3

	// MaxSummaryFactors is how many factor descriptions the summary lists.
	MaxSummaryFactors = 3

	// minSafeThreshold floors the magnitude denominator so near-zero
	// thresholds don't blow up the ratio.
	minSafeThreshold = 0.1

	// trendTowardRiskWeight boosts drivers whose trend moves toward risk.
	trendTowardRiskWeight = 1.2

	// trendAwayFromRiskWeight dampens drivers trending away from risk.
	trendAwayFromRiskWeight = 0.9

	// sharpTrendBoost is applied on top when the trend's absolute change
	// exceeds sharpTrendChangePercent.
	sharpTrendBoost         = 1.1
	sharpTrendChangePercent = 20.0

	// normalizeEpsilon guards normalization when every raw score is zero.
	normalizeEpsilon = 1e-9
)

// Risk buckets for the summary.
const (
	bucketModerate = 0.4
	bucketHigh     = 0.7
)

// Driver is a ranked feature judged to influence the current risk score.
// At most one Driver exists per feature label.
type Driver struct {
	// Label is the human-readable feature label.
	Label string `json:"label"`

	// Current is the record's value for the feature.
	Current float64 `json:"current"`

	// Threshold is the split threshold of the kept observation.
	Threshold float64 `json:"threshold"`

	// Direction is the branch the evaluation took.
	Direction tree.Direction `json:"direction"`

	// NormalizedScore is the risk-aligned magnitude normalized into
	// [0,1] against the strongest driver in the set.
	NormalizedScore float64 `json:"normalizedScore"`
}

// Explanation is the natural-language output of the engine.
type Explanation struct {
	// Summary is a one-paragraph plain-language risk statement.
	Summary string `json:"summary"`

	// KeyFactors are up to MaxSummaryFactors factor descriptions.
	KeyFactors []string `json:"keyFactors"`

	// Recommendations are per-feature actionable suggestions for every
	// problematic observation.
	Recommendations []string `json:"recommendations"`
}

// rawMagnitude computes the risk-aligned magnitude of one observation:
// how far the value sits on the risky side of the threshold, relative to
// the threshold.
func rawMagnitude(obs tree.FeatureObservation, riskDir tree.Direction) float64 {
	safeThreshold := math.Max(minSafeThreshold, math.Abs(obs.Threshold))
	if riskDir == tree.DirectionLeft {
		return math.Max(0, (obs.Threshold-obs.Value)/safeThreshold)
	}
	return math.Max(0, (obs.Value-obs.Threshold)/safeThreshold)
}

// trendWeight returns the multiplier for a feature's trend relative to
// its risk direction.
func trendWeight(riskDir tree.Direction, tr *trend.Trend) float64 {
	if tr == nil {
		return 1.0
	}

	weight := 1.0
	switch tr.Classification {
	case trend.Increasing:
		if riskDir == tree.DirectionRight {
			weight = trendTowardRiskWeight
		} else {
			weight = trendAwayFromRiskWeight
		}
	case trend.Decreasing:
		if riskDir == tree.DirectionLeft {
			weight = trendTowardRiskWeight
		} else {
			weight = trendAwayFromRiskWeight
		}
	}

	if math.Abs(tr.ChangePercent) > sharpTrendChangePercent {
		weight *= sharpTrendBoost
	}
	return weight
}

// RankDrivers ranks the path's features by risk-aligned magnitude.
//
// Description:
//
//	The path is deduplicated per feature, keeping the observation with
//	the larger raw magnitude. Each kept observation is weighted by its
//	trend (toward risk boosts, away dampens, sharp moves boost again),
//	normalized against the maximum raw score, sorted descending, and
//	truncated to MaxDrivers. Ties keep first-visit order.
//
// Thread Safety: Pure function.
func RankDrivers(path []tree.FeatureObservation, trends []trend.Trend) []Driver {
	if len(path) == 0 {
		return nil
	}

	trendByFeature := make(map[string]*trend.Trend, len(trends))
	for i := range trends {
		trendByFeature[trends[i].Feature] = &trends[i]
	}

	type scored struct {
		obs   tree.FeatureObservation
		meta  featureMeta
		raw   float64
		order int
	}

	best := make(map[string]*scored, len(path))
	var order []string
	for i, obs := range path {
		meta := metaFor(obs.Feature)
		raw := rawMagnitude(obs, meta.RiskDirection)
		if prev, ok := best[obs.Feature]; ok {
			if raw > prev.raw {
				prev.obs = obs
				prev.raw = raw
			}
			continue
		}
		best[obs.Feature] = &scored{obs: obs, meta: meta, raw: raw, order: i}
		order = append(order, obs.Feature)
	}

	maxRaw := normalizeEpsilon
	weighted := make(map[string]float64, len(best))
	for _, feature := range order {
		s := best[feature]
		w := s.raw * trendWeight(s.meta.RiskDirection, trendByFeature[feature])
		weighted[feature] = w
		if w > maxRaw {
			maxRaw = w
		}
	}

	drivers := make([]Driver, 0, len(order))
	for _, feature := range order {
		s := best[feature]
		drivers = append(drivers, Driver{
			Label:           s.meta.Label,
			Current:         s.obs.Value,
			Threshold:       s.obs.Threshold,
			Direction:       s.obs.Direction,
			NormalizedScore: weighted[feature] / maxRaw,
		})
	}

	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].NormalizedScore > drivers[j].NormalizedScore
	})

	if len(drivers) > MaxDrivers {
		drivers = drivers[:MaxDrivers]
	}
	return drivers
}

// problematic reports whether an observation sits on its feature's risky
// side of its threshold.
func problematic(obs tree.FeatureObservation, meta featureMeta) bool {
	return obs.Direction == meta.RiskDirection
}

// Explain produces the summary and recommendations for one evaluation.
//
// Description:
//
//	The score buckets into low (< 0.4), moderate (0.4-0.7) and high
//	(>= 0.7). Key factors are plain-language descriptions of up to
//	MaxSummaryFactors problematic observations, first-visit order.
//	Recommendations come from the per-feature templates, one per
//	problematic feature, deduplicated.
//
// Thread Safety: Pure function.
func Explain(score float64, path []tree.FeatureObservation, trends []trend.Trend) Explanation {
	var factors []string
	var recommendations []string
	seen := make(map[string]struct{}, len(path))

	for _, obs := range path {
		if _, ok := seen[obs.Feature]; ok {
			continue
		}
		seen[obs.Feature] = struct{}{}

		meta := metaFor(obs.Feature)
		if !problematic(obs, meta) {
			continue
		}
		if len(factors) < MaxSummaryFactors {
			factors = append(factors, meta.Describe(obs))
		}
		if rec := meta.Recommend(obs); rec != "" {
			recommendations = append(recommendations, rec)
		}
	}

	return Explanation{
		Summary:         summarize(score, factors),
		KeyFactors:      factors,
		Recommendations: recommendations,
	}
}

// summarize renders the one-paragraph risk statement.
func summarize(score float64, factors []string) string {
	var level string
	switch {
	case score >= bucketHigh:
		level = "high"
	case score >= bucketModerate:
		level = "moderate"
	default:
		level = "low"
	}

	pct := score * 100
	if len(factors) == 0 {
		return fmt.Sprintf("Migraine risk is %s (%.0f%%). No individual factor stands out today.", level, pct)
	}
	return fmt.Sprintf("Migraine risk is %s (%.0f%%). Main factors: %s.", level, pct, strings.Join(factors, "; "))
}
