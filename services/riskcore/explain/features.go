// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package explain

import (
	"fmt"

	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

// featureMeta holds the per-feature explanation knowledge: which branch
// direction signals risk, how to describe the observation, and what to
// recommend when the observation is problematic.
type featureMeta struct {
	// Label is the human-readable feature name.
	Label string

	// RiskDirection is the branch direction that signals risk for this
	// feature: left means below-threshold values are risky (sleep),
	// right means above-threshold values are risky (stress).
	RiskDirection tree.Direction

	// Describe renders a plain-language factor description.
	Describe func(obs tree.FeatureObservation) string

	// Recommend renders an actionable recommendation. Empty string
	// means no template exists for this feature.
	Recommend func(obs tree.FeatureObservation) string
}

// featureCatalog maps tree feature names to explanation metadata.
//
// Features absent from the catalog still rank (with a generic label);
// they just produce no recommendation.
var featureCatalog = map[string]featureMeta{
	"sleep_hours": {
		Label:         "Sleep duration",
		RiskDirection: tree.DirectionLeft,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("sleep of %.1f hours is below your usual threshold of %.1f", o.Value, o.Threshold)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("Aim for at least %.1f hours of sleep tonight.", o.Threshold)
		},
	},
	"screen_time_hours": {
		Label:         "Screen time",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("screen time of %.1f hours is above the %.1f hour threshold", o.Value, o.Threshold)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("Keep screen time under %.1f hours and take regular breaks.", o.Threshold)
		},
	},
	"stress_level": {
		Label:         "Stress level",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("stress level %.0f/10 is elevated", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Schedule a relaxation break; elevated stress is a common trigger."
		},
	},
	"prodrome_symptoms": {
		Label:         "Prodrome symptoms",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("%.0f early-warning symptoms reported", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Early-warning symptoms present: consider preemptive medication per your treatment plan."
		},
	},
	"attacks_last_7_days": {
		Label:         "Attacks this week",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("%.0f attacks in the last 7 days", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Recent attack frequency is high; review triggers with your clinician."
		},
	},
	"attacks_last_30_days": {
		Label:         "Attacks this month",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("%.0f attacks in the last 30 days", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Monthly attack count is elevated; keep logging to sharpen the model."
		},
	},
	"days_since_last_attack": {
		Label:         "Days since last attack",
		RiskDirection: tree.DirectionLeft,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("only %.0f days since the last attack", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "You are in a vulnerable window after a recent attack; avoid known triggers today."
		},
	},
	"hydration_low": {
		Label:         "Hydration",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return "hydration has been low today"
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Drink water regularly through the day; dehydration is a frequent trigger."
		},
	},
	"skipped_meal": {
		Label:         "Skipped meals",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return "a meal was skipped today"
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Eat regular meals; skipping meals destabilizes blood sugar."
		},
	},
	"bright_light_exposure": {
		Label:         "Bright light exposure",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("bright light exposure of %.1f is above threshold", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "Reduce bright light exposure; consider tinted lenses or dimmed screens."
		},
	},
	"pressure_drop": {
		Label:         "Barometric pressure drop",
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("barometric pressure dropped %.1f hPa", o.Value)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return "A pressure drop is underway; have acute medication within reach."
		},
	},
}

// metaFor returns catalog metadata, with a generic fallback for features
// the catalog does not know.
func metaFor(feature string) featureMeta {
	if meta, ok := featureCatalog[feature]; ok {
		return meta
	}
	return featureMeta{
		Label:         feature,
		RiskDirection: tree.DirectionRight,
		Describe: func(o tree.FeatureObservation) string {
			return fmt.Sprintf("%s of %.2f crossed threshold %.2f", feature, o.Value, o.Threshold)
		},
		Recommend: func(o tree.FeatureObservation) string {
			return ""
		},
	}
}
