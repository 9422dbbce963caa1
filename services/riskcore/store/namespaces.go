// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Application namespaces. The set is extensible; namespaces are created on
// first use and never removed automatically.
const (
	// NamespaceGeneral holds the daily feature snapshots used for
	// prediction, one per day.
	NamespaceGeneral = "general"

	// NamespaceMigraines is the attack log.
	NamespaceMigraines = "migraines"

	// NamespacePermissions caches browser/OS permission grants.
	NamespacePermissions = "permissions"

	// NamespaceGeolocation holds location samples.
	NamespaceGeolocation = "geolocation"

	// NamespaceWeather holds polled weather observations.
	NamespaceWeather = "weather"

	// NamespaceCalendar holds imported calendar events.
	NamespaceCalendar = "calendar"

	// NamespaceWearables holds wearable device samples.
	NamespaceWearables = "wearables"
)

// AllNamespaces returns every application namespace, for eager creation
// in a single upgrade at startup.
func AllNamespaces() []string {
	return []string{
		NamespaceGeneral,
		NamespaceMigraines,
		NamespacePermissions,
		NamespaceGeolocation,
		NamespaceWeather,
		NamespaceCalendar,
		NamespaceWearables,
	}
}

// SnapshotSchemaVersion tags DailySnapshot payloads. Bump when the
// feature set changes shape.
const SnapshotSchemaVersion = 1

// snapshotValidate validates DailySnapshot payloads.
var snapshotValidate = validator.New()

// DailySnapshot is the general-namespace payload: one day's feature
// vector, the input to the prediction pipeline.
//
// All features are numeric; boolean-like triggers (hydration_low,
// skipped_meal) are carried as 0/1 so the decision tree sees a uniform
// feature space.
type DailySnapshot struct {
	SchemaVersion int `json:"schema_version" validate:"gte=0"`

	SleepHours          float64 `json:"sleep_hours" validate:"gte=0,lte=24"`
	ScreenTimeHours     float64 `json:"screen_time_hours" validate:"gte=0,lte=24"`
	StressLevel         float64 `json:"stress_level" validate:"gte=0,lte=10"`
	ProdromeSymptoms    float64 `json:"prodrome_symptoms" validate:"gte=0"`
	AttacksLast7Days    float64 `json:"attacks_last_7_days" validate:"gte=0"`
	AttacksLast30Days   float64 `json:"attacks_last_30_days" validate:"gte=0"`
	DaysSinceLastAttack float64 `json:"days_since_last_attack" validate:"gte=0"`
	HydrationLow        float64 `json:"hydration_low" validate:"gte=0,lte=1"`
	SkippedMeal         float64 `json:"skipped_meal" validate:"gte=0,lte=1"`
	BrightLightExposure float64 `json:"bright_light_exposure" validate:"gte=0"`
	PressureDrop        float64 `json:"pressure_drop" validate:"gte=0"`
}

// Validate checks field ranges.
func (s *DailySnapshot) Validate() error {
	if err := snapshotValidate.Struct(s); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	return nil
}

// Features returns the snapshot as a feature vector keyed by the names
// the decision tree asset uses.
func (s *DailySnapshot) Features() map[string]float64 {
	return map[string]float64{
		"sleep_hours":            s.SleepHours,
		"screen_time_hours":      s.ScreenTimeHours,
		"stress_level":           s.StressLevel,
		"prodrome_symptoms":      s.ProdromeSymptoms,
		"attacks_last_7_days":    s.AttacksLast7Days,
		"attacks_last_30_days":   s.AttacksLast30Days,
		"days_since_last_attack": s.DaysSinceLastAttack,
		"hydration_low":          s.HydrationLow,
		"skipped_meal":           s.SkippedMeal,
		"bright_light_exposure":  s.BrightLightExposure,
		"pressure_drop":          s.PressureDrop,
	}
}

// AttackRecord is the migraines-namespace payload: one logged attack.
type AttackRecord struct {
	SchemaVersion int     `json:"schema_version"`
	StartedAt     int64   `json:"started_at"`
	DurationMin   int     `json:"duration_min,omitempty"`
	Severity      int     `json:"severity" validate:"gte=0,lte=10"`
	Aura          bool    `json:"aura"`
	Medication    string  `json:"medication,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	ReliefScore   float64 `json:"relief_score,omitempty" validate:"gte=0,lte=10"`
}

// Validate checks field ranges.
func (a *AttackRecord) Validate() error {
	if err := snapshotValidate.Struct(a); err != nil {
		return fmt.Errorf("invalid attack record: %w", err)
	}
	return nil
}

// PermissionState is the permissions-namespace payload.
type PermissionState struct {
	SchemaVersion int    `json:"schema_version"`
	Name          string `json:"name"`
	State         string `json:"state"` // granted, denied, prompt
	DecidedAt     int64  `json:"decided_at"`
}

// GeoSample is the geolocation-namespace payload.
type GeoSample struct {
	SchemaVersion int     `json:"schema_version"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	AccuracyM     float64 `json:"accuracy_m,omitempty"`
	SampledAt     int64   `json:"sampled_at"`
}

// WeatherSample is the weather-namespace payload. Polled by an external
// collaborator; the core only stores and reads it.
type WeatherSample struct {
	SchemaVersion int     `json:"schema_version"`
	PressureHPa   float64 `json:"pressure_hpa"`
	PressureDrop  float64 `json:"pressure_drop"`
	TemperatureC  float64 `json:"temperature_c"`
	HumidityPct   float64 `json:"humidity_pct"`
	SampledAt     int64   `json:"sampled_at"`
}

// CalendarEvent is the calendar-namespace payload.
type CalendarEvent struct {
	SchemaVersion int    `json:"schema_version"`
	Title         string `json:"title"`
	StartsAt      int64  `json:"starts_at"`
	EndsAt        int64  `json:"ends_at"`
	Busy          bool   `json:"busy"`
}

// WearableSample is the wearables-namespace payload.
type WearableSample struct {
	SchemaVersion int     `json:"schema_version"`
	HeartRateBPM  float64 `json:"heart_rate_bpm,omitempty"`
	HRVMs         float64 `json:"hrv_ms,omitempty"`
	SleepMinutes  float64 `json:"sleep_minutes,omitempty"`
	Steps         float64 `json:"steps,omitempty"`
	SampledAt     int64   `json:"sampled_at"`
}
