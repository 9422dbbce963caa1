// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package predict orchestrates the risk pipeline: snapshot validation,
// history window reads, tree evaluation, trend analysis and explanation
// assembly. The pipeline is a read-only consumer of the record store.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cephalolabs/cephalo/pkg/logging"
	"github.com/cephalolabs/cephalo/services/riskcore/explain"
	"github.com/cephalolabs/cephalo/services/riskcore/store"
	"github.com/cephalolabs/cephalo/services/riskcore/trend"
	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

var predictTracer = otel.Tracer("riskcore.predict")

var (
	// ErrNilEngine indicates the predictor was constructed without a store.
	ErrNilEngine = errors.New("predict: nil store engine")

	// ErrNilTree indicates the predictor was constructed without a model.
	ErrNilTree = errors.New("predict: nil decision tree")

	// ErrSnapshotNotFound indicates PredictStored found no record for the id.
	ErrSnapshotNotFound = errors.New("predict: snapshot not found")
)

// DefaultWindow is the history window used for trend analysis.
const DefaultWindow = 7 * 24 * time.Hour

// Config tunes the prediction pipeline.
type Config struct {
	// Window is the history lookback for trend analysis.
	Window time.Duration

	// HistoryNamespace is the namespace holding daily snapshots.
	HistoryNamespace string

	// Logger receives pipeline diagnostics. Defaults to the process logger.
	Logger *logging.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// DefaultConfig returns the production pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Window:           DefaultWindow,
		HistoryNamespace: store.NamespaceGeneral,
	}
}

// Predictor runs the full risk pipeline against a loaded tree and an
// open record store.
//
// Thread Safety: Safe for concurrent use; the predictor holds no
// mutable state after construction.
type Predictor struct {
	engine *store.Engine
	tree   *tree.Tree
	cfg    Config
	logger *logging.Logger
	clock  func() time.Time
}

// New constructs a Predictor.
//
// Inputs:
//   - engine: open record store engine (required).
//   - t: validated decision tree (required).
//   - cfg: pipeline configuration; zero values fall back to defaults.
//
// Outputs:
//   - *Predictor and nil, or nil and ErrNilEngine / ErrNilTree.
func New(engine *store.Engine, t *tree.Tree, cfg Config) (*Predictor, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if t == nil {
		return nil, ErrNilTree
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.HistoryNamespace == "" {
		cfg.HistoryNamespace = store.NamespaceGeneral
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Predictor{
		engine: engine,
		tree:   t,
		cfg:    cfg,
		logger: cfg.Logger,
		clock:  clock,
	}, nil
}

// DetailedExplanation carries the full explanation payload.
type DetailedExplanation struct {
	// Summary is the plain-language risk statement.
	Summary string `json:"summary"`

	// KeyFactors are the ranked risk drivers, strongest first.
	KeyFactors []explain.Driver `json:"keyFactors"`

	// Trends are the per-feature trend classifications.
	Trends []trend.Trend `json:"trends"`

	// Recommendations are actionable suggestions for problematic factors.
	Recommendations []string `json:"recommendations"`
}

// Meta carries everything about a prediction beyond the score.
type Meta struct {
	// RequestID uniquely identifies this pipeline run.
	RequestID string `json:"requestId"`

	// GeneratedAt is the pipeline completion time in epoch milliseconds.
	GeneratedAt int64 `json:"generatedAt"`

	// Explanation is the one-paragraph summary.
	Explanation string `json:"explanation"`

	// Detailed is the structured explanation payload.
	Detailed DetailedExplanation `json:"detailedExplanation"`

	// Features records every split the evaluation visited, in order.
	Features []tree.FeatureObservation `json:"features"`

	// Trends mirrors Detailed.Trends for flat consumers.
	Trends []trend.Trend `json:"trends"`
}

// Prediction is the pipeline output.
type Prediction struct {
	// Score is the migraine probability in [0,1].
	Score float64 `json:"score"`

	// Bucket is low, moderate or high.
	Bucket string `json:"bucket"`

	// Meta is the explanation payload.
	Meta Meta `json:"meta"`
}

// Predict runs the pipeline for one snapshot.
//
// Description:
//
//	Validates the snapshot, reads the history window from the snapshot
//	namespace, evaluates the tree, classifies trends for every feature
//	on the traversal path, ranks drivers and assembles the explanation.
//	The same inputs always produce the same score and the same ordered
//	path.
//
// Inputs:
//   - ctx: cancellation context.
//   - snapshot: the day's feature snapshot.
//
// Outputs:
//   - *Prediction and nil, or nil and a validation, store or tree error.
func (p *Predictor) Predict(ctx context.Context, snapshot store.DailySnapshot) (*Prediction, error) {
	ctx, span := predictTracer.Start(ctx, "predict.Predict")
	defer span.End()

	requestID := uuid.NewString()
	start := p.clock()

	pred, err := p.run(ctx, requestID, snapshot)
	predictionSeconds.Observe(p.clock().Sub(start).Seconds())
	if err != nil {
		predictionErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	predictionsTotal.WithLabelValues(pred.Bucket).Inc()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.Float64("prediction.score", pred.Score),
		attribute.String("prediction.bucket", pred.Bucket),
	)
	p.logger.Info("prediction served",
		"request_id", requestID,
		"score", pred.Score,
		"bucket", pred.Bucket,
		"path_length", len(pred.Meta.Features),
	)
	return pred, nil
}

// PredictStored runs the pipeline for a snapshot already persisted in
// the snapshot namespace.
//
// Outputs:
//   - *Prediction and nil; ErrSnapshotNotFound when no record has the id.
func (p *Predictor) PredictStored(ctx context.Context, id string) (*Prediction, error) {
	data, found, err := p.engine.ReadData(ctx, p.cfg.HistoryNamespace, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	var snapshot store.DailySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("predict: snapshot %s is not decodable: %w", id, err)
	}
	return p.Predict(ctx, snapshot)
}

// run is the untraced pipeline body.
func (p *Predictor) run(ctx context.Context, requestID string, snapshot store.DailySnapshot) (*Prediction, error) {
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	history, err := p.historyWindow(ctx)
	if err != nil {
		return nil, err
	}

	features := snapshot.Features()
	score, path, err := p.tree.Evaluate(features)
	if err != nil {
		return nil, err
	}

	trends := trend.Compute(features, history, path)
	drivers := explain.RankDrivers(path, trends)
	explanation := explain.Explain(score, path, trends)

	return &Prediction{
		Score:  score,
		Bucket: bucket(score),
		Meta: Meta{
			RequestID:   requestID,
			GeneratedAt: p.clock().UnixMilli(),
			Explanation: explanation.Summary,
			Detailed: DetailedExplanation{
				Summary:         explanation.Summary,
				KeyFactors:      drivers,
				Trends:          trends,
				Recommendations: explanation.Recommendations,
			},
			Features: path,
			Trends:   trends,
		},
	}, nil
}

// historyWindow reads the trend lookback window from the snapshot
// namespace and projects each stored snapshot onto its feature map.
// Records that fail to decode are skipped with a warning rather than
// failing the prediction.
func (p *Predictor) historyWindow(ctx context.Context) ([]map[string]float64, error) {
	now := p.clock()
	sinceMs := now.Add(-p.cfg.Window).UnixMilli()
	untilMs := now.UnixMilli() + 1

	recs, err := p.engine.ReadRange(ctx, p.cfg.HistoryNamespace, sinceMs, untilMs)
	if err != nil {
		return nil, err
	}

	history := make([]map[string]float64, 0, len(recs))
	for _, rec := range recs {
		var snap store.DailySnapshot
		if err := json.Unmarshal(rec.Data, &snap); err != nil {
			p.logger.Warn("skipping undecodable history record",
				"namespace", p.cfg.HistoryNamespace,
				"id", rec.ID,
				"error", err,
			)
			continue
		}
		history = append(history, snap.Features())
	}
	return history, nil
}

// bucket maps a score to its risk bucket label.
func bucket(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "moderate"
	default:
		return "low"
	}
}
