// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package riskcore exposes the record store and prediction pipeline
// over HTTP. The service owns the store handle for the lifetime of the
// process; everything else is stateless.
package riskcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cephalolabs/cephalo/pkg/logging"
	"github.com/cephalolabs/cephalo/services/riskcore/predict"
	"github.com/cephalolabs/cephalo/services/riskcore/store"
	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

// ServiceVersion is the riskcore service version.
const ServiceVersion = "1.0.0"

// ErrNilTree indicates NewService was called without a loaded model.
var ErrNilTree = errors.New("riskcore: nil decision tree")

// ServiceConfig configures the riskcore service.
type ServiceConfig struct {
	// DataDir is the on-disk store directory. Ignored when InMemory.
	DataDir string

	// InMemory runs the store without persistence (tests, dry runs).
	InMemory bool

	// NoSync disables fsync on commit.
	NoSync bool

	// Window is the trend lookback. Zero means the pipeline default.
	Window time.Duration

	// Logger receives service diagnostics.
	Logger *logging.Logger
}

// Service wires the store handle, engine and predictor together.
//
// Thread Safety: Safe for concurrent use after NewService returns.
type Service struct {
	handle    *store.Handle
	engine    *store.Engine
	predictor *predict.Predictor
	logger    *logging.Logger
}

// NewService opens the store, registers the application namespaces and
// builds the prediction pipeline.
//
// Inputs:
//   - ctx: bounds the store open and namespace registration.
//   - t: validated decision tree (required).
//   - cfg: service configuration.
//
// Outputs:
//   - *Service and nil, or nil and the open/registration error. The
//     store is closed again on partial failure.
func NewService(ctx context.Context, t *tree.Tree, cfg ServiceConfig) (*Service, error) {
	if t == nil {
		return nil, ErrNilTree
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	h, err := store.Open(ctx, store.Options{
		Dir:        cfg.DataDir,
		InMemory:   cfg.InMemory,
		NoSync:     cfg.NoSync,
		Namespaces: store.AllNamespaces(),
		Logger:     logger.Slog(),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine := store.NewEngine(h)
	predictor, err := predict.New(engine, t, predict.Config{
		Window: cfg.Window,
		Logger: logger,
	})
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("build predictor: %w", err)
	}

	logger.Info("riskcore service ready",
		"version", ServiceVersion,
		"schema_version", h.Version(),
		"namespaces", len(h.Namespaces()),
		"in_memory", cfg.InMemory,
	)
	return &Service{
		handle:    h,
		engine:    engine,
		predictor: predictor,
		logger:    logger,
	}, nil
}

// Handle returns the underlying store handle.
func (s *Service) Handle() *store.Handle { return s.handle }

// Engine returns the record engine.
func (s *Service) Engine() *store.Engine { return s.engine }

// Predictor returns the prediction pipeline.
func (s *Service) Predictor() *predict.Predictor { return s.predictor }

// Close releases the store handle. Safe to call once.
func (s *Service) Close() error {
	return s.handle.Close()
}
