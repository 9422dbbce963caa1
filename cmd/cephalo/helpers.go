// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cephalolabs/cephalo/cmd/cephalo/config"
	"github.com/cephalolabs/cephalo/pkg/logging"
	"github.com/cephalolabs/cephalo/services/riskcore"
	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

// effectiveDataDir resolves the store directory: flag over config.
func effectiveDataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return config.Global.Store.DataDir
}

// effectiveTreePath resolves the model asset path: flag over config.
func effectiveTreePath() string {
	if treeFlag != "" {
		return treeFlag
	}
	return config.Global.Model.TreePath
}

// trendWindow converts the configured window into a duration.
func trendWindow() time.Duration {
	days := config.Global.Model.WindowDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// newCLILogger builds the process logger from config and CLI flags.
func newCLILogger(service string) *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: service,
		JSON:    config.Global.Logging.JSON,
		Quiet:   quiet,
	})
}

// openService loads the tree asset and opens the local store. The
// caller must Close the returned service.
func openService(ctx context.Context, logger *logging.Logger) (*riskcore.Service, error) {
	t, err := tree.LoadFile(effectiveTreePath())
	if err != nil {
		return nil, fmt.Errorf("load decision tree: %w", err)
	}

	svc, err := riskcore.NewService(ctx, t, riskcore.ServiceConfig{
		DataDir: effectiveDataDir(),
		NoSync:  !config.Global.Store.SyncWrites,
		Window:  trendWindow(),
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
