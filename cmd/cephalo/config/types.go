// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
)

type CephaloConfig struct {
	// Store: where and how records persist
	Store StoreConfig `yaml:"store"`

	// Model: the decision tree asset
	Model ModelConfig `yaml:"model"`

	// Server: HTTP serving surface
	Server ServerConfig `yaml:"server"`

	// Logging: process log behavior
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry: trace exporter selection
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type StoreConfig struct {
	DataDir    string `yaml:"data_dir"`    // e.g. ~/.cephalo/data
	SyncWrites bool   `yaml:"sync_writes"` // fsync every commit
}

type ModelConfig struct {
	// TreePath points at the decision tree JSON asset.
	TreePath string `yaml:"tree_path"`

	// WindowDays is the trend lookback in days.
	WindowDays int `yaml:"window_days"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`   // empty disables file logging
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	// TraceExporter can be "stdout" or "none".
	TraceExporter string `yaml:"trace_exporter"`
}

func DefaultConfig() CephaloConfig {
	dataDir := "~/.cephalo/data"
	treePath := "~/.cephalo/tree.json"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".cephalo", "data")
		treePath = filepath.Join(home, ".cephalo", "tree.json")
	}
	return CephaloConfig{
		Store: StoreConfig{
			DataDir:    dataDir,
			SyncWrites: true,
		},
		Model: ModelConfig{
			TreePath:   treePath,
			WindowDays: 7,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8089,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
		},
	}
}
