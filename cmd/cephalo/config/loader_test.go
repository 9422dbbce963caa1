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
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".cephalo", "cephalo.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg CephaloConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	// Verify some defaults round-trip through YAML.
	if !cfg.Store.SyncWrites {
		t.Error("Store.SyncWrites = false, want true")
	}
	if cfg.Model.WindowDays != 7 {
		t.Errorf("Model.WindowDays = %d, want 7", cfg.Model.WindowDays)
	}
	if cfg.Server.Port != 8089 {
		t.Errorf("Server.Port = %d, want 8089", cfg.Server.Port)
	}
	if cfg.Telemetry.TraceExporter != "none" {
		t.Errorf("Telemetry.TraceExporter = %q, want %q", cfg.Telemetry.TraceExporter, "none")
	}
}

// TestCreateDefault_DirectoryCreation verifies nested directories are created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "cephalo.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}
