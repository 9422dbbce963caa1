// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cephalolabs/cephalo/services/riskcore/store"
)

var (
	logID string

	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Record daily snapshots and migraine attacks",
	}

	logSnapshotCmd = &cobra.Command{
		Use:   "snapshot [snapshot.json]",
		Short: "Store a daily feature snapshot",
		Long: `Validates the snapshot file and stores it in the general namespace.
Snapshots feed the trend analysis of later predictions. Without --id
the record is keyed by today's date (YYYY-MM-DD); relogging the same
day overwrites.`,
		Args: cobra.ExactArgs(1),
		Run:  runLogSnapshotCommand,
	}

	logAttackCmd = &cobra.Command{
		Use:   "attack [attack.json]",
		Short: "Store a migraine attack record",
		Args:  cobra.ExactArgs(1),
		Run:   runLogAttackCommand,
	}
)

func init() {
	logCmd.PersistentFlags().StringVar(&logID, "id", "", "Record id (defaults to today's date)")
	logCmd.AddCommand(logSnapshotCmd)
	logCmd.AddCommand(logAttackCmd)
	rootCmd.AddCommand(logCmd)
}

func runLogSnapshotCommand(cmd *cobra.Command, args []string) {
	var snapshot store.DailySnapshot
	data := readJSONFile(args[0], &snapshot)
	if err := snapshot.Validate(); err != nil {
		OutputError("snapshot failed validation", err)
	}
	upsertRecord(store.NamespaceGeneral, data, "snapshot")
}

func runLogAttackCommand(cmd *cobra.Command, args []string) {
	var attack store.AttackRecord
	data := readJSONFile(args[0], &attack)
	if err := attack.Validate(); err != nil {
		OutputError("attack record failed validation", err)
	}
	upsertRecord(store.NamespaceMigraines, data, "attack")
}

// readJSONFile reads and decodes a JSON file into v, exiting on failure.
func readJSONFile(path string, v any) json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		OutputError("failed to read the file", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		OutputError("file is not valid JSON", err)
	}
	return data
}

// upsertRecord writes one record into the local store.
func upsertRecord(ns string, data json.RawMessage, kind string) {
	ctx := context.Background()
	logger := newCLILogger("cephalo-log")
	defer logger.Close()

	svc, err := openService(ctx, logger)
	if err != nil {
		OutputError("failed to open the riskcore service", err)
	}
	defer svc.Close()

	id := logID
	if id == "" {
		id = time.Now().Format("2006-01-02")
	}
	if err := svc.Engine().Upsert(ctx, ns, id, data); err != nil {
		OutputError("failed to store the record", err)
	}

	if jsonOutput {
		OutputJSON(map[string]string{"namespace": ns, "id": id, "kind": kind})
		return
	}
	if !quiet {
		fmt.Printf("Stored %s %s/%s\n", kind, ns, id)
	}
}
