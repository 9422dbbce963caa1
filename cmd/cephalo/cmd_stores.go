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

	"github.com/spf13/cobra"

	"github.com/cephalolabs/cephalo/services/riskcore"
)

var (
	storesCmd = &cobra.Command{
		Use:   "stores",
		Short: "Show the local namespaces and their record counts",
		Run:   runStoresCommand,
	}

	storesClearCmd = &cobra.Command{
		Use:   "clear [namespace]",
		Short: "Delete every record in a namespace",
		Args:  cobra.ExactArgs(1),
		Run:   runStoresClearCommand,
	}
)

func init() {
	storesCmd.AddCommand(storesClearCmd)
	rootCmd.AddCommand(storesCmd)
}

func runStoresCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	logger := newCLILogger("cephalo-stores")
	defer logger.Close()

	svc, err := openService(ctx, logger)
	if err != nil {
		OutputError("failed to open the riskcore service", err)
	}
	defer svc.Close()

	handle := svc.Handle()
	stores := make([]riskcore.StoreInfo, 0, len(handle.Namespaces()))
	for _, ns := range handle.Namespaces() {
		n, err := svc.Engine().Count(ctx, ns)
		if err != nil {
			OutputError("failed to count records", err)
		}
		stores = append(stores, riskcore.StoreInfo{Namespace: ns, Records: n})
	}

	if jsonOutput || !stdoutIsTerminal() {
		OutputJSON(riskcore.StoresResponse{
			SchemaVersion: handle.Version(),
			Stores:        stores,
		})
		return
	}

	fmt.Printf("Schema version %d\n", handle.Version())
	for _, s := range stores {
		fmt.Printf("  %-12s %d record(s)\n", s.Namespace, s.Records)
	}
}

func runStoresClearCommand(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	logger := newCLILogger("cephalo-stores")
	defer logger.Close()

	svc, err := openService(ctx, logger)
	if err != nil {
		OutputError("failed to open the riskcore service", err)
	}
	defer svc.Close()

	removed, err := svc.Engine().Clear(ctx, args[0])
	if err != nil {
		OutputError("failed to clear the namespace", err)
	}

	if jsonOutput {
		OutputJSON(map[string]any{"namespace": args[0], "removed": removed})
		return
	}
	fmt.Printf("Removed %d record(s) from %s\n", removed, args[0])
}
