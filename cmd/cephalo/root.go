// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "cephalo",
		Short: "A CLI to manage the Cephalo migraine risk engine",
		Long: `Cephalo is a local-first migraine risk engine: it keeps your daily
feature snapshots in an embedded store on your own machine and scores
them against a decision tree, entirely offline.`,
	}

	// Persistent output flags.
	jsonOutput bool
	quiet      bool

	// Persistent overrides for the config file.
	dataDirFlag string
	treeFlag    string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the store directory")
	rootCmd.PersistentFlags().StringVar(&treeFlag, "tree", "", "Override the decision tree asset path")
}
