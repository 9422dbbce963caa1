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
	"strings"

	"github.com/spf13/cobra"

	"github.com/cephalolabs/cephalo/services/riskcore/predict"
	"github.com/cephalolabs/cephalo/services/riskcore/store"
)

var (
	predictStoredID string

	predictCmd = &cobra.Command{
		Use:   "predict [snapshot.json]",
		Short: "Score a daily snapshot against the decision tree",
		Long: `Reads a daily snapshot from the given JSON file (or from a stored
record with --id) and prints the risk score with its explanation.
History already in the store feeds the trend analysis.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runPredictCommand,
	}
)

func init() {
	predictCmd.Flags().StringVar(&predictStoredID, "id", "", "Predict from a stored snapshot id instead of a file")
	rootCmd.AddCommand(predictCmd)
}

func runPredictCommand(cmd *cobra.Command, args []string) {
	if predictStoredID == "" && len(args) == 0 {
		OutputError("nothing to predict", fmt.Errorf("pass a snapshot file or --id"))
	}

	ctx := context.Background()
	logger := newCLILogger("cephalo-predict")
	defer logger.Close()

	svc, err := openService(ctx, logger)
	if err != nil {
		OutputError("failed to open the riskcore service", err)
	}
	defer svc.Close()

	var pred *predict.Prediction
	if predictStoredID != "" {
		pred, err = svc.Predictor().PredictStored(ctx, predictStoredID)
	} else {
		var snapshot store.DailySnapshot
		data, readErr := os.ReadFile(args[0])
		if readErr != nil {
			OutputError("failed to read the snapshot file", readErr)
		}
		if err = json.Unmarshal(data, &snapshot); err != nil {
			OutputError("snapshot file is not valid JSON", err)
		}
		pred, err = svc.Predictor().Predict(ctx, snapshot)
	}
	if err != nil {
		OutputError("prediction failed", err)
	}

	if jsonOutput || !stdoutIsTerminal() {
		if err := OutputJSON(pred); err != nil {
			OutputError("failed to encode the prediction", err)
		}
		return
	}
	printPrediction(pred)
}

// printPrediction renders a prediction for an interactive terminal.
func printPrediction(pred *predict.Prediction) {
	fmt.Printf("Risk score: %.1f%% (%s)\n\n", pred.Score*100, pred.Bucket)
	fmt.Println(pred.Meta.Explanation)

	if len(pred.Meta.Detailed.KeyFactors) > 0 {
		fmt.Println("\nKey factors:")
		for _, d := range pred.Meta.Detailed.KeyFactors {
			fmt.Printf("  - %s (%.0f%% weight, value %.1f vs threshold %.1f)\n",
				d.Label, d.NormalizedScore*100, d.Current, d.Threshold)
		}
	}
	if len(pred.Meta.Trends) > 0 {
		fmt.Println("\nTrends:")
		for _, t := range pred.Meta.Trends {
			fmt.Printf("  - %s: %s (%.1f vs %.1f avg, %+.1f%%)\n",
				t.Feature, t.Classification, t.Current, t.Average, t.ChangePercent)
		}
	}
	if len(pred.Meta.Detailed.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		fmt.Println("  " + strings.Join(pred.Meta.Detailed.Recommendations, "\n  "))
	}
}
