// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cephalolabs/cephalo/cmd/cephalo/config"
	"github.com/cephalolabs/cephalo/services/riskcore"
	"github.com/cephalolabs/cephalo/services/riskcore/telemetry"
)

var (
	serveHost string
	servePort int
	debugMode bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the riskcore HTTP service",
		Long: `Opens the local record store, loads the decision tree and serves the
prediction and record APIs until interrupted. The store directory is
exclusive: a second process pointing at the same directory will be
refused.`,
		Run: runServeCommand,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (default from config)")
	serveCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging and gin debug mode")
	rootCmd.AddCommand(serveCmd)
}

func runServeCommand(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newCLILogger("cephalo-serve")
	defer logger.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "cephalo",
		ServiceVersion: riskcore.ServiceVersion,
		Environment:    telemetry.DefaultConfig().Environment,
		TraceExporter:  config.Global.Telemetry.TraceExporter,
	})
	if err != nil {
		OutputError("failed to initialize telemetry", err)
	}
	defer shutdownTelemetry(context.Background())

	svc, err := openService(ctx, logger)
	if err != nil {
		OutputError("failed to start the riskcore service", err)
	}
	defer svc.Close()

	if debugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if debugMode {
		router.Use(gin.Logger())
	}
	riskcore.NewHandlers(svc).RegisterRoutes(router)

	host := config.Global.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := config.Global.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("riskcore listening", "addr", addr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			OutputError("server failed", err)
		}
	}
}
