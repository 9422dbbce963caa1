// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package riskcore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cephalolabs/cephalo/pkg/validation"
	"github.com/cephalolabs/cephalo/services/riskcore/predict"
	"github.com/cephalolabs/cephalo/services/riskcore/store"
	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

// ErrorResponse is the typed error envelope every handler returns on
// failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateRecordRequest is the body of POST /v1/records/:ns.
type CreateRecordRequest struct {
	// ID is the caller-chosen record id. Generated when empty.
	ID string `json:"id"`

	// Data is the opaque record payload.
	Data json.RawMessage `json:"data" binding:"required"`
}

// RecordResponse wraps a single stored record.
type RecordResponse struct {
	Record store.Record `json:"record"`
}

// RecordsResponse wraps a record listing.
type RecordsResponse struct {
	Records []store.Record `json:"records"`
	Count   int            `json:"count"`
}

// DeleteResponse reports the outcome of a delete.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// ClearResponse reports the outcome of a namespace clear.
type ClearResponse struct {
	Removed int `json:"removed"`
}

// StoreInfo describes one namespace in GET /v1/stores.
type StoreInfo struct {
	Namespace string `json:"namespace"`
	Records   int    `json:"records"`
}

// StoresResponse is the body of GET /v1/stores.
type StoresResponse struct {
	SchemaVersion int64       `json:"schemaVersion"`
	Stores        []StoreInfo `json:"stores"`
}

// Handlers contains the HTTP handlers for the riskcore service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterRoutes attaches all riskcore routes to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/predict", h.HandlePredict)
	v1.GET("/predict/:id", h.HandlePredictStored)
	v1.GET("/stores", h.HandleStores)

	records := v1.Group("/records/:ns")
	records.POST("", h.HandleCreateRecord)
	records.GET("", h.HandleListRecords)
	records.DELETE("", h.HandleClearRecords)
	records.GET("/:id", h.HandleGetRecord)
	records.PUT("/:id", h.HandlePutRecord)
	records.PATCH("/:id", h.HandlePatchRecord)
	records.DELETE("/:id", h.HandleDeleteRecord)
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"version":        ServiceVersion,
		"schema_version": h.svc.Handle().Version(),
	})
}

// HandlePredict handles POST /v1/predict.
//
// Request Body:
//
//	store.DailySnapshot
//
// Response:
//
//	200 OK: predict.Prediction
//	400 Bad Request: malformed body or out-of-range feature
//	422 Unprocessable Entity: model/feature mismatch
func (h *Handlers) HandlePredict(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePredict")

	var snapshot store.DailySnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	pred, err := h.svc.Predictor().Predict(c.Request.Context(), snapshot)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

// HandlePredictStored handles GET /v1/predict/:id: predicts from a
// snapshot already stored in the general namespace.
func (h *Handlers) HandlePredictStored(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePredictStored")

	pred, err := h.svc.Predictor().PredictStored(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

// HandleStores handles GET /v1/stores.
func (h *Handlers) HandleStores(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStores")

	handle := h.svc.Handle()
	namespaces := handle.Namespaces()
	stores := make([]StoreInfo, 0, len(namespaces))
	for _, ns := range namespaces {
		n, err := h.svc.Engine().Count(c.Request.Context(), ns)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		stores = append(stores, StoreInfo{Namespace: ns, Records: n})
	}

	c.JSON(http.StatusOK, StoresResponse{
		SchemaVersion: handle.Version(),
		Stores:        stores,
	})
}

// HandleCreateRecord handles POST /v1/records/:ns.
//
// Response:
//
//	201 Created: RecordResponse
//	409 Conflict: id already exists
func (h *Handlers) HandleCreateRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateRecord")

	ns := c.Param("ns")
	if !validateNames(c, logger, ns, "") {
		return
	}

	var req CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if !validateNames(c, logger, ns, req.ID) {
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.Engine().Create(ctx, ns, req.ID, req.Data); err != nil {
		writeError(c, logger, err)
		return
	}

	rec, _, err := h.svc.Engine().Read(ctx, ns, req.ID)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, RecordResponse{Record: rec})
}

// HandleListRecords handles GET /v1/records/:ns.
//
// Query Parameters:
//
//	since: inclusive createdAt lower bound, epoch milliseconds (optional)
//	until: exclusive createdAt upper bound, epoch milliseconds (optional)
//
// With neither bound the full namespace is returned in id order; with
// at least one, records are returned in createdAt order.
func (h *Handlers) HandleListRecords(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListRecords")

	ns := c.Param("ns")
	if !validateNames(c, logger, ns, "") {
		return
	}

	sinceStr := c.Query("since")
	untilStr := c.Query("until")

	var recs []store.Record
	var err error
	if sinceStr == "" && untilStr == "" {
		recs, err = h.svc.Engine().ReadAll(c.Request.Context(), ns)
	} else {
		var since, until int64
		until = int64(1) << 62
		if since, err = parseMillis(sinceStr, 0); err == nil {
			until, err = parseMillis(untilStr, until)
		}
		if err != nil {
			logger.Warn("Invalid range bound", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "since/until must be epoch milliseconds",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		recs, err = h.svc.Engine().ReadRange(c.Request.Context(), ns, since, until)
	}
	if err != nil {
		writeError(c, logger, err)
		return
	}

	c.JSON(http.StatusOK, RecordsResponse{Records: recs, Count: len(recs)})
}

// HandleGetRecord handles GET /v1/records/:ns/:id.
func (h *Handlers) HandleGetRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetRecord")

	ns, id := c.Param("ns"), c.Param("id")
	if !validateNames(c, logger, ns, id) {
		return
	}

	rec, found, err := h.svc.Engine().Read(c.Request.Context(), ns, id)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Record not found",
			Code:  "NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

// HandlePutRecord handles PUT /v1/records/:ns/:id: full upsert.
func (h *Handlers) HandlePutRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePutRecord")

	ns, id := c.Param("ns"), c.Param("id")
	if !validateNames(c, logger, ns, id) {
		return
	}

	data, ok := readRawBody(c, logger)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.Engine().Upsert(ctx, ns, id, data); err != nil {
		writeError(c, logger, err)
		return
	}

	rec, _, err := h.svc.Engine().Read(ctx, ns, id)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

// HandlePatchRecord handles PATCH /v1/records/:ns/:id: shallow merge of
// top-level fields into the existing payload.
//
// Response:
//
//	200 OK: RecordResponse
//	404 Not Found: record does not exist
func (h *Handlers) HandlePatchRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePatchRecord")

	ns, id := c.Param("ns"), c.Param("id")
	if !validateNames(c, logger, ns, id) {
		return
	}

	partial, ok := readRawBody(c, logger)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.Engine().Update(ctx, ns, id, partial); err != nil {
		writeError(c, logger, err)
		return
	}

	rec, _, err := h.svc.Engine().Read(ctx, ns, id)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, RecordResponse{Record: rec})
}

// HandleDeleteRecord handles DELETE /v1/records/:ns/:id. Deleting a
// missing record is not an error; the response says what happened.
func (h *Handlers) HandleDeleteRecord(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteRecord")

	ns, id := c.Param("ns"), c.Param("id")
	if !validateNames(c, logger, ns, id) {
		return
	}

	deleted, err := h.svc.Engine().Delete(c.Request.Context(), ns, id)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, DeleteResponse{Deleted: deleted})
}

// HandleClearRecords handles DELETE /v1/records/:ns.
func (h *Handlers) HandleClearRecords(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleClearRecords")

	ns := c.Param("ns")
	if !validateNames(c, logger, ns, "") {
		return
	}

	removed, err := h.svc.Engine().Clear(c.Request.Context(), ns)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Namespace cleared", "namespace", ns, "removed", removed)
	c.JSON(http.StatusOK, ClearResponse{Removed: removed})
}

// validateNames runs the storage-key allow-lists before any engine call
// and writes the 400 itself. An empty id skips the id check.
func validateNames(c *gin.Context, logger *slog.Logger, ns, id string) bool {
	if err := validation.ValidateNamespace(ns); err != nil {
		logger.Warn("Invalid namespace", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_NAMESPACE",
		})
		return false
	}
	if id != "" {
		if err := validation.ValidateRecordID(id); err != nil {
			logger.Warn("Invalid record id", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_RECORD_ID",
			})
			return false
		}
	}
	return true
}

// readRawBody reads the request body as a raw JSON document.
func readRawBody(c *gin.Context, logger *slog.Logger) (json.RawMessage, bool) {
	var data json.RawMessage
	if err := c.ShouldBindJSON(&data); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Request body must be a JSON document",
			Code:  "INVALID_REQUEST",
		})
		return nil, false
	}
	return data, true
}

// parseMillis parses an optional epoch-millisecond query parameter.
func parseMillis(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// writeError maps pipeline and store errors onto the error envelope.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	var verrs validator.ValidationErrors

	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: err.Error(),
			Code:  "DUPLICATE_KEY",
		})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, predict.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "NOT_FOUND",
		})
	case errors.Is(err, store.ErrEngineBlocked),
		errors.Is(err, store.ErrHandleClosed),
		errors.Is(err, store.ErrHandleFailed):
		logger.Error("Store unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: err.Error(),
			Code:  "STORE_UNAVAILABLE",
		})
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_SNAPSHOT",
		})
	case errors.Is(err, tree.ErrMissingFeature), errors.Is(err, tree.ErrDegenerateLeaf):
		logger.Error("Model evaluation failed", "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "MODEL_ERROR",
		})
	default:
		logger.Error("Internal error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
