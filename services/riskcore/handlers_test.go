// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package riskcore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephalolabs/cephalo/services/riskcore/predict"
	"github.com/cephalolabs/cephalo/services/riskcore/tree"
)

const testTreeJSON = `{
  "type": "split", "feature": "sleep_hours", "threshold": 7.0,
  "left": {"type": "leaf", "classes": [0.2, 0.8]},
  "right": {"type": "leaf", "classes": [0.9, 0.1]}
}`

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr, err := tree.Load(strings.NewReader(testTreeJSON))
	require.NoError(t, err)

	svc, err := NewService(context.Background(), tr, ServiceConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	router := gin.New()
	NewHandlers(svc).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

// TestHandlePredict_OK verifies a valid snapshot yields a scored
// prediction with an explanation.
func TestHandlePredict_OK(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/predict", `{"sleep_hours":5.0}`)
	require.Equal(t, http.StatusOK, w.Code)

	var pred predict.Prediction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.InDelta(t, 0.8, pred.Score, 1e-9)
	assert.Equal(t, "high", pred.Bucket)
	assert.NotEmpty(t, pred.Meta.Explanation)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// TestHandlePredict_InvalidSnapshot verifies an out-of-range feature is
// a 400, not a 500.
func TestHandlePredict_InvalidSnapshot(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/predict", `{"sleep_hours":30}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SNAPSHOT")
}

func TestHandlePredict_MalformedBody(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/predict", `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

// TestRecordLifecycle drives one record through create, read, patch and
// delete over HTTP.
func TestRecordLifecycle(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/records/general",
		`{"id":"2026-08-29","data":{"sleep_hours":6,"stress_level":3}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Duplicate creation conflicts.
	w = doJSON(t, router, http.MethodPost, "/v1/records/general",
		`{"id":"2026-08-29","data":{}}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DUPLICATE_KEY")

	w = doJSON(t, router, http.MethodGet, "/v1/records/general/2026-08-29", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "2026-08-29", got.Record.ID)

	w = doJSON(t, router, http.MethodPatch, "/v1/records/general/2026-08-29",
		`{"stress_level":9}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.JSONEq(t, `{"sleep_hours":6,"stress_level":9}`, string(got.Record.Data))

	w = doJSON(t, router, http.MethodDelete, "/v1/records/general/2026-08-29", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":true`)

	w = doJSON(t, router, http.MethodGet, "/v1/records/general/2026-08-29", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

// TestHandleCreateRecord_GeneratesID verifies a create without an id
// gets one assigned.
func TestHandleCreateRecord_GeneratesID(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/records/general", `{"data":{"a":1}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var got RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.Record.ID)
}

// TestHandlePatchRecord_Missing verifies update-only semantics.
func TestHandlePatchRecord_Missing(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPatch, "/v1/records/general/nope", `{"a":1}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

// TestHandlePutRecord verifies upsert over HTTP creates and overwrites.
func TestHandlePutRecord(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPut, "/v1/records/weather/latest", `{"pressure_hpa":1013}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPut, "/v1/records/weather/latest", `{"pressure_hpa":998}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.JSONEq(t, `{"pressure_hpa":998}`, string(got.Record.Data))
}

// TestHandleListRecords covers full listing and the createdAt range.
func TestHandleListRecords(t *testing.T) {
	router := setupTestRouter(t)

	for _, id := range []string{"1", "2", "3"} {
		w := doJSON(t, router, http.MethodPost, "/v1/records/migraines",
			`{"id":"`+id+`","data":{}}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/v1/records/migraines", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list RecordsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Count)

	// A future-only range is empty but valid.
	w = doJSON(t, router, http.MethodGet, "/v1/records/migraines?since=99999999999999", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)

	w = doJSON(t, router, http.MethodGet, "/v1/records/migraines?since=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHandleClearRecords verifies namespace truncation over HTTP.
func TestHandleClearRecords(t *testing.T) {
	router := setupTestRouter(t)

	for _, id := range []string{"1", "2"} {
		w := doJSON(t, router, http.MethodPost, "/v1/records/calendar",
			`{"id":"`+id+`","data":{}}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodDelete, "/v1/records/calendar", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":2`)
}

// TestHandleStores verifies the namespace inventory endpoint.
func TestHandleStores(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/stores", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got StoresResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.SchemaVersion)
	assert.Len(t, got.Stores, 7)
}

// TestInvalidNamespaceRejected verifies the allow-list guards every
// record route.
func TestInvalidNamespaceRejected(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/records/NotValid", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_NAMESPACE")
}

func TestHandlePredictStored_NotFound(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/predict/2020-01-01", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
