// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted envelope around an application payload.
//
// Description:
//
//	The store owns the envelope (id, timestamps); the caller owns the
//	Data payload semantics. CreatedAt is fixed at first insertion and
//	UpdatedAt changes on every write. Timestamps are Unix milliseconds
//	UTC, matching the wire shape consumed by UI collaborators.
//
// Thread Safety: Records are value types; the store never hands out
// shared mutable state.
type Record struct {
	// ID is the application-chosen key, unique within its namespace.
	// Numeric ids are carried as their decimal string form.
	ID string `json:"id"`

	// Data is the namespace-specific JSON payload.
	Data json.RawMessage `json:"data"`

	// CreatedAt is when the record was first inserted (Unix ms UTC).
	CreatedAt int64 `json:"createdAt"`

	// UpdatedAt is when the record was last written (Unix ms UTC).
	UpdatedAt int64 `json:"updatedAt"`
}

// encodeRecord serializes a record for storage.
func encodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	return data, nil
}

// decodeRecord deserializes a stored record.
func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// mergePatch shallow-merges a partial JSON object into a base object.
//
// Top-level keys in patch overwrite keys in base; keys absent from patch
// are preserved. Nested objects are replaced wholesale, not merged.
func mergePatch(base, patch json.RawMessage) (json.RawMessage, error) {
	baseMap := make(map[string]json.RawMessage)
	if len(base) > 0 {
		if err := json.Unmarshal(base, &baseMap); err != nil {
			return nil, fmt.Errorf("unmarshal base payload: %w", err)
		}
	}

	patchMap := make(map[string]json.RawMessage)
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("unmarshal patch payload: %w", err)
	}

	for k, v := range patchMap {
		baseMap[k] = v
	}

	merged, err := json.Marshal(baseMap)
	if err != nil {
		return nil, fmt.Errorf("marshal merged payload: %w", err)
	}
	return merged, nil
}
