// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Collection is a typed view over one namespace.
//
// Description:
//
//	Wraps the JSON-level Engine with encode/decode for a concrete
//	payload type, so callers work with structs instead of raw messages.
//	The namespace's payload struct carries its own schema_version tag;
//	decoding a record written under an incompatible shape surfaces as a
//	decode error, not silent truncation.
//
// Thread Safety: Safe for concurrent use.
type Collection[T any] struct {
	engine *Engine
	ns     string
}

// NewCollection creates a typed collection over a namespace.
func NewCollection[T any](engine *Engine, ns string) *Collection[T] {
	return &Collection[T]{engine: engine, ns: ns}
}

// Namespace returns the collection's namespace name.
func (c *Collection[T]) Namespace() string {
	return c.ns
}

// Create inserts a new typed record. Fails with ErrDuplicateKey if the id
// already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.ns, err)
	}
	return c.engine.Create(ctx, c.ns, id, data)
}

// Upsert inserts or overwrites a typed record, preserving createdAt.
func (c *Collection[T]) Upsert(ctx context.Context, id string, payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.ns, err)
	}
	return c.engine.Upsert(ctx, c.ns, id, data)
}

// Get returns the decoded payload for an id.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var payload T
	data, found, err := c.engine.ReadData(ctx, c.ns, id)
	if err != nil || !found {
		return payload, found, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, false, fmt.Errorf("unmarshal %s payload %s: %w", c.ns, id, err)
	}
	return payload, true, nil
}

// All returns every decoded payload in the namespace, in id order.
func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	raws, err := c.engine.ReadAllData(ctx, c.ns)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", c.ns, err)
		}
		out = append(out, payload)
	}
	return out, nil
}

// Range returns decoded payloads with sinceMs <= createdAt < untilMs,
// in createdAt order.
func (c *Collection[T]) Range(ctx context.Context, sinceMs, untilMs int64) ([]T, error) {
	recs, err := c.engine.ReadRange(ctx, c.ns, sinceMs, untilMs)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var payload T
		if err := json.Unmarshal(rec.Data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload %s: %w", c.ns, rec.ID, err)
		}
		out = append(out, payload)
	}
	return out, nil
}

// Delete removes a record by id.
func (c *Collection[T]) Delete(ctx context.Context, id string) (bool, error) {
	return c.engine.Delete(ctx, c.ns, id)
}

// Count returns the number of records in the namespace.
func (c *Collection[T]) Count(ctx context.Context) (int, error) {
	return c.engine.Count(ctx, c.ns)
}
