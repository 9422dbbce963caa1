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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	h, err := Open(context.Background(), Options{
		InMemory: true,
		Clock:    clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return NewEngine(h), clock
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

// TestEngine_CreateAndRead covers the basic insert/read round trip and
// duplicate rejection.
func TestEngine_CreateAndRead(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Create(ctx, NamespaceGeneral, "2026-08-29", raw(`{"sleep_hours":6}`)))

	rec, found, err := e.Read(ctx, NamespaceGeneral, "2026-08-29")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2026-08-29", rec.ID)
	assert.JSONEq(t, `{"sleep_hours":6}`, string(rec.Data))
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	err = e.Create(ctx, NamespaceGeneral, "2026-08-29", raw(`{}`))
	require.ErrorIs(t, err, ErrDuplicateKey)
}

// TestEngine_ReadMissing verifies absence is found=false, not an error.
func TestEngine_ReadMissing(t *testing.T) {
	e, _ := newTestEngine(t)

	_, found, err := e.Read(context.Background(), NamespaceGeneral, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestEngine_UpsertPreservesCreatedAt verifies overwrite keeps the
// original creation time and bumps updatedAt.
func TestEngine_UpsertPreservesCreatedAt(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Upsert(ctx, NamespaceGeneral, "day", raw(`{"v":1}`)))
	first, _, err := e.Read(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, e.Upsert(ctx, NamespaceGeneral, "day", raw(`{"v":2}`)))

	second, _, err := e.Read(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Greater(t, second.UpdatedAt, first.UpdatedAt)
	assert.JSONEq(t, `{"v":2}`, string(second.Data))

	n, err := e.Count(ctx, NamespaceGeneral)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestEngine_UpdateMergesTopLevel verifies the shallow merge semantics
// and the not-found contract.
func TestEngine_UpdateMergesTopLevel(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.Update(ctx, NamespaceGeneral, "day", raw(`{"stress_level":5}`))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.Create(ctx, NamespaceGeneral, "day",
		raw(`{"sleep_hours":6,"stress_level":3,"nested":{"a":1}}`)))
	require.NoError(t, e.Update(ctx, NamespaceGeneral, "day",
		raw(`{"stress_level":8,"nested":{"b":2}}`)))

	rec, _, err := e.Read(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	// Top-level keys overwrite wholesale; untouched keys survive.
	assert.JSONEq(t, `{"sleep_hours":6,"stress_level":8,"nested":{"b":2}}`, string(rec.Data))
}

// TestEngine_ReadAllNumericOrder verifies numeric ids come back in
// ascending numeric order, before any string ids.
func TestEngine_ReadAllNumericOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"10", "2", "alpha", "1", "33"} {
		require.NoError(t, e.Create(ctx, NamespaceMigraines, id, raw(`{}`)))
	}

	recs, err := e.ReadAll(ctx, NamespaceMigraines)
	require.NoError(t, err)
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"1", "2", "10", "33", "alpha"}, ids)
}

// TestEngine_ReadRange verifies the half-open [since, until) window
// over createdAt.
func TestEngine_ReadRange(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	base := clock.Now().UnixMilli()
	require.NoError(t, e.Create(ctx, NamespaceGeneral, "d1", raw(`{}`)))
	clock.Advance(24 * time.Hour)
	require.NoError(t, e.Create(ctx, NamespaceGeneral, "d2", raw(`{}`)))
	clock.Advance(24 * time.Hour)
	require.NoError(t, e.Create(ctx, NamespaceGeneral, "d3", raw(`{}`)))

	day := int64(24 * time.Hour / time.Millisecond)

	recs, err := e.ReadRange(ctx, NamespaceGeneral, base, base+2*day)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "d1", recs[0].ID)
	assert.Equal(t, "d2", recs[1].ID)

	// Lower bound is inclusive, upper exclusive.
	recs, err = e.ReadRange(ctx, NamespaceGeneral, base+2*day, base+2*day+1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "d3", recs[0].ID)

	recs, err = e.ReadRange(ctx, NamespaceGeneral, base+3*day, base+4*day)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// TestEngine_Delete verifies deletion reports what happened and a
// missing record is a no-op.
func TestEngine_Delete(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Create(ctx, NamespaceGeneral, "day", raw(`{}`)))

	deleted, err := e.Delete(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = e.Delete(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, found, err := e.Read(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestEngine_DeleteRemovesIndexEntries verifies a deleted record no
// longer surfaces in range scans.
func TestEngine_DeleteRemovesIndexEntries(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	base := clock.Now().UnixMilli()
	require.NoError(t, e.Create(ctx, NamespaceGeneral, "day", raw(`{}`)))
	_, err := e.Delete(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)

	recs, err := e.ReadRange(ctx, NamespaceGeneral, base, base+1000)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

// TestEngine_ClearAndCount verifies Clear removes only its namespace.
func TestEngine_ClearAndCount(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, e.Create(ctx, NamespaceGeneral, id, raw(`{}`)))
	}
	require.NoError(t, e.Create(ctx, NamespaceWeather, "w", raw(`{}`)))

	removed, err := e.Clear(ctx, NamespaceGeneral)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	n, err := e.Count(ctx, NamespaceGeneral)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.Count(ctx, NamespaceWeather)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestEngine_Exists covers both outcomes.
func TestEngine_Exists(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	exists, err := e.Exists(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, e.Create(ctx, NamespaceGeneral, "day", raw(`{}`)))
	exists, err = e.Exists(ctx, NamespaceGeneral, "day")
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestEngine_Query verifies client-side filtering.
func TestEngine_Query(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Create(ctx, NamespaceMigraines, "1", raw(`{"severity":3}`)))
	require.NoError(t, e.Create(ctx, NamespaceMigraines, "2", raw(`{"severity":8}`)))

	recs, err := e.Query(ctx, NamespaceMigraines, func(r Record) bool {
		var payload struct {
			Severity int `json:"severity"`
		}
		return json.Unmarshal(r.Data, &payload) == nil && payload.Severity >= 5
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2", recs[0].ID)
}

// TestEngine_InvalidIDRejected verifies the id allow-list runs before
// any write.
func TestEngine_InvalidIDRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"", "has:colon", string([]byte{0x01})} {
		err := e.Create(ctx, NamespaceGeneral, id, raw(`{}`))
		assert.Error(t, err, "id %q", id)
	}
}

// TestEngine_LazyNamespaceCreation verifies first use registers the
// namespace and bumps the schema version.
func TestEngine_LazyNamespaceCreation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	require.Equal(t, int64(0), e.Handle().Version())
	require.NoError(t, e.Create(ctx, NamespaceWearables, "1", raw(`{}`)))

	assert.Equal(t, int64(1), e.Handle().Version())
	assert.Contains(t, e.Handle().Namespaces(), NamespaceWearables)
}

func TestEngine_NilContext(t *testing.T) {
	e, _ := newTestEngine(t)

	err := e.Create(nil, NamespaceGeneral, "day", raw(`{}`)) //nolint:staticcheck
	require.ErrorIs(t, err, ErrNilContext)
}
