// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCollection_TypedRoundTrip verifies a struct payload survives the
// store unchanged.
func TestCollection_TypedRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	snapshots := NewCollection[DailySnapshot](e, NamespaceGeneral)

	in := DailySnapshot{
		SleepHours:        6.5,
		ScreenTimeHours:   4.0,
		StressLevel:       7,
		AttacksLast7Days:  1,
		AttacksLast30Days: 3,
		HydrationLow:      1,
	}
	require.NoError(t, snapshots.Create(ctx, "2026-08-29", in))

	out, found, err := snapshots.Get(ctx, "2026-08-29")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)

	_, found, err = snapshots.Get(ctx, "2026-08-30")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestCollection_AllAndRange verifies the typed listing paths.
func TestCollection_AllAndRange(t *testing.T) {
	clock := newFakeClock()
	h, err := Open(context.Background(), Options{InMemory: true, Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	e := NewEngine(h)
	ctx := context.Background()
	attacks := NewCollection[AttackRecord](e, NamespaceMigraines)

	base := clock.Now().UnixMilli()
	require.NoError(t, attacks.Create(ctx, "1", AttackRecord{Severity: 4}))
	clock.Advance(time.Hour)
	require.NoError(t, attacks.Create(ctx, "2", AttackRecord{Severity: 8}))

	all, err := attacks.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 4, all[0].Severity)

	hour := int64(time.Hour / time.Millisecond)
	window, err := attacks.Range(ctx, base+1, base+2*hour)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 8, window[0].Severity)

	n, err := attacks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := attacks.Delete(ctx, "1")
	require.NoError(t, err)
	assert.True(t, deleted)
}
