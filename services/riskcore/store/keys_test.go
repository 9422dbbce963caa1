// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeID_RoundTrip verifies decode reverses encode for both id
// families.
func TestEncodeID_RoundTrip(t *testing.T) {
	for _, id := range []string{"0", "1", "42", "18446744073709551615", "alpha", "2026-08-29", "a1b2", "007"} {
		assert.Equal(t, id, decodeID(encodeID(id)), "id %q", id)
	}
}

// TestEncodeID_LeadingZerosStayStrings verifies "007" is not collapsed
// into the numeric family, which would collide with "7".
func TestEncodeID_LeadingZerosStayStrings(t *testing.T) {
	assert.Equal(t, "s:007", encodeID("007"))
	assert.Equal(t, "n:00000000000000000007", encodeID("7"))
}

// TestEncodeID_LexicographicOrder verifies byte order of encoded ids
// equals numeric order for numbers, with strings after all numbers.
func TestEncodeID_LexicographicOrder(t *testing.T) {
	ids := []string{"100", "9", "alpha", "21", "3", "beta"}
	encoded := make([]string, len(ids))
	for i, id := range ids {
		encoded[i] = encodeID(id)
	}
	sort.Strings(encoded)

	decoded := make([]string, len(encoded))
	for i, e := range encoded {
		decoded[i] = decodeID(e)
	}
	assert.Equal(t, []string{"3", "9", "21", "100", "alpha", "beta"}, decoded)
}

// TestParseCreatedIdxKey verifies index key round trip.
func TestParseCreatedIdxKey(t *testing.T) {
	key := createdIdxKey(NamespaceGeneral, 1_700_000_123_456, "2026-08-29")

	ms, id, ok := parseCreatedIdxKey(NamespaceGeneral, key)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_123_456), ms)
	assert.Equal(t, "2026-08-29", id)
}

func TestParseCreatedIdxKey_WrongPrefix(t *testing.T) {
	_, _, ok := parseCreatedIdxKey(NamespaceGeneral, recKey(NamespaceGeneral, "x"))
	assert.False(t, ok)
}
