// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Physical key layout. Every key is namespace-scoped except the meta keys:
//
//	ns:<name>:rec:<encoded-id>                    record body (JSON)
//	ns:<name>:idx:created:<%020d ms>:<encoded-id> createdAt index entry
//	ns:<name>:idx:updated:<%020d ms>:<encoded-id> updatedAt index entry
//	meta:ns:<name>                                namespace marker (JSON)
//	meta:version                                  schema version (decimal)
//
// Numeric ids are zero-padded so Badger's lexicographic iteration yields
// ascending numeric order; string ids sort after all numeric ids.

const (
	versionKey     = "meta:version"
	nsMarkerPrefix = "meta:ns:"
)

// encodeID maps an application id to its key segment.
//
// Ids consisting only of digits (up to 20, no leading zeros beyond "0")
// are encoded as "n:%020d"; everything else as "s:<raw>". "n:" < "s:", so
// numeric ids iterate first, in numeric order.
func encodeID(id string) string {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil && (id == "0" || id[0] != '0') {
		return fmt.Sprintf("n:%020d", n)
	}
	return "s:" + id
}

// decodeID reverses encodeID.
func decodeID(seg string) string {
	switch {
	case strings.HasPrefix(seg, "n:"):
		n, err := strconv.ParseUint(seg[2:], 10, 64)
		if err != nil {
			return seg[2:]
		}
		return strconv.FormatUint(n, 10)
	case strings.HasPrefix(seg, "s:"):
		return seg[2:]
	default:
		return seg
	}
}

func recPrefix(ns string) []byte {
	return []byte("ns:" + ns + ":rec:")
}

func recKey(ns, id string) []byte {
	return []byte("ns:" + ns + ":rec:" + encodeID(id))
}

func createdIdxPrefix(ns string) []byte {
	return []byte("ns:" + ns + ":idx:created:")
}

func createdIdxKey(ns string, ms int64, id string) []byte {
	return []byte(fmt.Sprintf("ns:%s:idx:created:%020d:%s", ns, ms, encodeID(id)))
}

func updatedIdxKey(ns string, ms int64, id string) []byte {
	return []byte(fmt.Sprintf("ns:%s:idx:updated:%020d:%s", ns, ms, encodeID(id)))
}

func nsPrefix(ns string) []byte {
	return []byte("ns:" + ns + ":")
}

func nsMarkerKey(name string) []byte {
	return []byte(nsMarkerPrefix + name)
}

// parseCreatedIdxKey extracts (ms, id) from a createdAt index key.
func parseCreatedIdxKey(ns string, key []byte) (int64, string, bool) {
	rest := strings.TrimPrefix(string(key), string(createdIdxPrefix(ns)))
	if rest == string(key) {
		return 0, "", false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return ms, decodeID(parts[1]), true
}
