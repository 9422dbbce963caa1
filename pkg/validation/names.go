// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for values that end up in
// storage keys or HTTP routes.
//
// Namespace names and record ids are embedded into BadgerDB keys with ':'
// as the field separator. Using these validators prevents key-layout
// corruption and path traversal through user-supplied names.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxIDLength bounds record ids so index keys stay small.
const MaxIDLength = 128

// namespacePattern matches valid namespace names.
// Allows: lowercase letters, digits, underscores. Max 32 characters.
var namespacePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ValidateNamespace validates a namespace name before it is used in a
// storage key or schema upgrade.
//
// Valid names:
//   - 1-32 characters
//   - start with a lowercase letter
//   - lowercase letters, digits, underscores only
//
// Returns an error if the name is invalid.
//
// Example:
//
//	if err := validation.ValidateNamespace(ns); err != nil {
//	    return fmt.Errorf("invalid namespace: %w", err)
//	}
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if !namespacePattern.MatchString(name) {
		return fmt.Errorf("invalid namespace %q (must be 1-32 lowercase alphanumeric chars or underscores, starting with a letter)", name)
	}
	return nil
}

// ValidateRecordID validates an application-chosen record id.
//
// Ids may be numeric or free-form strings, but must not contain the key
// separator, control characters, or exceed MaxIDLength.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("record id exceeds %d characters", MaxIDLength)
	}
	if strings.ContainsRune(id, ':') {
		return fmt.Errorf("record id %q must not contain ':'", id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("record id contains control character %q", r)
		}
	}
	return nil
}
