// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import "errors"

var (
	// ErrEngineOpenFailed is returned when the underlying engine cannot
	// be opened. The underlying cause is attached with %w.
	ErrEngineOpenFailed = errors.New("engine open failed")

	// ErrEngineBlocked is returned when another process holds the engine
	// directory lock. The caller must close the competing handle first.
	ErrEngineBlocked = errors.New("engine blocked by another connection")

	// ErrDuplicateKey is returned by Create when the id already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNotFound is returned by Update when the record does not exist.
	// Read operations report absence via their found return, not this error.
	ErrNotFound = errors.New("record not found")

	// ErrHandleClosed is returned when operations are called after Close.
	ErrHandleClosed = errors.New("store handle is closed")

	// ErrHandleFailed is returned after a schema upgrade was cancelled
	// mid-flight. The handle cannot be resumed safely; close and reopen.
	ErrHandleFailed = errors.New("store handle failed during upgrade")

	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")
)
