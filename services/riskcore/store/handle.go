// Copyright (C) 2025 Cephalo Labs (dev@cephalolabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the schema-versioned record store: a namespace
// registry plus a record engine, both backed by a single embedded BadgerDB
// instance.
//
// Namespaces are independent collections of keyed records, created lazily
// on first use by a version-incrementing upgrade transaction. Records carry
// createdAt/updatedAt timestamps with generated index entries for ordered
// scans. The inference pipeline is a read-only consumer of this package.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/cephalolabs/cephalo/pkg/validation"
	storage "github.com/cephalolabs/cephalo/services/riskcore/storage/badger"
)

var storeTracer = otel.Tracer("riskcore.store")

// handleState tracks the registry lifecycle:
// closed -> opening -> open, open -> upgrading -> open.
type handleState int

const (
	stateClosed handleState = iota
	stateOpening
	stateOpen
	stateUpgrading
	stateFailed
)

// Options configures a store Handle.
type Options struct {
	// Dir is the directory for engine files.
	// Required unless InMemory is true.
	Dir string

	// InMemory opens an ephemeral engine (for testing).
	InMemory bool

	// NoSync disables fsync on commit. Faster, loses the tail on crash.
	NoSync bool

	// Namespaces are ensured immediately on open, collapsing their
	// creation into a single upgrade. Optional; namespaces are also
	// created lazily on first use.
	Namespaces []string

	// Logger for registry and engine operations.
	// Default: slog.Default().
	Logger *slog.Logger

	// Clock overrides the time source (for testing).
	// Default: time.Now.
	Clock func() time.Time
}

// nsMarker is the persisted registration of a namespace.
type nsMarker struct {
	Name      string   `json:"name"`
	CreatedAt int64    `json:"created_at"`
	Version   int64    `json:"version"`
	Indexes   []string `json:"indexes"`
}

// generatedIndexes are created for every namespace.
var generatedIndexes = []string{"createdAt", "updatedAt"}

// Handle owns the open engine and the namespace registry.
//
// Description:
//
//	Handle replaces the source's module-level engine singleton with an
//	explicit object: constructed once by the application, passed by
//	reference to all components, closeable in tests. It guarantees a
//	requested namespace exists before any operation touches it, using
//	the minimum number of schema-version upgrades: concurrent
//	EnsureNamespace calls for different missing namespaces coalesce
//	into one physical upgrade transaction.
//
// Thread Safety: Safe for concurrent use.
type Handle struct {
	db     *storage.DB
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	state   handleState
	version int64
	known   map[string]struct{}
	pending map[string]struct{}

	// upgrades serializes upgrade transactions so concurrent
	// EnsureNamespace calls share one in-flight upgrade.
	upgrades singleflight.Group
}

// Open opens the engine and loads the namespace registry.
//
// Description:
//
//	Opens BadgerDB at the configured directory (or in memory), reads the
//	current schema version and the set of registered namespaces, then
//	ensures any namespaces requested in Options in a single upgrade.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	opts - Handle options. Dir is required unless InMemory is true.
//
// Outputs:
//
//	*Handle - The open handle. Caller must call Close() when done.
//	error - ErrEngineBlocked if another process holds the directory lock,
//	        ErrEngineOpenFailed (wrapping the cause) otherwise.
//
// Thread Safety: Safe for concurrent use after Open returns.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	cfg := storage.DefaultConfig()
	if opts.InMemory {
		cfg = storage.InMemoryConfig()
	}
	cfg.Path = opts.Dir
	cfg.Logger = logger
	if opts.NoSync {
		cfg.SyncWrites = false
	}

	db, err := storage.OpenDB(cfg)
	if err != nil {
		if isLockErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrEngineBlocked, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEngineOpenFailed, err)
	}

	h := &Handle{
		db:      db,
		logger:  logger.With(slog.String("component", "store")),
		clock:   clock,
		state:   stateOpening,
		known:   make(map[string]struct{}),
		pending: make(map[string]struct{}),
	}

	if err := h.loadRegistry(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrEngineOpenFailed, err)
	}

	h.mu.Lock()
	h.state = stateOpen
	h.mu.Unlock()

	if len(opts.Namespaces) > 0 {
		if err := h.EnsureNamespaces(ctx, opts.Namespaces...); err != nil {
			db.Close()
			return nil, err
		}
	}

	h.logger.Info("store opened",
		slog.String("dir", opts.Dir),
		slog.Bool("in_memory", opts.InMemory),
		slog.Int64("version", h.Version()),
		slog.Int("namespaces", len(h.known)))

	return h, nil
}

// isLockErr reports whether a badger open error is the directory lock
// held by another live connection.
func isLockErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Cannot acquire directory lock")
}

// loadRegistry reads the schema version and namespace markers.
func (h *Handle) loadRegistry(ctx context.Context) error {
	return h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(versionKey))
		switch {
		case err == nil:
			err = item.Value(func(val []byte) error {
				v, perr := strconv.ParseInt(string(val), 10, 64)
				if perr != nil {
					return perr
				}
				h.version = v
				return nil
			})
			if err != nil {
				return err
			}
		case errors.Is(err, dgbadger.ErrKeyNotFound):
			h.version = 0
		default:
			return err
		}

		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = []byte(nsMarkerPrefix)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			name := strings.TrimPrefix(string(it.Item().Key()), nsMarkerPrefix)
			h.known[name] = struct{}{}
		}
		return nil
	})
}

// EnsureNamespace guarantees that a namespace exists.
//
// Description:
//
//	No-op when the namespace is already registered in this handle.
//	Otherwise the name joins the pending set and one upgrade transaction
//	creates every pending namespace, bumping the schema version exactly
//	once. Concurrent callers share the in-flight upgrade.
//
// Outputs:
//
//	error - ErrHandleClosed / ErrHandleFailed on lifecycle violations,
//	        a validation error for malformed names, or the upgrade error.
//
// Thread Safety: Safe for concurrent use.
func (h *Handle) EnsureNamespace(ctx context.Context, name string) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := validation.ValidateNamespace(name); err != nil {
		return err
	}

	// Coalescing loop: a namespace enqueued after the in-flight upgrade
	// snapshotted its pending set rides the next round.
	for {
		h.mu.Lock()
		switch h.state {
		case stateClosed:
			h.mu.Unlock()
			return ErrHandleClosed
		case stateFailed:
			h.mu.Unlock()
			return ErrHandleFailed
		default:
		}
		if _, ok := h.known[name]; ok {
			h.mu.Unlock()
			return nil
		}
		h.pending[name] = struct{}{}
		h.mu.Unlock()

		_, err, _ := h.upgrades.Do("upgrade", func() (interface{}, error) {
			return nil, h.runUpgrade(ctx)
		})
		if err != nil {
			return err
		}

		h.mu.RLock()
		_, ok := h.known[name]
		h.mu.RUnlock()
		if ok {
			return nil
		}
	}
}

// EnsureNamespaces ensures several namespaces, collapsing their creation
// into as few upgrades as possible (one, when called before other traffic).
func (h *Handle) EnsureNamespaces(ctx context.Context, names ...string) error {
	if ctx == nil {
		return ErrNilContext
	}
	missing := make([]string, 0, len(names))
	h.mu.Lock()
	for _, name := range names {
		if err := validation.ValidateNamespace(name); err != nil {
			h.mu.Unlock()
			return err
		}
		if _, ok := h.known[name]; !ok {
			h.pending[name] = struct{}{}
			missing = append(missing, name)
		}
	}
	h.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}
	for _, name := range missing {
		if err := h.EnsureNamespace(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// runUpgrade executes one schema upgrade transaction creating every
// pending namespace. Called only through the singleflight group.
func (h *Handle) runUpgrade(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "store.Upgrade")
	defer span.End()

	h.mu.Lock()
	if h.state == stateClosed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	if h.state == stateFailed {
		h.mu.Unlock()
		return ErrHandleFailed
	}
	toCreate := make([]string, 0, len(h.pending))
	for name := range h.pending {
		if _, ok := h.known[name]; !ok {
			toCreate = append(toCreate, name)
		}
	}
	h.pending = make(map[string]struct{})
	if len(toCreate) == 0 {
		h.mu.Unlock()
		return nil
	}
	sort.Strings(toCreate)
	prevState := h.state
	h.state = stateUpgrading
	fromVersion := h.version
	h.mu.Unlock()

	span.SetAttributes(
		attribute.StringSlice("namespaces", toCreate),
		attribute.Int64("from_version", fromVersion),
	)

	now := h.clock().UnixMilli()
	newVersion := fromVersion + 1

	err := h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set([]byte(versionKey), []byte(strconv.FormatInt(newVersion, 10))); err != nil {
			return err
		}
		for _, name := range toCreate {
			marker := nsMarker{
				Name:      name,
				CreatedAt: now,
				Version:   newVersion,
				Indexes:   generatedIndexes,
			}
			data, err := json.Marshal(marker)
			if err != nil {
				return err
			}
			if err := txn.Set(nsMarkerKey(name), data); err != nil {
				return err
			}
		}
		return nil
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		// Cancellation mid-upgrade poisons the handle: the version bump
		// may or may not have committed, so the registry cache cannot be
		// trusted. Close and reopen to recover.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(ctx.Err(), context.Canceled) {
			h.state = stateFailed
			storeUpgradesTotal.WithLabelValues("cancelled").Inc()
			span.SetStatus(codes.Error, "upgrade cancelled")
			h.logger.Error("upgrade cancelled, handle poisoned",
				slog.String("error", err.Error()))
			return ErrHandleFailed
		}
		h.state = prevState
		storeUpgradesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		return err
	}

	h.version = newVersion
	for _, name := range toCreate {
		h.known[name] = struct{}{}
	}
	h.state = stateOpen
	storeUpgradesTotal.WithLabelValues("success").Inc()

	h.logger.Info("schema upgraded",
		slog.Int64("version", newVersion),
		slog.Any("created", toCreate))

	return nil
}

// Version returns the current schema version.
func (h *Handle) Version() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Namespaces returns the registered namespace names, sorted.
func (h *Handle) Namespaces() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.known))
	for name := range h.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes the handle and the underlying engine.
// Safe to call multiple times.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == stateClosed {
		h.mu.Unlock()
		return nil
	}
	h.state = stateClosed
	h.mu.Unlock()

	h.logger.Info("store closed")
	return h.db.Close()
}

// checkOpen returns the lifecycle error for the current state, if any.
func (h *Handle) checkOpen() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch h.state {
	case stateClosed:
		return ErrHandleClosed
	case stateFailed:
		return ErrHandleFailed
	default:
		return nil
	}
}
