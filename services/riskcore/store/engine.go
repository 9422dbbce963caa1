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
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cephalolabs/cephalo/pkg/validation"
)

// Engine provides record CRUD and query operations over namespaces.
//
// Description:
//
//	Every operation ensures its target namespace exists first, then runs
//	as exactly one engine transaction scoped to that namespace: read-only
//	for reads, read-write for mutations. No multi-call transactions are
//	exposed. Writes maintain the generated createdAt/updatedAt index
//	entries inside the same transaction.
//
// Thread Safety: Safe for concurrent use. The engine serializes
// conflicting read-write transactions; reads are isolated from in-flight
// writes.
type Engine struct {
	h      *Handle
	logger *slog.Logger
}

// NewEngine creates a record engine over an open handle.
func NewEngine(h *Handle) *Engine {
	return &Engine{
		h:      h,
		logger: h.logger.With(slog.String("component", "engine")),
	}
}

// Handle returns the underlying store handle.
func (e *Engine) Handle() *Handle {
	return e.h
}

// prepare runs the shared per-operation preamble: context and lifecycle
// checks, id/namespace validation, namespace creation.
func (e *Engine) prepare(ctx context.Context, ns, id string, needID bool) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := e.h.checkOpen(); err != nil {
		return err
	}
	if needID {
		if err := validation.ValidateRecordID(id); err != nil {
			return err
		}
	}
	return e.h.EnsureNamespace(ctx, ns)
}

// observe records operation metrics. Use as:
//
//	defer e.observe("create", time.Now())(&err)
func (e *Engine) observe(op string, start time.Time) func(err *error) {
	return func(err *error) {
		status := "success"
		if *err != nil {
			status = "error"
		}
		storeOperationsTotal.WithLabelValues(op, status).Inc()
		storeOperationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Create inserts a new record.
//
// Description:
//
//	Fails with ErrDuplicateKey if the id already exists in the
//	namespace; never overwrites. createdAt and updatedAt are both set
//	to the current time.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Create(ctx context.Context, ns, id string, data json.RawMessage) (err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return err
	}
	defer e.observe("create", time.Now())(&err)

	ctx, span := storeTracer.Start(ctx, "store.Create")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns))

	now := e.h.clock().UnixMilli()
	rec := Record{ID: id, Data: data, CreatedAt: now, UpdatedAt: now}
	encoded, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	err = e.h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		_, getErr := txn.Get(recKey(ns, id))
		switch {
		case getErr == nil:
			return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, ns, id)
		case !errors.Is(getErr, dgbadger.ErrKeyNotFound):
			return getErr
		}
		if err := txn.Set(recKey(ns, id), encoded); err != nil {
			return err
		}
		if err := txn.Set(createdIdxKey(ns, now, id), nil); err != nil {
			return err
		}
		return txn.Set(updatedIdxKey(ns, now, id), nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return err
	}
	return nil
}

// Upsert inserts or unconditionally overwrites a record.
//
// Description:
//
//	Preserves createdAt from any existing record (defaulting to now when
//	absent) and bumps updatedAt. Idempotent: two upserts with the same
//	(id, data) leave the namespace in the same observable state except
//	for updatedAt.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Upsert(ctx context.Context, ns, id string, data json.RawMessage) (err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return err
	}
	defer e.observe("upsert", time.Now())(&err)

	ctx, span := storeTracer.Start(ctx, "store.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns))

	now := e.h.clock().UnixMilli()

	err = e.h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		createdAt := now
		prevUpdated := int64(-1)

		item, getErr := txn.Get(recKey(ns, id))
		switch {
		case getErr == nil:
			valErr := item.Value(func(val []byte) error {
				prev, derr := decodeRecord(val)
				if derr != nil {
					return derr
				}
				createdAt = prev.CreatedAt
				prevUpdated = prev.UpdatedAt
				return nil
			})
			if valErr != nil {
				return valErr
			}
		case !errors.Is(getErr, dgbadger.ErrKeyNotFound):
			return getErr
		}

		rec := Record{ID: id, Data: data, CreatedAt: createdAt, UpdatedAt: now}
		encoded, encErr := encodeRecord(rec)
		if encErr != nil {
			return encErr
		}
		if err := txn.Set(recKey(ns, id), encoded); err != nil {
			return err
		}
		if prevUpdated >= 0 && prevUpdated != now {
			if err := txn.Delete(updatedIdxKey(ns, prevUpdated, id)); err != nil {
				return err
			}
		}
		if prevUpdated < 0 {
			if err := txn.Set(createdIdxKey(ns, createdAt, id), nil); err != nil {
				return err
			}
		}
		return txn.Set(updatedIdxKey(ns, now, id), nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return err
	}
	return nil
}

// Update shallow-merges a partial payload into an existing record.
//
// Description:
//
//	Fails with ErrNotFound if the record does not exist; never creates.
//	Top-level keys of partial overwrite the existing payload; other keys
//	are preserved. updatedAt is bumped, createdAt untouched.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Update(ctx context.Context, ns, id string, partial json.RawMessage) (err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return err
	}
	defer e.observe("update", time.Now())(&err)

	ctx, span := storeTracer.Start(ctx, "store.Update")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns))

	now := e.h.clock().UnixMilli()

	err = e.h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, getErr := txn.Get(recKey(ns, id))
		if errors.Is(getErr, dgbadger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, ns, id)
		}
		if getErr != nil {
			return getErr
		}

		var prev Record
		if err := item.Value(func(val []byte) error {
			var derr error
			prev, derr = decodeRecord(val)
			return derr
		}); err != nil {
			return err
		}

		merged, mergeErr := mergePatch(prev.Data, partial)
		if mergeErr != nil {
			return mergeErr
		}

		rec := Record{ID: id, Data: merged, CreatedAt: prev.CreatedAt, UpdatedAt: now}
		encoded, encErr := encodeRecord(rec)
		if encErr != nil {
			return encErr
		}
		if err := txn.Set(recKey(ns, id), encoded); err != nil {
			return err
		}
		if prev.UpdatedAt != now {
			if err := txn.Delete(updatedIdxKey(ns, prev.UpdatedAt, id)); err != nil {
				return err
			}
		}
		return txn.Set(updatedIdxKey(ns, now, id), nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return nil
}

// Read returns the full record for an id.
//
// Absence is reported via found=false, not an error.
func (e *Engine) Read(ctx context.Context, ns, id string) (rec Record, found bool, err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return Record{}, false, err
	}
	defer e.observe("read", time.Now())(&err)

	err = e.h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, getErr := txn.Get(recKey(ns, id))
		if errors.Is(getErr, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			var derr error
			rec, derr = decodeRecord(val)
			found = derr == nil
			return derr
		})
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, found, nil
}

// ReadData returns just the payload for an id.
func (e *Engine) ReadData(ctx context.Context, ns, id string) (json.RawMessage, bool, error) {
	rec, found, err := e.Read(ctx, ns, id)
	if err != nil || !found {
		return nil, found, err
	}
	return rec.Data, true, nil
}

// ReadAll returns every record in the namespace, ordered by ascending id.
//
// Numeric ids order numerically and precede string ids; string ids order
// lexicographically. The ordering falls out of the key encoding.
func (e *Engine) ReadAll(ctx context.Context, ns string) (recs []Record, err error) {
	if err = e.prepare(ctx, ns, "", false); err != nil {
		return nil, err
	}
	defer e.observe("read_all", time.Now())(&err)

	recs = make([]Record, 0)
	err = e.h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.Prefix = recPrefix(ns)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, derr := decodeRecord(val)
				if derr != nil {
					return derr
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadAllData returns every payload in the namespace, ordered by ascending id.
func (e *Engine) ReadAllData(ctx context.Context, ns string) ([]json.RawMessage, error) {
	recs, err := e.ReadAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(recs))
	for i, rec := range recs {
		out[i] = rec.Data
	}
	return out, nil
}

// ReadRange returns records with sinceMs <= createdAt < untilMs, ordered
// by ascending createdAt, via the generated createdAt index.
//
// The prediction pipeline uses this for its history window.
func (e *Engine) ReadRange(ctx context.Context, ns string, sinceMs, untilMs int64) (recs []Record, err error) {
	if err = e.prepare(ctx, ns, "", false); err != nil {
		return nil, err
	}
	defer e.observe("read_range", time.Now())(&err)

	recs = make([]Record, 0)
	err = e.h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = createdIdxPrefix(ns)
		it := txn.NewIterator(iopts)
		defer it.Close()

		// Seek to the first index entry at or after sinceMs. The id
		// segment is omitted so ids at exactly sinceMs are included.
		seek := []byte(fmt.Sprintf("ns:%s:idx:created:%020d:", ns, sinceMs))
		for it.Seek(seek); it.Valid(); it.Next() {
			ms, id, ok := parseCreatedIdxKey(ns, it.Item().Key())
			if !ok {
				continue
			}
			if ms >= untilMs {
				break
			}
			item, getErr := txn.Get(recKey(ns, id))
			if errors.Is(getErr, dgbadger.ErrKeyNotFound) {
				continue // index entry without a record should not happen
			}
			if getErr != nil {
				return getErr
			}
			if err := item.Value(func(val []byte) error {
				rec, derr := decodeRecord(val)
				if derr != nil {
					return derr
				}
				recs = append(recs, rec)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Delete removes a record. Missing ids are a no-op; deleted reports
// whether a record was actually removed.
func (e *Engine) Delete(ctx context.Context, ns, id string) (deleted bool, err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return false, err
	}
	defer e.observe("delete", time.Now())(&err)

	ctx, span := storeTracer.Start(ctx, "store.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns))

	err = e.h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, getErr := txn.Get(recKey(ns, id))
		if errors.Is(getErr, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}

		var prev Record
		if err := item.Value(func(val []byte) error {
			var derr error
			prev, derr = decodeRecord(val)
			return derr
		}); err != nil {
			return err
		}

		if err := txn.Delete(recKey(ns, id)); err != nil {
			return err
		}
		if err := txn.Delete(createdIdxKey(ns, prev.CreatedAt, id)); err != nil {
			return err
		}
		if err := txn.Delete(updatedIdxKey(ns, prev.UpdatedAt, id)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return false, err
	}
	return deleted, nil
}

// Clear removes every record and index entry in the namespace.
// The namespace itself stays registered (namespaces are never removed).
func (e *Engine) Clear(ctx context.Context, ns string) (removed int, err error) {
	if err = e.prepare(ctx, ns, "", false); err != nil {
		return 0, err
	}
	defer e.observe("clear", time.Now())(&err)

	ctx, span := storeTracer.Start(ctx, "store.Clear")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", ns))

	err = e.h.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = nsPrefix(ns)
		it := txn.NewIterator(iopts)
		defer it.Close()

		var keys [][]byte
		recP := string(recPrefix(ns))
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) >= len(recP) && string(key[:len(recP)]) == recP {
				removed++
			}
			keys = append(keys, key)
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "clear failed")
		return 0, err
	}
	storeRecordsGauge.WithLabelValues(ns).Set(0)
	return removed, nil
}

// Count returns the number of records in the namespace.
func (e *Engine) Count(ctx context.Context, ns string) (n int, err error) {
	if err = e.prepare(ctx, ns, "", false); err != nil {
		return 0, err
	}
	defer e.observe("count", time.Now())(&err)

	err = e.h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		iopts.Prefix = recPrefix(ns)
		it := txn.NewIterator(iopts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	storeRecordsGauge.WithLabelValues(ns).Set(float64(n))
	return n, nil
}

// Exists reports whether a record exists.
func (e *Engine) Exists(ctx context.Context, ns, id string) (exists bool, err error) {
	if err = e.prepare(ctx, ns, id, true); err != nil {
		return false, err
	}
	defer e.observe("exists", time.Now())(&err)

	err = e.h.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		_, getErr := txn.Get(recKey(ns, id))
		if errors.Is(getErr, dgbadger.ErrKeyNotFound) {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Query returns records matching a client-side predicate, in id order.
//
// The predicate runs over ReadAll; there is no server-side filtering.
func (e *Engine) Query(ctx context.Context, ns string, filter func(Record) bool) ([]Record, error) {
	recs, err := e.ReadAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if filter(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
