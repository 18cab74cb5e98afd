/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package memory implements datastore.Adapter with in-process maps.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithIDGenerator replaces the default UUID generator for documents inserted without an id.
func WithIDGenerator(f func() string) Option {
	return func(a *Adapter) {
		a.newID = f
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter keeps documents in memory. Results are returned in insertion order
// unless a sort is requested. Returned documents are copies.
type Adapter struct {
	mu     sync.RWMutex
	kind   string
	docs   map[string]storagemodels.Document
	order  []string
	newID  func() string
	logger *slog.Logger
}

var _ datastore.Adapter = (*Adapter)(nil)

// New creates an empty Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		docs:  make(map[string]storagemodels.Document),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "memory")
	}
	return a
}

func (a *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kind = s.Name()
	a.logger.Info("memory adapter ready", "entity", a.kind)
	return nil
}

func (a *Adapter) prepare(doc storagemodels.Document) (storagemodels.Document, error) {
	out := doc.Clone()
	if out == nil {
		out = storagemodels.Document{}
	}
	if err := datastore.AssignID(out, a.newID); err != nil {
		return nil, err
	}
	if _, exists := a.docs[out.ID()]; exists {
		return nil, errors.NewAlreadyExistsError(a.kind, out.ID())
	}
	return out, nil
}

func (a *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored, err := a.prepare(doc)
	if err != nil {
		return nil, err
	}
	a.put(stored)
	return stored.Clone(), nil
}

// InsertMany stores all documents or none of them.
func (a *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	batch := make([]storagemodels.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		stored, err := a.prepare(d)
		if err != nil {
			return nil, err
		}
		if seen[stored.ID()] {
			return nil, errors.NewAlreadyExistsError(a.kind, stored.ID())
		}
		seen[stored.ID()] = true
		batch = append(batch, stored)
	}

	out := make([]storagemodels.Document, len(batch))
	for i, d := range batch {
		a.put(d)
		out[i] = d.Clone()
	}
	return out, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, ok := a.docs[id]
	if !ok {
		return nil, nil
	}
	next := doc.Clone()
	if err := datastore.ApplyUpdate(next, u); err != nil {
		return nil, err
	}
	a.docs[id] = next
	return next.Clone(), nil
}

func (a *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, err := a.matching(q)
	if err != nil {
		return 0, err
	}
	updated := make(map[string]storagemodels.Document, len(ids))
	for _, id := range ids {
		next := a.docs[id].Clone()
		if err := datastore.ApplyUpdate(next, u); err != nil {
			return 0, err
		}
		updated[id] = next
	}
	for id, d := range updated {
		a.docs[id] = d
	}
	return int64(len(updated)), nil
}

func (a *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.docs[id]; !ok {
		return "", nil
	}
	a.remove(id)
	return id, nil
}

func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := a.docs[id]; ok {
			a.remove(id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (a *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, err := a.matching(q)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		a.remove(id)
	}
	return int64(len(ids)), nil
}

func (a *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if doc, ok := a.docs[id]; ok {
		return doc.Clone(), nil
	}
	return nil, nil
}

func (a *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]storagemodels.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := a.docs[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (a *Adapter) FindOne(ctx context.Context, q *query.Query, opts storagemodels.Options) (storagemodels.Document, error) {
	one := 1
	limited := query.All()
	if q != nil {
		*limited = *q
	}
	limited.Filters.Limit = &one

	docs, err := a.Find(ctx, limited, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

func (a *Adapter) Find(ctx context.Context, q *query.Query, opts storagemodels.Options) ([]storagemodels.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	all := make([]storagemodels.Document, 0, len(a.order))
	for _, id := range a.order {
		all = append(all, a.docs[id].Clone())
	}
	return query.Apply(all, q)
}

// Count ignores $limit and $offset.
func (a *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids, err := a.matching(q)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// Len returns the number of stored documents.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.docs)
}

// matching returns the ids whose documents satisfy the predicate of q. Callers hold the lock.
func (a *Adapter) matching(q *query.Query) ([]string, error) {
	var ids []string
	for _, id := range a.order {
		ok, err := q.Matches(a.docs[id])
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (a *Adapter) put(doc storagemodels.Document) {
	a.docs[doc.ID()] = doc
	a.order = append(a.order, doc.ID())
}

func (a *Adapter) remove(id string) {
	delete(a.docs, id)
	for i, o := range a.order {
		if o == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}
