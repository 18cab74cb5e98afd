/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package badger implements datastore.Adapter on an embedded Badger key-value store.
//
// Documents are stored as JSON under "doc:{entity}:{id}". Predicates, sorting
// and paging are evaluated in process over a prefix scan, so unsorted results
// come back in id order. A *badger.Txn passed in Options.Tx is used instead of
// a managed transaction; the caller commits it.
package badger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithPrefix overrides the key namespace, which defaults to the entity name.
func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.namespace = prefix
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter stores documents in Badger.
type Adapter struct {
	db        *badger.DB
	owned     bool
	namespace string
	kind      string
	logger    *slog.Logger
}

var _ datastore.Adapter = (*Adapter)(nil)

// Open opens a Badger database at path, or an in-memory one when path is empty.
func Open(path string, opts ...Option) (*Adapter, error) {
	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil
	bopts.NumVersionsToKeep = 1

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	a := NewWithDB(db, opts...)
	a.owned = true
	a.logger.Info("Badger adapter opened", "path", path, "in_memory", path == "")
	return a, nil
}

// NewWithDB uses an existing database. Close does not close it.
func NewWithDB(db *badger.DB, opts ...Option) *Adapter {
	a := &Adapter{db: db}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "badger")
	}
	return a
}

// DB returns the underlying database.
func (a *Adapter) DB() *badger.DB {
	return a.db
}

func (a *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	a.kind = s.Name()
	if a.namespace == "" {
		a.namespace = s.Name()
	}
	return nil
}

// Close closes the database when the adapter opened it.
func (a *Adapter) Close() error {
	if !a.owned {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) prefix() []byte {
	return []byte(fmt.Sprintf("doc:%s:", a.namespace))
}

func (a *Adapter) key(id string) []byte {
	return []byte(fmt.Sprintf("doc:%s:%s", a.namespace, id))
}

func (a *Adapter) update(opts storagemodels.Options, fn func(*badger.Txn) error) error {
	if txn, ok := opts.Tx.(*badger.Txn); ok && txn != nil {
		return fn(txn)
	}
	return a.db.Update(fn)
}

func (a *Adapter) view(opts storagemodels.Options, fn func(*badger.Txn) error) error {
	if txn, ok := opts.Tx.(*badger.Txn); ok && txn != nil {
		return fn(txn)
	}
	return a.db.View(fn)
}

func (a *Adapter) get(txn *badger.Txn, id string) (storagemodels.Document, error) {
	item, err := txn.Get(a.key(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", id, err)
	}
	var doc storagemodels.Document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	return doc, nil
}

func (a *Adapter) put(txn *badger.Txn, doc storagemodels.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	return txn.Set(a.key(doc.ID()), data)
}

// scan calls fn for every document of the entity, in key order.
func (a *Adapter) scan(txn *badger.Txn, fn func(storagemodels.Document) error) error {
	prefix := a.prefix()
	iopts := badger.DefaultIteratorOptions
	iopts.Prefix = prefix
	it := txn.NewIterator(iopts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var doc storagemodels.Document
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) matching(txn *badger.Txn, q *query.Query) ([]storagemodels.Document, error) {
	var out []storagemodels.Document
	err := a.scan(txn, func(doc storagemodels.Document) error {
		ok, err := q.Matches(doc)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, doc)
		}
		return nil
	})
	return out, err
}

func (a *Adapter) insert(txn *badger.Txn, doc storagemodels.Document) (storagemodels.Document, error) {
	out := doc.Clone()
	if out == nil {
		out = storagemodels.Document{}
	}
	if err := datastore.AssignID(out, uuid.NewString); err != nil {
		return nil, err
	}
	existing, err := a.get(txn, out.ID())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.NewAlreadyExistsError(a.kind, out.ID())
	}
	if err := a.put(txn, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	var out storagemodels.Document
	err := a.update(opts, func(txn *badger.Txn) error {
		var err error
		out, err = a.insert(txn, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertMany writes every document in one transaction.
func (a *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	out := make([]storagemodels.Document, 0, len(docs))
	err := a.update(opts, func(txn *badger.Txn) error {
		for _, d := range docs {
			inserted, err := a.insert(txn, d)
			if err != nil {
				return err
			}
			out = append(out, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	var out storagemodels.Document
	err := a.update(opts, func(txn *badger.Txn) error {
		doc, err := a.get(txn, id)
		if err != nil || doc == nil {
			return err
		}
		if err := datastore.ApplyUpdate(doc, u); err != nil {
			return err
		}
		if err := a.put(txn, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	var n int64
	err := a.update(opts, func(txn *badger.Txn) error {
		docs, err := a.matching(txn, q)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := datastore.ApplyUpdate(doc, u); err != nil {
				return err
			}
			if err := a.put(txn, doc); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	ids, err := a.DeleteByIDs(ctx, []string{id}, opts)
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}

func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	err := a.update(opts, func(txn *badger.Txn) error {
		for _, id := range ids {
			_, err := txn.Get(a.key(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("getting %s: %w", id, err)
			}
			if err := txn.Delete(a.key(id)); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			deleted = append(deleted, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteMany ignores $limit and $offset.
func (a *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	var n int64
	err := a.update(opts, func(txn *badger.Txn) error {
		docs, err := a.matching(txn, q)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if err := txn.Delete(a.key(doc.ID())); err != nil {
				return fmt.Errorf("deleting %s: %w", doc.ID(), err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (a *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	var out storagemodels.Document
	err := a.view(opts, func(txn *badger.Txn) error {
		var err error
		out, err = a.get(txn, id)
		return err
	})
	return out, err
}

func (a *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	out := make([]storagemodels.Document, 0, len(ids))
	err := a.view(opts, func(txn *badger.Txn) error {
		for _, id := range ids {
			doc, err := a.get(txn, id)
			if err != nil {
				return err
			}
			if doc != nil {
				out = append(out, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
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
	var all []storagemodels.Document
	err := a.view(opts, func(txn *badger.Txn) error {
		return a.scan(txn, func(doc storagemodels.Document) error {
			all = append(all, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return query.Apply(all, q)
}

// Count ignores $limit and $offset.
func (a *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	var n int64
	err := a.view(opts, func(txn *badger.Txn) error {
		docs, err := a.matching(txn, q)
		n = int64(len(docs))
		return err
	})
	return n, err
}
