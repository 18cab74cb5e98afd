/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Config configures a Datastore.
type Config struct {
	Schema  Schema
	Adapter AdapterSource
	// Notifier receives lifecycle events. Defaults to a new asynchronous Emitter.
	Notifier Notifier
	Logger   *slog.Logger
}

// Datastore validates entities against a schema, normalizes updates, delegates
// storage to an adapter and emits lifecycle events. It is safe for concurrent use.
type Datastore struct {
	schema   Schema
	source   AdapterSource
	notifier Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	inits map[Adapter]*initCall
}

var _ Store = (*Datastore)(nil)

// New creates a Datastore.
func New(cfg Config) (*Datastore, error) {
	if cfg.Schema == nil {
		return nil, fmt.Errorf("datastore: schema is required")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("datastore %s: adapter is required", cfg.Schema.Name())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "datastore", "entity", cfg.Schema.Name())

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NewEmitter(WithEmitterLogger(logger))
	}

	return &Datastore{
		schema:   cfg.Schema,
		source:   cfg.Adapter,
		notifier: notifier,
		logger:   logger,
		inits:    make(map[Adapter]*initCall),
	}, nil
}

// Name returns the entity type name.
func (d *Datastore) Name() string {
	return d.schema.Name()
}

// Schema returns the entity schema.
func (d *Datastore) Schema() Schema {
	return d.schema
}

// Notifier returns the event sink.
func (d *Datastore) Notifier() Notifier {
	return d.notifier
}

// On subscribes to events when the notifier is an *Emitter. It returns false
// for other notifiers.
func (d *Datastore) On(event string, l Listener) (func(), bool) {
	e, ok := d.notifier.(*Emitter)
	if !ok {
		return nil, false
	}
	return e.On(event, l), true
}

// notify hands listeners their own copy; the caller keeps and may mutate the
// documents it was returned.
func (d *Datastore) notify(suffix string, data storagemodels.EventData) {
	d.notifier.Notify(EventName(d.schema.Name(), suffix), data.Clone())
}

func (d *Datastore) validateCreate(doc storagemodels.Document) (storagemodels.Document, error) {
	doc = doc.Clone()
	if doc == nil {
		doc = storagemodels.Document{}
	}
	if raw, ok := doc[storagemodels.IDField]; ok && raw != nil && raw != "" {
		id, err := idString(raw)
		if err != nil {
			return nil, err
		}
		doc[storagemodels.IDField] = id
	}
	if _, err := d.schema.Validate(map[string]any(doc), false); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Datastore) convert(update map[string]any) (storagemodels.Update, error) {
	c, err := ConvertUpdate(update)
	if err != nil {
		return storagemodels.Update{}, err
	}
	if _, err := d.schema.Validate(c.Validate, true); err != nil {
		return storagemodels.Update{}, err
	}
	return c.Update, nil
}

// InsertOne validates doc with the create rules and stores it.
func (d *Datastore) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	doc, err := d.validateCreate(doc)
	if err != nil {
		return nil, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}

	inserted, err := a.InsertOne(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	if inserted != nil {
		d.notify(EventCreated, storagemodels.EventData{
			Entities:      []storagemodels.Document{inserted},
			InsertedCount: 1,
		})
	}
	return inserted, nil
}

// InsertMany validates every document before storing any of them.
func (d *Datastore) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	validated := make([]storagemodels.Document, 0, len(docs))
	for _, doc := range docs {
		v, err := d.validateCreate(doc)
		if err != nil {
			return nil, err
		}
		validated = append(validated, v)
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}

	inserted, err := a.InsertMany(ctx, validated, opts)
	if err != nil {
		return nil, err
	}
	if len(inserted) > 0 {
		d.notify(EventCreated, storagemodels.EventData{
			Entities:      inserted,
			InsertedCount: int64(len(inserted)),
		})
	}
	return inserted, nil
}

// UpdateByID applies update to the entity with id.
func (d *Datastore) UpdateByID(ctx context.Context, id string, update map[string]any, opts storagemodels.Options) (storagemodels.Document, error) {
	u, err := d.convert(update)
	if err != nil {
		return nil, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}

	updated, err := a.UpdateByID(ctx, id, u, opts)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		d.notify(EventUpdated, storagemodels.EventData{
			Entities:     []storagemodels.Document{updated},
			UpdatedCount: 1,
		})
	}
	return updated, nil
}

// UpdateMany applies update to every entity matching filter. The event
// carries the filter and count, not the documents.
func (d *Datastore) UpdateMany(ctx context.Context, filter storagemodels.Filter, update map[string]any, opts storagemodels.Options) (int64, error) {
	u, err := d.convert(update)
	if err != nil {
		return 0, err
	}
	q, err := query.Parse(filter)
	if err != nil {
		return 0, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return 0, err
	}

	n, err := a.UpdateMany(ctx, q, u, opts)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.notify(EventUpdated, storagemodels.EventData{Filter: filter, UpdatedCount: n})
	}
	return n, nil
}

// DeleteByID deletes the entity with id and returns its id, or "" when absent.
func (d *Datastore) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return "", err
	}

	deleted, err := a.DeleteByID(ctx, id, opts)
	if err != nil {
		return "", err
	}
	if deleted != "" {
		d.notify(EventDeleted, storagemodels.EventData{IDs: []string{deleted}, DeletedCount: 1})
	}
	return deleted, nil
}

// DeleteByIDs deletes the entities with ids and returns the ids that existed.
func (d *Datastore) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}

	// adapters without atomic batches may report a partial result with err
	deleted, err := a.DeleteByIDs(ctx, ids, opts)
	if len(deleted) > 0 {
		d.notify(EventDeleted, storagemodels.EventData{IDs: deleted, DeletedCount: int64(len(deleted))})
	}
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

// DeleteMany deletes every entity matching filter.
func (d *Datastore) DeleteMany(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error) {
	q, err := query.Parse(filter)
	if err != nil {
		return 0, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return 0, err
	}

	n, err := a.DeleteMany(ctx, q, opts)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.notify(EventDeleted, storagemodels.EventData{Filter: filter, DeletedCount: n})
	}
	return n, nil
}

// FindByID returns the entity with id, or nil.
func (d *Datastore) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return a.FindByID(ctx, id, opts)
}

// FindByIDs returns the entities with ids that exist.
func (d *Datastore) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return a.FindByIDs(ctx, ids, opts)
}

// FindOne returns the first entity matching filter, or nil.
func (d *Datastore) FindOne(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (storagemodels.Document, error) {
	q, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return a.FindOne(ctx, q, opts)
}

// Find returns the entities matching filter.
func (d *Datastore) Find(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) ([]storagemodels.Document, error) {
	q, err := query.Parse(filter)
	if err != nil {
		return nil, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return nil, err
	}
	return a.Find(ctx, q, opts)
}

// Count returns the number of entities matching filter.
func (d *Datastore) Count(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error) {
	q, err := query.Parse(filter)
	if err != nil {
		return 0, err
	}
	a, err := d.Adapter(ctx, opts)
	if err != nil {
		return 0, err
	}
	return a.Count(ctx, q, opts)
}
