/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mongo implements datastore.Adapter on a MongoDB collection.
//
// Document ids map to _id: 24-hex ids are stored as ObjectIDs, any other id as
// a string. Predicates, sorting, paging and projection run on the server;
// $like becomes an anchored $regex. Cursors are not supported. A
// mongo.SessionContext passed in Options.Tx runs the operation inside the
// caller's session.
package mongo

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithCollection overrides the collection name, which defaults to the entity name.
func WithCollection(name string) Option {
	return func(a *Adapter) {
		a.collName = name
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// Adapter stores documents in one MongoDB collection.
type Adapter struct {
	client   *driver.Client
	owned    bool
	db       *driver.Database
	collName string
	coll     *driver.Collection
	kind     string
	logger   *slog.Logger
}

var _ datastore.Adapter = (*Adapter)(nil)

// Connect dials uri and uses database. Close disconnects the client.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Adapter, error) {
	client, err := driver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	a := New(client.Database(database), opts...)
	a.client = client
	a.owned = true
	a.logger.Info("MongoDB adapter connected", "database", database)
	return a, nil
}

// New uses an existing database handle. Close leaves its client connected.
func New(db *driver.Database, opts ...Option) *Adapter {
	a := &Adapter{db: db}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default().With("component", "mongo")
	}
	return a
}

// Collection returns the collection handle, or nil before Init.
func (a *Adapter) Collection() *driver.Collection {
	return a.coll
}

func (a *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	a.kind = s.Name()
	if a.collName == "" {
		a.collName = s.Name()
	}
	a.coll = a.db.Collection(a.collName)
	return nil
}

// Close disconnects the client when the adapter dialed it.
func (a *Adapter) Close() error {
	if !a.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.client.Disconnect(ctx)
}

// session runs inside the caller's session when Options.Tx carries one.
func session(ctx context.Context, opts storagemodels.Options) context.Context {
	if sc, ok := opts.Tx.(driver.SessionContext); ok && sc != nil {
		return sc
	}
	return ctx
}

func (a *Adapter) prepare(doc storagemodels.Document) (storagemodels.Document, error) {
	out := doc.Clone()
	if out == nil {
		out = storagemodels.Document{}
	}
	if err := datastore.AssignID(out, newObjectID); err != nil {
		return nil, err
	}
	return out, nil
}

func newObjectID() string {
	return primitive.NewObjectID().Hex()
}

func (a *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	out, err := a.prepare(doc)
	if err != nil {
		return nil, err
	}
	if _, err := a.coll.InsertOne(session(ctx, opts), toBSON(out)); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return nil, errors.NewAlreadyExistsError(a.kind, out.ID())
		}
		return nil, fmt.Errorf("insert into %s: %w", a.collName, err)
	}
	return out, nil
}

// InsertMany inserts in order. Outside a caller session, documents written
// before a failure are removed again.
func (a *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if len(docs) == 0 {
		return []storagemodels.Document{}, nil
	}
	out := make([]storagemodels.Document, len(docs))
	batch := make([]any, len(docs))
	for i, d := range docs {
		prepared, err := a.prepare(d)
		if err != nil {
			return nil, err
		}
		out[i] = prepared
		batch[i] = toBSON(prepared)
	}

	ctx = session(ctx, opts)
	_, err := a.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true))
	if err == nil {
		return out, nil
	}

	failed := 0
	var bwe driver.BulkWriteException
	if stderrors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		failed = bwe.WriteErrors[0].Index
	}
	if opts.Tx == nil && failed > 0 {
		ids := make(bson.A, failed)
		for i := range ids {
			ids[i] = objectID(out[i].ID())
		}
		if _, derr := a.coll.DeleteMany(ctx, bson.M{idField: bson.M{"$in": ids}}); derr != nil {
			a.logger.Warn("Failed to roll back partial insert", "collection", a.collName, "error", derr)
		}
	}
	if driver.IsDuplicateKeyError(err) {
		return nil, errors.NewAlreadyExistsError(a.kind, out[failed].ID())
	}
	return nil, fmt.Errorf("insert into %s: %w", a.collName, err)
}

func (a *Adapter) decodeOne(res *driver.SingleResult) (storagemodels.Document, error) {
	var m bson.M
	if err := res.Decode(&m); err != nil {
		if stderrors.Is(err, driver.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding %s document: %w", a.collName, err)
	}
	return fromBSON(m), nil
}

func (a *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	update := toUpdate(u)
	if len(update) == 0 {
		return a.FindByID(ctx, id, opts)
	}
	res := a.coll.FindOneAndUpdate(session(ctx, opts), bson.M{idField: objectID(id)}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After))
	return a.decodeOne(res)
}

func (a *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	filter, err := a.filter(q)
	if err != nil {
		return 0, err
	}
	update := toUpdate(u)
	if len(update) == 0 {
		return a.coll.CountDocuments(session(ctx, opts), filter)
	}
	res, err := a.coll.UpdateMany(session(ctx, opts), filter, update)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", a.collName, err)
	}
	return res.MatchedCount, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	res, err := a.coll.DeleteOne(session(ctx, opts), bson.M{idField: objectID(id)})
	if err != nil {
		return "", fmt.Errorf("delete from %s: %w", a.collName, err)
	}
	if res.DeletedCount == 0 {
		return "", nil
	}
	return id, nil
}

func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		got, err := a.DeleteByID(ctx, id, opts)
		if err != nil {
			return nil, err
		}
		if got != "" {
			deleted = append(deleted, got)
		}
	}
	return deleted, nil
}

// DeleteMany ignores $limit and $offset.
func (a *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	filter, err := a.filter(q)
	if err != nil {
		return 0, err
	}
	res, err := a.coll.DeleteMany(session(ctx, opts), filter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", a.collName, err)
	}
	return res.DeletedCount, nil
}

func (a *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	return a.decodeOne(a.coll.FindOne(session(ctx, opts), bson.M{idField: objectID(id)}))
}

func (a *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	if len(ids) == 0 {
		return []storagemodels.Document{}, nil
	}
	keys := make(bson.A, len(ids))
	for i, id := range ids {
		keys[i] = objectID(id)
	}
	docs, err := a.find(session(ctx, opts), bson.M{idField: bson.M{"$in": keys}}, options.Find())
	if err != nil {
		return nil, err
	}

	byID := make(map[string]storagemodels.Document, len(docs))
	for _, d := range docs {
		byID[d.ID()] = d
	}
	out := make([]storagemodels.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
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
	if q == nil {
		q = query.All()
	}
	filter, err := a.filter(q)
	if err != nil {
		return nil, err
	}

	f := q.Filters
	if f.Limit != nil && *f.Limit == 0 {
		return []storagemodels.Document{}, nil
	}
	findOpts := options.Find()
	if s := toSort(f.SortFields()); s != nil {
		findOpts.SetSort(s)
	}
	if p := toProjection(f.Fields()); p != nil {
		findOpts.SetProjection(p)
	}
	if f.Offset != nil {
		findOpts.SetSkip(int64(*f.Offset))
	}
	if f.Limit != nil {
		findOpts.SetLimit(int64(*f.Limit))
	}
	return a.find(session(ctx, opts), filter, findOpts)
}

// Count ignores $limit and $offset.
func (a *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	filter, err := a.filter(q)
	if err != nil {
		return 0, err
	}
	n, err := a.coll.CountDocuments(session(ctx, opts), filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", a.collName, err)
	}
	return n, nil
}

func (a *Adapter) filter(q *query.Query) (bson.M, error) {
	if q == nil {
		return bson.M{}, nil
	}
	return toFilter(q.Predicate)
}

func (a *Adapter) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]storagemodels.Document, error) {
	cur, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", a.collName, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("reading %s cursor: %w", a.collName, err)
	}
	out := make([]storagemodels.Document, len(raw))
	for i, m := range raw {
		out[i] = fromBSON(m)
	}
	return out, nil
}
