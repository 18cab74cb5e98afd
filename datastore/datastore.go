/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Schema validates entities of one type. *schema.Schema implements it.
type Schema interface {
	// Name is the entity type name; events are named "{Name}.created" etc.
	Name() string
	// Validate checks data against the update rules when isUpdate is set,
	// the create rules otherwise.
	Validate(data any, isUpdate bool) (any, error)
}

// Adapter is the contract every storage backend implements.
//
// Queries arrive parsed (control keys separated from predicates) and updates
// arrive normalized to flat $set/$inc paths. Documents always use "id" as the
// identifier; adapters translate to native keys at the boundary. Operations a
// backend cannot support return *errors.NotImplementedError.
//
// Implementations must be pointer types: the Datastore tracks initialization
// per instance.
type Adapter interface {
	Init(ctx context.Context, s Schema) error

	InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error)
	InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error)

	UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error)
	UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error)

	DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error)
	DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error)
	DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error)

	FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error)
	FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error)
	FindOne(ctx context.Context, q *query.Query, opts storagemodels.Options) (storagemodels.Document, error)
	Find(ctx context.Context, q *query.Query, opts storagemodels.Options) ([]storagemodels.Document, error)
	Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error)
}

// Store is the caller-facing datastore surface, implemented by *Datastore and
// by decorators such as *TenantAware.
//
// A nil document, "" id, empty slice or zero count with a nil error means
// nothing matched.
type Store interface {
	Name() string

	InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error)
	InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error)

	UpdateByID(ctx context.Context, id string, update map[string]any, opts storagemodels.Options) (storagemodels.Document, error)
	UpdateMany(ctx context.Context, filter storagemodels.Filter, update map[string]any, opts storagemodels.Options) (int64, error)

	DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error)
	DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error)
	DeleteMany(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error)

	FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error)
	FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error)
	FindOne(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (storagemodels.Document, error)
	Find(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) ([]storagemodels.Document, error)
	Count(ctx context.Context, filter storagemodels.Filter, opts storagemodels.Options) (int64, error)
}
