/*
Package datastore orchestrates entity storage over pluggable backends.

A Datastore validates entities against a Schema, normalizes updates into flat
$set/$inc descriptors, delegates to an Adapter and emits lifecycle events:

	ds, err := datastore.New(datastore.Config{
	    Schema:  userSchema,
	    Adapter: datastore.Fixed(memory.New()),
	})

	ds.On("user.created", func(event string, data storagemodels.EventData) { ... })
	ds.On(datastore.Wildcard, func(event string, data storagemodels.EventData) { ... })

	user, err := ds.InsertOne(ctx, storagemodels.Document{"name": "ann"}, storagemodels.Options{})
	user, err = ds.UpdateByID(ctx, user.ID(), map[string]any{"$inc": map[string]any{"logins": 1}}, storagemodels.Options{})

Adapters may be fixed or chosen per call with an AdapterFactory, which is how
per-tenant databases are pooled. Every distinct adapter instance is
initialized once with the schema.

Events are "{entity}.created", "{entity}.updated" and "{entity}.deleted".
They are only emitted when the operation changed something, and listeners
never block or fail the operation.

TenantAware wraps any Store and confines it to the tenant named in
Options.Meta (key "tenantId" by default):

	store := datastore.NewTenantAware(ds, datastore.TenantConfig{})
	opts := storagemodels.Options{Meta: map[string]any{"tenantId": "t1"}}
	docs, err := store.Find(ctx, storagemodels.Filter{"status": "active"}, opts)

Implementations:
  - memory: in-process maps
  - sqlite: SQLite via modernc.org/sqlite with JSON documents
  - badger: Badger key-value store
  - ddb: DynamoDB single-table design
  - mongo: MongoDB collections
  - mock: testify mocks for tests
*/
package datastore
