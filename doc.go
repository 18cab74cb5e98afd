/*
Package docstore is a schema-validated document storage layer with pluggable
backends.

Each entity type gets a Store: it validates documents against a JSON-schema
like definition, normalizes updates into $set/$inc descriptors, delegates to a
storage adapter and emits lifecycle events. Entities may be confined to a
tenant, and an adapter may be opened per tenant.

Backends:
  - memory: in-process maps, for tests and prototypes
  - sqlite: one JSON document per row (modernc.org/sqlite)
  - badger: embedded key/value store
  - dynamodb: single-table design driven by index maps
  - mongo: one collection per entity

Basic Usage:

	cfg, err := config.Load("docstore.yaml")
	if err != nil {
		return err
	}
	m, err := docstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	users, _ := m.Get("user")
	opts := storagemodels.Options{Meta: map[string]any{"tenantId": "t1"}}
	doc, err := users.InsertOne(ctx, storagemodels.Document{"name": "Ada"}, opts)

A configuration file lists the entities:

	logging:
	  level: info
	entities:
	  - name: user
	    schema: schemas/user.yaml
	    tenant:
	      enabled: true
	    adapter:
	      driver: sqlite
	      dsn: data/{tenant}.db
	      per_tenant: true
*/
package docstore
