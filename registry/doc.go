/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package registry holds process-wide lookup tables used while wiring docstores.

Index Map Registry:
Associates entity names with DynamoDB key patterns. Macros reference document
fields; entities without a registered map fall back to "{KIND}#{id}":

	registry.RegisterIndexMap("user", map[string]string{
	    "PK":  "USER#{id}",
	    "SK":  "USER#{id}",
	    "PK1": "EMAIL#{email}",
	    "SK1": "USER",
	})

Driver Registry:
Maps driver names from the configuration ("sqlite", "dynamodb", ...) to
adapter constructors:

	registry.RegisterDriver("sqlite", func(ctx context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error) {
	    return sqlite.Open(cfg.DSN, sqlite.WithLogger(logger))
	})

Both registries are thread-safe and should be populated during initialization.
*/
package registry
