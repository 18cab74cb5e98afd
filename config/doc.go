/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads the docstore bootstrap configuration.
//
// A configuration file is YAML (.yaml, .yml) or TOML (.toml). ${VAR} references
// are expanded from the environment before parsing, after an optional .env file
// next to the configuration has been loaded:
//
//	logging:
//	  level: debug
//	  format: json
//	openapi: api.yaml
//	entities:
//	  - name: user
//	    schema: schemas/user.yaml
//	    tenant:
//	      enabled: true
//	    adapter:
//	      driver: sqlite
//	      dsn: /var/lib/docstore/{tenant}.db
//	      per_tenant: true
//
// Relative schema, openapi and file dsn paths are resolved against the
// configuration file directory.
package config
