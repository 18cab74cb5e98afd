/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package ddb provides a DynamoDB implementation of datastore.Adapter.

The Adapter supports:
  - Single-table design: every item carries an EntityType attribute
  - Macro-based key expansion from the registry index maps (e.g. "USER#{id}")
  - Global Secondary Index (GSI) queries chosen from equality predicates
  - Paged scans with retry on throttling
  - Opaque base64 cursors for $startCursor and $endCursor

Key Features:

Macro Expansion:
Key attributes are templates over document fields. Entities without a
registered index map use "{KIND}#{id}" for both PK and SK:

	registry.RegisterIndexMap("order", map[string]string{
	    "PK":  "ORDER#{id}",             // Becomes "ORDER#123"
	    "SK":  "ORDER#{id}",
	    "PK1": "CUSTOMER#{customerId}",  // Omitted when customerId is missing
	    "SK1": "ORDER#{id}",
	})

Query Planning:
A filter whose equality predicates bind every macro of a partition key
template becomes a Query on that index; anything else is a Scan. Predicates
DynamoDB can express are pushed into the filter expression and every item is
checked again in process, so results match the other adapters.

UpdateMany and DeleteMany are not implemented.
*/
package ddb
