/*
Package storagemodels defines the data structures shared by the datastore and
its storage adapters.

Key Types:

Document:
An entity as exchanged with every adapter; "id" is always the identifier key.

	doc := Document{"id": "u1", "name": "Ada", "address": map[string]any{"city": "Sydney"}}

Filter:
A raw query mixing control metadata with predicate fields:

	filter := Filter{
	    "$select": "id,name",
	    "$limit":  10,
	    "$sort":   "-createdAt,name",
	    "state":   "NSW",
	    "age":     map[string]any{"$gte": 18},
	}

Update:
The canonical update descriptor with flat dotted paths:

	Update{Set: map[string]any{"address.city": "Perth"}, Inc: map[string]any{"logins": 1}}

Options:
Per-call metadata (tenant id, bypass flags) and an optional transaction handle.

EventData:
The payload delivered to lifecycle event listeners.
*/
package storagemodels
