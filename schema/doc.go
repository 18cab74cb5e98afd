/*
Package schema validates entity documents against JSON-schema-like definitions.

A Definition names the entity type and declares its shape:

	name: user
	entity:
	  type: object
	  required: [name, email]
	  properties:
	    name:   { type: string, minLength: 1 }
	    email:  { type: string, format: email }
	    status: { type: string, enum: [active, disabled], default: active }
	validators:
	  onUpdate:
	    type: object
	    properties:
	      name: { type: string, minLength: 1 }

Create-time validation uses validators.onCreate when present and the entity
shape otherwise. Update-time validation uses validators.onUpdate, which is
permissive when omitted.

Definitions are compiled as JSON Schema (draft 2020-12 unless $schema says
otherwise). Validation collects every violation in one pass and returns them
as an *errors.ValidationError. Declared defaults are written into the validated
document in place. String formats are checked with the go-openapi strfmt
registry (date-time, email, uuid, uri, hostname, ipv4, bsonobjectid, ...).
*/
package schema
