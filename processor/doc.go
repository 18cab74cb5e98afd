/*
Package processor derives docstore schema definitions from OpenAPI documents.

Every entry under components.schemas becomes one schema.Definition. The entity
name is the lowercased component name unless x-entity-name overrides it.
Vendor extensions:

	UserProfile:
	  type: object
	  x-entity-name: profile
	  x-validators:
	    onCreate:
	      required: [email]
	    onUpdate:
	      properties:
	        email: {type: string, format: email}
	  x-dynamodb-indexmap:
	    PK: "USER#{userId}"
	    SK: "PROFILE#{id}"
	    GSI1PK: "EMAIL#{email}"
	    GSI1SK: "PROFILE"
	  properties:
	    userId:
	      type: string
	    email:
	      type: string
	      format: email

Index maps are registered with the registry package under the entity name, so
the DynamoDB adapter picks them up on Init.
*/
package processor
