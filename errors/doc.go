/*
Package errors provides semantic error types for docstore.

The package defines the error taxonomy shared by the datastore layer and the
storage adapters. Every typed error matches a sentinel through errors.Is, so
callers can branch without type assertions.

Common Errors:

	var (
	    ErrNotFound        = errors.New("entity not found")
	    ErrAlreadyExists   = errors.New("entity already exists")
	    ErrInvalidInput    = errors.New("invalid input")
	    ErrInvalidUpdate   = errors.New("invalid update")
	    ErrPrecondition    = errors.New("precondition failed")
	    ErrNotImplemented  = errors.New("not implemented")
	    ErrConditionFailed = errors.New("condition check failed")
	)

ValidationError carries the HTTP-style code 422, the type "validation_error"
and the full list of violated constraints:

	_, err := users.InsertOne(ctx, storagemodels.Document{"name": 1}, opts)
	if ve, ok := errors.AsValidationError(err); ok {
	    for _, v := range ve.Data {
	        log.Printf("%s %s (%s)", v.Path, v.Message, v.Keyword)
	    }
	}

Errors produced by a storage backend are not wrapped in any of these types;
they reach the caller exactly as the adapter returned them.
*/
package errors
