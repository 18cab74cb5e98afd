/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/suparena/docstore/errors"
	"github.com/suparena/docstore/storagemodels"
)

// AssignID settles the identifier of a document about to be inserted. A
// missing or empty id is replaced by newID(), integral numbers are stored in
// their decimal string form and any other type is rejected.
func AssignID(doc storagemodels.Document, newID func() string) error {
	raw, present := doc[storagemodels.IDField]
	if !present || raw == nil || raw == "" {
		doc[storagemodels.IDField] = newID()
		return nil
	}
	id, err := idString(raw)
	if err != nil {
		return err
	}
	doc[storagemodels.IDField] = id
	return nil
}

func idString(v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(tv), nil
	case float64:
		if tv == math.Trunc(tv) && !math.IsInf(tv, 0) {
			return strconv.FormatFloat(tv, 'f', -1, 64), nil
		}
	case json.Number:
		if _, err := tv.Int64(); err == nil {
			return tv.String(), nil
		}
	}
	return "", errors.NewValidationError(errors.FieldError{
		Keyword: "type",
		Path:    "/" + storagemodels.IDField,
		Params:  map[string]any{"type": "string"},
		Message: fmt.Sprintf("id must be a string or an integer, got %T", v),
	})
}
