/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"strings"
	"sync"
)

// Key attribute names of the primary DynamoDB index.
const (
	PartitionKey = "PK"
	SortKey      = "SK"
)

var (
	indexMapRegistry = make(map[string]map[string]string)
	mu               sync.RWMutex
)

// RegisterIndexMap associates an entity name with its DynamoDB index map: key
// attribute name to macro template, e.g. {"PK": "USER#{id}", "SK": "USER#{id}"}.
// Templates may reference any top-level document field.
func RegisterIndexMap(entity string, idxMap map[string]string) {
	cp := make(map[string]string, len(idxMap))
	for k, v := range idxMap {
		cp[k] = v
	}

	mu.Lock()
	defer mu.Unlock()
	indexMapRegistry[entity] = cp
}

// GetIndexMap retrieves the index map for entity, if any.
func GetIndexMap(entity string) (map[string]string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	m, ok := indexMapRegistry[entity]
	return m, ok
}

// IndexMapFor returns the registered index map of entity, or DefaultIndexMap.
func IndexMapFor(entity string) map[string]string {
	if m, ok := GetIndexMap(entity); ok {
		return m
	}
	return DefaultIndexMap(entity)
}

// DefaultIndexMap keys every document of entity by "{KIND}#{id}" on both PK and SK.
func DefaultIndexMap(entity string) map[string]string {
	key := strings.ToUpper(entity) + "#{id}"
	return map[string]string{PartitionKey: key, SortKey: key}
}

// UnregisterIndexMap removes the index map of entity.
func UnregisterIndexMap(entity string) {
	mu.Lock()
	defer mu.Unlock()
	delete(indexMapRegistry, entity)
}
