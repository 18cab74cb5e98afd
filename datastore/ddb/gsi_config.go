/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import "github.com/suparena/docstore/registry"

// GSIConfig holds the configuration for GSI key mappings
type GSIConfig struct {
	// IndexName is the actual GSI name in DynamoDB (e.g., "GSI1")
	IndexName string
	// PartitionKeyName is the partition key attribute of the GSI (e.g., "PK1")
	PartitionKeyName string
	// SortKeyName is the sort key attribute of the GSI (e.g., "SK1")
	SortKeyName string
}

// primaryIndex describes the table itself.
var primaryIndex = GSIConfig{
	PartitionKeyName: registry.PartitionKey,
	SortKeyName:      registry.SortKey,
}

// DefaultGSIConfigs holds the default GSI configurations
var DefaultGSIConfigs = map[string]GSIConfig{
	"GSI1": {
		IndexName:        "GSI1",
		PartitionKeyName: "PK1",
		SortKeyName:      "SK1",
	},
}

// GetGSIConfig returns the GSI configuration for a given index name
func GetGSIConfig(indexName string) (GSIConfig, bool) {
	config, ok := DefaultGSIConfigs[indexName]
	return config, ok
}

// keyAttributes returns the attribute names an ExclusiveStartKey carries for this index.
func (g GSIConfig) keyAttributes() []string {
	attrs := []string{registry.PartitionKey, registry.SortKey}
	if g.IndexName != "" {
		attrs = append(attrs, g.PartitionKeyName)
		if g.SortKeyName != "" {
			attrs = append(attrs, g.SortKeyName)
		}
	}
	return attrs
}
