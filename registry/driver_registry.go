/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/suparena/docstore/config"
	"github.com/suparena/docstore/datastore"
)

// DriverFunc builds an adapter from its configuration. For per-tenant adapters the
// {tenant} placeholders are already substituted.
type DriverFunc func(ctx context.Context, cfg config.AdapterConfig, logger *slog.Logger) (datastore.Adapter, error)

var (
	drivers   = make(map[string]DriverFunc)
	driversMu sync.RWMutex
)

// RegisterDriver registers an adapter constructor under name.
// It panics if the name is already taken, to prevent accidental overrides.
func RegisterDriver(name string, fn DriverFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, exists := drivers[name]; exists {
		panic(fmt.Sprintf("driver registry: driver %q already registered", name))
	}
	drivers[name] = fn
}

// GetDriver returns the constructor registered under name.
func GetDriver(name string) (DriverFunc, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	fn, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("driver registry: no driver registered for %q", name)
	}
	return fn, nil
}

// Drivers returns the registered driver names in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
