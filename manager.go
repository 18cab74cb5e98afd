/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package docstore

import (
	stderrors "errors"
	"io"
	"sort"
	"sync"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/errors"
)

// Manager holds one Store per entity name. It is safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	stores  map[string]datastore.Store
	closers []io.Closer
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		stores: make(map[string]datastore.Store),
	}
}

// Register stores the Store under the given entity name.
func (m *Manager) Register(name string, store datastore.Store) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.stores[name]; exists {
		return errors.NewAlreadyExistsError("datastore", name)
	}
	m.stores[name] = store
	return nil
}

// Get returns the Store registered under name.
func (m *Manager) Get(name string) (datastore.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	store, exists := m.stores[name]
	if !exists {
		return nil, errors.NewNotFoundError("datastore", name)
	}
	return store, nil
}

// Remove unregisters the Store under name. Its adapter stays open until Close.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.stores[name]; !exists {
		return errors.NewNotFoundError("datastore", name)
	}
	delete(m.stores, name)
	return nil
}

// List returns the registered entity names in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.stores))
	for name := range m.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every resource the Manager opened, in reverse order, and
// forgets all stores.
func (m *Manager) Close() error {
	m.mu.Lock()
	closers := m.closers
	m.closers = nil
	m.stores = make(map[string]datastore.Store)
	m.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// track hands v to Close if it holds resources.
func (m *Manager) track(v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	m.mu.Lock()
	m.closers = append(m.closers, c)
	m.mu.Unlock()
}
