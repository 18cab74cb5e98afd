/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides testify mocks of the datastore capabilities for testing
package mock

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/suparena/docstore/datastore"
	"github.com/suparena/docstore/query"
	"github.com/suparena/docstore/storagemodels"
)

// Adapter is a mock implementation of datastore.Adapter.
//
// Init succeeds unless an expectation for it is registered, so tests only
// need to set up the calls they care about.
type Adapter struct {
	mock.Mock
	initMocked bool
}

var _ datastore.Adapter = (*Adapter)(nil)

// New creates a mock Adapter.
func New() *Adapter {
	return &Adapter{}
}

// ExpectInit registers an expectation for Init.
func (m *Adapter) ExpectInit() *mock.Call {
	m.initMocked = true
	return m.On("Init", mock.Anything, mock.Anything)
}

func (m *Adapter) Init(ctx context.Context, s datastore.Schema) error {
	if !m.initMocked {
		return nil
	}
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *Adapter) InsertOne(ctx context.Context, doc storagemodels.Document, opts storagemodels.Options) (storagemodels.Document, error) {
	args := m.Called(ctx, doc, opts)
	return document(args, 0), args.Error(1)
}

func (m *Adapter) InsertMany(ctx context.Context, docs []storagemodels.Document, opts storagemodels.Options) ([]storagemodels.Document, error) {
	args := m.Called(ctx, docs, opts)
	return documents(args, 0), args.Error(1)
}

func (m *Adapter) UpdateByID(ctx context.Context, id string, u storagemodels.Update, opts storagemodels.Options) (storagemodels.Document, error) {
	args := m.Called(ctx, id, u, opts)
	return document(args, 0), args.Error(1)
}

func (m *Adapter) UpdateMany(ctx context.Context, q *query.Query, u storagemodels.Update, opts storagemodels.Options) (int64, error) {
	args := m.Called(ctx, q, u, opts)
	return count(args, 0), args.Error(1)
}

func (m *Adapter) DeleteByID(ctx context.Context, id string, opts storagemodels.Options) (string, error) {
	args := m.Called(ctx, id, opts)
	return args.String(0), args.Error(1)
}

func (m *Adapter) DeleteByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]string, error) {
	args := m.Called(ctx, ids, opts)
	var out []string
	if v := args.Get(0); v != nil {
		out = v.([]string)
	}
	return out, args.Error(1)
}

func (m *Adapter) DeleteMany(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	args := m.Called(ctx, q, opts)
	return count(args, 0), args.Error(1)
}

func (m *Adapter) FindByID(ctx context.Context, id string, opts storagemodels.Options) (storagemodels.Document, error) {
	args := m.Called(ctx, id, opts)
	return document(args, 0), args.Error(1)
}

func (m *Adapter) FindByIDs(ctx context.Context, ids []string, opts storagemodels.Options) ([]storagemodels.Document, error) {
	args := m.Called(ctx, ids, opts)
	return documents(args, 0), args.Error(1)
}

func (m *Adapter) FindOne(ctx context.Context, q *query.Query, opts storagemodels.Options) (storagemodels.Document, error) {
	args := m.Called(ctx, q, opts)
	return document(args, 0), args.Error(1)
}

func (m *Adapter) Find(ctx context.Context, q *query.Query, opts storagemodels.Options) ([]storagemodels.Document, error) {
	args := m.Called(ctx, q, opts)
	return documents(args, 0), args.Error(1)
}

func (m *Adapter) Count(ctx context.Context, q *query.Query, opts storagemodels.Options) (int64, error) {
	args := m.Called(ctx, q, opts)
	return count(args, 0), args.Error(1)
}

// Notifier records lifecycle events.
type Notifier struct {
	mu     sync.Mutex
	events []Event
}

// Event is one recorded notification.
type Event struct {
	Name string
	Data storagemodels.EventData
}

var _ datastore.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(event string, data storagemodels.EventData) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Name: event, Data: data})
}

// Events returns a copy of the recorded events.
func (n *Notifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

// Reset discards the recorded events.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

func document(args mock.Arguments, i int) storagemodels.Document {
	switch v := args.Get(i).(type) {
	case storagemodels.Document:
		return v
	case map[string]any:
		return storagemodels.Document(v)
	}
	return nil
}

func documents(args mock.Arguments, i int) []storagemodels.Document {
	if v, ok := args.Get(i).([]storagemodels.Document); ok {
		return v
	}
	return nil
}

func count(args mock.Arguments, i int) int64 {
	switch v := args.Get(i).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
