/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"
	"fmt"

	"github.com/suparena/docstore/storagemodels"
)

// AdapterSource selects the adapter for a call.
type AdapterSource interface {
	Resolve(opts storagemodels.Options) (Adapter, error)
}

type fixedSource struct {
	adapter Adapter
}

func (f fixedSource) Resolve(storagemodels.Options) (Adapter, error) {
	return f.adapter, nil
}

// Fixed uses the same adapter for every call.
func Fixed(a Adapter) AdapterSource {
	return fixedSource{adapter: a}
}

// AdapterFactory picks an adapter per call, typically keyed by the tenant in
// opts.Meta. Returning the same instance for the same key is the factory's
// job; the Datastore initializes every distinct instance once.
type AdapterFactory func(opts storagemodels.Options) (Adapter, error)

func (f AdapterFactory) Resolve(opts storagemodels.Options) (Adapter, error) {
	return f(opts)
}

type initCall struct {
	done chan struct{}
	err  error
}

// Adapter resolves the adapter for opts and initializes it with the schema on
// first use. Concurrent first uses share one Init call; a failed Init is
// returned to every later caller of that instance.
func (d *Datastore) Adapter(ctx context.Context, opts storagemodels.Options) (Adapter, error) {
	a, err := d.source.Resolve(opts)
	if err != nil {
		return nil, fmt.Errorf("resolving adapter for %s: %w", d.schema.Name(), err)
	}
	if a == nil {
		return nil, fmt.Errorf("resolving adapter for %s: no adapter", d.schema.Name())
	}

	d.mu.Lock()
	call, started := d.inits[a]
	if !started {
		call = &initCall{done: make(chan struct{})}
		d.inits[a] = call
	}
	d.mu.Unlock()

	if !started {
		d.logger.Debug("initializing adapter", "entity", d.schema.Name(), "adapter", fmt.Sprintf("%T", a))
		// The outcome is shared with other callers, so it must not depend on
		// this caller's cancellation.
		call.err = a.Init(context.WithoutCancel(ctx), d.schema)
		close(call.done)
		if call.err != nil {
			d.logger.Error("adapter initialization failed", "entity", d.schema.Name(), "error", call.err)
		}
	}

	select {
	case <-call.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if call.err != nil {
		return nil, call.err
	}
	return a, nil
}
