// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import "sync"

// Registry is an explicit, caller-owned cache of shared contexts keyed
// by device type. Components that want to share one context per device
// class pass the same Registry around instead of relying on process
// globals; closing the registry closes every context it created.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	contexts map[DeviceType]*Context
	closed   bool
}

// NewRegistry creates an empty context registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[DeviceType]*Context)}
}

// Context returns the shared context for the given device type,
// opening it on the default backend the first time that type is
// requested. Concurrent callers for the same type observe the same
// context.
func (r *Registry) Context(t DeviceType) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrContextClosed
	}
	if ctx, ok := r.contexts[t]; ok {
		return ctx, nil
	}

	ctx, err := NewContext(t)
	if err != nil {
		return nil, err
	}
	r.contexts[t] = ctx
	return ctx, nil
}

// Close closes every context the registry created. Further Context
// calls fail with ErrContextClosed. Close is idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for t, ctx := range r.contexts {
		ctx.Close()
		delete(r.contexts, t)
	}
}
