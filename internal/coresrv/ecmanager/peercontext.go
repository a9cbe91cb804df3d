// Package ecmanager implements the independent-save layer: peer editing
// contexts, the fail-and-replace ECManager that owns exactly one of them,
// and the write-through CachingEOManager that keeps a per-object snapshot in
// lockstep with a committed mirror. This is the machinery that lets a single
// domain object be edited through one context while being committed
// independently, without corrupting the caller's primary object graph.
package ecmanager

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/store"
)

// PeerContext wraps one editing context obtained from the object store so
// higher layers never touch the raw context. It is owned exclusively by its
// ECManager and never shared.
type PeerContext struct {
	ec       store.EditingContext
	disposed bool
}

// NewPeerContext allocates a fresh editing context from the store.
func NewPeerContext(ctx context.Context, st store.ObjectStore) (*PeerContext, error) {
	ec, err := st.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	return &PeerContext{ec: ec}, nil
}

// Lock acquires the context lock. Locking is not re-entrant.
func (p *PeerContext) Lock() {
	p.ec.Lock()
}

// Unlock releases the context lock.
func (p *PeerContext) Unlock() {
	p.ec.Unlock()
}

// Editing exposes the wrapped context to the owning manager.
func (p *PeerContext) Editing() store.EditingContext {
	return p.ec
}

// Save commits all pending changes. The caller must hold the lock.
func (p *PeerContext) Save(ctx context.Context) error {
	if p.disposed {
		return ErrDisposed
	}
	return p.ec.SaveChanges(ctx)
}

// Revert discards all pending changes. The caller must hold the lock.
func (p *PeerContext) Revert() {
	if !p.disposed {
		p.ec.Revert()
	}
}

// Dispose releases the context. Idempotent.
func (p *PeerContext) Dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	p.ec.Dispose()
}

// disposeQuietly disposes a context that is being discarded after a failed
// commit. The context is already broken, so cleanup problems are logged and
// swallowed.
func (p *PeerContext) disposeQuietly(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Debug().Interface("panic", r).Msg("ignored failure disposing discarded context")
		}
	}()
	p.Dispose()
}
