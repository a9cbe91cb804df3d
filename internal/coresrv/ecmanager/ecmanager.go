package ecmanager

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/store"
)

// SaveResult is the outcome of ECManager.SaveChanges. When Swapped is true
// the previous context was discarded and Object is the primary object
// re-bound into the replacement context: the caller must re-apply its
// intended mutation once against Object, because the attempted mutation was
// lost with the discarded context.
type SaveResult struct {
	Object  store.EnterpriseObject
	Swapped bool
}

// ECManager owns exactly one peer context and provides independent-save
// semantics with fail-and-replace recovery: when a commit fails, the broken
// context is discarded, a fresh one is allocated, and the caller's primary
// object is re-imported into it.
//
// An ECManager is not safe for concurrent use; callers sharing one across
// goroutines must serialize externally.
type ECManager struct {
	st       store.ObjectStore
	pc       *PeerContext
	disposed bool
}

// NewECManager creates a manager with a freshly allocated peer context.
func NewECManager(ctx context.Context, st store.ObjectStore) (*ECManager, error) {
	pc, err := NewPeerContext(ctx, st)
	if err != nil {
		return nil, err
	}
	return &ECManager{st: st, pc: pc}, nil
}

// Lock acquires the owned context's lock. Must bracket every operation that
// touches objects bound to this manager's context. Not re-entrant.
func (m *ECManager) Lock() {
	m.pc.Lock()
}

// Unlock releases the owned context's lock.
func (m *ECManager) Unlock() {
	m.pc.Unlock()
}

// Context exposes the owned editing context for fetch and insert operations.
func (m *ECManager) Context() store.EditingContext {
	return m.pc.Editing()
}

// Localize imports obj into this manager's context, returning the equivalent
// object bound here. An object already bound to this context is returned
// unchanged.
func (m *ECManager) Localize(obj store.EnterpriseObject) (store.EnterpriseObject, error) {
	if m.disposed {
		return nil, ErrDisposed
	}
	m.pc.Lock()
	defer m.pc.Unlock()
	return m.pc.Editing().Localize(obj)
}

// LocalizeAll imports a collection of objects, returning a new collection of
// equivalents in the same order.
func (m *ECManager) LocalizeAll(objs []store.EnterpriseObject) ([]store.EnterpriseObject, error) {
	if m.disposed {
		return nil, ErrDisposed
	}
	m.pc.Lock()
	defer m.pc.Unlock()
	out := make([]store.EnterpriseObject, 0, len(objs))
	for _, obj := range objs {
		local, err := m.pc.Editing().Localize(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, local)
	}
	return out, nil
}

// SaveChanges commits all pending changes in the owned context.
//
// On success the result carries primary unchanged. When the commit fails,
// the broken context is discarded, a brand-new one is allocated, primary is
// re-bound into it, and the result carries the new reference with Swapped
// set; the lost mutation must be re-applied exactly once by the caller. A
// non-nil error is returned only when no replacement context could be
// allocated, which is unrecoverable.
func (m *ECManager) SaveChanges(ctx context.Context, primary store.EnterpriseObject) (SaveResult, error) {
	if m.disposed {
		return SaveResult{}, ErrDisposed
	}

	m.pc.Lock()
	saveErr := m.pc.Save(ctx)
	m.pc.Unlock()
	if saveErr == nil {
		return SaveResult{Object: primary}, nil
	}

	log.Ctx(ctx).Error().Err(saveErr).Msg("commit failed; discarding editing context")

	old := m.pc
	replacement, err := NewPeerContext(ctx, m.st)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to allocate replacement editing context")
		return SaveResult{}, ErrContextReplacement.Err(saveErr, err)
	}
	m.pc = replacement
	old.disposeQuietly(ctx)

	m.pc.Lock()
	rebound, err := m.pc.Editing().Localize(primary)
	m.pc.Unlock()
	if err != nil {
		return SaveResult{}, ErrContextReplacement.MsgErr("unable to re-import primary object", saveErr, err)
	}
	return SaveResult{Object: rebound, Swapped: true}, nil
}

// Dispose releases the owned context immediately. All other operations are
// undefined afterwards.
func (m *ECManager) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.pc.Dispose()
}
