// Package peerpool provides session-scoped pooling of peer editing-context
// managers. A PeerManager lazily acquires an ECManager on first use and
// returns itself to its owning pool at the end of a request cycle; the pool
// bounds the number of live non-permanent managers to the configured page
// cache size, evicting and disposing the oldest on overflow.
package peerpool

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/ecmanager"
	"github.com/web-cat/core/internal/coresrv/store"
)

// DefaultCapacity bounds the recyclable list when no page cache size is
// configured.
const DefaultCapacity = 20

// Disposable is implemented by transient-state values that hold resources
// and must be released when their owning manager is disposed.
type Disposable interface {
	Dispose()
}

// PeerManager owns at most one lazily allocated ECManager plus an auxiliary
// transient-state map. It is created per independent page-level editing need
// and returned to its pool on Sleep. Not safe for concurrent use; one
// request thread owns a manager at a time.
type PeerManager struct {
	pool      *Pool
	st        store.ObjectStore
	ecm       *ecmanager.ECManager
	permanent bool
	transient map[string]any
	disposed  bool
}

// EditingContext returns the manager's ECManager, allocating it on first
// call. Idempotent thereafter.
func (m *PeerManager) EditingContext(ctx context.Context) (*ecmanager.ECManager, error) {
	if m.disposed {
		return nil, ecmanager.ErrDisposed
	}
	if m.ecm == nil {
		ecm, err := ecmanager.NewECManager(ctx, m.st)
		if err != nil {
			return nil, err
		}
		m.ecm = ecm
	}
	return m.ecm, nil
}

// Sleep returns the manager to its owning pool at the end of a request
// cycle. A manager that never allocated a context has nothing to recycle
// and stays out of the pool.
func (m *PeerManager) Sleep() {
	if m.disposed || m.ecm == nil {
		return
	}
	if m.permanent {
		m.pool.CachePermanently(m)
	} else {
		m.pool.Cache(m)
	}
}

// SetCachePermanently marks the manager for the pool's unbounded permanent
// list instead of the recyclable list.
func (m *PeerManager) SetCachePermanently(v bool) {
	m.permanent = v
}

// CachePermanently reports whether the manager is marked permanent.
func (m *PeerManager) CachePermanently() bool {
	return m.permanent
}

// SetTransient stores an auxiliary value owned by this manager. Disposable
// values are released recursively when the manager is disposed.
func (m *PeerManager) SetTransient(key string, value any) {
	if m.transient == nil {
		m.transient = make(map[string]any)
	}
	m.transient[key] = value
}

// Transient returns the auxiliary value for key, or nil.
func (m *PeerManager) Transient(key string) any {
	return m.transient[key]
}

// RemoveTransient drops the auxiliary value for key without disposing it.
func (m *PeerManager) RemoveTransient(key string) {
	delete(m.transient, key)
}

// Disposed reports whether the manager has been released.
func (m *PeerManager) Disposed() bool {
	return m.disposed
}

// Dispose releases the manager's context, if any, and recursively disposes
// every disposable value in its transient state. Idempotent; disposing a
// manager that never allocated a context just logs and returns.
func (m *PeerManager) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	for _, v := range m.transient {
		disposeValue(v)
	}
	m.transient = nil
	if m.ecm == nil {
		log.Debug().Msg("disposing peer manager with no editing context")
		return
	}
	m.ecm.Dispose()
}

func disposeValue(v any) {
	switch vv := v.(type) {
	case Disposable:
		vv.Dispose()
	case map[string]any:
		for _, inner := range vv {
			disposeValue(inner)
		}
	case []any:
		for _, inner := range vv {
			disposeValue(inner)
		}
	}
}

// Pool holds a session's peer managers: a bounded most-recently-used
// recyclable list and an unbounded permanent list. A manager appears in at
// most one list at a time. One pool per user session; never shared across
// sessions.
type Pool struct {
	mu         sync.Mutex
	capacity   int
	recyclable []*PeerManager
	permanent  []*PeerManager
	disposed   bool
}

// NewPool creates a pool bounding the recyclable list to capacity;
// non-positive capacities fall back to DefaultCapacity.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Pool{capacity: capacity}
}

// NewManager creates an unpooled manager drawing contexts from st. The
// manager joins a pool list only when it first sleeps.
func (p *Pool) NewManager(st store.ObjectStore) *PeerManager {
	return &PeerManager{pool: p, st: st}
}

// Cache appends m to the recyclable list, evicting and disposing the oldest
// entry when the list is full. A manager already present is moved to the
// most-recently-used tail without growing the list or triggering eviction.
func (p *Pool) Cache(m *PeerManager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		m.Dispose()
		return
	}
	if i := indexOf(p.recyclable, m); i >= 0 {
		p.recyclable = append(append(p.recyclable[:i], p.recyclable[i+1:]...), m)
		return
	}
	if len(p.recyclable) >= p.capacity {
		oldest := p.recyclable[0]
		p.recyclable = p.recyclable[1:]
		log.Debug().Msg("peer manager pool full; evicting oldest entry")
		oldest.Dispose()
	}
	p.recyclable = append(p.recyclable, m)
}

// CachePermanently moves m to the unbounded permanent list, removing it from
// the recyclable list if present.
func (p *Pool) CachePermanently(m *PeerManager) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		m.Dispose()
		return
	}
	if i := indexOf(p.recyclable, m); i >= 0 {
		p.recyclable = append(p.recyclable[:i], p.recyclable[i+1:]...)
	}
	if indexOf(p.permanent, m) < 0 {
		p.permanent = append(p.permanent, m)
	}
}

// RecyclableLen reports the current recyclable list length.
func (p *Pool) RecyclableLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.recyclable)
}

// PermanentLen reports the current permanent list length.
func (p *Pool) PermanentLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.permanent)
}

// Dispose releases every manager in both lists and clears them. Called once,
// at session teardown.
func (p *Pool) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.disposed = true
	for _, m := range p.recyclable {
		m.Dispose()
	}
	for _, m := range p.permanent {
		m.Dispose()
	}
	p.recyclable = nil
	p.permanent = nil
}

func indexOf(list []*PeerManager, m *PeerManager) int {
	for i, entry := range list {
		if entry == m {
			return i
		}
	}
	return -1
}
