package ecmanager

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/store"
	"github.com/web-cat/core/internal/coresrv/webcommon"
)

// CachingEOManager is the write-through per-object cache. It holds a local
// snapshot of every attribute and relationship value of one managed object,
// plus a private mirror of that object living in its ECManager's context.
// Every mutation is applied to the snapshot first, then pushed to the mirror
// and committed immediately; when the commit forces a context swap, the
// mutation is re-applied to the re-bound mirror exactly once. A second
// failure propagates and the snapshot is rolled back, so the public state
// never claims a write the store refused.
//
// A CachingEOManager is owned by one request thread at a time; it provides
// no internal synchronization beyond the context lock.
type CachingEOManager struct {
	ec       *ECManager
	attrKeys map[string]bool
	relKeys  map[string]bool
	snapshot map[string]any
	mirror   store.EnterpriseObject
	notifier webcommon.Notifier
}

// NewCachingEOManager constructs a manager for an existing, already-saved
// object. The snapshot captures every attribute and relationship value;
// relationship collections are copied into independently mutable slices.
func NewCachingEOManager(ctx context.Context, source store.EnterpriseObject, ec *ECManager, notifier webcommon.Notifier) (*CachingEOManager, error) {
	if source == nil {
		return nil, ErrInvalidArgument.Msg("source object is required")
	}
	if notifier == nil {
		notifier = webcommon.LogNotifier{}
	}
	mirror, err := ec.Localize(source)
	if err != nil {
		return nil, err
	}

	// Snapshot from the mirror, not the source: the source's own context may
	// already be gone, and member references belong in the manager's context
	// anyway.
	schema := mirror.Schema()
	attrKeys := make(map[string]bool, len(schema.Attributes))
	for _, k := range schema.Attributes {
		attrKeys[k] = true
	}
	relKeys := make(map[string]bool, len(schema.Relationships))
	snapshot := mirror.Snapshot()
	ec.Lock()
	for k := range schema.Relationships {
		relKeys[k] = true
		related, err := mirror.Related(k)
		if err != nil {
			ec.Unlock()
			return nil, err
		}
		snapshot[k] = related
	}
	ec.Unlock()

	return &CachingEOManager{
		ec:       ec,
		attrKeys: attrKeys,
		relKeys:  relKeys,
		snapshot: snapshot,
		mirror:   mirror,
		notifier: notifier,
	}, nil
}

// Value returns the cached value for key. No store I/O occurs. Collection
// values are copies; mutating a returned slice does not affect the cache.
// Absent values are nil.
func (m *CachingEOManager) Value(key string) any {
	switch v := m.snapshot[key].(type) {
	case []store.EnterpriseObject:
		return append([]store.EnterpriseObject{}, v...)
	case []any:
		return append([]any{}, v...)
	default:
		return v
	}
}

// SetValue writes value through to the managed object and commits.
//
// For a plain attribute the snapshot is updated and the value applied to the
// mirror. For a relationship key, a nil value clears a single-valued
// relationship, a collection value is reconciled member-by-member with
// explicit add/remove operations so inverse sides stay correct, and a single
// object value replaces the current relationship members. Writing a value
// identical to the cached one is a no-op.
func (m *CachingEOManager) SetValue(ctx context.Context, key string, value any) error {
	switch {
	case m.attrKeys[key]:
		return m.setAttribute(ctx, key, value)
	case m.relKeys[key]:
		return m.setRelationship(ctx, key, value)
	default:
		return ErrInvalidArgument.Msg("unknown key " + key + " on " + m.mirror.EntityType())
	}
}

func (m *CachingEOManager) setAttribute(ctx context.Context, key string, value any) error {
	if _, isObj := value.(store.EnterpriseObject); isObj {
		return ErrInvalidArgument.Msg("object value for attribute " + key)
	}
	old, hadOld := m.snapshot[key]
	if hadOld && equalScalar(old, value) {
		return nil
	}
	if !hadOld && value == nil {
		return nil
	}

	m.storeSnapshot(key, value)
	err := m.applyAndSave(ctx, func(mirror store.EnterpriseObject) error {
		return mirror.Set(key, value)
	})
	if err != nil {
		m.restoreSnapshot(key, old, hadOld)
		return err
	}
	return nil
}

func (m *CachingEOManager) setRelationship(ctx context.Context, key string, value any) error {
	current := m.relSnapshot(key)

	switch v := value.(type) {
	case nil:
		switch len(current) {
		case 0:
			return nil
		case 1:
			return m.RemoveFromRelationship(ctx, key, current[0])
		default:
			return ErrInvalidArgument.Msg("cannot null multi-valued relationship " + key)
		}
	case []store.EnterpriseObject:
		for _, member := range current {
			if !refsContain(v, member) {
				if err := m.RemoveFromRelationship(ctx, key, member); err != nil {
					return err
				}
			}
		}
		for _, member := range v {
			if !refsContain(m.relSnapshot(key), member) {
				if err := m.AddToRelationship(ctx, key, member); err != nil {
					return err
				}
			}
		}
		return nil
	case store.EnterpriseObject:
		for _, member := range current {
			if member.Ref() == v.Ref() {
				continue
			}
			if err := m.RemoveFromRelationship(ctx, key, member); err != nil {
				return err
			}
		}
		if refsContain(m.relSnapshot(key), v) {
			return nil
		}
		return m.AddToRelationship(ctx, key, v)
	default:
		return ErrInvalidArgument.Msg("unsupported value for relationship " + key)
	}
}

// AddToRelationship adds obj to both sides of the named relationship and
// commits. Adding an already-present member leaves the snapshot unchanged;
// the mirror mutation is idempotent.
func (m *CachingEOManager) AddToRelationship(ctx context.Context, key string, obj store.EnterpriseObject) error {
	if err := m.checkRelationshipArg(key, obj); err != nil {
		return err
	}
	old := m.relSnapshot(key)
	if !refsContain(old, obj) {
		m.snapshot[key] = append(append([]store.EnterpriseObject{}, old...), obj)
	}
	err := m.applyAndSave(ctx, func(mirror store.EnterpriseObject) error {
		return mirror.AddRelated(key, obj)
	})
	if err != nil {
		m.snapshot[key] = old
		return err
	}
	return nil
}

// RemoveFromRelationship removes obj from both sides of the named
// relationship and commits. Removing an absent member leaves the snapshot
// unchanged; the mirror mutation is idempotent.
func (m *CachingEOManager) RemoveFromRelationship(ctx context.Context, key string, obj store.EnterpriseObject) error {
	if err := m.checkRelationshipArg(key, obj); err != nil {
		return err
	}
	old := m.relSnapshot(key)
	if refsContain(old, obj) {
		pruned := make([]store.EnterpriseObject, 0, len(old))
		for _, member := range old {
			if member.Ref() != obj.Ref() {
				pruned = append(pruned, member)
			}
		}
		m.snapshot[key] = pruned
	}
	err := m.applyAndSave(ctx, func(mirror store.EnterpriseObject) error {
		return mirror.RemoveRelated(key, obj)
	})
	if err != nil {
		m.snapshot[key] = old
		return err
	}
	return nil
}

// AddToProperty appends value to a multi-valued property. Relationship keys
// delegate to AddToRelationship; attribute keys maintain a list-valued
// attribute.
func (m *CachingEOManager) AddToProperty(ctx context.Context, key string, value any) error {
	if m.relKeys[key] {
		obj, ok := value.(store.EnterpriseObject)
		if !ok {
			return ErrInvalidArgument.Msg("relationship " + key + " requires an object value")
		}
		return m.AddToRelationship(ctx, key, obj)
	}
	if !m.attrKeys[key] {
		return ErrInvalidArgument.Msg("unknown key " + key + " on " + m.mirror.EntityType())
	}
	old, hadOld := m.snapshot[key]
	list := anyList(old)
	for _, existing := range list {
		if equalScalar(existing, value) {
			return nil
		}
	}
	next := append(append([]any{}, list...), value)
	m.storeSnapshot(key, next)
	err := m.applyAndSave(ctx, func(mirror store.EnterpriseObject) error {
		return mirror.Set(key, next)
	})
	if err != nil {
		m.restoreSnapshot(key, old, hadOld)
		return err
	}
	return nil
}

// RemoveFromProperty removes value from a multi-valued property, mirroring
// AddToProperty.
func (m *CachingEOManager) RemoveFromProperty(ctx context.Context, key string, value any) error {
	if m.relKeys[key] {
		obj, ok := value.(store.EnterpriseObject)
		if !ok {
			return ErrInvalidArgument.Msg("relationship " + key + " requires an object value")
		}
		return m.RemoveFromRelationship(ctx, key, obj)
	}
	if !m.attrKeys[key] {
		return ErrInvalidArgument.Msg("unknown key " + key + " on " + m.mirror.EntityType())
	}
	old, hadOld := m.snapshot[key]
	list := anyList(old)
	next := make([]any, 0, len(list))
	removed := false
	for _, existing := range list {
		if !removed && equalScalar(existing, value) {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if !removed {
		return nil
	}
	m.storeSnapshot(key, next)
	err := m.applyAndSave(ctx, func(mirror store.EnterpriseObject) error {
		return mirror.Set(key, next)
	})
	if err != nil {
		m.restoreSnapshot(key, old, hadOld)
		return err
	}
	return nil
}

// Clone produces an independent manager sharing the same ECManager and key
// sets but with its own deep copy of the snapshot, for callers needing a
// private view of cached state without re-fetching.
func (m *CachingEOManager) Clone() *CachingEOManager {
	snapshot := make(map[string]any, len(m.snapshot))
	for k, v := range m.snapshot {
		switch vv := v.(type) {
		case []store.EnterpriseObject:
			snapshot[k] = append([]store.EnterpriseObject{}, vv...)
		case []any:
			snapshot[k] = append([]any{}, vv...)
		default:
			snapshot[k] = v
		}
	}
	return &CachingEOManager{
		ec:       m.ec,
		attrKeys: m.attrKeys,
		relKeys:  m.relKeys,
		snapshot: snapshot,
		mirror:   m.mirror,
		notifier: m.notifier,
	}
}

// Mirror exposes the managed mirror object. Intended for tests and for
// owners that need the committed identity of the managed object.
func (m *CachingEOManager) Mirror() store.EnterpriseObject {
	return m.mirror
}

// Dispose releases the owned ECManager and its context.
func (m *CachingEOManager) Dispose() {
	m.ec.Dispose()
}

// applyAndSave pushes one mutation to the mirror and commits, re-applying
// the mutation exactly once when the commit forces a context swap. A second
// swap is an unrecoverable failure: administrators are notified and the
// error propagates.
func (m *CachingEOManager) applyAndSave(ctx context.Context, apply func(store.EnterpriseObject) error) error {
	m.ec.Lock()
	err := apply(m.mirror)
	m.ec.Unlock()
	if err != nil {
		return err
	}

	res, err := m.ec.SaveChanges(ctx, m.mirror)
	if err != nil {
		m.notifier.NotifyAdmins(ctx, "unrecoverable commit failure", err)
		return err
	}
	if !res.Swapped {
		return nil
	}

	log.Ctx(ctx).Warn().Msg("context swapped during commit; re-applying mutation")
	m.mirror = res.Object
	m.ec.Lock()
	err = apply(m.mirror)
	m.ec.Unlock()
	if err != nil {
		return err
	}

	res, err = m.ec.SaveChanges(ctx, m.mirror)
	if err != nil {
		m.notifier.NotifyAdmins(ctx, "unrecoverable commit failure", err)
		return err
	}
	if res.Swapped {
		m.mirror = res.Object
		err := ErrPersistentSaveFailure
		m.notifier.NotifyAdmins(ctx, "commit failed after context replacement", err)
		return err
	}
	return nil
}

func (m *CachingEOManager) checkRelationshipArg(key string, obj store.EnterpriseObject) error {
	if !m.relKeys[key] {
		return ErrInvalidArgument.Msg(key + " is not a relationship on " + m.mirror.EntityType())
	}
	if obj == nil {
		return ErrInvalidArgument.Msg("nil object for relationship " + key)
	}
	rel := m.mirror.Schema().Relationships[key]
	if obj.EntityType() != rel.Target {
		return ErrInvalidArgument.Msg("relationship " + key + " expects " + rel.Target + ", got " + obj.EntityType())
	}
	return nil
}

func (m *CachingEOManager) relSnapshot(key string) []store.EnterpriseObject {
	list, _ := m.snapshot[key].([]store.EnterpriseObject)
	return list
}

func (m *CachingEOManager) storeSnapshot(key string, value any) {
	if value == nil {
		delete(m.snapshot, key)
	} else {
		m.snapshot[key] = value
	}
}

func (m *CachingEOManager) restoreSnapshot(key string, old any, hadOld bool) {
	if hadOld {
		m.snapshot[key] = old
	} else {
		delete(m.snapshot, key)
	}
}

func refsContain(list []store.EnterpriseObject, obj store.EnterpriseObject) bool {
	for _, member := range list {
		if member.Ref() == obj.Ref() {
			return true
		}
	}
	return false
}

func anyList(v any) []any {
	list, _ := v.([]any)
	return list
}

func equalScalar(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	return a == b
}
