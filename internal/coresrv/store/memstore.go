package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/uuid"
)

// MemStore is the in-memory object store. It backs single-node deployments
// without a database and the test suite, which uses FailNextSaves to exercise
// the commit-failure paths.
type MemStore struct {
	mu        sync.Mutex
	schemas   SchemaSet
	committed map[EntityRef]*storedRecord

	maxChannels int
	live        int

	requests  uint64
	returns   uint64
	failSaves int32
}

type storedRecord struct {
	attrs map[string]any
	rels  map[string][]EntityRef
}

// NewMemStore creates an in-memory store for the given schemas. maxChannels
// bounds the number of live editing contexts; zero selects the default cap.
func NewMemStore(schemas SchemaSet, maxChannels int) *MemStore {
	if maxChannels <= 0 {
		maxChannels = 5
	}
	return &MemStore{
		schemas:     schemas,
		committed:   map[EntityRef]*storedRecord{},
		maxChannels: maxChannels,
	}
}

// NewContext allocates a new editing context. Requests beyond the channel
// cap are refused and logged.
func (ms *MemStore) NewContext(ctx context.Context) (EditingContext, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.live >= ms.maxChannels {
		log.Ctx(ctx).Error().
			Int("live", ms.live).
			Int("max", ms.maxChannels).
			Msg("editing context channel limit reached")
		return nil, ErrChannelLimit
	}
	ms.live++
	atomic.AddUint64(&ms.requests, 1)
	return &memContext{
		st:       ms,
		records:  map[EntityRef]*Record{},
		inserted: map[EntityRef]bool{},
		deleted:  map[EntityRef]bool{},
		dirty:    map[EntityRef]bool{},
	}, nil
}

// Stats returns the number of context allocations and returns.
func (ms *MemStore) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&ms.requests), atomic.LoadUint64(&ms.returns)
}

// Ping always succeeds for the in-memory store.
func (ms *MemStore) Ping(ctx context.Context) error {
	return nil
}

// Close releases nothing; the store lives and dies with the process.
func (ms *MemStore) Close() error {
	return nil
}

// FailNextSaves forces the next n SaveChanges calls across all contexts to
// fail. Test hook for exercising commit-failure recovery.
func (ms *MemStore) FailNextSaves(n int) {
	atomic.StoreInt32(&ms.failSaves, int32(n))
}

func (ms *MemStore) takeForcedFailure() bool {
	for {
		n := atomic.LoadInt32(&ms.failSaves)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&ms.failSaves, n, n-1) {
			return true
		}
	}
}

// memContext is an editing context over a MemStore.
type memContext struct {
	st     *MemStore
	lockMu sync.Mutex

	records  map[EntityRef]*Record
	inserted map[EntityRef]bool
	deleted  map[EntityRef]bool
	dirty    map[EntityRef]bool
	disposed bool
}

func (mc *memContext) Lock()   { mc.lockMu.Lock() }
func (mc *memContext) Unlock() { mc.lockMu.Unlock() }

func (mc *memContext) editingContext() EditingContext {
	return mc
}

func (mc *memContext) markDirty(ref EntityRef) {
	mc.dirty[ref] = true
}

func (mc *memContext) Localize(obj EnterpriseObject) (EnterpriseObject, error) {
	if mc.disposed {
		return nil, ErrContextDisposed
	}
	if obj == nil {
		return nil, ErrNotFound.Msg("cannot localize nil object")
	}
	if obj.Context() == EditingContext(mc) {
		return obj, nil
	}
	return mc.localizeRef(obj.Ref())
}

func (mc *memContext) localizeRef(ref EntityRef) (*Record, error) {
	if mc.disposed {
		return nil, ErrContextDisposed
	}
	if rec, ok := mc.records[ref]; ok {
		return rec, nil
	}
	if mc.deleted[ref] {
		return nil, ErrNotFound.Msg("object was deleted in this context")
	}
	schema, ok := mc.st.schemas[ref.Type]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(ref.Type)
	}

	mc.st.mu.Lock()
	stored, ok := mc.st.committed[ref]
	var attrs map[string]any
	var rels map[string][]EntityRef
	if ok {
		attrs, rels = stored.attrs, stored.rels
	}
	mc.st.mu.Unlock()
	if !ok {
		return nil, ErrNotFound.Msg("no committed object for " + ref.Type)
	}

	rec := newRecord(schema, ref.ID, mc)
	rec.reset(attrs, rels)
	mc.records[ref] = rec
	return rec, nil
}

func (mc *memContext) Insert(entityType string) (EnterpriseObject, error) {
	if mc.disposed {
		return nil, ErrContextDisposed
	}
	schema, ok := mc.st.schemas[entityType]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(entityType)
	}
	rec := newRecord(schema, uuid.New(), mc)
	ref := rec.Ref()
	mc.records[ref] = rec
	mc.inserted[ref] = true
	mc.dirty[ref] = true
	return rec, nil
}

func (mc *memContext) Delete(obj EnterpriseObject) error {
	if mc.disposed {
		return ErrContextDisposed
	}
	local, err := mc.Localize(obj)
	if err != nil {
		return err
	}
	ref := local.Ref()
	delete(mc.records, ref)
	delete(mc.dirty, ref)
	if mc.inserted[ref] {
		// Never committed; dropping the working copy is enough.
		delete(mc.inserted, ref)
		return nil
	}
	mc.deleted[ref] = true
	return nil
}

func (mc *memContext) Fetch(ctx context.Context, entityType string, q Qualifier) ([]EnterpriseObject, error) {
	if mc.disposed {
		return nil, ErrContextDisposed
	}
	schema, ok := mc.st.schemas[entityType]
	if !ok {
		return nil, ErrUnknownEntityType.Msg(entityType)
	}

	mc.st.mu.Lock()
	var matches []EntityRef
	for ref, stored := range mc.st.committed {
		if ref.Type != entityType {
			continue
		}
		ok, err := matchQualifier(schema, stored, q)
		if err != nil {
			mc.st.mu.Unlock()
			return nil, err
		}
		if ok {
			matches = append(matches, ref)
		}
	}
	mc.st.mu.Unlock()

	out := make([]EnterpriseObject, 0, len(matches))
	for _, ref := range matches {
		if mc.deleted[ref] {
			continue
		}
		rec, err := mc.localizeRef(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func matchQualifier(schema *Schema, stored *storedRecord, q Qualifier) (bool, error) {
	for key, want := range q {
		if ref, ok := want.(EntityRef); ok {
			if !schema.IsRelationship(key) {
				return false, ErrUnknownKey.Msg("qualifier relationship " + key)
			}
			found := false
			for _, member := range stored.rels[key] {
				if member == ref {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
			continue
		}
		if !schema.IsAttribute(key) {
			return false, ErrUnknownKey.Msg("qualifier attribute " + key)
		}
		if stored.attrs[key] != want {
			return false, nil
		}
	}
	return true, nil
}

func (mc *memContext) SaveChanges(ctx context.Context) error {
	if mc.disposed {
		return ErrContextDisposed
	}
	if mc.st.takeForcedFailure() {
		log.Ctx(ctx).Error().Msg("commit failed")
		return ErrSaveFailed.Msg("forced commit failure")
	}

	mc.st.mu.Lock()
	defer mc.st.mu.Unlock()

	for ref := range mc.deleted {
		delete(mc.st.committed, ref)
		// Strip dangling references from surviving objects.
		for _, stored := range mc.st.committed {
			for key := range stored.rels {
				removeRef(&stored.rels, key, ref)
			}
		}
	}
	for ref := range mc.dirty {
		rec, ok := mc.records[ref]
		if !ok {
			continue
		}
		stored := &storedRecord{
			attrs: rec.Snapshot(),
			rels:  map[string][]EntityRef{},
		}
		for key := range rec.rels {
			stored.rels[key] = rec.relatedRefs(key)
		}
		mc.st.committed[ref] = stored
	}

	mc.inserted = map[EntityRef]bool{}
	mc.deleted = map[EntityRef]bool{}
	mc.dirty = map[EntityRef]bool{}
	return nil
}

func (mc *memContext) Revert() {
	if mc.disposed {
		return
	}
	mc.st.mu.Lock()
	defer mc.st.mu.Unlock()
	for ref, rec := range mc.records {
		stored, ok := mc.st.committed[ref]
		if !ok {
			delete(mc.records, ref)
			continue
		}
		rec.reset(stored.attrs, stored.rels)
	}
	mc.inserted = map[EntityRef]bool{}
	mc.deleted = map[EntityRef]bool{}
	mc.dirty = map[EntityRef]bool{}
}

func (mc *memContext) Dispose() {
	if mc.disposed {
		return
	}
	mc.disposed = true
	mc.records = nil
	mc.inserted = nil
	mc.deleted = nil
	mc.dirty = nil

	mc.st.mu.Lock()
	mc.st.live--
	mc.st.mu.Unlock()
	atomic.AddUint64(&mc.st.returns, 1)
}

func (mc *memContext) Disposed() bool {
	return mc.disposed
}
