package store

import (
	"github.com/web-cat/core/internal/common/uuid"
)

// contextHost is the surface a Record needs from its owning context: ref
// resolution for relationship traversal and dirty tracking for saves. Both
// adapters implement it.
type contextHost interface {
	localizeRef(ref EntityRef) (*Record, error)
	markDirty(ref EntityRef)
	editingContext() EditingContext
}

// Record is the context-bound working copy of an enterprise object. All
// relationship mutation goes through AddRelated/RemoveRelated, which keep
// both sides of a bidirectional relationship consistent within the owning
// context.
type Record struct {
	schema *Schema
	id     uuid.UUID
	host   contextHost
	attrs  map[string]any
	rels   map[string][]EntityRef
}

func newRecord(schema *Schema, id uuid.UUID, host contextHost) *Record {
	return &Record{
		schema: schema,
		id:     id,
		host:   host,
		attrs:  map[string]any{},
		rels:   map[string][]EntityRef{},
	}
}

func (r *Record) EntityType() string {
	return r.schema.EntityType
}

func (r *Record) ID() uuid.UUID {
	return r.id
}

func (r *Record) Ref() EntityRef {
	return EntityRef{Type: r.schema.EntityType, ID: r.id}
}

func (r *Record) Schema() *Schema {
	return r.schema
}

func (r *Record) Context() EditingContext {
	return r.host.editingContext()
}

// Get returns the attribute value for key, nil if unset.
func (r *Record) Get(key string) (any, error) {
	if !r.schema.IsAttribute(key) {
		return nil, ErrUnknownKey.Msg("get of unknown attribute " + key + " on " + r.schema.EntityType)
	}
	return r.attrs[key], nil
}

// Set updates the attribute value for key and marks the record dirty.
func (r *Record) Set(key string, value any) error {
	if !r.schema.IsAttribute(key) {
		return ErrUnknownKey.Msg("set of unknown attribute " + key + " on " + r.schema.EntityType)
	}
	if value == nil {
		delete(r.attrs, key)
	} else {
		r.attrs[key] = value
	}
	r.host.markDirty(r.Ref())
	return nil
}

// Related returns the current members of the named relationship, localized
// into the owning context, in insertion order.
func (r *Record) Related(key string) ([]EnterpriseObject, error) {
	if !r.schema.IsRelationship(key) {
		return nil, ErrUnknownKey.Msg("unknown relationship " + key + " on " + r.schema.EntityType)
	}
	refs := r.rels[key]
	out := make([]EnterpriseObject, 0, len(refs))
	for _, ref := range refs {
		rec, err := r.host.localizeRef(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// AddRelated adds obj to the named relationship and, when the relationship
// declares an inverse, adds this record to the inverse side as well. Adding
// an already-present member is a no-op.
func (r *Record) AddRelated(key string, obj EnterpriseObject) error {
	rel, local, err := r.relationshipPartner(key, obj)
	if err != nil {
		return err
	}
	if !addRef(&r.rels, key, local.Ref()) {
		return nil
	}
	r.host.markDirty(r.Ref())
	if rel.Inverse != "" {
		if addRef(&local.rels, rel.Inverse, r.Ref()) {
			r.host.markDirty(local.Ref())
		}
	}
	return nil
}

// RemoveRelated removes obj from the named relationship, along with the
// inverse entry when one is declared. Removing an absent member is a no-op.
func (r *Record) RemoveRelated(key string, obj EnterpriseObject) error {
	rel, local, err := r.relationshipPartner(key, obj)
	if err != nil {
		return err
	}
	if !removeRef(&r.rels, key, local.Ref()) {
		return nil
	}
	r.host.markDirty(r.Ref())
	if rel.Inverse != "" {
		if removeRef(&local.rels, rel.Inverse, r.Ref()) {
			r.host.markDirty(local.Ref())
		}
	}
	return nil
}

// relationshipPartner validates the relationship mutation and returns the
// partner record localized into this record's context.
func (r *Record) relationshipPartner(key string, obj EnterpriseObject) (Relationship, *Record, error) {
	rel, ok := r.schema.Relationships[key]
	if !ok {
		return rel, nil, ErrUnknownKey.Msg("unknown relationship " + key + " on " + r.schema.EntityType)
	}
	if obj == nil {
		return rel, nil, ErrTypeMismatch.Msg("nil object for relationship " + key)
	}
	if obj.EntityType() != rel.Target {
		return rel, nil, ErrTypeMismatch.Msg("relationship " + key + " expects " + rel.Target + ", got " + obj.EntityType())
	}
	local, err := r.host.localizeRef(obj.Ref())
	if err != nil {
		return rel, nil, err
	}
	return rel, local, nil
}

// Snapshot returns a copy of all attribute values.
func (r *Record) Snapshot() map[string]any {
	out := make(map[string]any, len(r.attrs))
	for k, v := range r.attrs {
		out[k] = v
	}
	return out
}

// relatedRefs returns a copy of the refs in the named relationship.
func (r *Record) relatedRefs(key string) []EntityRef {
	refs := r.rels[key]
	out := make([]EntityRef, len(refs))
	copy(out, refs)
	return out
}

// reset replaces the record's state with the given committed state.
func (r *Record) reset(attrs map[string]any, rels map[string][]EntityRef) {
	r.attrs = make(map[string]any, len(attrs))
	for k, v := range attrs {
		r.attrs[k] = v
	}
	r.rels = make(map[string][]EntityRef, len(rels))
	for k, refs := range rels {
		cp := make([]EntityRef, len(refs))
		copy(cp, refs)
		r.rels[k] = cp
	}
}

func addRef(rels *map[string][]EntityRef, key string, ref EntityRef) bool {
	for _, existing := range (*rels)[key] {
		if existing == ref {
			return false
		}
	}
	(*rels)[key] = append((*rels)[key], ref)
	return true
}

func removeRef(rels *map[string][]EntityRef, key string, ref EntityRef) bool {
	refs := (*rels)[key]
	for i, existing := range refs {
		if existing == ref {
			(*rels)[key] = append(refs[:i], refs[i+1:]...)
			return true
		}
	}
	return false
}
