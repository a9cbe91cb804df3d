// Package store provides the object-store abstraction the editing-context
// layer is built on: transactional editing contexts that hold localized
// working copies of enterprise objects, save or revert them as a unit, and
// are explicitly disposed. Two adapters implement the abstraction, an
// in-memory store used by tests and a PostgreSQL-backed store.
package store

import (
	"context"
	"time"

	"github.com/web-cat/core/internal/common/uuid"
)

// EntityRef identifies a persisted object independently of any context.
type EntityRef struct {
	Type string
	ID   uuid.UUID
}

// Relationship describes one side of a to-many relationship. Inverse names
// the relationship key on the target entity pointing back here; empty means
// the relationship is unidirectional.
type Relationship struct {
	Target  string
	Inverse string
}

// Schema declares the attribute and relationship keys of an entity type.
// Schemas are immutable after construction; unknown keys are rejected at the
// record level rather than surfacing as silent no-ops.
type Schema struct {
	EntityType    string
	Attributes    []string
	Relationships map[string]Relationship

	attrSet map[string]bool
}

// NewSchema builds a schema with its attribute lookup set precomputed.
func NewSchema(entityType string, attributes []string, relationships map[string]Relationship) *Schema {
	attrSet := make(map[string]bool, len(attributes))
	for _, a := range attributes {
		attrSet[a] = true
	}
	if relationships == nil {
		relationships = map[string]Relationship{}
	}
	return &Schema{
		EntityType:    entityType,
		Attributes:    attributes,
		Relationships: relationships,
		attrSet:       attrSet,
	}
}

// IsAttribute reports whether key names a plain attribute.
func (s *Schema) IsAttribute(key string) bool {
	return s.attrSet[key]
}

// IsRelationship reports whether key names a relationship.
func (s *Schema) IsRelationship(key string) bool {
	_, ok := s.Relationships[key]
	return ok
}

// SchemaSet maps entity type names to their schemas.
type SchemaSet map[string]*Schema

// Qualifier selects objects by equality on attribute values. A value of type
// EntityRef instead requires the named relationship to contain that ref.
type Qualifier map[string]any

// EnterpriseObject is the narrow persistence port every domain record
// implements. Attribute values are JSON-safe scalars (string, bool, float64,
// nil); times are stored as RFC 3339 strings via TimeValue/TimeFromValue.
type EnterpriseObject interface {
	EntityType() string
	ID() uuid.UUID
	Ref() EntityRef
	Schema() *Schema

	Get(key string) (any, error)
	Set(key string, value any) error
	Related(key string) ([]EnterpriseObject, error)
	AddRelated(key string, obj EnterpriseObject) error
	RemoveRelated(key string, obj EnterpriseObject) error

	// Snapshot returns a copy of all attribute values.
	Snapshot() map[string]any

	// Context returns the editing context this object is bound to.
	Context() EditingContext
}

// EditingContext is a transactional handle against the object store. A
// context is single-owner: callers must bracket every use with Lock/Unlock
// and must not share a context across goroutines without external
// serialization. Locking is not re-entrant.
type EditingContext interface {
	Lock()
	Unlock()

	// Localize imports an object into this context, returning the
	// equivalent object bound here. Objects already bound to this context
	// are returned unchanged.
	Localize(obj EnterpriseObject) (EnterpriseObject, error)

	// Insert creates a new, empty object of the given entity type bound to
	// this context. The object is persisted on the next SaveChanges.
	Insert(entityType string) (EnterpriseObject, error)

	// Delete marks the object for deletion on the next SaveChanges.
	Delete(obj EnterpriseObject) error

	// Fetch returns the committed objects of the given type matching q,
	// localized into this context.
	Fetch(ctx context.Context, entityType string, q Qualifier) ([]EnterpriseObject, error)

	// SaveChanges commits all pending changes in this context.
	SaveChanges(ctx context.Context) error

	// Revert discards all pending changes, restoring localized objects to
	// their committed state.
	Revert()

	// Dispose releases the context. All other operations are undefined
	// afterwards. Dispose is idempotent.
	Dispose()

	// Disposed reports whether Dispose has been called.
	Disposed() bool
}

// ObjectStore allocates editing contexts. Implementations cap the number of
// live contexts per underlying connection; requests beyond the cap are
// refused with ErrChannelLimit and logged.
type ObjectStore interface {
	NewContext(ctx context.Context) (EditingContext, error)

	// Stats returns the number of context allocations and returns.
	Stats() (requests, returns uint64)

	// Ping verifies the underlying store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// TimeValue converts a time to its stored attribute representation.
func TimeValue(t time.Time) any {
	return t.UTC().Format(time.RFC3339Nano)
}

// TimeFromValue parses a stored attribute value back into a time. Returns
// the zero time for nil or unparseable values.
func TimeFromValue(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
