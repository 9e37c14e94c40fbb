// Package registry assembles the per-entity filter types in two phases.
//
// During registration every entity records a stub with its own annotations,
// plus the relationship edges it discovered. Finalize then completes each stub
// with one field per edge pointing at the target's filter type. Relationship
// fields refer to their target through a Handle, so filter types can reference
// each other in cycles without being patched after construction.
package registry

import (
	"fmt"
	"log"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
)

// Handle is a stable reference to a filter type. It is valid from
// registration on and resolves after Finalize.
type Handle int

// NoHandle is the zero Handle. Scalar fields carry it.
const NoHandle Handle = 0

// Field is one filter field.
type Field struct {
	Name string
	// Type is empty for relationship fields; their type is the filter type
	// behind Ref.
	Type        filter.FieldType
	Ref         Handle
	Target      string
	CustomField bool
}

// IsRelationship reports whether f filters on a related entity.
func (f Field) IsRelationship() bool {
	return f.Ref != NoHandle
}

// FilterType is a completed filter definition.
type FilterType struct {
	Name     string
	Handle   Handle
	Entity   domain.EntityType
	Fields   []Field
	FieldMap []filter.Remap
}

// Field finds a field by name.
func (t *FilterType) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in declaration order.
func (t *FilterType) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// NewInput creates an empty filter input with this type's fields and custom
// field remaps.
func (t *FilterType) NewInput() *filter.Input {
	names := append(t.FieldNames(), filter.And, filter.Or, filter.Not)
	return filter.NewInput(t.Entity, names...).SetFieldMap(t.FieldMap)
}

// FilterTypeName returns the schema name of an entity's filter type.
func FilterTypeName(entity domain.EntityType) string {
	return entity.GraphQLName() + "Filter"
}

type stub struct {
	entity      domain.EntityType
	annotations []Field
	fieldMap    []filter.Remap
}

type edge struct {
	field  string
	target domain.EntityType
}

// StubOption configures a stub at registration.
type StubOption func(*stub)

// WithFieldMap attaches a custom field remap table to the stub.
func WithFieldMap(remaps []filter.Remap) StubOption {
	return func(s *stub) {
		s.fieldMap = append(s.fieldMap, remaps...)
	}
}

// Registry holds the filter stubs of one schema build. Registration and
// Finalize are not safe for concurrent use; the read methods are once
// Finalize has returned.
type Registry struct {
	order     []string
	handles   map[string]Handle
	stubs     map[string]*stub
	edges     map[string][]edge
	edgeOrder []string
	types     []*FilterType
	finalized bool
}

func New() *Registry {
	return &Registry{
		handles: make(map[string]Handle),
		stubs:   make(map[string]*stub),
		edges:   make(map[string][]edge),
	}
}

// RegisterFilterStub records entity's own annotations and returns the handle
// its filter type will resolve through.
func (r *Registry) RegisterFilterStub(entity domain.EntityType, annotations []Field, opts ...StubOption) (Handle, error) {
	if r.finalized {
		return NoHandle, ErrAlreadyFinalized
	}
	key := entity.QualifiedName()
	if _, exists := r.handles[key]; exists {
		return NoHandle, fmt.Errorf("%w: %s", ErrDuplicateStub, key)
	}

	s := &stub{entity: entity, annotations: append([]Field(nil), annotations...)}
	for _, opt := range opts {
		opt(s)
	}

	h := Handle(len(r.order) + 1)
	r.order = append(r.order, key)
	r.handles[key] = h
	r.stubs[key] = s
	return h, nil
}

// RegisterRelationship records that field on source filters target.
// Self references are skipped. A second edge for the same field replaces
// the first.
func (r *Registry) RegisterRelationship(source domain.EntityType, field string, target domain.EntityType) error {
	if r.finalized {
		return ErrAlreadyFinalized
	}
	if isSelf(source, target) {
		return nil
	}
	key := source.QualifiedName()
	edges, seen := r.edges[key]
	if !seen {
		r.edgeOrder = append(r.edgeOrder, key)
	}
	for i := range edges {
		if edges[i].field == field {
			edges[i].target = target
			return nil
		}
	}
	r.edges[key] = append(edges, edge{field: field, target: target})
	return nil
}

// Finalize completes every stub with its relationship fields and returns the
// filter types keyed by qualified entity name. It can run once.
//
// Edges whose target never registered a stub are dropped. Finalizing before
// every entity has registered therefore yields filter types without those
// relationship fields.
func (r *Registry) Finalize() (map[string]*FilterType, error) {
	if r.finalized {
		return nil, ErrAlreadyFinalized
	}

	r.types = make([]*FilterType, len(r.order))
	out := make(map[string]*FilterType, len(r.order))
	for i, key := range r.order {
		s := r.stubs[key]
		fields := append([]Field(nil), s.annotations...)

		for _, e := range r.edges[key] {
			if isSelf(s.entity, e.target) {
				continue
			}
			target := e.target.QualifiedName()
			h, ok := r.handles[target]
			if !ok {
				log.Printf("[REGISTRY] dropping %s.%s: no filter registered for %s", key, e.field, target)
				continue
			}
			fields = setField(fields, Field{Name: e.field, Ref: h, Target: target})
		}

		t := &FilterType{
			Name:     FilterTypeName(s.entity),
			Handle:   Handle(i + 1),
			Entity:   s.entity,
			Fields:   fields,
			FieldMap: s.fieldMap,
		}
		r.types[i] = t
		out[key] = t
	}

	for _, key := range r.edgeOrder {
		if _, ok := r.stubs[key]; !ok {
			log.Printf("[REGISTRY] dropping %d relationship(s) of %s: no filter registered", len(r.edges[key]), key)
		}
	}

	r.stubs = nil
	r.edges = nil
	r.edgeOrder = nil
	r.finalized = true
	log.Printf("[REGISTRY] finalized %d filter types", len(r.types))
	return out, nil
}

// setField replaces the annotation of the same name or appends f.
func setField(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Name == f.Name {
			fields[i] = f
			return fields
		}
	}
	return append(fields, f)
}

func isSelf(a, b domain.EntityType) bool {
	return a.QualifiedName() == b.QualifiedName()
}

// Finalized reports whether Finalize has run.
func (r *Registry) Finalized() bool {
	return r.finalized
}

// Resolve returns the filter type behind h.
func (r *Registry) Resolve(h Handle) (*FilterType, error) {
	if !r.finalized {
		return nil, ErrNotFinalized
	}
	if h <= NoHandle || int(h) > len(r.types) {
		return nil, fmt.Errorf("unknown filter handle %d", h)
	}
	return r.types[h-1], nil
}

// HandleOf returns the handle registered for a qualified entity name.
func (r *Registry) HandleOf(qualified string) (Handle, bool) {
	h, ok := r.handles[qualified]
	return h, ok
}

// Lookup returns the finalized filter type of a qualified entity name.
func (r *Registry) Lookup(qualified string) (*FilterType, bool) {
	h, ok := r.handles[qualified]
	if !ok || !r.finalized {
		return nil, false
	}
	return r.types[h-1], true
}

// HasFilter reports whether the entity registered a filter stub.
func (r *Registry) HasFilter(qualified string) bool {
	_, ok := r.handles[qualified]
	return ok
}

// FilterTypes returns the finalized filter types in registration order.
func (r *Registry) FilterTypes() []*FilterType {
	return r.types
}
