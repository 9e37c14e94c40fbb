package domain

import (
	"strings"
)

// IDField is the primary key field present on every entity.
const IDField = "id"

// FieldKind is the storage-level kind of a model field.
type FieldKind string

const (
	FieldKindBoolean          FieldKind = "boolean"
	FieldKindInteger          FieldKind = "integer"
	FieldKindPositiveInteger  FieldKind = "positive_integer"
	FieldKindBigInteger       FieldKind = "big_integer"
	FieldKindBigAuto          FieldKind = "big_auto"
	FieldKindChar             FieldKind = "char"
	FieldKindText             FieldKind = "text"
	FieldKindDate             FieldKind = "date"
	FieldKindDateTime         FieldKind = "datetime"
	FieldKindEmail            FieldKind = "email"
	FieldKindGenericIPAddress FieldKind = "generic_ip_address"
	FieldKindSlug             FieldKind = "slug"
	FieldKindURL              FieldKind = "url"
	FieldKindDecimal          FieldKind = "decimal"
	FieldKindJSON             FieldKind = "json"
	FieldKindForeignKey       FieldKind = "foreign_key"
	FieldKindManyToMany       FieldKind = "many_to_many"
)

var validFieldKinds = map[FieldKind]bool{
	FieldKindBoolean: true, FieldKindInteger: true, FieldKindPositiveInteger: true,
	FieldKindBigInteger: true, FieldKindBigAuto: true, FieldKindChar: true, FieldKindText: true,
	FieldKindDate: true, FieldKindDateTime: true, FieldKindEmail: true,
	FieldKindGenericIPAddress: true, FieldKindSlug: true, FieldKindURL: true,
	FieldKindDecimal: true, FieldKindJSON: true, FieldKindForeignKey: true,
	FieldKindManyToMany: true,
}

// Valid reports whether k is a known field kind.
func (k FieldKind) Valid() bool { return validFieldKinds[k] }

// IsRelation reports whether the kind references another entity.
func (k FieldKind) IsRelation() bool {
	return k == FieldKindForeignKey || k == FieldKindManyToMany
}

// FieldDescriptor describes one field of an entity.
type FieldDescriptor struct {
	Name     string
	Column   string
	Kind     FieldKind
	Nullable bool
	// Target is set for foreign_key and many_to_many fields.
	Target EntityType
}

// Association is an edge from one entity type to another.
//
// For forward associations Column is the local foreign key column. For reverse
// associations Column is the foreign key column on the target's table. Many
// associations go through ThroughTable, where ThroughSource references the
// owning entity and ThroughTarget references Target.
type Association struct {
	Name          string
	Target        EntityType
	Column        string
	ThroughTable  string
	ThroughSource string
	ThroughTarget string
}

// EntityType is the schema description every entity exposes to the filter
// layer. Implementations are immutable once the catalog is linked.
type EntityType interface {
	Name() string
	Module() string
	QualifiedName() string
	GraphQLName() string
	Table() string
	Fields() []FieldDescriptor
	Field(name string) (FieldDescriptor, bool)
	Filters() FilterSetDescriptor
	ListForwardAssociations() []Association
	ListManyAssociations() []Association
	ListReverseAssociations() []Association
}

// FilterSetDescriptor lists the filters an entity declares.
//
// Fields are model fields whose filter type is derived from the storage
// descriptor. Declared are ad-hoc filters with their own descriptor kind.
type FilterSetDescriptor struct {
	Fields   []string
	Declared []FilterDescriptor
}

// FilterDescriptor is an ad-hoc filter declared on a filter set.
type FilterDescriptor struct {
	Name        string
	Kind        FilterKind
	FieldName   string
	CustomField bool
}

// Model is the catalog's EntityType implementation.
type Model struct {
	name        string
	module      string
	graphqlName string
	table       string
	fields      []FieldDescriptor
	filters     FilterSetDescriptor
	forward     []Association
	many        []Association
	reverse     []Association
}

// NewModel creates an unlinked model. Associations are attached by the catalog
// once every model is known.
func NewModel(module, name, table string, fields []FieldDescriptor, filters FilterSetDescriptor) *Model {
	if table == "" {
		table = module + "_" + strings.ToLower(name)
	}
	return &Model{
		name:    name,
		module:  module,
		table:   table,
		fields:  fields,
		filters: filters,
	}
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) Module() string               { return m.module }
func (m *Model) QualifiedName() string        { return m.module + "." + m.name }
func (m *Model) Table() string                { return m.table }
func (m *Model) Fields() []FieldDescriptor    { return m.fields }
func (m *Model) Filters() FilterSetDescriptor { return m.filters }

// GraphQLName returns the schema type name, the short name unless overridden.
func (m *Model) GraphQLName() string {
	if m.graphqlName != "" {
		return m.graphqlName
	}
	return m.name
}

func (m *Model) Field(name string) (FieldDescriptor, bool) {
	for _, f := range m.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

func (m *Model) ListForwardAssociations() []Association { return m.forward }
func (m *Model) ListManyAssociations() []Association    { return m.many }
func (m *Model) ListReverseAssociations() []Association { return m.reverse }

// SetGraphQLName overrides the schema type name.
func (m *Model) SetGraphQLName(name string) { m.graphqlName = name }

// AddForward attaches a forward association.
func (m *Model) AddForward(a Association) { m.forward = append(m.forward, a) }

// AddMany attaches a many-to-many association.
func (m *Model) AddMany(a Association) { m.many = append(m.many, a) }

// AddReverse attaches a reverse one-to-many association.
func (m *Model) AddReverse(a Association) { m.reverse = append(m.reverse, a) }

// SetFieldTarget links a relation field to its target entity.
func (m *Model) SetFieldTarget(name string, target EntityType) {
	for i := range m.fields {
		if m.fields[i].Name == name {
			m.fields[i].Target = target
			return
		}
	}
}

// FindAssociation finds an association of any direction by name.
func FindAssociation(e EntityType, name string) (Association, bool) {
	for _, list := range [][]Association{e.ListForwardAssociations(), e.ListManyAssociations(), e.ListReverseAssociations()} {
		for _, a := range list {
			if a.Name == name {
				return a, true
			}
		}
	}
	return Association{}, false
}
