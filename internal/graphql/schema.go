// Package graphql generates the GraphQL schema of a catalog and executes
// queries against a repository.Store.
//
// The schema is built at startup from the entity catalog and the finalized
// filter registry:
//
//	schema, err := graphql.BuildSchema(catalog, reg)
//	exec := graphql.NewExecutor(schema, store, resolver)
//	resp := exec.Execute(ctx, graphql.Request{Query: `{ device_list { id name } }`})
package graphql

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/lookup"
	"github.com/rpattn/netgql/internal/registry"
)

// Custom scalars.
const (
	scalarBigInt   = "BigInt"
	scalarDate     = "Date"
	scalarDateTime = "DateTime"
	scalarTime     = "Time"
	scalarJSON     = "JSON"
)

// ListSuffix is appended to an entity's query field name for its list field.
const ListSuffix = "_list"

type fieldKind int

const (
	scalarField fieldKind = iota
	forwardField
	listField
)

// objectField is one field of an entity's object type.
type objectField struct {
	kind  fieldKind
	field domain.FieldDescriptor
	assoc domain.Association
	typ   string
}

type rootKind int

const (
	rootGet rootKind = iota
	rootList
)

type rootField struct {
	kind   rootKind
	entity domain.EntityType
}

// Schema is the generated schema plus what the executor needs to map fields
// back to entities.
type Schema struct {
	AST *ast.Schema
	SDL string

	catalog  *domain.Catalog
	registry *registry.Registry
	objects  map[string]domain.EntityType
	fields   map[string]map[string]objectField
	order    map[string][]string
	roots    map[string]rootField
}

// BuildSchema generates and validates the schema. reg must be finalized.
func BuildSchema(catalog *domain.Catalog, reg *registry.Registry) (*Schema, error) {
	if !reg.Finalized() {
		return nil, registry.ErrNotFinalized
	}

	s := &Schema{
		catalog:  catalog,
		registry: reg,
		objects:  make(map[string]domain.EntityType),
		fields:   make(map[string]map[string]objectField),
		order:    make(map[string][]string),
		roots:    make(map[string]rootField),
	}

	for _, e := range catalog.All() {
		name := e.GraphQLName()
		if prev, ok := s.objects[name]; ok {
			return nil, fmt.Errorf("type name %s used by both %s and %s", name, prev.QualifiedName(), e.QualifiedName())
		}
		s.objects[name] = e
		s.collectObjectFields(e)

		get := SnakeCase(name)
		for _, field := range []string{get, get + ListSuffix} {
			if prev, ok := s.roots[field]; ok {
				return nil, fmt.Errorf("query field %s used by both %s and %s", field, prev.entity.QualifiedName(), e.QualifiedName())
			}
		}
		s.roots[get] = rootField{kind: rootGet, entity: e}
		s.roots[get+ListSuffix] = rootField{kind: rootList, entity: e}
	}

	sdl, err := s.render()
	if err != nil {
		return nil, err
	}
	s.SDL = sdl

	parsed, err := gqlparser.LoadSchema(&ast.Source{Name: "netgql.graphql", Input: sdl})
	if err != nil {
		return nil, fmt.Errorf("failed to load generated schema: %w", err)
	}
	s.AST = parsed
	return s, nil
}

// Entity returns the entity behind an object type name.
func (s *Schema) Entity(typeName string) (domain.EntityType, bool) {
	e, ok := s.objects[typeName]
	return e, ok
}

// FilterType returns the filter type of entity, if it has one.
func (s *Schema) FilterType(entity domain.EntityType) (*registry.FilterType, bool) {
	return s.registry.Lookup(entity.QualifiedName())
}

// Catalog returns the catalog the schema was built from.
func (s *Schema) Catalog() *domain.Catalog {
	return s.catalog
}

func (s *Schema) collectObjectFields(e domain.EntityType) {
	typeName := e.GraphQLName()
	fields := make(map[string]objectField)
	var order []string
	add := func(name string, f objectField) {
		if _, taken := fields[name]; taken {
			return
		}
		fields[name] = f
		order = append(order, name)
	}

	for _, fd := range e.Fields() {
		if fd.Kind.IsRelation() {
			continue
		}
		add(fd.Name, objectField{kind: scalarField, field: fd, typ: outputType(fd)})
	}
	for _, a := range e.ListForwardAssociations() {
		add(a.Name, objectField{kind: forwardField, assoc: a, typ: a.Target.GraphQLName()})
	}
	for _, list := range [][]domain.Association{e.ListManyAssociations(), e.ListReverseAssociations()} {
		for _, a := range list {
			add(a.Name, objectField{kind: listField, assoc: a, typ: "[" + a.Target.GraphQLName() + "!]!"})
		}
	}

	s.fields[typeName] = fields
	s.order[typeName] = order
}

// outputType is the GraphQL type of a scalar field on an object.
func outputType(fd domain.FieldDescriptor) string {
	switch fd.Kind {
	case domain.FieldKindBigAuto:
		return "ID!"
	case domain.FieldKindInteger, domain.FieldKindPositiveInteger:
		return "Int"
	case domain.FieldKindBigInteger:
		return scalarBigInt
	case domain.FieldKindBoolean:
		return "Boolean"
	case domain.FieldKindDate:
		return scalarDate
	case domain.FieldKindDateTime:
		return scalarDateTime
	case domain.FieldKindDecimal:
		return "Float"
	case domain.FieldKindJSON:
		return scalarJSON
	}
	return "String"
}

func (s *Schema) render() (string, error) {
	var b strings.Builder

	for _, name := range []string{scalarBigInt, scalarDate, scalarDateTime, scalarTime, scalarJSON} {
		fmt.Fprintf(&b, "scalar %s\n", name)
	}
	b.WriteString("\n")

	for _, ft := range filter.LookupTypes {
		writeLookupInput(&b, ft)
	}

	for _, ft := range s.registry.FilterTypes() {
		if err := s.writeFilterInput(&b, ft); err != nil {
			return "", err
		}
	}

	for _, e := range s.catalog.All() {
		typeName := e.GraphQLName()
		fmt.Fprintf(&b, "type %s {\n", typeName)
		for _, name := range s.order[typeName] {
			fmt.Fprintf(&b, "  %s: %s\n", name, s.fields[typeName][name].typ)
		}
		b.WriteString("}\n\n")
	}

	b.WriteString("type Query {\n")
	for _, e := range s.catalog.All() {
		typeName := e.GraphQLName()
		get := SnakeCase(typeName)
		fmt.Fprintf(&b, "  %s(id: ID!): %s\n", get, typeName)
		if ft, ok := s.FilterType(e); ok {
			fmt.Fprintf(&b, "  %s%s(filters: %s): [%s!]!\n", get, ListSuffix, ft.Name, typeName)
		} else {
			fmt.Fprintf(&b, "  %s%s: [%s!]!\n", get, ListSuffix, typeName)
		}
	}
	b.WriteString("}\n")
	return b.String(), nil
}

func (s *Schema) writeFilterInput(b *strings.Builder, ft *registry.FilterType) error {
	fmt.Fprintf(b, "input %s {\n", ft.Name)
	for _, f := range ft.Fields {
		typ := string(f.Type)
		if f.IsRelationship() {
			target, err := s.registry.Resolve(f.Ref)
			if err != nil {
				return fmt.Errorf("failed to resolve %s.%s: %w", ft.Name, f.Name, err)
			}
			typ = target.Name
		}
		fmt.Fprintf(b, "  %s: %s\n", f.Name, typ)
	}
	for _, name := range []string{filter.And, filter.Or, filter.Not} {
		fmt.Fprintf(b, "  %s: [%s!]\n", name, ft.Name)
	}
	b.WriteString("}\n\n")
	return nil
}

// lookupBase is the operand type of a lookup input.
func lookupBase(ft filter.FieldType) string {
	switch ft {
	case filter.IntComparison:
		return "Int"
	case filter.BigIntComparison:
		return scalarBigInt
	case filter.FloatComparison:
		return "Float"
	case filter.DateLookup:
		return scalarDate
	case filter.DatetimeLookup:
		return scalarDateTime
	case filter.TimeLookup:
		return scalarTime
	}
	return "String"
}

// lookupOperators returns the operators a lookup input offers.
func lookupOperators(ft filter.FieldType) []lookup.Operator {
	var cats []lookup.Category
	switch ft {
	case filter.StringLookup:
		cats = []lookup.Category{lookup.CategoryEquality, lookup.CategoryText}
	case filter.DateLookup, filter.DatetimeLookup, filter.TimeLookup:
		cats = []lookup.Category{lookup.CategoryEquality, lookup.CategoryComparison, lookup.CategoryDateTime}
	default:
		cats = []lookup.Category{lookup.CategoryEquality, lookup.CategoryComparison}
	}

	var out []lookup.Operator
	for _, op := range lookup.ByCategory(cats...) {
		if op == lookup.IExact && ft != filter.StringLookup {
			continue
		}
		switch ft {
		case filter.DateLookup:
			if op == lookup.Time || op == lookup.Hour || op == lookup.Minute || op == lookup.Second || op == lookup.Date {
				continue
			}
		case filter.TimeLookup:
			if op != lookup.Hour && op != lookup.Minute && op != lookup.Second {
				if c, _ := lookup.CategoryOf(op); c == lookup.CategoryDateTime {
					continue
				}
			}
		}
		out = append(out, op)
	}
	return out
}

func operandType(ft filter.FieldType, op lookup.Operator) string {
	base := lookupBase(ft)
	switch op {
	case lookup.IsNull, lookup.IsNullV1:
		return "Boolean"
	case lookup.InList, lookup.Range:
		return "[" + base + "!]"
	case lookup.Time:
		return scalarTime
	case lookup.Date:
		return scalarDate
	case lookup.Year, lookup.Month, lookup.Day, lookup.Week, lookup.WeekDay, lookup.Quarter,
		lookup.Hour, lookup.Minute, lookup.Second:
		return "Int"
	}
	return base
}

func writeLookupInput(b *strings.Builder, ft filter.FieldType) {
	fmt.Fprintf(b, "input %s {\n", ft)
	for _, op := range lookupOperators(ft) {
		fmt.Fprintf(b, "  %s: %s\n", op, operandType(ft, op))
	}
	b.WriteString("}\n\n")
}

// SnakeCase converts a type name to its query field name, keeping acronyms
// together: IPAddress becomes ip_address.
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
