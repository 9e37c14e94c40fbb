package filter

import (
	"fmt"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/lookup"
	"github.com/rpattn/netgql/internal/predicate"
)

// Schemas reports whether an entity has a registered filter type. Nested
// field names are only normalized against entities that have one.
type Schemas interface {
	HasFilter(qualified string) bool
}

// Compiled is the builder's output.
type Compiled struct {
	Predicate predicate.P
	// Consumed lists every visited field name, including names visited
	// inside relationship filters, in first-visit order.
	Consumed []string
}

// Builder compiles filter inputs into predicates. It holds no per-request
// state and is safe for concurrent use.
type Builder struct {
	relationships *RelationshipCache
	schemas       Schemas
}

// NewBuilder creates a builder. A nil schemas treats every entity as having a
// filter type.
func NewBuilder(relationships *RelationshipCache, schemas Schemas) *Builder {
	if relationships == nil {
		relationships = NewRelationshipCache()
	}
	return &Builder{relationships: relationships, schemas: schemas}
}

// Build compiles in. Field paths are prefixed with prefix; names are
// normalized through the relationship map of entity, or of in.Entity() when
// entity is nil. Errors only come from relationship resolution.
func (b *Builder) Build(in *Input, prefix string, entity domain.EntityType) (Compiled, error) {
	if in == nil {
		return Compiled{}, nil
	}
	if entity == nil {
		entity = in.Entity()
	}
	var rel *RelationshipMap
	if entity != nil {
		var err error
		rel, err = b.relationships.Get(entity)
		if err != nil {
			return Compiled{}, err
		}
	}

	consumed := &nameSet{}
	p, err := b.build(in, prefix, rel, consumed)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{Predicate: p, Consumed: consumed.list}, nil
}

func (b *Builder) build(in *Input, prefix string, rel *RelationshipMap, consumed *nameSet) (predicate.P, error) {
	var acc predicate.P
	if in == nil {
		return acc, nil
	}

	for _, name := range in.Names() {
		value := in.Get(name)
		if !IsSet(value) {
			continue
		}
		consumed.add(name)

		if IsCombinator(name) {
			items, err := combinatorItems(name, value)
			if err != nil {
				return nil, err
			}
			parts := make([]predicate.P, 0, len(items))
			for _, item := range items {
				p, err := b.build(item, prefix, rel, consumed)
				if err != nil {
					return nil, err
				}
				parts = append(parts, p)
			}
			switch name {
			case And:
				acc = predicate.And(acc, predicate.And(parts...))
			case Or:
				acc = predicate.Or(acc, predicate.Or(parts...))
			case Not:
				acc = predicate.And(acc, predicate.Not(predicate.And(parts...)))
			}
			continue
		}

		switch v := value.(type) {
		case Nested:
			base := join(prefix, rel.Path(name))
			var nestedRel *RelationshipMap
			if related, ok := rel.Related(name); ok && b.hasFilter(related) {
				m, err := b.relationships.Get(related)
				if err != nil {
					return nil, err
				}
				nestedRel = m
			}
			p, err := b.build(v.Input, base, nestedRel, consumed)
			if err != nil {
				return nil, err
			}
			acc = predicate.And(acc, p)

		case Lookup:
			path := join(prefix, rel.Path(name))
			for _, op := range lookup.Operators() {
				if operand, ok := v[op]; ok {
					acc = predicate.And(acc, lookup.Apply(op, path, operand))
				}
			}

		case Scalar:
			acc = predicate.And(acc, lookup.Apply(lookup.Exact, join(prefix, rel.Path(name)), v.V))

		case Combinator:
			return nil, fmt.Errorf("field %s: item lists are only valid on AND, OR and NOT", name)
		}
	}
	return acc, nil
}

func (b *Builder) hasFilter(e domain.EntityType) bool {
	return b.schemas == nil || b.schemas.HasFilter(e.QualifiedName())
}

// combinatorItems accepts a single nested filter as a one item list.
func combinatorItems(name string, v Value) ([]*Input, error) {
	switch x := v.(type) {
	case Combinator:
		return x, nil
	case Nested:
		return []*Input{x.Input}, nil
	}
	return nil, fmt.Errorf("field %s: expected a filter or a list of filters, got %T", name, v)
}

func join(prefix, path string) string {
	if prefix == "" {
		return path
	}
	return prefix + predicate.PathSeparator + path
}

type nameSet struct {
	seen map[string]bool
	list []string
}

func (s *nameSet) add(name string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[name] {
		return
	}
	s.seen[name] = true
	s.list = append(s.list, name)
}
