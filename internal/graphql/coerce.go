package graphql

import (
	"fmt"
	"sort"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/lookup"
	"github.com/rpattn/netgql/internal/registry"
)

// CoerceFilter converts a filters value into an input of entity's filter
// type. raw is what a GraphQL argument or a decoded JSON document yields:
// nested map[string]any, []any and scalars. A nil raw gives a nil input.
func (s *Schema) CoerceFilter(entity domain.EntityType, raw any) (*filter.Input, error) {
	if raw == nil {
		return nil, nil
	}
	ft, ok := s.FilterType(entity)
	if !ok {
		return nil, fmt.Errorf("%s has no filter type", entity.QualifiedName())
	}
	return s.coerce(ft, raw)
}

func (s *Schema) coerce(ft *registry.FilterType, raw any) (*filter.Input, error) {
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected an object, got %T", ft.Name, raw)
	}
	in := ft.NewInput()

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := values[name]
		if v == nil {
			continue
		}

		if filter.IsCombinator(name) {
			items, err := s.coerceItems(ft, name, v)
			if err != nil {
				return nil, err
			}
			in.Set(name, items)
			continue
		}

		f, ok := ft.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", ft.Name, name)
		}

		switch {
		case f.IsRelationship():
			target, err := s.registry.Resolve(f.Ref)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s.%s: %w", ft.Name, name, err)
			}
			nested, err := s.coerce(target, v)
			if err != nil {
				return nil, err
			}
			in.Set(name, filter.Nested{Input: nested})

		case f.Type.IsLookup():
			ops, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: expected a lookup object, got %T", ft.Name, name, v)
			}
			l := filter.Lookup{}
			for key, operand := range ops {
				op := lookup.Operator(key)
				if !lookup.Known(op) {
					return nil, fmt.Errorf("%s.%s: unknown lookup %q", ft.Name, name, key)
				}
				if operand == nil {
					continue
				}
				l[op] = operand
			}
			if len(l) > 0 {
				in.Set(name, l)
			}

		default:
			in.Set(name, filter.Scalar{V: v})
		}
	}
	return in, nil
}

// coerceItems accepts a list of filters or a single filter, as GraphQL input
// coercion does for list types.
func (s *Schema) coerceItems(ft *registry.FilterType, name string, v any) (filter.Combinator, error) {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	items := make(filter.Combinator, 0, len(list))
	for i, item := range list {
		in, err := s.coerce(ft, item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		items = append(items, in)
	}
	return items, nil
}
