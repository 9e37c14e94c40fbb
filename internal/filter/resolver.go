package filter

import (
	"log"
	"strings"

	"github.com/rpattn/netgql/internal/predicate"
)

// Query is the storage side of a list field: something that can be narrowed
// by a predicate and deduplicated.
type Query interface {
	Filter(p predicate.P) Query
	Distinct() Query
}

// Resolver applies filter inputs to list queries.
type Resolver struct {
	builder *Builder
	debug   bool
}

// NewResolver creates a resolver. With debug set, compiled predicates are
// logged.
func NewResolver(builder *Builder, debug bool) *Resolver {
	return &Resolver{builder: builder, debug: debug}
}

// Builder returns the predicate builder used by the resolver.
func (r *Resolver) Builder() *Builder {
	return r.builder
}

// Resolve narrows base by in and returns the deduplicated query.
//
// Every field the builder consumed, and every custom field whose remap was
// applied, is reset to Unset on in. Building the same input again afterwards
// yields nothing.
func (r *Resolver) Resolve(base Query, in *Input) (Query, error) {
	if in == nil || len(in.SetNames()) == 0 {
		return base.Distinct(), nil
	}

	compiled, err := r.builder.Build(in, "", nil)
	if err != nil {
		return nil, err
	}

	p := compiled.Predicate
	if remaps := in.FieldMap(); len(remaps) > 0 {
		var touched []string
		p = predicate.MapLeaves(p, func(l predicate.Leaf) predicate.Leaf {
			for _, remap := range remaps {
				if rest, ok := cutPathPrefix(l.Path, remap.From); ok {
					l.Path = remap.To + rest
					touched = append(touched, remap.From)
					break
				}
			}
			return l
		})
		for _, name := range touched {
			in.Clear(name)
		}
	}

	if r.debug {
		entity := "<unknown>"
		if in.Entity() != nil {
			entity = in.Entity().QualifiedName()
		}
		log.Printf("[FILTER] %s: %s (consumed %s)", entity, predicate.String(p), strings.Join(compiled.Consumed, ","))
	}

	query := base
	if !predicate.IsEmpty(p) {
		query = query.Filter(p)
	}
	for _, name := range compiled.Consumed {
		in.Clear(name)
	}
	return query.Distinct(), nil
}

// cutPathPrefix matches prefix against whole path segments only.
func cutPathPrefix(path, prefix string) (string, bool) {
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+predicate.PathSeparator) {
		return path[len(prefix):], true
	}
	return "", false
}
