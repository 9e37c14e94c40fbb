package repository

import (
	"fmt"
	"strings"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/predicate"
)

type direction int

const (
	forward direction = iota
	many
	reverse
)

// hop is one association traversed by a field path.
type hop struct {
	from      domain.EntityType
	assoc     domain.Association
	direction direction
}

// fieldPath is a predicate path resolved against the catalog: the
// associations it crosses, the terminal field and, for json fields, the keys
// below it.
type fieldPath struct {
	hops  []hop
	field domain.FieldDescriptor
	keys  []string
}

func (p fieldPath) target(root domain.EntityType) domain.EntityType {
	if len(p.hops) == 0 {
		return root
	}
	return p.hops[len(p.hops)-1].assoc.Target
}

func findHop(e domain.EntityType, name string) (hop, bool) {
	for _, a := range e.ListForwardAssociations() {
		if a.Name == name {
			return hop{from: e, assoc: a, direction: forward}, true
		}
	}
	for _, a := range e.ListManyAssociations() {
		if a.Name == name {
			return hop{from: e, assoc: a, direction: many}, true
		}
	}
	for _, a := range e.ListReverseAssociations() {
		if a.Name == name {
			return hop{from: e, assoc: a, direction: reverse}, true
		}
	}
	return hop{}, false
}

// resolvePath walks path from entity. A path ending on an association
// compares the related id; a forward association compares its local key.
func resolvePath(entity domain.EntityType, path string) (fieldPath, error) {
	var out fieldPath
	segments := strings.Split(path, predicate.PathSeparator)
	current := entity

	for i, seg := range segments {
		last := i == len(segments)-1

		if fd, ok := current.Field(seg); ok && !fd.Kind.IsRelation() {
			out.field = fd
			rest := segments[i+1:]
			if len(rest) > 0 && fd.Kind != domain.FieldKindJSON {
				return fieldPath{}, fmt.Errorf("path %s: %s.%s has no sub-fields", path, current.QualifiedName(), seg)
			}
			out.keys = rest
			return out, nil
		}

		h, ok := findHop(current, seg)
		if !ok {
			return fieldPath{}, fmt.Errorf("path %s: %s has no field %q", path, current.QualifiedName(), seg)
		}
		if last && h.direction == forward {
			out.field = domain.FieldDescriptor{Name: seg, Column: h.assoc.Column, Kind: domain.FieldKindBigInteger, Nullable: true}
			return out, nil
		}
		out.hops = append(out.hops, h)
		current = h.assoc.Target
		if last {
			out.field = idField(current)
		}
	}
	return out, nil
}

func idField(e domain.EntityType) domain.FieldDescriptor {
	if fd, ok := e.Field(domain.IDField); ok {
		return fd
	}
	return domain.FieldDescriptor{Name: domain.IDField, Column: domain.IDField, Kind: domain.FieldKindBigAuto}
}
