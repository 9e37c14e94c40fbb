package filter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/predicate"
)

// AliasCollisionError reports two associations normalizing to the same
// filter name on one entity.
type AliasCollisionError struct {
	Entity string
	Alias  string
	First  string
	Second string
}

func (e *AliasCollisionError) Error() string {
	return fmt.Sprintf("relationship alias %q on %s is produced by both %q and %q", e.Alias, e.Entity, e.First, e.Second)
}

// RelationshipMap normalizes filter field names of one entity to storage
// paths and knows the entity type behind each relationship name. A nil map
// is the identity.
type RelationshipMap struct {
	entity  domain.EntityType
	paths   map[string]string
	related map[string]domain.EntityType
	origin  map[string]string
}

// Path returns the storage path for a filter name, the name itself when no
// alias exists.
func (m *RelationshipMap) Path(name string) string {
	if m == nil {
		return name
	}
	if p, ok := m.paths[name]; ok {
		return p
	}
	return name
}

// Related returns the entity a relationship name points at.
func (m *RelationshipMap) Related(name string) (domain.EntityType, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.related[name]
	return e, ok
}

// Aliases returns a copy of the name to path table.
func (m *RelationshipMap) Aliases() map[string]string {
	out := make(map[string]string, len(m.paths))
	for k, v := range m.paths {
		out[k] = v
	}
	return out
}

func (m *RelationshipMap) alias(from, to, association string) error {
	if prev, ok := m.origin[from]; ok && prev != association {
		return &AliasCollisionError{
			Entity: m.entity.QualifiedName(),
			Alias:  from,
			First:  prev,
			Second: association,
		}
	}
	m.paths[from] = to
	m.origin[from] = association
	return nil
}

// IDAlias is the <name>_id filter name of an association. Many-valued
// associations use the singular of their name: tags gives tag_id.
func IDAlias(association string, manyValued bool) string {
	if manyValued {
		return inflect.Singularize(association) + "_id"
	}
	return strings.TrimSuffix(association, "_id") + "_id"
}

// ResolveRelationships builds the relationship map of entity.
//
// Forward association X: X_id -> X__id, X -> X, related keyed X.
// Many and reverse association Xs: X_id -> Xs__id, X -> Xs, related keyed by
// the singular X and by Xs.
func ResolveRelationships(entity domain.EntityType) (*RelationshipMap, error) {
	m := &RelationshipMap{
		entity:  entity,
		paths:   make(map[string]string),
		related: make(map[string]domain.EntityType),
		origin:  make(map[string]string),
	}

	for _, a := range entity.ListForwardAssociations() {
		base := strings.TrimSuffix(a.Name, "_id")
		if err := m.alias(IDAlias(a.Name, false), base+predicate.PathSeparator+domain.IDField, a.Name); err != nil {
			return nil, err
		}
		if err := m.alias(base, base, a.Name); err != nil {
			return nil, err
		}
		m.related[base] = a.Target
	}

	plural := append(append([]domain.Association{}, entity.ListManyAssociations()...), entity.ListReverseAssociations()...)
	for _, a := range plural {
		singular := inflect.Singularize(a.Name)
		if err := m.alias(IDAlias(a.Name, true), a.Name+predicate.PathSeparator+domain.IDField, a.Name); err != nil {
			return nil, err
		}
		if err := m.alias(singular, a.Name, a.Name); err != nil {
			return nil, err
		}
		m.related[singular] = a.Target
		if _, taken := m.related[a.Name]; !taken {
			m.related[a.Name] = a.Target
		}
	}
	return m, nil
}

// RelationshipCache memoizes relationship maps per qualified entity name.
// Maps depend only on the static schema shape.
type RelationshipCache struct {
	mu   sync.RWMutex
	maps map[string]*RelationshipMap
}

func NewRelationshipCache() *RelationshipCache {
	return &RelationshipCache{maps: make(map[string]*RelationshipMap)}
}

// Get returns the map of entity, computing it on first use.
func (c *RelationshipCache) Get(entity domain.EntityType) (*RelationshipMap, error) {
	key := entity.QualifiedName()

	c.mu.RLock()
	m, ok := c.maps[key]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := ResolveRelationships(entity)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.maps[key]; ok {
		return existing, nil
	}
	c.maps[key] = m
	return m, nil
}

// Warm computes the map of every catalog entity, surfacing alias collisions
// before any request is served.
func (c *RelationshipCache) Warm(catalog *domain.Catalog) error {
	for _, e := range catalog.All() {
		if _, err := c.Get(e); err != nil {
			return fmt.Errorf("failed to resolve relationships of %s: %w", e.QualifiedName(), err)
		}
	}
	return nil
}
