package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/predicate"
)

// ErrNotFound is returned by Get when no record has the id.
var ErrNotFound = errors.New("record not found")

// UnsupportedLookupError reports a lookup a backend cannot evaluate.
type UnsupportedLookupError struct {
	Backend string
	Lookup  predicate.Lookup
	Path    string
}

func (e *UnsupportedLookupError) Error() string {
	return fmt.Sprintf("%s does not support lookup %q on %s", e.Backend, e.Lookup, e.Path)
}

// Record is one stored entity keyed by column name.
type Record map[string]any

// ID returns the record's primary key.
func (r Record) ID() any {
	return r[domain.IDField]
}

// KeyOf renders an id as a map key. Ids arrive as strings from the schema
// and as integers from storage; both render alike.
func KeyOf(id any) string {
	switch v := id.(type) {
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprint(int64(v))
		}
	case []byte:
		return string(v)
	}
	return fmt.Sprint(id)
}

// EntityQuery is a lazily evaluated list query over one entity.
type EntityQuery interface {
	filter.Query
	Entity() domain.EntityType
	Predicate() predicate.P
	All(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id any) (Record, error)
	// ByIDs returns one slot per id, nil where no record matched.
	ByIDs(ctx context.Context, ids []any) ([]Record, error)
}

// Store opens queries over the entities of a catalog.
type Store interface {
	Query(entity domain.EntityType) EntityQuery
	// Related returns the records reachable through a many or reverse
	// association, grouped by KeyOf(source id).
	Related(ctx context.Context, entity domain.EntityType, association string, ids []any) (map[string][]Record, error)
}
