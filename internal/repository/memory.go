package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/predicate"
)

// MemoryStore keeps every entity in process. Predicates are evaluated record
// by record; multi-valued paths match when any related record does.
type MemoryStore struct {
	mu      sync.RWMutex
	catalog *domain.Catalog
	tables  map[string][]Record
	through map[string][]Record
}

func NewMemoryStore(catalog *domain.Catalog) *MemoryStore {
	return &MemoryStore{
		catalog: catalog,
		tables:  make(map[string][]Record),
		through: make(map[string][]Record),
	}
}

// Insert adds records to an entity given by qualified or short name. Every
// record needs an id.
func (s *MemoryStore) Insert(entity string, records ...Record) error {
	e, err := s.catalog.Resolve(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.ID() == nil {
			return fmt.Errorf("failed to insert into %s: record without id", e.QualifiedName())
		}
		s.tables[e.QualifiedName()] = append(s.tables[e.QualifiedName()], copyRecord(r))
	}
	return nil
}

// Link connects two records through a many-to-many association of entity.
func (s *MemoryStore) Link(entity, association string, sourceID, targetID any) error {
	e, err := s.catalog.Resolve(entity)
	if err != nil {
		return err
	}
	h, ok := findHop(e, association)
	if !ok || h.direction != many {
		return fmt.Errorf("%s has no many-to-many association %q", e.QualifiedName(), association)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.through[h.assoc.ThroughTable] = append(s.through[h.assoc.ThroughTable], Record{
		h.assoc.ThroughSource: sourceID,
		h.assoc.ThroughTarget: targetID,
	})
	return nil
}

func (s *MemoryStore) Query(entity domain.EntityType) EntityQuery {
	return &memoryQuery{store: s, entity: entity}
}

func (s *MemoryStore) Related(ctx context.Context, entity domain.EntityType, association string, ids []any) (map[string][]Record, error) {
	h, ok := findHop(entity, association)
	if !ok {
		return nil, fmt.Errorf("%s has no association %q", entity.QualifiedName(), association)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]Record, len(ids))
	for _, id := range ids {
		source := s.byID(entity, id)
		if source == nil {
			continue
		}
		for _, r := range s.follow(h, source) {
			out[KeyOf(id)] = append(out[KeyOf(id)], copyRecord(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) byID(entity domain.EntityType, id any) Record {
	key := KeyOf(id)
	for _, r := range s.tables[entity.QualifiedName()] {
		if KeyOf(r.ID()) == key {
			return r
		}
	}
	return nil
}

// follow returns the records h leads to from rec.
func (s *MemoryStore) follow(h hop, rec Record) []Record {
	switch h.direction {
	case forward:
		fk := rec[h.assoc.Column]
		if fk == nil {
			return nil
		}
		if r := s.byID(h.assoc.Target, fk); r != nil {
			return []Record{r}
		}
		return nil
	case reverse:
		key := KeyOf(rec.ID())
		var out []Record
		for _, r := range s.tables[h.assoc.Target.QualifiedName()] {
			if fk := r[h.assoc.Column]; fk != nil && KeyOf(fk) == key {
				out = append(out, r)
			}
		}
		return out
	}

	key := KeyOf(rec.ID())
	var out []Record
	for _, row := range s.through[h.assoc.ThroughTable] {
		if KeyOf(row[h.assoc.ThroughSource]) != key {
			continue
		}
		if r := s.byID(h.assoc.Target, row[h.assoc.ThroughTarget]); r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (s *MemoryStore) match(entity domain.EntityType, rec Record, p predicate.P) (bool, error) {
	switch n := p.(type) {
	case nil:
		return true, nil
	case predicate.Leaf:
		fp, err := resolvePath(entity, n.Path)
		if err != nil {
			return false, err
		}
		return matchValues(s.collect(fp, rec, 0), n)
	case *predicate.Conjunction:
		for _, item := range n.Items {
			ok, err := s.match(entity, rec, item)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *predicate.Disjunction:
		if len(n.Items) == 0 {
			return true, nil
		}
		for _, item := range n.Items {
			ok, err := s.match(entity, rec, item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *predicate.Negation:
		if predicate.IsEmpty(n.Item) {
			return true, nil
		}
		ok, err := s.match(entity, rec, n.Item)
		return !ok, err
	}
	return false, fmt.Errorf("unknown predicate node %T", p)
}

// collect gathers the values at fp reachable from rec.
func (s *MemoryStore) collect(fp fieldPath, rec Record, i int) []any {
	if i == len(fp.hops) {
		return []any{dig(rec[fp.field.Column], fp.keys)}
	}
	var out []any
	for _, r := range s.follow(fp.hops[i], rec) {
		out = append(out, s.collect(fp, r, i+1)...)
	}
	return out
}

func dig(v any, keys []string) any {
	for _, key := range keys {
		if raw, ok := v.(string); ok {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
				return nil
			}
			v = decoded
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type memoryQuery struct {
	store    *MemoryStore
	entity   domain.EntityType
	pred     predicate.P
	distinct bool
}

func (q *memoryQuery) Filter(p predicate.P) filter.Query {
	next := *q
	next.pred = predicate.And(q.pred, p)
	return &next
}

func (q *memoryQuery) Distinct() filter.Query {
	next := *q
	next.distinct = true
	return &next
}

func (q *memoryQuery) Entity() domain.EntityType { return q.entity }
func (q *memoryQuery) Predicate() predicate.P    { return q.pred }

func (q *memoryQuery) All(ctx context.Context) ([]Record, error) {
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()

	var out []Record
	seen := make(map[string]bool)
	for _, rec := range q.store.tables[q.entity.QualifiedName()] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := q.store.match(q.entity, rec, q.pred)
		if err != nil {
			return nil, fmt.Errorf("failed to filter %s: %w", q.entity.QualifiedName(), err)
		}
		if !ok {
			continue
		}
		if q.distinct {
			key := KeyOf(rec.ID())
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (q *memoryQuery) Get(ctx context.Context, id any) (Record, error) {
	records, err := q.ByIDs(ctx, []any{id})
	if err != nil {
		return nil, err
	}
	if records[0] == nil {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (q *memoryQuery) ByIDs(ctx context.Context, ids []any) ([]Record, error) {
	all, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Record, len(all))
	for _, r := range all {
		index[KeyOf(r.ID())] = r
	}
	out := make([]Record, len(ids))
	for i, id := range ids {
		out[i] = index[KeyOf(id)]
	}
	return out, nil
}
