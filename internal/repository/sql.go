package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/netgql/internal/db"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/predicate"
)

const sourceColumn = "__source"

// SQLStore runs queries against a relational database through a Querier.
type SQLStore struct {
	q       db.Querier
	dialect Dialect
}

func NewSQLStore(q db.Querier, dialect Dialect) *SQLStore {
	return &SQLStore{q: q, dialect: dialect}
}

func (s *SQLStore) Query(entity domain.EntityType) EntityQuery {
	return &sqlQuery{store: s, entity: entity}
}

func (s *SQLStore) Related(ctx context.Context, entity domain.EntityType, association string, ids []any) (map[string][]Record, error) {
	h, ok := findHop(entity, association)
	if !ok {
		return nil, fmt.Errorf("%s has no association %q", entity.QualifiedName(), association)
	}
	out := make(map[string][]Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if h.direction == forward {
		sources, err := s.Query(entity).ByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		var fks []any
		for _, src := range sources {
			if src != nil && src[h.assoc.Column] != nil {
				fks = append(fks, src[h.assoc.Column])
			}
		}
		targets, err := s.Query(h.assoc.Target).ByIDs(ctx, fks)
		if err != nil {
			return nil, err
		}
		byKey := make(map[string]Record, len(targets))
		for _, t := range targets {
			if t != nil {
				byKey[KeyOf(t.ID())] = t
			}
		}
		for i, src := range sources {
			if src == nil {
				continue
			}
			if t, ok := byKey[KeyOf(src[h.assoc.Column])]; ok {
				out[KeyOf(ids[i])] = []Record{t}
			}
		}
		return out, nil
	}

	r := newRenderer(s.dialect)
	target := h.assoc.Target
	placeholders := make([]string, len(ids))
	var query string

	if h.direction == reverse {
		for i, id := range ids {
			placeholders[i] = r.arg(toInt(id))
		}
		query = "SELECT " + selectList(target, "t0") + ", " + column("t0", h.assoc.Column) + " AS " + ident(sourceColumn) +
			" FROM " + ident(target.Table()) + " t0" +
			" WHERE " + column("t0", h.assoc.Column) + " IN (" + strings.Join(placeholders, ", ") + ")" +
			" ORDER BY " + column("t0", idField(target).Column)
	} else {
		for i, id := range ids {
			placeholders[i] = r.arg(toInt(id))
		}
		query = "SELECT " + selectList(target, "t0") + ", " + column("j0", h.assoc.ThroughSource) + " AS " + ident(sourceColumn) +
			" FROM " + ident(h.assoc.ThroughTable) + " j0" +
			" JOIN " + ident(target.Table()) + " t0 ON " + column("t0", idField(target).Column) + " = " + column("j0", h.assoc.ThroughTarget) +
			" WHERE " + column("j0", h.assoc.ThroughSource) + " IN (" + strings.Join(placeholders, ", ") + ")" +
			" ORDER BY " + column("t0", idField(target).Column)
	}

	rows, err := s.q.Query(ctx, query, r.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s.%s: %w", entity.QualifiedName(), association, err)
	}
	for _, row := range rows {
		key := KeyOf(row[sourceColumn])
		out[key] = append(out[key], s.record(target, row))
	}
	return out, nil
}

func selectList(entity domain.EntityType, alias string) string {
	var cols []string
	for _, f := range entity.Fields() {
		if f.Column == "" {
			continue
		}
		cols = append(cols, column(alias, f.Column))
	}
	return strings.Join(cols, ", ")
}

// record converts a row to storage independent values.
func (s *SQLStore) record(entity domain.EntityType, row db.Row) Record {
	out := make(Record, len(entity.Fields()))
	for _, f := range entity.Fields() {
		if f.Column == "" {
			continue
		}
		out[f.Column] = convertValue(f.Kind, row[f.Column])
	}
	return out
}

func convertValue(kind domain.FieldKind, v any) any {
	switch kind {
	case domain.FieldKindBoolean:
		switch x := v.(type) {
		case int64:
			return x != 0
		case string:
			b, _ := strconv.ParseBool(x)
			return b
		}
	case domain.FieldKindJSON:
		var raw []byte
		switch x := v.(type) {
		case string:
			raw = []byte(x)
		case []byte:
			raw = x
		default:
			return v
		}
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	case domain.FieldKindDecimal:
		if x, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case domain.FieldKindDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.DateOnly)
		}
	}
	return v
}

type sqlQuery struct {
	store    *SQLStore
	entity   domain.EntityType
	pred     predicate.P
	distinct bool
}

func (q *sqlQuery) Filter(p predicate.P) filter.Query {
	next := *q
	next.pred = predicate.And(q.pred, p)
	return &next
}

func (q *sqlQuery) Distinct() filter.Query {
	next := *q
	next.distinct = true
	return &next
}

func (q *sqlQuery) Entity() domain.EntityType { return q.entity }
func (q *sqlQuery) Predicate() predicate.P    { return q.pred }

// SQL renders the query and its arguments.
func (q *sqlQuery) SQL() (string, []any, error) {
	return q.render(nil)
}

func (q *sqlQuery) render(extra predicate.P) (string, []any, error) {
	r := newRenderer(q.store.dialect)
	where, err := r.where(q.entity, "t0", predicate.And(q.pred, extra))
	if err != nil {
		return "", nil, fmt.Errorf("failed to render filter for %s: %w", q.entity.QualifiedName(), err)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(selectList(q.entity, "t0"))
	b.WriteString(" FROM ")
	b.WriteString(ident(q.entity.Table()))
	b.WriteString(" t0")
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(column("t0", idField(q.entity).Column))
	return b.String(), r.args, nil
}

func (q *sqlQuery) run(ctx context.Context, extra predicate.P) ([]Record, error) {
	query, args, err := q.render(extra)
	if err != nil {
		return nil, err
	}
	rows, err := q.store.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", q.entity.QualifiedName(), err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = q.store.record(q.entity, row)
	}
	return out, nil
}

func (q *sqlQuery) All(ctx context.Context) ([]Record, error) {
	return q.run(ctx, nil)
}

func (q *sqlQuery) Get(ctx context.Context, id any) (Record, error) {
	records, err := q.run(ctx, predicate.Leaf{Path: domain.IDField, Lookup: predicate.Exact, Value: id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (q *sqlQuery) ByIDs(ctx context.Context, ids []any) ([]Record, error) {
	out := make([]Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	records, err := q.run(ctx, predicate.Leaf{Path: domain.IDField, Lookup: predicate.In, Value: ids})
	if err != nil {
		return nil, err
	}
	index := make(map[string]Record, len(records))
	for _, r := range records {
		index[KeyOf(r.ID())] = r
	}
	for i, id := range ids {
		out[i] = index[KeyOf(id)]
	}
	return out, nil
}
