package repository

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/predicate"
)

// Dialect selects the SQL flavour the store renders.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var jsonKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// renderer turns predicates into SQL. Arguments are collected in the order
// their placeholders appear in the text.
type renderer struct {
	dialect Dialect
	args    []any
	aliases int
}

func newRenderer(dialect Dialect) *renderer {
	return &renderer{dialect: dialect}
}

func ident(name string) string {
	return pq.QuoteIdentifier(name)
}

func column(alias, name string) string {
	return alias + "." + ident(name)
}

func (r *renderer) arg(v any) string {
	r.args = append(r.args, v)
	if r.dialect == Postgres {
		return "$" + strconv.Itoa(len(r.args))
	}
	return "?"
}

func (r *renderer) alias(prefix string) string {
	r.aliases++
	return prefix + strconv.Itoa(r.aliases)
}

// where renders p against entity aliased as alias. An empty predicate renders
// as the empty string.
func (r *renderer) where(entity domain.EntityType, alias string, p predicate.P) (string, error) {
	switch n := p.(type) {
	case nil:
		return "", nil
	case predicate.Leaf:
		return r.leaf(entity, alias, n)
	case *predicate.Conjunction:
		return r.join(entity, alias, n.Items, " AND ")
	case *predicate.Disjunction:
		return r.join(entity, alias, n.Items, " OR ")
	case *predicate.Negation:
		inner, err := r.where(entity, alias, n.Item)
		if err != nil || inner == "" {
			return inner, err
		}
		// A NULL operand makes the inner condition unknown; count it as
		// false so NOT keeps the row, as the memory store does.
		return "NOT COALESCE(" + inner + ", FALSE)", nil
	}
	return "", fmt.Errorf("unknown predicate node %T", p)
}

func (r *renderer) join(entity domain.EntityType, alias string, items []predicate.P, sep string) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, err := r.where(entity, alias, item)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (r *renderer) leaf(entity domain.EntityType, alias string, l predicate.Leaf) (string, error) {
	fp, err := resolvePath(entity, l.Path)
	if err != nil {
		return "", err
	}

	if l.Lookup == predicate.IsNull {
		wantNull := truthy(l.Value)
		if len(fp.hops) == 0 {
			expr, err := r.expr(alias, fp, nil)
			if err != nil {
				return "", err
			}
			if wantNull {
				return expr + " IS NULL", nil
			}
			return expr + " IS NOT NULL", nil
		}
		exists, err := r.exists(fp, alias, 0, func(a string) (string, error) {
			expr, err := r.expr(a, fp, nil)
			if err != nil {
				return "", err
			}
			return expr + " IS NOT NULL", nil
		})
		if err != nil {
			return "", err
		}
		if wantNull {
			return "NOT " + exists, nil
		}
		return exists, nil
	}

	return r.exists(fp, alias, 0, func(a string) (string, error) {
		return r.condition(a, fp, l)
	})
}

// exists wraps the condition in one correlated EXISTS per hop.
func (r *renderer) exists(fp fieldPath, alias string, i int, inner func(alias string) (string, error)) (string, error) {
	if i == len(fp.hops) {
		return inner(alias)
	}
	h := fp.hops[i]
	target := r.alias("t")
	targetID := column(target, idField(h.assoc.Target).Column)

	var from, on string
	switch h.direction {
	case forward:
		from = ident(h.assoc.Target.Table()) + " " + target
		on = targetID + " = " + column(alias, h.assoc.Column)
	case reverse:
		from = ident(h.assoc.Target.Table()) + " " + target
		on = column(target, h.assoc.Column) + " = " + column(alias, idField(h.from).Column)
	case many:
		through := r.alias("j")
		from = ident(h.assoc.ThroughTable) + " " + through +
			" JOIN " + ident(h.assoc.Target.Table()) + " " + target +
			" ON " + targetID + " = " + column(through, h.assoc.ThroughTarget)
		on = column(through, h.assoc.ThroughSource) + " = " + column(alias, idField(h.from).Column)
	}

	rest, err := r.exists(fp, target, i+1, inner)
	if err != nil {
		return "", err
	}
	return "EXISTS (SELECT 1 FROM " + from + " WHERE " + on + " AND " + rest + ")", nil
}

// expr renders the value expression of fp on alias. For json paths on
// postgres the text result is cast to match the operand.
func (r *renderer) expr(alias string, fp fieldPath, operand any) (string, error) {
	col := column(alias, fp.field.Column)
	if len(fp.keys) == 0 {
		return col, nil
	}
	for _, k := range fp.keys {
		if !jsonKey.MatchString(k) {
			return "", fmt.Errorf("invalid json key %q in %s", k, fp.field.Name)
		}
	}
	if r.dialect == SQLite {
		return "json_extract(" + col + ", '$." + strings.Join(fp.keys, ".") + "')", nil
	}
	expr := "(" + col + " #>> " + pq.QuoteLiteral("{"+strings.Join(fp.keys, ",")+"}") + ")"
	switch operand.(type) {
	case bool:
		return expr + "::boolean", nil
	}
	if _, ok := number(operand); ok {
		return expr + "::numeric", nil
	}
	return expr, nil
}

func (r *renderer) condition(alias string, fp fieldPath, l predicate.Leaf) (string, error) {
	value := r.coerce(fp, l.Lookup, l.Value)
	operand := value
	if items, ok := value.([]any); ok && len(items) > 0 {
		operand = items[0]
	}
	expr, err := r.expr(alias, fp, operand)
	if err != nil {
		return "", err
	}
	asText := "CAST(" + expr + " AS TEXT)"

	switch l.Lookup {
	case predicate.Exact, "":
		if value == nil {
			return expr + " IS NULL", nil
		}
		return expr + " = " + r.arg(value), nil
	case predicate.IExact:
		return "LOWER(" + asText + ") = LOWER(" + r.arg(text(value)) + ")", nil
	case predicate.In:
		items := toList(value)
		if len(items) == 0 {
			return "1 = 0", nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = r.arg(item)
		}
		return expr + " IN (" + strings.Join(placeholders, ", ") + ")", nil
	case predicate.GT:
		return expr + " > " + r.arg(value), nil
	case predicate.GTE:
		return expr + " >= " + r.arg(value), nil
	case predicate.LT:
		return expr + " < " + r.arg(value), nil
	case predicate.LTE:
		return expr + " <= " + r.arg(value), nil
	case predicate.Range:
		bounds := toList(value)
		if len(bounds) != 2 {
			return "", fmt.Errorf("range on %s needs two bounds, got %d", l.Path, len(bounds))
		}
		return expr + " BETWEEN " + r.arg(bounds[0]) + " AND " + r.arg(bounds[1]), nil
	case predicate.Contains, predicate.IContains, predicate.StartsWith, predicate.IStartsWith,
		predicate.EndsWith, predicate.IEndsWith:
		return r.text(asText, l.Lookup, text(value)), nil
	case predicate.Regex, predicate.IRegex:
		if r.dialect == SQLite {
			return "", &UnsupportedLookupError{Backend: string(r.dialect), Lookup: l.Lookup, Path: l.Path}
		}
		op := " ~ "
		if l.Lookup == predicate.IRegex {
			op = " ~* "
		}
		return asText + op + r.arg(text(value)), nil
	case predicate.Time:
		want := text(value)
		if len(want) == len("15:04") {
			want += ":00"
		}
		if r.dialect == SQLite {
			return "strftime('%H:%M:%S', " + expr + ") = " + r.arg(want), nil
		}
		return "CAST(" + expr + " AS TIME) = CAST(CAST(" + r.arg(want) + " AS TEXT) AS TIME)", nil
	case predicate.Date:
		if r.dialect == SQLite {
			return "date(" + expr + ") = date(" + r.arg(text(value)) + ")", nil
		}
		return "CAST(" + expr + " AS DATE) = CAST(CAST(" + r.arg(text(value)) + " AS TEXT) AS DATE)", nil
	}

	if part, ok := r.datePart(expr, l.Lookup); ok {
		return part + " = " + r.arg(value), nil
	}
	return "", &UnsupportedLookupError{Backend: string(r.dialect), Lookup: l.Lookup, Path: l.Path}
}

func (r *renderer) text(expr string, lookup predicate.Lookup, s string) string {
	insensitive := lookup == predicate.IContains || lookup == predicate.IStartsWith || lookup == predicate.IEndsWith

	if r.dialect == SQLite && !insensitive {
		// LIKE is case-insensitive in sqlite.
		switch lookup {
		case predicate.Contains:
			return "instr(" + expr + ", " + r.arg(s) + ") > 0"
		case predicate.StartsWith:
			return "substr(" + expr + ", 1, length(" + r.arg(s) + ")) = " + r.arg(s)
		}
		return "substr(" + expr + ", -length(" + r.arg(s) + ")) = " + r.arg(s)
	}

	pattern := escapeLike(s)
	switch lookup {
	case predicate.Contains, predicate.IContains:
		pattern = "%" + pattern + "%"
	case predicate.StartsWith, predicate.IStartsWith:
		pattern += "%"
	default:
		pattern = "%" + pattern
	}
	op := " LIKE "
	if insensitive && r.dialect == Postgres {
		op = " ILIKE "
	}
	return expr + op + r.arg(pattern) + ` ESCAPE '\'`
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var postgresParts = map[predicate.Lookup]string{
	predicate.Year:    "EXTRACT(YEAR FROM %s)",
	predicate.Month:   "EXTRACT(MONTH FROM %s)",
	predicate.Day:     "EXTRACT(DAY FROM %s)",
	predicate.Week:    "EXTRACT(WEEK FROM %s)",
	predicate.WeekDay: "(EXTRACT(DOW FROM %s) + 1)",
	predicate.Quarter: "EXTRACT(QUARTER FROM %s)",
	predicate.Hour:    "EXTRACT(HOUR FROM %s)",
	predicate.Minute:  "EXTRACT(MINUTE FROM %s)",
	predicate.Second:  "FLOOR(EXTRACT(SECOND FROM %s))",
}

var sqliteParts = map[predicate.Lookup]string{
	predicate.Year:    "CAST(strftime('%%Y', %s) AS INTEGER)",
	predicate.Month:   "CAST(strftime('%%m', %s) AS INTEGER)",
	predicate.Day:     "CAST(strftime('%%d', %s) AS INTEGER)",
	predicate.Week:    "CAST(strftime('%%V', %s) AS INTEGER)",
	predicate.WeekDay: "(CAST(strftime('%%w', %s) AS INTEGER) + 1)",
	predicate.Quarter: "((CAST(strftime('%%m', %s) AS INTEGER) + 2) / 3)",
	predicate.Hour:    "CAST(strftime('%%H', %s) AS INTEGER)",
	predicate.Minute:  "CAST(strftime('%%M', %s) AS INTEGER)",
	predicate.Second:  "CAST(strftime('%%S', %s) AS INTEGER)",
}

func (r *renderer) datePart(expr string, lookup predicate.Lookup) (string, bool) {
	parts := postgresParts
	if r.dialect == SQLite {
		parts = sqliteParts
	}
	format, ok := parts[lookup]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(format, expr), true
}

// coerce converts schema operands to the column's storage type: ids and
// integers arrive as strings, timestamps as ISO text.
func (r *renderer) coerce(fp fieldPath, lookup predicate.Lookup, v any) any {
	if items, ok := v.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = r.coerce(fp, lookup, item)
		}
		return out
	}
	switch v.(type) {
	case []string, []int, []int64, []float64:
		return r.coerce(fp, lookup, toList(v))
	}

	switch lookup {
	case predicate.Year, predicate.Month, predicate.Day, predicate.Week, predicate.WeekDay,
		predicate.Quarter, predicate.Hour, predicate.Minute, predicate.Second:
		return toInt(v)
	case predicate.Exact, predicate.In, predicate.GT, predicate.GTE, predicate.LT, predicate.LTE, predicate.Range:
	default:
		return v
	}
	if len(fp.keys) > 0 {
		return v
	}

	switch fp.field.Kind {
	case domain.FieldKindBigAuto, domain.FieldKindBigInteger, domain.FieldKindInteger,
		domain.FieldKindPositiveInteger:
		return toInt(v)
	case domain.FieldKindDecimal:
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
	case domain.FieldKindBoolean:
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
	case domain.FieldKindDate, domain.FieldKindDateTime:
		if r.dialect == Postgres {
			if t, ok := asTime(v); ok {
				return t
			}
		}
		if t, ok := v.(time.Time); ok {
			if fp.field.Kind == domain.FieldKindDate {
				return t.Format(time.DateOnly)
			}
			return t.UTC().Format(time.RFC3339)
		}
	}
	return v
}

func toInt(v any) any {
	switch x := v.(type) {
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n
		}
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
	case int:
		return int64(x)
	}
	return v
}
