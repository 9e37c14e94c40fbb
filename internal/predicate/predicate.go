// Package predicate holds the composable boolean condition tree produced by the
// filter builder and consumed by the storage backends.
//
// A nil P is the empty predicate. It matches every record and is the identity of
// both And and Or, so callers can fold conditions without special-casing the
// first one.
package predicate

import (
	"fmt"
	"strings"
	"time"
)

// Lookup is a storage-level comparison kind applied to a field path.
type Lookup string

const (
	Exact       Lookup = "exact"
	IsNull      Lookup = "isnull"
	In          Lookup = "in"
	IExact      Lookup = "iexact"
	GT          Lookup = "gt"
	GTE         Lookup = "gte"
	LT          Lookup = "lt"
	LTE         Lookup = "lte"
	Range       Lookup = "range"
	Contains    Lookup = "contains"
	IContains   Lookup = "icontains"
	StartsWith  Lookup = "startswith"
	IStartsWith Lookup = "istartswith"
	EndsWith    Lookup = "endswith"
	IEndsWith   Lookup = "iendswith"
	Regex       Lookup = "regex"
	IRegex      Lookup = "iregex"
	Year        Lookup = "year"
	Month       Lookup = "month"
	Day         Lookup = "day"
	Week        Lookup = "week"
	WeekDay     Lookup = "week_day"
	Quarter     Lookup = "quarter"
	Time        Lookup = "time"
	Hour        Lookup = "hour"
	Minute      Lookup = "minute"
	Second      Lookup = "second"
	Date        Lookup = "date"
)

// PathSeparator joins relationship segments in a field path.
const PathSeparator = "__"

// P is a predicate node: Leaf, *Conjunction, *Disjunction or *Negation.
type P interface {
	predicate()
}

// Leaf compares the value found at Path with Value using Lookup.
type Leaf struct {
	Path   string
	Lookup Lookup
	Value  any
}

// Conjunction holds when every item holds.
type Conjunction struct {
	Items []P
}

// Disjunction holds when at least one item holds.
type Disjunction struct {
	Items []P
}

// Negation holds when Item does not.
type Negation struct {
	Item P
}

func (Leaf) predicate()         {}
func (*Conjunction) predicate() {}
func (*Disjunction) predicate() {}
func (*Negation) predicate()    {}

// Key renders the leaf as a storage lookup key, e.g. "site__name__icontains".
// Exact lookups render the bare path.
func (l Leaf) Key() string {
	if l.Lookup == "" || l.Lookup == Exact {
		return l.Path
	}
	return l.Path + PathSeparator + string(l.Lookup)
}

// Segments splits the leaf path into relationship segments.
func (l Leaf) Segments() []string {
	return strings.Split(l.Path, PathSeparator)
}

// IsEmpty reports whether p carries no condition.
func IsEmpty(p P) bool {
	switch n := p.(type) {
	case nil:
		return true
	case *Conjunction:
		return n == nil || len(n.Items) == 0
	case *Disjunction:
		return n == nil || len(n.Items) == 0
	case *Negation:
		return n == nil || IsEmpty(n.Item)
	}
	return false
}

// And conjoins ps. Empty items are dropped and nested conjunctions flattened.
func And(ps ...P) P {
	items := make([]P, 0, len(ps))
	for _, p := range ps {
		if IsEmpty(p) {
			continue
		}
		if c, ok := p.(*Conjunction); ok {
			items = append(items, c.Items...)
			continue
		}
		items = append(items, p)
	}
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	}
	return &Conjunction{Items: items}
}

// Or disjoins ps. Empty items are dropped and nested disjunctions flattened.
func Or(ps ...P) P {
	items := make([]P, 0, len(ps))
	for _, p := range ps {
		if IsEmpty(p) {
			continue
		}
		if d, ok := p.(*Disjunction); ok {
			items = append(items, d.Items...)
			continue
		}
		items = append(items, p)
	}
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0]
	}
	return &Disjunction{Items: items}
}

// Not negates p. The negation of the empty predicate is empty.
func Not(p P) P {
	if IsEmpty(p) {
		return nil
	}
	return &Negation{Item: p}
}

// Walk calls fn for every leaf in p, depth first, left to right.
func Walk(p P, fn func(Leaf)) {
	switch n := p.(type) {
	case Leaf:
		fn(n)
	case *Conjunction:
		for _, item := range n.Items {
			Walk(item, fn)
		}
	case *Disjunction:
		for _, item := range n.Items {
			Walk(item, fn)
		}
	case *Negation:
		Walk(n.Item, fn)
	}
}

// MapLeaves returns a copy of p with every leaf replaced by fn(leaf).
func MapLeaves(p P, fn func(Leaf) Leaf) P {
	switch n := p.(type) {
	case Leaf:
		return fn(n)
	case *Conjunction:
		items := make([]P, len(n.Items))
		for i, item := range n.Items {
			items[i] = MapLeaves(item, fn)
		}
		return &Conjunction{Items: items}
	case *Disjunction:
		items := make([]P, len(n.Items))
		for i, item := range n.Items {
			items[i] = MapLeaves(item, fn)
		}
		return &Disjunction{Items: items}
	case *Negation:
		return &Negation{Item: MapLeaves(n.Item, fn)}
	}
	return p
}

// Leaves collects the leaves of p in walk order.
func Leaves(p P) []Leaf {
	var out []Leaf
	Walk(p, func(l Leaf) { out = append(out, l) })
	return out
}

// String renders p in a compact, human-readable form:
//
//	name__icontains="core" && (status="active" || status="planned") && !(site__name="DC2")
func String(p P) string {
	var b strings.Builder
	write(&b, p, false)
	return b.String()
}

func write(b *strings.Builder, p P, nested bool) {
	switch n := p.(type) {
	case nil:
		b.WriteString("true")
	case Leaf:
		b.WriteString(n.Key())
		b.WriteByte('=')
		b.WriteString(formatValue(n.Value))
	case *Conjunction:
		if len(n.Items) == 0 {
			b.WriteString("true")
			return
		}
		for i, item := range n.Items {
			if i > 0 {
				b.WriteString(" && ")
			}
			write(b, item, true)
		}
	case *Disjunction:
		if len(n.Items) == 0 {
			b.WriteString("true")
			return
		}
		if nested {
			b.WriteByte('(')
		}
		for i, item := range n.Items {
			if i > 0 {
				b.WriteString(" || ")
			}
			write(b, item, true)
		}
		if nested {
			b.WriteByte(')')
		}
	case *Negation:
		b.WriteString("!(")
		write(b, n.Item, false)
		b.WriteByte(')')
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case time.Time:
		return x.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []string:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = fmt.Sprintf("%q", item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("%v", v)
}
