// Package lookup is the fixed registry of filter lookup operators exposed on
// GraphQL filter inputs, mapping each operator name to the storage lookup it
// produces.
//
// # Usage
//
//	if lookup.Known(op) {
//	    leaf := lookup.Apply(op, "site__name", "DC1")
//	}
package lookup

import (
	"github.com/rpattn/netgql/internal/predicate"
)

// Operator is a lookup operator name as it appears on a filter input.
type Operator string

// Equality, null and membership operators
const (
	Exact    Operator = "exact"
	IsNull   Operator = "is_null"
	IsNullV1 Operator = "isnull"
	InList   Operator = "in_list"
	IExact   Operator = "i_exact"
)

// Comparison operators
const (
	GT    Operator = "gt"
	GTE   Operator = "gte"
	LT    Operator = "lt"
	LTE   Operator = "lte"
	Range Operator = "range"
)

// Text operators
const (
	Contains    Operator = "contains"
	IContains   Operator = "i_contains"
	StartsWith  Operator = "starts_with"
	IStartsWith Operator = "i_starts_with"
	EndsWith    Operator = "ends_with"
	IEndsWith   Operator = "i_ends_with"
	Regex       Operator = "regex"
	IRegex      Operator = "i_regex"
)

// Date and time component operators
const (
	Year    Operator = "year"
	Month   Operator = "month"
	Day     Operator = "day"
	Week    Operator = "week"
	WeekDay Operator = "week_day"
	Quarter Operator = "quarter"
	Time    Operator = "time"
	Hour    Operator = "hour"
	Minute  Operator = "minute"
	Second  Operator = "second"
	Date    Operator = "date"
)

// Category groups operators by the kind of value they compare.
type Category string

const (
	CategoryEquality   Category = "equality"
	CategoryComparison Category = "comparison"
	CategoryText       Category = "text"
	CategoryDateTime   Category = "datetime"
)

type entry struct {
	op       Operator
	lookup   predicate.Lookup
	category Category
}

// table is ordered; Operators and the builder iterate in this order.
var table = []entry{
	{Exact, predicate.Exact, CategoryEquality},
	{IsNull, predicate.IsNull, CategoryEquality},
	{InList, predicate.In, CategoryEquality},
	{IExact, predicate.IExact, CategoryEquality},

	{GT, predicate.GT, CategoryComparison},
	{GTE, predicate.GTE, CategoryComparison},
	{LT, predicate.LT, CategoryComparison},
	{LTE, predicate.LTE, CategoryComparison},
	{Range, predicate.Range, CategoryComparison},

	{Contains, predicate.Contains, CategoryText},
	{IContains, predicate.IContains, CategoryText},
	{StartsWith, predicate.StartsWith, CategoryText},
	{IStartsWith, predicate.IStartsWith, CategoryText},
	{EndsWith, predicate.EndsWith, CategoryText},
	{IEndsWith, predicate.IEndsWith, CategoryText},
	{Regex, predicate.Regex, CategoryText},
	{IRegex, predicate.IRegex, CategoryText},

	{IsNullV1, predicate.IsNull, CategoryEquality},

	{Year, predicate.Year, CategoryDateTime},
	{Month, predicate.Month, CategoryDateTime},
	{Day, predicate.Day, CategoryDateTime},
	{Week, predicate.Week, CategoryDateTime},
	{WeekDay, predicate.WeekDay, CategoryDateTime},
	{Quarter, predicate.Quarter, CategoryDateTime},
	{Time, predicate.Time, CategoryDateTime},
	{Hour, predicate.Hour, CategoryDateTime},
	{Minute, predicate.Minute, CategoryDateTime},
	{Second, predicate.Second, CategoryDateTime},
	{Date, predicate.Date, CategoryDateTime},
}

var index = func() map[Operator]entry {
	m := make(map[Operator]entry, len(table))
	for _, e := range table {
		m[e.op] = e
	}
	return m
}()

// Known reports whether op is a registered operator.
func Known(op Operator) bool {
	_, ok := index[op]
	return ok
}

// Apply builds the leaf comparing path with value through op.
// Unknown operators are not rejected here; they fall back to an exact match,
// callers are expected to check Known first.
func Apply(op Operator, path string, value any) predicate.Leaf {
	e, ok := index[op]
	if !ok {
		return predicate.Leaf{Path: path, Lookup: predicate.Exact, Value: value}
	}
	return predicate.Leaf{Path: path, Lookup: e.lookup, Value: value}
}

// StorageLookup returns the storage lookup produced by op.
func StorageLookup(op Operator) (predicate.Lookup, bool) {
	e, ok := index[op]
	return e.lookup, ok
}

// CategoryOf returns the category of op.
func CategoryOf(op Operator) (Category, bool) {
	e, ok := index[op]
	return e.category, ok
}

// Operators returns every registered operator in canonical order.
func Operators() []Operator {
	out := make([]Operator, len(table))
	for i, e := range table {
		out[i] = e.op
	}
	return out
}

// ByCategory returns the operators of the given categories in canonical order.
func ByCategory(categories ...Category) []Operator {
	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}
	var out []Operator
	for _, e := range table {
		if want[e.category] {
			out = append(out, e.op)
		}
	}
	return out
}
