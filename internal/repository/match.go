package repository

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/netgql/internal/predicate"
)

// matchValues reports whether the leaf holds for the values found at its
// path. Multi-valued paths match when any value does. isnull=true holds when
// no non-null value exists, isnull=false is its complement.
func matchValues(values []any, l predicate.Leaf) (bool, error) {
	if l.Lookup == predicate.IsNull {
		present := false
		for _, v := range values {
			if v != nil {
				present = true
				break
			}
		}
		return present != truthy(l.Value), nil
	}
	for _, v := range values {
		ok, err := matchValue(v, l)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchValue(v any, l predicate.Leaf) (bool, error) {
	switch l.Lookup {
	case predicate.Exact, "":
		return equal(v, l.Value), nil
	case predicate.IExact:
		if v == nil || l.Value == nil {
			return v == nil && l.Value == nil, nil
		}
		return strings.EqualFold(text(v), text(l.Value)), nil
	case predicate.In:
		for _, item := range toList(l.Value) {
			if equal(v, item) {
				return true, nil
			}
		}
		return false, nil
	case predicate.GT, predicate.GTE, predicate.LT, predicate.LTE:
		c, ok := compare(v, l.Value)
		if !ok {
			return false, nil
		}
		switch l.Lookup {
		case predicate.GT:
			return c > 0, nil
		case predicate.GTE:
			return c >= 0, nil
		case predicate.LT:
			return c < 0, nil
		}
		return c <= 0, nil
	case predicate.Range:
		bounds := toList(l.Value)
		if len(bounds) != 2 {
			return false, fmt.Errorf("range on %s needs two bounds, got %d", l.Path, len(bounds))
		}
		lo, ok1 := compare(v, bounds[0])
		hi, ok2 := compare(v, bounds[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0, nil
	case predicate.Contains, predicate.IContains, predicate.StartsWith, predicate.IStartsWith,
		predicate.EndsWith, predicate.IEndsWith:
		if v == nil || l.Value == nil {
			return false, nil
		}
		return matchText(text(v), text(l.Value), l.Lookup), nil
	case predicate.Regex, predicate.IRegex:
		if v == nil || l.Value == nil {
			return false, nil
		}
		pattern := text(l.Value)
		if l.Lookup == predicate.IRegex {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex on %s: %w", l.Path, err)
		}
		return re.MatchString(text(v)), nil
	case predicate.Year, predicate.Month, predicate.Day, predicate.Week, predicate.WeekDay,
		predicate.Quarter, predicate.Hour, predicate.Minute, predicate.Second:
		t, ok := asTime(v)
		if !ok {
			return false, nil
		}
		return equal(datePart(t, l.Lookup), l.Value), nil
	case predicate.Time:
		t, ok := asTime(v)
		if !ok || l.Value == nil {
			return false, nil
		}
		want := text(l.Value)
		if len(want) == len("15:04") {
			want += ":00"
		}
		return t.Format("15:04:05") == want, nil
	case predicate.Date:
		t, ok := asTime(v)
		if !ok || l.Value == nil {
			return false, nil
		}
		if d, ok := asTime(l.Value); ok {
			return t.Format(time.DateOnly) == d.Format(time.DateOnly), nil
		}
		return false, nil
	}
	return false, &UnsupportedLookupError{Backend: "memory", Lookup: l.Lookup, Path: l.Path}
}

func matchText(s, sub string, lookup predicate.Lookup) bool {
	switch lookup {
	case predicate.IContains, predicate.IStartsWith, predicate.IEndsWith:
		s, sub = strings.ToLower(s), strings.ToLower(sub)
	}
	switch lookup {
	case predicate.Contains, predicate.IContains:
		return strings.Contains(s, sub)
	case predicate.StartsWith, predicate.IStartsWith:
		return strings.HasPrefix(s, sub)
	}
	return strings.HasSuffix(s, sub)
}

// datePart follows the storage conventions: week is the ISO week, week_day
// runs from 1 (Sunday) to 7.
func datePart(t time.Time, lookup predicate.Lookup) int {
	switch lookup {
	case predicate.Year:
		return t.Year()
	case predicate.Month:
		return int(t.Month())
	case predicate.Day:
		return t.Day()
	case predicate.Week:
		_, w := t.ISOWeek()
		return w
	case predicate.WeekDay:
		return int(t.Weekday()) + 1
	case predicate.Quarter:
		return (int(t.Month())-1)/3 + 1
	case predicate.Hour:
		return t.Hour()
	case predicate.Minute:
		return t.Minute()
	}
	return t.Second()
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	case nil:
		return false
	}
	n, ok := number(v)
	return ok && n != 0
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
	time.DateOnly,
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// equal compares loosely across the representations ids, numbers, booleans
// and timestamps take between the schema and storage.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := number(a); ok {
		if nb, ok := number(b); ok {
			return na == nb
		}
		if s, ok := b.(string); ok {
			nb, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && na == nb
		}
	}
	if s, ok := a.(string); ok {
		if nb, ok := number(b); ok {
			na, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			return err == nil && na == nb
		}
	}
	if ba, ok := a.(bool); ok {
		return ba == truthy(b)
	}
	if bb, ok := b.(bool); ok {
		return bb == truthy(a)
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := asTime(b)
		return ok && ta.Equal(tb)
	}
	if tb, ok := b.(time.Time); ok {
		ta, ok := asTime(a)
		return ok && ta.Equal(tb)
	}
	return text(a) == text(b)
}

// compare orders numbers, timestamps and strings.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if na, ok := number(a); ok {
		nb, ok := number(b)
		if !ok {
			s, isString := b.(string)
			if !isString {
				return 0, false
			}
			var err error
			if nb, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				return 0, false
			}
		}
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(text(a), text(b)), true
}

func toList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	}
	return []any{v}
}
