package graphql

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/repository"
)

// object is a response object that keeps its fields in selection order.
type object struct {
	keys   []string
	values map[string]any
}

func newObject() *object {
	return &object{values: make(map[string]any)}
}

func (o *object) set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// outputValue serializes a stored column value for a field of kind fd.Kind.
func outputValue(fd domain.FieldDescriptor, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch fd.Kind {
	case domain.FieldKindBigAuto:
		return repository.KeyOf(v)

	case domain.FieldKindInteger, domain.FieldKindPositiveInteger, domain.FieldKindBigInteger:
		switch x := v.(type) {
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case int64:
			return x
		case float64:
			return int64(x)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return n
			}
		}

	case domain.FieldKindBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case int:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}

	case domain.FieldKindDecimal:
		switch x := v.(type) {
		case float64:
			return x
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}

	case domain.FieldKindDate:
		switch x := v.(type) {
		case time.Time:
			return x.Format(time.DateOnly)
		case string:
			if len(x) > len(time.DateOnly) {
				if t, err := time.Parse(time.RFC3339, x); err == nil {
					return t.Format(time.DateOnly)
				}
			}
			return x
		}

	case domain.FieldKindDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}

	case domain.FieldKindJSON:
		if s, ok := v.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded
			}
		}
		return v
	}

	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}
