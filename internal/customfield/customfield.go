// Package customfield provides the per-installation custom fields that become
// extra filter fields on an entity's filter type.
package customfield

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/netgql/internal/db"
	"github.com/rpattn/netgql/internal/filter"
)

// Type is a custom field data type.
type Type string

const (
	TypeText        Type = "text"
	TypeLongText    Type = "longtext"
	TypeInteger     Type = "integer"
	TypeDecimal     Type = "decimal"
	TypeBoolean     Type = "boolean"
	TypeDate        Type = "date"
	TypeDatetime    Type = "datetime"
	TypeURL         Type = "url"
	TypeJSON        Type = "json"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multiselect"
	TypeObject      Type = "object"
	TypeMultiObject Type = "multiobject"
)

// DataPath is the storage column custom field values live under.
const DataPath = "custom_field_data"

// FilterPrefix is prepended to a custom field name to form its filter name.
const FilterPrefix = "cf_"

// ErrStorageNotReady means the custom field table does not exist yet.
var ErrStorageNotReady = errors.New("custom field storage is not ready")

// Field is one custom field definition.
type Field struct {
	Name        string
	Label       string
	Type        Type
	ObjectTypes []string
}

// FilterName returns the filter field name, e.g. cf_owner.
func (f Field) FilterName() string {
	return FilterPrefix + f.Name
}

// StoragePath returns the storage path, e.g. custom_field_data__owner.
func (f Field) StoragePath() string {
	return DataPath + "__" + f.Name
}

// FilterType maps the field's data type to a filter field type.
func (f Field) FilterType() (filter.FieldType, bool) {
	switch f.Type {
	case TypeText, TypeLongText, TypeURL, TypeSelect, TypeMultiSelect:
		return filter.StringLookup, true
	case TypeInteger:
		return filter.IntComparison, true
	case TypeDecimal:
		return filter.FloatComparison, true
	case TypeBoolean:
		return filter.Boolean, true
	case TypeDate:
		return filter.DateLookup, true
	case TypeDatetime:
		return filter.DatetimeLookup, true
	}
	return "", false
}

// AppliesTo reports whether the field is assigned to the qualified entity.
func (f Field) AppliesTo(qualified string) bool {
	for _, ot := range f.ObjectTypes {
		if strings.EqualFold(ot, qualified) {
			return true
		}
	}
	return false
}

// Source supplies the custom fields of an entity.
type Source interface {
	ForEntity(ctx context.Context, qualified string) ([]Field, error)
}

// StaticSource is an in-memory source.
type StaticSource []Field

func (s StaticSource) ForEntity(_ context.Context, qualified string) ([]Field, error) {
	var out []Field
	for _, f := range s {
		if f.AppliesTo(qualified) {
			out = append(out, f)
		}
	}
	return out, nil
}

// None is a source without custom fields.
var None Source = StaticSource(nil)

const selectCustomFields = `SELECT name, label, type, object_types FROM extras_customfield ORDER BY name`

// SQLSource reads definitions from the extras_customfield table. The table is
// read once and cached.
type SQLSource struct {
	q      db.Querier
	loaded bool
	fields []Field
}

func NewSQLSource(q db.Querier) *SQLSource {
	return &SQLSource{q: q}
}

func (s *SQLSource) ForEntity(ctx context.Context, qualified string) ([]Field, error) {
	if !s.loaded {
		fields, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.fields = fields
		s.loaded = true
	}
	return StaticSource(s.fields).ForEntity(ctx, qualified)
}

func (s *SQLSource) load(ctx context.Context) ([]Field, error) {
	rows, err := s.q.Query(ctx, selectCustomFields)
	if err != nil {
		if db.IsUndefinedTable(err) {
			return nil, fmt.Errorf("%w: %v", ErrStorageNotReady, err)
		}
		return nil, fmt.Errorf("failed to load custom fields: %w", err)
	}

	fields := make([]Field, 0, len(rows))
	for _, row := range rows {
		f := Field{
			Name:  asString(row["name"]),
			Label: asString(row["label"]),
			Type:  Type(asString(row["type"])),
		}
		for _, ot := range strings.Split(asString(row["object_types"]), ",") {
			if ot = strings.TrimSpace(ot); ot != "" {
				f.ObjectTypes = append(f.ObjectTypes, ot)
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
