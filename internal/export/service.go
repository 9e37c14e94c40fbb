package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/graphql"
	"github.com/rpattn/netgql/internal/repository"
)

// ErrUnknownEntity is returned for an entity name the catalog cannot resolve.
var ErrUnknownEntity = errors.New("unknown entity")

// FilterError reports filters that could not be decoded or coerced.
type FilterError struct {
	Err error
}

func (e *FilterError) Error() string { return "invalid filters: " + e.Err.Error() }
func (e *FilterError) Unwrap() error { return e.Err }

// Service writes filtered entity lists as xlsx workbooks.
type Service struct {
	schema   *graphql.Schema
	store    repository.Store
	resolver *filter.Resolver
	now      func() time.Time
}

func NewService(schema *graphql.Schema, store repository.Store, resolver *filter.Resolver) *Service {
	return &Service{schema: schema, store: store, resolver: resolver, now: time.Now}
}

// Result describes a written workbook.
type Result struct {
	Entity   domain.EntityType
	Rows     int
	FileName string
}

// Export resolves entityName, applies filtersJSON (a filter object in the
// same shape as the GraphQL filters argument, empty for none) and writes the
// deduplicated list to w.
func (s *Service) Export(ctx context.Context, entityName, filtersJSON string, w io.Writer) (Result, error) {
	entity, err := s.schema.Catalog().Resolve(entityName)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownEntity, err)
	}

	var in *filter.Input
	if strings.TrimSpace(filtersJSON) != "" {
		var raw any
		if err := json.Unmarshal([]byte(filtersJSON), &raw); err != nil {
			return Result{}, &FilterError{Err: err}
		}
		in, err = s.schema.CoerceFilter(entity, raw)
		if err != nil {
			return Result{}, &FilterError{Err: err}
		}
	}

	q, err := s.resolver.Resolve(s.store.Query(entity), in)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve filters: %w", err)
	}
	eq, ok := q.(repository.EntityQuery)
	if !ok {
		return Result{}, fmt.Errorf("store returned %T, not an entity query", q)
	}
	records, err := eq.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list %s: %w", entity.QualifiedName(), err)
	}

	if err := writeWorkbook(w, entity, records); err != nil {
		return Result{}, err
	}
	return Result{
		Entity:   entity,
		Rows:     len(records),
		FileName: s.fileName(entity),
	}, nil
}

func (s *Service) fileName(entity domain.EntityType) string {
	return fmt.Sprintf("%s-%s.xlsx", sanitizeFileComponent(entity.QualifiedName()), s.now().UTC().Format("20060102-150405"))
}

// columns are the entity's stored fields: scalars and forward keys.
func columns(entity domain.EntityType) []domain.FieldDescriptor {
	var cols []domain.FieldDescriptor
	for _, fd := range entity.Fields() {
		if fd.Kind == domain.FieldKindManyToMany || fd.Column == "" {
			continue
		}
		cols = append(cols, fd)
	}
	return cols
}

func writeWorkbook(w io.Writer, entity domain.EntityType, records []repository.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(entity.GraphQLName())
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	cols := columns(entity)
	header := make([]any, len(cols))
	for i, fd := range cols {
		header[i] = excelize.Cell{StyleID: bold, Value: fd.Column}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, rec := range records {
		row := make([]any, len(cols))
		for i, fd := range cols {
			row[i] = cellValue(rec[fd.Column])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetName trims to the 31 characters a sheet name may have.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

// cellValue keeps numbers and booleans native and formats everything else.
func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case bool, int, int32, int64, float32, float64:
		return v
	}
	return formatValue(value)
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}
