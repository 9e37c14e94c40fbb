package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/repository"
	"github.com/rpattn/netgql/pkg/validator"
)

var (
	// ErrUnsupportedFormat is returned when a file is neither csv nor xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006/01/02",
	}
)

// Sink receives ingested records. repository.MemoryStore is one.
type Sink interface {
	Insert(entity string, records ...repository.Record) error
	Link(entity, association string, sourceID, targetID any) error
}

// Service loads tabular seed data into a sink.
type Service struct {
	catalog   *domain.Catalog
	sink      Sink
	fields    customfield.Source
	validator *validator.CustomFieldValidator
}

type Option func(*Service)

// WithCustomFields validates custom_field_data cells against the custom
// fields src defines for the entity.
func WithCustomFields(src customfield.Source) Option {
	return func(s *Service) { s.fields = src }
}

func NewService(catalog *domain.Catalog, sink Sink, opts ...Option) *Service {
	s := &Service{catalog: catalog, sink: sink, validator: validator.NewCustomFieldValidator()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is one file to ingest into Entity.
type Request struct {
	Entity   string
	FileName string
	Data     io.Reader
}

// RowError is a row that could not be ingested. Row is the 1-based line in
// the source file.
type RowError struct {
	Row     int
	Message string
}

// Summary reports the outcome of one file.
type Summary struct {
	Entity         string
	TotalRows      int
	InsertedRows   int
	Links          int
	SkippedColumns []string
	RowErrors      []RowError
}

type tableData struct {
	headers []string
	rows    [][]string
	// lines holds the 1-based source line of each row.
	lines []int
}

// column binds a header to the entity field it fills.
type column struct {
	index int
	field domain.FieldDescriptor
	many  bool
}

// Ingest parses req and inserts one record per data row. Many-to-many
// columns hold target ids separated by ';' and are linked after insert.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	entity, err := s.catalog.Resolve(req.Entity)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Entity: entity.QualifiedName()}

	payload, err := io.ReadAll(bufio.NewReader(req.Data))
	if err != nil {
		return summary, fmt.Errorf("failed to read %s: %w", req.FileName, err)
	}
	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}

	var customFields []customfield.Field
	if s.fields != nil {
		customFields, err = s.fields.ForEntity(ctx, entity.QualifiedName())
		if err != nil {
			return summary, fmt.Errorf("failed to load custom fields for %s: %w", entity.QualifiedName(), err)
		}
	}

	cols, skipped := bindColumns(entity, table.headers)
	summary.SkippedColumns = skipped
	idCol := -1
	for i, c := range cols {
		if c.field.Name == domain.IDField {
			idCol = i
		}
	}
	if idCol < 0 {
		return summary, fmt.Errorf("%s: no %s column", req.FileName, domain.IDField)
	}

	type link struct {
		association string
		source      any
		targets     []string
	}
	var records []repository.Record
	var links []link

	for i, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.TotalRows++
		rowNumber := table.lines[i]

		rec := repository.Record{}
		var rowLinks []link
		var rowErr error
		for _, c := range cols {
			raw := strings.TrimSpace(row[c.index])
			if raw == "" {
				continue
			}
			if c.many {
				rowLinks = append(rowLinks, link{association: c.field.Name, targets: splitList(raw)})
				continue
			}
			v, err := coerceValue(c.field.Kind, raw)
			if err != nil {
				rowErr = fmt.Errorf("column %s: %w", c.field.Name, err)
				break
			}
			rec[c.field.Column] = v
		}
		if rowErr == nil && rec.ID() == nil {
			rowErr = errors.New("missing id")
		}
		if rowErr == nil && s.fields != nil {
			rowErr = s.validateCustomFields(rec, customFields)
		}
		if rowErr != nil {
			summary.RowErrors = append(summary.RowErrors, RowError{Row: rowNumber, Message: rowErr.Error()})
			continue
		}

		records = append(records, rec)
		for _, l := range rowLinks {
			l.source = rec.ID()
			links = append(links, l)
		}
	}

	if err := s.sink.Insert(entity.QualifiedName(), records...); err != nil {
		return summary, fmt.Errorf("failed to insert %s rows: %w", entity.QualifiedName(), err)
	}
	summary.InsertedRows = len(records)

	for _, l := range links {
		for _, target := range l.targets {
			if err := s.sink.Link(entity.QualifiedName(), l.association, l.source, coerceID(target)); err != nil {
				return summary, fmt.Errorf("failed to link %s.%s: %w", entity.QualifiedName(), l.association, err)
			}
			summary.Links++
		}
	}

	log.Printf("[INGEST] %s: %d rows from %s (%d rejected, %d links)", summary.Entity, summary.InsertedRows, req.FileName, len(summary.RowErrors), summary.Links)
	return summary, nil
}

func (s *Service) validateCustomFields(rec repository.Record, fields []customfield.Field) error {
	raw, ok := rec[customfield.DataPath]
	if !ok {
		return nil
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("column %s: expected a JSON object, got %T", customfield.DataPath, raw)
	}
	if result := s.validator.ValidateData(data, fields); !result.IsValid {
		return fmt.Errorf("column %s: %s", customfield.DataPath, result.Error())
	}
	return nil
}

// LoadFS ingests every csv and xlsx file in dir whose base name resolves to
// an entity, e.g. dcim.Site.csv, in catalog order.
func (s *Service) LoadFS(ctx context.Context, fsys fs.FS, dir string) ([]Summary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	order := make(map[string]int)
	for i, e := range s.catalog.All() {
		order[e.QualifiedName()] = i
	}

	type seedFile struct {
		name   string
		entity domain.EntityType
	}
	var files []seedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		entity, err := s.catalog.Resolve(strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
		if err != nil {
			log.Printf("[INGEST] skipping %s: %v", entry.Name(), err)
			continue
		}
		files = append(files, seedFile{name: entry.Name(), entity: entity})
	}
	sort.SliceStable(files, func(i, j int) bool {
		return order[files[i].entity.QualifiedName()] < order[files[j].entity.QualifiedName()]
	})

	summaries := make([]Summary, 0, len(files))
	for _, f := range files {
		data, err := fs.ReadFile(fsys, path.Join(dir, f.name))
		if err != nil {
			return summaries, fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		summary, err := s.Ingest(ctx, Request{Entity: f.entity.QualifiedName(), FileName: f.name, Data: bytes.NewReader(data)})
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// bindColumns matches headers against field names and storage columns.
func bindColumns(entity domain.EntityType, headers []string) ([]column, []string) {
	var cols []column
	var skipped []string
	for i, h := range headers {
		fd, ok := findField(entity, h)
		if !ok {
			skipped = append(skipped, h)
			continue
		}
		cols = append(cols, column{index: i, field: fd, many: fd.Kind == domain.FieldKindManyToMany})
	}
	return cols, skipped
}

func findField(entity domain.EntityType, header string) (domain.FieldDescriptor, bool) {
	for _, fd := range entity.Fields() {
		if fd.Name == header || (fd.Column != "" && fd.Column == header) {
			return fd, true
		}
	}
	return domain.FieldDescriptor{}, false
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	}
	return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bytes.NewReader(bytes.TrimPrefix(payload, byteOrderMark))
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows)
}

// normalizeTable takes the first non-empty row as the header.
func normalizeTable(records [][]string) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	var lines []int
	for idx, row := range records {
		if len(cleanRow(row)) == 0 {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, padRow(row, len(headerRow)))
		lines = append(lines, idx+1)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := make([]string, len(headerRow))
	for i, h := range headerRow {
		headers[i] = strings.TrimSpace(h)
	}
	return tableData{headers: headers, rows: dataRows, lines: lines}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func coerceID(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	return raw
}

func coerceValue(kind domain.FieldKind, raw string) (any, error) {
	switch kind {
	case domain.FieldKindBigAuto, domain.FieldKindBigInteger, domain.FieldKindInteger,
		domain.FieldKindPositiveInteger, domain.FieldKindForeignKey:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldKindDecimal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to decimal", raw)
	case domain.FieldKindBoolean:
		value := strings.ToLower(raw)
		switch value {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return b, nil
	case domain.FieldKindDate:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to date: %w", raw, err)
		}
		return ts.Format(time.DateOnly), nil
	case domain.FieldKindDateTime:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts, nil
	case domain.FieldKindJSON:
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("invalid json payload: %w", err)
		}
		return out, nil
	}
	return raw, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
