package export

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/graphql"
	"github.com/rpattn/netgql/internal/registry"
	"github.com/rpattn/netgql/internal/repository"
)

func newService(t *testing.T) *Service {
	t.Helper()
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	reg := registry.New()
	_, err = registry.DeclareCatalog(context.Background(), reg, catalog, customfield.None)
	require.NoError(t, err)
	schema, err := graphql.BuildSchema(catalog, reg)
	require.NoError(t, err)

	store := repository.NewMemoryStore(catalog)
	require.NoError(t, store.Insert("dcim.Site",
		repository.Record{"id": 1, "name": "DC1", "slug": "dc1"},
		repository.Record{"id": 2, "name": "DC2", "slug": "dc2"},
	))
	require.NoError(t, store.Insert("dcim.Device",
		repository.Record{"id": 1, "name": "core-sw1", "site_id": 1, "position": 4.5},
		repository.Record{"id": 2, "name": "core-rtr1", "site_id": 2},
		repository.Record{"id": 3, "name": "edge-sw1", "site_id": 1},
	))

	resolver := filter.NewResolver(filter.NewBuilder(nil, reg), false)
	s := NewService(schema, store, resolver)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheet}, f.GetSheetList())
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func column(t *testing.T, rows [][]string, name string) []string {
	t.Helper()
	require.NotEmpty(t, rows)
	idx := -1
	for i, h := range rows[0] {
		if h == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "column %s", name)
	var out []string
	for _, row := range rows[1:] {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, "")
		}
	}
	return out
}

func TestExportFiltered(t *testing.T) {
	s := newService(t)
	var buf bytes.Buffer

	res, err := s.Export(context.Background(), "dcim.Device", `{"site": {"name": {"exact": "DC1"}}}`, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, "dcim-device-20240501-120000.xlsx", res.FileName)

	rows := readSheet(t, buf.Bytes(), "Device")
	assert.Equal(t, []string{"core-sw1", "edge-sw1"}, column(t, rows, "name"))
	assert.Equal(t, []string{"1", "1"}, column(t, rows, "site_id"))
	assert.Equal(t, []string{"4.5", ""}, column(t, rows, "position"))
}

func TestExportWithoutFilters(t *testing.T) {
	s := newService(t)
	var buf bytes.Buffer

	res, err := s.Export(context.Background(), "Site", "", &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []string{"DC1", "DC2"}, column(t, readSheet(t, buf.Bytes(), "Site"), "name"))
}

func TestExportErrors(t *testing.T) {
	s := newService(t)
	var buf bytes.Buffer

	_, err := s.Export(context.Background(), "dcim.Nope", "", &buf)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	var filterErr *FilterError
	_, err = s.Export(context.Background(), "dcim.Device", `{"name":`, &buf)
	assert.ErrorAs(t, err, &filterErr)

	_, err = s.Export(context.Background(), "dcim.Device", `{"bogus": 1}`, &buf)
	assert.ErrorAs(t, err, &filterErr)
}

func TestHTTPHandler(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /export/{entity}", NewHTTPHandler(newService(t)))

	q := url.Values{"filters": {`{"name": {"starts_with": "core"}}`}}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/dcim.Device?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dcim-device-")
	assert.Equal(t, []string{"core-sw1", "core-rtr1"}, column(t, readSheet(t, rec.Body.Bytes(), "Device"), "name"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/dcim.Nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export/dcim.Device?filters=%7B", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
