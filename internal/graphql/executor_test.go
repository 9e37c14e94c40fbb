package graphql

import (
	"context"
	"sync"
	"testing"

	gql "github.com/99designs/gqlgen/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, exec *Executor, query string, vars map[string]any) string {
	t.Helper()
	resp := exec.Execute(context.Background(), Request{Query: query, Variables: vars})
	require.Empty(t, resp.Errors, "unexpected errors: %v", resp.Errors)
	return string(resp.Data)
}

func TestExecuteListWithFilters(t *testing.T) {
	exec := newFixture(t).executor()

	got := execute(t, exec, `{
		device_list(filters: {name: {i_contains: "core"}, site: {name: {exact: "DC1"}}}) {
			id
			name
			site { name }
			tags { slug }
		}
	}`, nil)

	assert.JSONEq(t, `{"device_list": [
		{"id": "1", "name": "core-sw1", "site": {"name": "DC1"}, "tags": [{"slug": "core"}, {"slug": "edge"}]},
		{"id": "4", "name": "Core-fw1", "site": {"name": "DC1"}, "tags": []}
	]}`, got)
}

func TestExecuteVariablesAndCombinators(t *testing.T) {
	exec := newFixture(t).executor()

	query := `query Devices($f: DeviceFilter) { device_list(filters: $f) { name } }`
	tests := []struct {
		name    string
		filters map[string]any
		want    string
	}{
		{
			name:    "no filters",
			filters: nil,
			want:    `{"device_list": [{"name": "core-sw1"}, {"name": "core-rtr1"}, {"name": "edge-sw1"}, {"name": "Core-fw1"}]}`,
		},
		{
			name: "or",
			filters: map[string]any{
				"OR": []any{
					map[string]any{"name": map[string]any{"exact": "edge-sw1"}},
					map[string]any{"site_id": "2"},
				},
			},
			want: `{"device_list": [{"name": "core-rtr1"}, {"name": "edge-sw1"}]}`,
		},
		{
			name: "or with sibling field",
			filters: map[string]any{
				"site_id": "2",
				"OR":      []any{map[string]any{"name": map[string]any{"exact": "edge-sw1"}}},
			},
			want: `{"device_list": [{"name": "core-rtr1"}, {"name": "edge-sw1"}]}`,
		},
		{
			name: "not",
			filters: map[string]any{
				"site": map[string]any{"name": map[string]any{"exact": "DC1"}},
				"NOT":  map[string]any{"name": map[string]any{"starts_with": "core"}},
			},
			want: `{"device_list": [{"name": "edge-sw1"}, {"name": "Core-fw1"}]}`,
		},
		{
			name:    "many-to-many",
			filters: map[string]any{"tags": map[string]any{"slug": map[string]any{"exact": "edge"}}},
			want:    `{"device_list": [{"name": "core-sw1"}, {"name": "edge-sw1"}]}`,
		},
		{
			name:    "many-to-many id alias",
			filters: map[string]any{"tag_id": "2"},
			want:    `{"device_list": [{"name": "core-sw1"}, {"name": "edge-sw1"}]}`,
		},
		{
			name:    "id",
			filters: map[string]any{"id": "3"},
			want:    `{"device_list": [{"name": "edge-sw1"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := map[string]any{}
			if tt.filters != nil {
				vars["f"] = tt.filters
			}
			assert.JSONEq(t, tt.want, execute(t, exec, query, vars))
		})
	}
}

func TestExecuteCustomFieldFilter(t *testing.T) {
	exec := newFixture(t).executor()

	got := execute(t, exec, `{ site_list(filters: {cf_owner: {i_exact: "FACILITIES"}}) { name custom_field_data } }`, nil)
	assert.JSONEq(t, `{"site_list": [{"name": "DC2", "custom_field_data": {"owner": "facilities"}}]}`, got)
}

func TestExecuteGetByID(t *testing.T) {
	exec := newFixture(t).executor()

	got := execute(t, exec, `{ a: device(id: 3) { name site { slug } } b: device(id: 99) { name } }`, nil)
	assert.JSONEq(t, `{"a": {"name": "edge-sw1", "site": {"slug": "dc1"}}, "b": null}`, got)
}

func TestExecuteFragmentsAndTypename(t *testing.T) {
	exec := newFixture(t).executor()

	got := execute(t, exec, `
		query {
			__typename
			site_list(filters: {name: {exact: "DC2"}}) {
				...SiteParts
				... on Site { devices { name } }
				custom_field_data @skip(if: true)
			}
		}
		fragment SiteParts on Site { __typename slug }
	`, nil)
	assert.JSONEq(t, `{"__typename": "Query", "site_list": [
		{"__typename": "Site", "slug": "dc2", "devices": [{"name": "core-rtr1"}]}
	]}`, got)
}

func TestExecuteErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		exec  *Executor
		query string
		want  string
	}{
		{"validation", f.executor(), `{ device_list { nope } }`, `Cannot query field "nope"`},
		{"unknown lookup", f.executor(), `{ device_list(filters: {name: {fuzzy: "x"}}) { id } }`, "fuzzy"},
		{"aliases", f.executor(WithMaxAliases(1)), `{ a: device_list { id } b: device_list { id } }`, "2 aliases found, allowed maximum is 1"},
		{"mutation", f.executor(), `mutation { device_list { id } }`, "mutation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.exec.Execute(context.Background(), Request{Query: tt.query})
			require.NotEmpty(t, resp.Errors)
			assert.Contains(t, resp.Errors.Error(), tt.want)
		})
	}
}

func TestExecuteIntrospection(t *testing.T) {
	exec := newFixture(t).executor()

	got := execute(t, exec, `{
		__type(name: "TagFilter") { name kind inputFields { name type { name kind ofType { name } } } }
		__schema { queryType { name } }
	}`, nil)
	assert.Contains(t, got, `"name":"TagFilter"`)
	assert.Contains(t, got, `"kind":"INPUT_OBJECT"`)
	assert.Contains(t, got, `"name":"slug","type":{"name":"StrFilterLookup","kind":"INPUT_OBJECT","ofType":null}`)
	assert.Contains(t, got, `"queryType":{"name":"Query"}`)
}

type recordingInterceptor struct {
	mu     sync.Mutex
	fields []string
}

func (r *recordingInterceptor) InterceptField(ctx context.Context, next gql.Resolver) (any, error) {
	fc := gql.GetFieldContext(ctx)
	r.mu.Lock()
	r.fields = append(r.fields, fc.Object+"."+fc.Field.Name)
	r.mu.Unlock()
	return next(ctx)
}

func TestExecuteInterceptsRootAndAssociationFields(t *testing.T) {
	rec := &recordingInterceptor{}
	exec := newFixture(t).executor(WithFieldInterceptor(rec))

	execute(t, exec, `{ device_list { name site { name } } }`, nil)
	assert.ElementsMatch(t, []string{"Query.device_list", "Device.site"}, rec.fields)
}
