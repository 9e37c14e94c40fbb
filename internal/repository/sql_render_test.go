package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/predicate"
)

func TestRenderWhere(t *testing.T) {
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	device := mustEntity(t, catalog, "dcim.Device")
	site := mustEntity(t, catalog, "dcim.Site")

	tests := []struct {
		name    string
		dialect Dialect
		entity  domain.EntityType
		p       predicate.P
		sql     string
		args    []any
	}{
		{
			name:    "forward relationship",
			dialect: Postgres,
			entity:  device,
			p: predicate.And(
				leaf("name", predicate.IContains, "core"),
				leaf("site__name", predicate.Exact, "DC1"),
			),
			sql:  `(CAST(t0."name" AS TEXT) ILIKE $1 ESCAPE '\' AND EXISTS (SELECT 1 FROM "dcim_site" t1 WHERE t1."id" = t0."site_id" AND t1."name" = $2))`,
			args: []any{"%core%", "DC1"},
		},
		{
			name:    "many relationship",
			dialect: SQLite,
			entity:  device,
			p:       leaf("tags__slug", predicate.Exact, "core"),
			sql:     `EXISTS (SELECT 1 FROM "dcim_device_tags" j2 JOIN "extras_tag" t1 ON t1."id" = j2."tag_id" WHERE j2."device_id" = t0."id" AND t1."slug" = ?)`,
			args:    []any{"core"},
		},
		{
			name:    "reverse relationship",
			dialect: SQLite,
			entity:  site,
			p:       leaf("devices__name", predicate.StartsWith, "edge"),
			sql:     `EXISTS (SELECT 1 FROM "dcim_device" t1 WHERE t1."site_id" = t0."id" AND substr(CAST(t1."name" AS TEXT), 1, length(?)) = ?)`,
			args:    []any{"edge", "edge"},
		},
		{
			name:    "forward key is null",
			dialect: Postgres,
			entity:  device,
			p:       leaf("tenant", predicate.IsNull, true),
			sql:     `t0."tenant_id" IS NULL`,
		},
		{
			name:    "related value is null",
			dialect: Postgres,
			entity:  device,
			p:       leaf("site__tenant__name", predicate.IsNull, true),
			sql:     `NOT EXISTS (SELECT 1 FROM "dcim_site" t1 WHERE t1."id" = t0."site_id" AND EXISTS (SELECT 1 FROM "tenancy_tenant" t2 WHERE t2."id" = t1."tenant_id" AND t2."name" IS NOT NULL))`,
		},
		{
			name:    "negation and ids",
			dialect: Postgres,
			entity:  device,
			p: predicate.And(
				predicate.Not(leaf("status", predicate.Exact, "offline")),
				leaf("id", predicate.In, []any{"1", "2"}),
			),
			sql:  `(NOT COALESCE(t0."status" = $1, FALSE) AND t0."id" IN ($2, $3))`,
			args: []any{"offline", int64(1), int64(2)},
		},
		{
			name:    "json postgres",
			dialect: Postgres,
			entity:  device,
			p: predicate.Or(
				leaf("custom_field_data__owner", predicate.IContains, "ops"),
				leaf("custom_field_data__rack", predicate.GTE, 5),
			),
			sql:  `(CAST((t0."custom_field_data" #>> '{owner}') AS TEXT) ILIKE $1 ESCAPE '\' OR (t0."custom_field_data" #>> '{rack}')::numeric >= $2)`,
			args: []any{"%ops%", 5},
		},
		{
			name:    "json sqlite",
			dialect: SQLite,
			entity:  device,
			p:       leaf("custom_field_data__owner", predicate.Exact, "ops"),
			sql:     `json_extract(t0."custom_field_data", '$.owner') = ?`,
			args:    []any{"ops"},
		},
		{
			name:    "date parts",
			dialect: SQLite,
			entity:  device,
			p: predicate.And(
				leaf("created", predicate.Year, "2024"),
				leaf("created", predicate.WeekDay, 2),
			),
			sql:  `(CAST(strftime('%Y', t0."created") AS INTEGER) = ? AND (CAST(strftime('%w', t0."created") AS INTEGER) + 1) = ?)`,
			args: []any{int64(2024), int64(2)},
		},
		{
			name:    "date parts postgres",
			dialect: Postgres,
			entity:  device,
			p:       leaf("created", predicate.Month, 3),
			sql:     `EXTRACT(MONTH FROM t0."created") = $1`,
			args:    []any{int64(3)},
		},
		{
			name:    "like escaping",
			dialect: Postgres,
			entity:  device,
			p:       leaf("serial", predicate.EndsWith, "50%_x"),
			sql:     `CAST(t0."serial" AS TEXT) LIKE $1 ESCAPE '\'`,
			args:    []any{`%50\%\_x`},
		},
		{
			name:    "empty in list",
			dialect: SQLite,
			entity:  device,
			p:       leaf("id", predicate.In, []any{}),
			sql:     `1 = 0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRenderer(tt.dialect)
			sql, err := r.where(tt.entity, "t0", tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.args, r.args)
		})
	}
}

func TestRenderUnsupported(t *testing.T) {
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	device := mustEntity(t, catalog, "dcim.Device")

	_, err = newRenderer(SQLite).where(device, "t0", leaf("name", predicate.Regex, "^a"))
	var unsupported *UnsupportedLookupError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "sqlite", unsupported.Backend)

	_, err = newRenderer(Postgres).where(device, "t0", leaf("custom_field_data__a'b", predicate.Exact, 1))
	assert.Error(t, err)

	_, err = newRenderer(Postgres).where(device, "t0", leaf("name__first", predicate.Exact, 1))
	assert.Error(t, err)
}
