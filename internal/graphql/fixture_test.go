package graphql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/registry"
	"github.com/rpattn/netgql/internal/repository"
)

var testCustomFields = customfield.StaticSource{
	{Name: "owner", Type: customfield.TypeText, ObjectTypes: []string{"dcim.Site"}},
}

type fixture struct {
	catalog *domain.Catalog
	reg     *registry.Registry
	schema  *Schema
	store   *repository.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)

	reg := registry.New()
	_, err = registry.DeclareCatalog(context.Background(), reg, catalog, testCustomFields)
	require.NoError(t, err)

	schema, err := BuildSchema(catalog, reg)
	require.NoError(t, err)

	store := repository.NewMemoryStore(catalog)
	require.NoError(t, store.Insert("extras.Tag",
		repository.Record{"id": 1, "name": "Core", "slug": "core"},
		repository.Record{"id": 2, "name": "Edge", "slug": "edge"},
	))
	require.NoError(t, store.Insert("dcim.Site",
		repository.Record{"id": 1, "name": "DC1", "slug": "dc1", "custom_field_data": map[string]any{"owner": "netops"}},
		repository.Record{"id": 2, "name": "DC2", "slug": "dc2", "custom_field_data": map[string]any{"owner": "facilities"}},
	))
	require.NoError(t, store.Insert("dcim.Device",
		repository.Record{"id": 1, "name": "core-sw1", "site_id": 1},
		repository.Record{"id": 2, "name": "core-rtr1", "site_id": 2},
		repository.Record{"id": 3, "name": "edge-sw1", "site_id": 1},
		repository.Record{"id": 4, "name": "Core-fw1", "site_id": 1},
	))
	require.NoError(t, store.Link("dcim.Device", "tags", 1, 1))
	require.NoError(t, store.Link("dcim.Device", "tags", 1, 2))
	require.NoError(t, store.Link("dcim.Device", "tags", 3, 2))

	return &fixture{catalog: catalog, reg: reg, schema: schema, store: store}
}

func (f *fixture) executor(opts ...Option) *Executor {
	resolver := filter.NewResolver(filter.NewBuilder(filter.NewRelationshipCache(), f.reg), false)
	return NewExecutor(f.schema, f.store, resolver, opts...)
}
