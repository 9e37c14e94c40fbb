package filter

import (
	"strings"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/predicate"
)

type testModels struct {
	tenant    *domain.Model
	site      *domain.Model
	device    *domain.Model
	iface     *domain.Model
	tag       *domain.Model
	catalog   *domain.Catalog
	relations *RelationshipCache
}

func newTestModels() *testModels {
	tenant := domain.NewModel("tenancy", "Tenant", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "name", Column: "name", Kind: domain.FieldKindChar},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "name"}})

	tag := domain.NewModel("extras", "Tag", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "slug", Column: "slug", Kind: domain.FieldKindSlug},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "slug"}})

	site := domain.NewModel("dcim", "Site", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "name", Column: "name", Kind: domain.FieldKindChar},
		{Name: "tenant", Column: "tenant_id", Kind: domain.FieldKindForeignKey, Nullable: true},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "name", "tenant", "devices"}})

	device := domain.NewModel("dcim", "Device", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "name", Column: "name", Kind: domain.FieldKindChar},
		{Name: "status", Column: "status", Kind: domain.FieldKindChar},
		{Name: "site", Column: "site_id", Kind: domain.FieldKindForeignKey},
		{Name: "tags", Kind: domain.FieldKindManyToMany},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "name", "status", "site", "tags"}})

	iface := domain.NewModel("dcim", "Interface", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "name", Column: "name", Kind: domain.FieldKindChar},
		{Name: "device", Column: "device_id", Kind: domain.FieldKindForeignKey},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "name", "device"}})

	site.SetFieldTarget("tenant", tenant)
	site.AddForward(domain.Association{Name: "tenant", Target: tenant, Column: "tenant_id"})
	tenant.AddReverse(domain.Association{Name: "sites", Target: site, Column: "tenant_id"})

	device.SetFieldTarget("site", site)
	device.AddForward(domain.Association{Name: "site", Target: site, Column: "site_id"})
	site.AddReverse(domain.Association{Name: "devices", Target: device, Column: "site_id"})

	device.SetFieldTarget("tags", tag)
	device.AddMany(domain.Association{
		Name: "tags", Target: tag,
		ThroughTable: "dcim_device_tags", ThroughSource: "device_id", ThroughTarget: "tag_id",
	})

	iface.SetFieldTarget("device", device)
	iface.AddForward(domain.Association{Name: "device", Target: device, Column: "device_id"})
	device.AddReverse(domain.Association{Name: "interfaces", Target: iface, Column: "device_id"})

	catalog, err := domain.NewCatalog(tenant, tag, site, device, iface)
	if err != nil {
		panic(err)
	}
	return &testModels{
		tenant: tenant, site: site, device: device, iface: iface, tag: tag,
		catalog:   catalog,
		relations: NewRelationshipCache(),
	}
}

type schemaSet map[string]bool

func (s schemaSet) HasFilter(qualified string) bool { return s[qualified] }

// eval is a minimal reference evaluator over flat records, exact lookups only.
func eval(p predicate.P, rec map[string]any) bool {
	switch n := p.(type) {
	case nil:
		return true
	case predicate.Leaf:
		return rec[n.Path] == n.Value
	case *predicate.Conjunction:
		for _, item := range n.Items {
			if !eval(item, rec) {
				return false
			}
		}
		return true
	case *predicate.Disjunction:
		for _, item := range n.Items {
			if eval(item, rec) {
				return true
			}
		}
		return false
	case *predicate.Negation:
		return !eval(n.Item, rec)
	}
	panic("unexpected predicate node")
}

func leafKeys(p predicate.P) []string {
	var keys []string
	predicate.Walk(p, func(l predicate.Leaf) { keys = append(keys, l.Key()) })
	return keys
}

func joinKeys(p predicate.P) string {
	return strings.Join(leafKeys(p), " ")
}
