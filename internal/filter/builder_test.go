package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/lookup"
	"github.com/rpattn/netgql/internal/predicate"
)

func TestBuildSkipsUnsetAndNull(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.device, "name", "status", "site", And)
	in.Set("status", Scalar{V: nil})

	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Nil(t, got.Predicate)
	assert.Empty(t, got.Consumed)

	in.Set("name", Scalar{V: "sw1"})
	got, err = b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, predicate.Leaf{Path: "name", Lookup: predicate.Exact, Value: "sw1"}, got.Predicate)
	assert.Equal(t, []string{"name"}, got.Consumed)
}

func TestBuildRelationshipPathRewrite(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.iface, "device_id")
	in.Set("device_id", Scalar{V: "5"})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, predicate.Leaf{Path: "device__id", Lookup: predicate.Exact, Value: "5"}, got.Predicate)

	nested := NewInput(m.device).Set("name", Lookup{lookup.Contains: "sw"})
	in = NewInput(m.iface).Set("device", Nested{Input: nested})
	got, err = b.Build(in, "", nil)
	require.NoError(t, err)
	leaf, ok := got.Predicate.(predicate.Leaf)
	require.True(t, ok)
	assert.Equal(t, "device__name__contains", leaf.Key())
	assert.Equal(t, "sw", leaf.Value)
	assert.Equal(t, []string{"device", "name"}, got.Consumed)
}

func TestBuildNormalizesPluralRelationships(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	tests := []struct {
		name  string
		input *Input
		want  string
	}{
		{
			name:  "reverse singular id alias",
			input: NewInput(m.site).Set("device_id", Scalar{V: 3}),
			want:  "devices__id",
		},
		{
			name:  "reverse singular nested",
			input: NewInput(m.site).Set("device", Nested{Input: NewInput(m.device).Set("name", Scalar{V: "sw1"})}),
			want:  "devices__name",
		},
		{
			name:  "reverse plural nested",
			input: NewInput(m.site).Set("devices", Nested{Input: NewInput(m.device).Set("status", Lookup{lookup.InList: []string{"active"}})}),
			want:  "devices__status__in",
		},
		{
			name:  "many singular nested",
			input: NewInput(m.device).Set("tag", Nested{Input: NewInput(m.tag).Set("slug", Scalar{V: "core"})}),
			want:  "tags__slug",
		},
		{
			name:  "nested names use the related map",
			input: NewInput(m.device).Set("site", Nested{Input: NewInput(m.site).Set("tenant_id", Scalar{V: 7})}),
			want:  "site__tenant__id",
		},
		{
			name: "two levels deep",
			input: NewInput(m.iface).Set("device", Nested{Input: NewInput(m.device).Set("site",
				Nested{Input: NewInput(m.site).Set("name", Lookup{lookup.IExact: "dc1"})})}),
			want: "device__site__name__iexact",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Build(tt.input, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, joinKeys(got.Predicate))
		})
	}
}

func TestBuildNestedWithoutRegisteredFilterKeepsNames(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, schemaSet{"dcim.Device": true})

	in := NewInput(m.device).Set("site", Nested{Input: NewInput(m.site).Set("tenant_id", Scalar{V: 7})})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "site__tenant_id", joinKeys(got.Predicate))
}

func TestBuildLookupIgnoresUnknownOperators(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.device).Set("id", Lookup{"bogus": 1, lookup.GTE: 3, lookup.LT: 9})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "id__gte id__lt", joinKeys(got.Predicate))
}

func TestBuildPrefix(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.site).Set("tenant_id", Scalar{V: 1}).Set("name", Lookup{lookup.StartsWith: "dc"})
	got, err := b.Build(in, "site", nil)
	require.NoError(t, err)
	assert.Equal(t, "site__tenant__id site__name__startswith", joinKeys(got.Predicate))
}

func TestCombinatorSemantics(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	a := func() *Input { return NewInput(m.device).Set("name", Scalar{V: "a"}) }
	active := func() *Input { return NewInput(m.device).Set("status", Scalar{V: "active"}) }

	records := []map[string]any{
		{"name": "a", "status": "active"},
		{"name": "a", "status": "offline"},
		{"name": "b", "status": "active"},
		{"name": "b", "status": "offline"},
	}

	tests := []struct {
		name string
		op   string
		want func(rec map[string]any) bool
	}{
		{"AND", And, func(r map[string]any) bool { return r["name"] == "a" && r["status"] == "active" }},
		{"OR", Or, func(r map[string]any) bool { return r["name"] == "a" || r["status"] == "active" }},
		{"NOT", Not, func(r map[string]any) bool { return !(r["name"] == "a" && r["status"] == "active") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInput(m.device).Set(tt.op, Combinator{a(), active()})
			got, err := b.Build(in, "", nil)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{tt.op, "name", "status"}, got.Consumed)
			for _, rec := range records {
				assert.Equal(t, tt.want(rec), eval(got.Predicate, rec), "%s on %v", predicate.String(got.Predicate), rec)
			}
		})
	}

	// NOT negates the conjunction of its items, not each item
	in := NewInput(m.device).Set(Not, Combinator{a(), active()})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.True(t, eval(got.Predicate, map[string]any{"name": "a", "status": "offline"}))
}

func TestCombinatorWithSiblingFields(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.device, "name", Or).
		Set("name", Scalar{V: "a"}).
		Set(Or, Combinator{
			NewInput(m.device).Set("status", Scalar{V: "active"}),
			NewInput(m.device).Set("status", Scalar{V: "planned"}),
		})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, `name="a" || status="active" || status="planned"`, predicate.String(got.Predicate))

	// OR widens what the sibling fields already matched
	assert.True(t, eval(got.Predicate, map[string]any{"name": "b", "status": "active"}))
	assert.True(t, eval(got.Predicate, map[string]any{"name": "a", "status": "offline"}))
	assert.False(t, eval(got.Predicate, map[string]any{"name": "b", "status": "offline"}))

	// AND and NOT still narrow
	in = NewInput(m.device, "name", And, Not).
		Set("name", Scalar{V: "a"}).
		Set(And, Combinator{NewInput(m.device).Set("status", Scalar{V: "active"})}).
		Set(Not, Combinator{NewInput(m.device).Set("status", Scalar{V: "planned"})})
	got, err = b.Build(in, "", nil)
	require.NoError(t, err)
	assert.False(t, eval(got.Predicate, map[string]any{"name": "b", "status": "active"}))
	assert.True(t, eval(got.Predicate, map[string]any{"name": "a", "status": "active"}))
}

func TestCombinatorAcceptsSingleFilter(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.device).Set(Not, Nested{Input: NewInput(m.device).Set("name", Scalar{V: "x"})})
	got, err := b.Build(in, "", nil)
	require.NoError(t, err)
	assert.Equal(t, `!(name="x")`, predicate.String(got.Predicate))
}

func TestItemListOutsideCombinatorIsRejected(t *testing.T) {
	m := newTestModels()
	b := NewBuilder(m.relations, nil)

	in := NewInput(m.device).Set("name", Combinator{NewInput(m.device)})
	_, err := b.Build(in, "", nil)
	assert.Error(t, err)
}

func TestAliasCollision(t *testing.T) {
	owner := domain.NewModel("a", "Owner", "", nil, domain.FilterSetDescriptor{})
	thing := domain.NewModel("a", "Thing", "", nil, domain.FilterSetDescriptor{})
	thing.AddForward(domain.Association{Name: "owner", Target: owner, Column: "owner_id"})
	thing.AddReverse(domain.Association{Name: "owners", Target: owner, Column: "thing_id"})

	_, err := ResolveRelationships(thing)
	var collision *AliasCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "a.Thing", collision.Entity)
	assert.Equal(t, "owner_id", collision.Alias)

	b := NewBuilder(nil, nil)
	_, err = b.Build(NewInput(thing).Set("owner_id", Scalar{V: 1}), "", nil)
	assert.ErrorAs(t, err, &collision)
}

func TestRelationshipMapTable(t *testing.T) {
	m := newTestModels()
	rel, err := ResolveRelationships(m.device)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"site_id":      "site__id",
		"site":         "site",
		"tag_id":       "tags__id",
		"tag":          "tags",
		"interface_id": "interfaces__id",
		"interface":    "interfaces",
	}, rel.Aliases())

	related, ok := rel.Related("interface")
	require.True(t, ok)
	assert.Equal(t, "dcim.Interface", related.QualifiedName())
	_, ok = rel.Related("interfaces")
	assert.True(t, ok)
	assert.Equal(t, "name", rel.Path("name"))

	var nilMap *RelationshipMap
	assert.Equal(t, "site_id", nilMap.Path("site_id"))
}

func TestRelationshipCacheWarm(t *testing.T) {
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	cache := NewRelationshipCache()
	require.NoError(t, cache.Warm(catalog))

	device, _ := catalog.Lookup("dcim.Device")
	rel, err := cache.Get(device)
	require.NoError(t, err)
	again, err := cache.Get(device)
	require.NoError(t, err)
	assert.Same(t, rel, again)

	iface, _ := catalog.Lookup("dcim.Interface")
	rel, err = cache.Get(iface)
	require.NoError(t, err)
	assert.Equal(t, "ip_addresses__id", rel.Path("ip_address_id"))
	assert.Equal(t, "tagged_vlans", rel.Path("tagged_vlan"))
}
