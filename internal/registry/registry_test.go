package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/filter"
)

func entity(module, name string) *domain.Model {
	return domain.NewModel(module, name, "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
		{Name: "name", Column: "name", Kind: domain.FieldKindChar},
	}, domain.FilterSetDescriptor{Fields: []string{"id", "name"}})
}

func annotations() []Field {
	return []Field{{Name: "id", Type: filter.ID}, {Name: "name", Type: filter.StringLookup}}
}

func TestFinalizeStitchesRelationships(t *testing.T) {
	a, b := entity("app", "A"), entity("app", "B")
	reg := New()

	ha, err := reg.RegisterFilterStub(a, annotations())
	require.NoError(t, err)
	hb, err := reg.RegisterFilterStub(b, annotations())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterRelationship(a, "b_ref", b))
	require.NoError(t, reg.RegisterRelationship(a, "self_ref", a))

	types, err := reg.Finalize()
	require.NoError(t, err)
	require.Len(t, types, 2)

	ta := types["app.A"]
	assert.Equal(t, "AFilter", ta.Name)
	assert.Equal(t, ha, ta.Handle)
	assert.Equal(t, []string{"id", "name", "b_ref"}, ta.FieldNames())

	ref, ok := ta.Field("b_ref")
	require.True(t, ok)
	assert.True(t, ref.IsRelationship())
	assert.Equal(t, hb, ref.Ref)
	assert.Equal(t, "app.B", ref.Target)

	target, err := reg.Resolve(ref.Ref)
	require.NoError(t, err)
	assert.Same(t, types["app.B"], target)

	_, ok = ta.Field("self_ref")
	assert.False(t, ok)
}

func TestFinalizeResolvesCycles(t *testing.T) {
	a, b := entity("app", "A"), entity("app", "B")
	reg := New()

	require.NoError(t, reg.RegisterRelationship(a, "b", b))
	require.NoError(t, reg.RegisterRelationship(b, "a", a))
	_, err := reg.RegisterFilterStub(a, annotations())
	require.NoError(t, err)
	_, err = reg.RegisterFilterStub(b, annotations())
	require.NoError(t, err)

	types, err := reg.Finalize()
	require.NoError(t, err)

	fb, _ := types["app.A"].Field("b")
	fa, _ := types["app.B"].Field("a")
	tb, err := reg.Resolve(fb.Ref)
	require.NoError(t, err)
	ta, err := reg.Resolve(fa.Ref)
	require.NoError(t, err)
	assert.Same(t, types["app.B"], tb)
	assert.Same(t, types["app.A"], ta)
}

func TestFinalizeIsOneShot(t *testing.T) {
	a, b := entity("app", "A"), entity("app", "B")
	reg := New()
	_, err := reg.RegisterFilterStub(a, annotations())
	require.NoError(t, err)

	_, err = reg.Resolve(1)
	assert.ErrorIs(t, err, ErrNotFinalized)

	_, err = reg.Finalize()
	require.NoError(t, err)
	assert.True(t, reg.Finalized())

	_, err = reg.Finalize()
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	_, err = reg.RegisterFilterStub(b, annotations())
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
	assert.ErrorIs(t, reg.RegisterRelationship(a, "b", b), ErrAlreadyFinalized)

	_, err = reg.Resolve(7)
	assert.Error(t, err)
}

func TestRegisterFilterStubRejectsDuplicates(t *testing.T) {
	reg := New()
	_, err := reg.RegisterFilterStub(entity("app", "A"), annotations())
	require.NoError(t, err)

	_, err = reg.RegisterFilterStub(entity("app", "A"), annotations())
	assert.ErrorIs(t, err, ErrDuplicateStub)

	// Same short name in another module is a different entity.
	_, err = reg.RegisterFilterStub(entity("other", "A"), annotations())
	assert.NoError(t, err)
}

func TestRelationshipEdges(t *testing.T) {
	a, b, c := entity("app", "A"), entity("app", "B"), entity("app", "C")
	reg := New()
	for _, e := range []domain.EntityType{a, b, c} {
		_, err := reg.RegisterFilterStub(e, annotations())
		require.NoError(t, err)
	}
	missing := entity("app", "Missing")

	require.NoError(t, reg.RegisterRelationship(a, "peer", b))
	require.NoError(t, reg.RegisterRelationship(a, "peer", c))
	require.NoError(t, reg.RegisterRelationship(a, "ghost", missing))
	require.NoError(t, reg.RegisterRelationship(a, "name", b))

	types, err := reg.Finalize()
	require.NoError(t, err)
	ta := types["app.A"]

	peer, _ := ta.Field("peer")
	assert.Equal(t, "app.C", peer.Target)

	_, ok := ta.Field("ghost")
	assert.False(t, ok)

	// A relationship edge replaces an annotation of the same name in place.
	assert.Equal(t, []string{"id", "name", "peer"}, ta.FieldNames())
	name, _ := ta.Field("name")
	assert.True(t, name.IsRelationship())
}

func TestFilterTypeNewInput(t *testing.T) {
	a := entity("app", "A")
	reg := New()
	remaps := []filter.Remap{{From: "cf_x", To: "custom_field_data__x"}}
	_, err := reg.RegisterFilterStub(a, annotations(), WithFieldMap(remaps))
	require.NoError(t, err)
	types, err := reg.Finalize()
	require.NoError(t, err)

	in := types["app.A"].NewInput()
	assert.Equal(t, []string{"id", "name", "AND", "OR", "NOT"}, in.Names())
	assert.Equal(t, remaps, in.FieldMap())
	assert.Empty(t, in.SetNames())
}

func declareDefault(t *testing.T, source customfield.Source) (*Registry, map[string]*FilterType) {
	t.Helper()
	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	reg := New()
	types, err := DeclareCatalog(context.Background(), reg, catalog, source)
	require.NoError(t, err)
	return reg, types
}

func TestDeclareCatalog(t *testing.T) {
	reg, types := declareDefault(t, customfield.None)

	device := types["dcim.Device"]
	require.NotNil(t, device)
	assert.Equal(t, "DeviceFilter", device.Name)

	tests := []struct {
		field string
		typ   filter.FieldType
	}{
		{"id", filter.ID},
		{"name", filter.StringLookup},
		{"site_id", filter.ID},
		{"tag_id", filter.ID},
		{"interface_id", filter.ID},
		{"position", filter.FloatComparison},
		{"vc_position", filter.IntComparison},
		{"created", filter.DatetimeLookup},
		{"asset_tag", filter.StringLookup},
	}
	for _, tt := range tests {
		f, ok := device.Field(tt.field)
		if assert.True(t, ok, tt.field) {
			assert.Equal(t, tt.typ, f.Type, tt.field)
		}
	}

	for field, target := range map[string]string{
		"site":       "dcim.Site",
		"tags":       "extras.Tag",
		"interfaces": "dcim.Interface",
	} {
		f, ok := device.Field(field)
		require.True(t, ok, field)
		resolved, err := reg.Resolve(f.Ref)
		require.NoError(t, err)
		assert.Equal(t, target, resolved.Entity.QualifiedName())
	}

	// Unsupported declared filters and json fields are left out.
	_, ok := device.Field("local_context_data")
	assert.False(t, ok)
	_, ok = device.Field("custom_field_data")
	assert.False(t, ok)

	region := types["dcim.Region"]
	_, ok = region.Field("parent")
	assert.False(t, ok, "self references are not stitched")
	_, ok = region.Field("parent_id")
	assert.True(t, ok)

	site := types["dcim.Site"]
	f, ok := site.Field("device_id")
	if assert.True(t, ok, "reverse association alias") {
		assert.Equal(t, filter.ID, f.Type)
	}

	assert.True(t, reg.HasFilter("ipam.IPAddress"))
	assert.Len(t, reg.FilterTypes(), len(types))
}

func TestDeclareCustomFields(t *testing.T) {
	source := customfield.StaticSource{
		{Name: "owner", Type: customfield.TypeText, ObjectTypes: []string{"dcim.device"}},
		{Name: "rack_units", Type: customfield.TypeInteger, ObjectTypes: []string{"dcim.device", "dcim.site"}},
		{Name: "extra", Type: customfield.TypeJSON, ObjectTypes: []string{"dcim.device"}},
		{Name: "bad__name", Type: customfield.TypeText, ObjectTypes: []string{"dcim.device"}},
		{Name: "color", Type: customfield.TypeText, ObjectTypes: []string{"extras.tag"}},
	}
	_, types := declareDefault(t, source)

	device := types["dcim.Device"]
	owner, ok := device.Field("cf_owner")
	require.True(t, ok)
	assert.True(t, owner.CustomField)
	assert.Equal(t, filter.StringLookup, owner.Type)

	units, _ := device.Field("cf_rack_units")
	assert.Equal(t, filter.IntComparison, units.Type)

	_, ok = device.Field("cf_extra")
	assert.False(t, ok)
	_, ok = device.Field("cf_bad__name")
	assert.False(t, ok)

	assert.Equal(t, []filter.Remap{
		{From: "cf_owner", To: "custom_field_data__owner"},
		{From: "cf_rack_units", To: "custom_field_data__rack_units"},
		{From: "cf_extra", To: "custom_field_data__extra"},
	}, device.FieldMap)

	// Tags carry no custom field storage.
	_, ok = types["extras.Tag"].Field("cf_color")
	assert.False(t, ok)
}

type failingSource struct{ err error }

func (s failingSource) ForEntity(context.Context, string) ([]customfield.Field, error) {
	return nil, s.err
}

func TestDeclareStorageNotReady(t *testing.T) {
	_, types := declareDefault(t, failingSource{err: customfield.ErrStorageNotReady})
	assert.Empty(t, types["dcim.Device"].FieldMap)

	catalog, err := domain.DefaultCatalog()
	require.NoError(t, err)
	_, err = DeclareCatalog(context.Background(), New(), catalog, failingSource{err: errors.New("boom")})
	assert.Error(t, err)
}

func TestDeclareUnknownFilter(t *testing.T) {
	broken := domain.NewModel("app", "Broken", "", []domain.FieldDescriptor{
		{Name: "id", Column: "id", Kind: domain.FieldKindBigAuto},
	}, domain.FilterSetDescriptor{
		Declared: []domain.FilterDescriptor{
			{Name: "sort", Kind: domain.FilterKindOrdering},
			{Name: "mystery", Kind: domain.FilterKindBase},
		},
	})

	_, err := Declare(context.Background(), New(), broken, customfield.None)
	var unknown *UnknownFilterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mystery", unknown.Filter)
	assert.Equal(t, "app.Broken", unknown.Entity)
}
