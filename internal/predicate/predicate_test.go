package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeafKey(t *testing.T) {
	tests := []struct {
		leaf     Leaf
		expected string
	}{
		{Leaf{Path: "name", Lookup: Exact}, "name"},
		{Leaf{Path: "device__id"}, "device__id"},
		{Leaf{Path: "device__name", Lookup: Contains}, "device__name__contains"},
		{Leaf{Path: "tenant", Lookup: IsNull}, "tenant__isnull"},
		{Leaf{Path: "vid", Lookup: In}, "vid__in"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.leaf.Key())
	}
}

func TestAndOrFlattenAndDropEmpty(t *testing.T) {
	a := Leaf{Path: "a", Value: 1}
	b := Leaf{Path: "b", Value: 2}
	c := Leaf{Path: "c", Value: 3}

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, And()))
	assert.Equal(t, a, And(nil, a))
	assert.Equal(t, a, Or(a, nil))

	got := And(And(a, b), c)
	conj, ok := got.(*Conjunction)
	require.True(t, ok)
	assert.Len(t, conj.Items, 3)

	got = Or(a, Or(b, c))
	disj, ok := got.(*Disjunction)
	require.True(t, ok)
	assert.Len(t, disj.Items, 3)
}

func TestNotOfEmptyIsEmpty(t *testing.T) {
	assert.Nil(t, Not(nil))
	assert.True(t, IsEmpty(Not(And())))
	assert.False(t, IsEmpty(Not(Leaf{Path: "a"})))
}

func TestString(t *testing.T) {
	p := And(
		Leaf{Path: "name", Lookup: IContains, Value: "core"},
		Or(Leaf{Path: "status", Value: "active"}, Leaf{Path: "status", Value: "planned"}),
		Not(Leaf{Path: "site__name", Value: "DC2"}),
	)
	assert.Equal(t,
		`name__icontains="core" && (status="active" || status="planned") && !(site__name="DC2")`,
		String(p),
	)
	assert.Equal(t, "true", String(nil))
	assert.Equal(t, `vid__in=[1 2]`, String(Leaf{Path: "vid", Lookup: In, Value: []int{1, 2}}))
}

func TestMapLeavesRewritesEveryLeaf(t *testing.T) {
	p := And(
		Leaf{Path: "cf_owner", Value: "ops"},
		Not(Or(Leaf{Path: "cf_owner", Lookup: IsNull, Value: true}, Leaf{Path: "name", Value: "x"})),
	)
	out := MapLeaves(p, func(l Leaf) Leaf {
		if l.Path == "cf_owner" {
			l.Path = "custom_field_data__owner"
		}
		return l
	})

	var paths []string
	Walk(out, func(l Leaf) { paths = append(paths, l.Path) })
	assert.Equal(t, []string{"custom_field_data__owner", "custom_field_data__owner", "name"}, paths)

	// the original tree is untouched
	assert.Equal(t, "cf_owner", Leaves(p)[0].Path)
}
