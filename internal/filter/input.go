package filter

import (
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/lookup"
)

// Combinator field names.
const (
	And = "AND"
	Or  = "OR"
	Not = "NOT"
)

// IsCombinator reports whether name is one of AND, OR, NOT.
func IsCombinator(name string) bool {
	return name == And || name == Or || name == Not
}

// Value is the value held by one filter input field. It is one of Unset,
// Scalar, Lookup, Nested or Combinator.
type Value interface {
	isValue()
}

// Unset marks a field the caller never touched.
type Unset struct{}

// Scalar is a bare literal. A nil V is an explicit null.
type Scalar struct {
	V any
}

// Lookup maps operators to operand values, e.g. {gte: 5}. Only registered
// operators are honored.
type Lookup map[lookup.Operator]any

// Nested is a relationship filter on the related entity.
type Nested struct {
	Input *Input
}

// Combinator is the item list of an AND, OR or NOT field.
type Combinator []*Input

func (Unset) isValue()      {}
func (Scalar) isValue()     {}
func (Lookup) isValue()     {}
func (Nested) isValue()     {}
func (Combinator) isValue() {}

// IsSet reports whether v says anything. Unset and explicit null do not.
func IsSet(v Value) bool {
	switch x := v.(type) {
	case nil, Unset:
		return false
	case Scalar:
		return x.V != nil
	case Nested:
		return x.Input != nil
	}
	return true
}

// Remap rewrites a custom field filter name to its storage path.
type Remap struct {
	From string
	To   string
}

// Input is one filter argument instance. Declared field names keep their
// order and start out Unset.
type Input struct {
	entity   domain.EntityType
	names    []string
	values   map[string]Value
	fieldMap []Remap
}

// NewInput creates an input for entity with every name Unset.
func NewInput(entity domain.EntityType, names ...string) *Input {
	in := &Input{
		entity: entity,
		names:  make([]string, 0, len(names)),
		values: make(map[string]Value, len(names)),
	}
	for _, name := range names {
		in.declare(name)
	}
	return in
}

func (in *Input) declare(name string) {
	if _, ok := in.values[name]; ok {
		return
	}
	in.names = append(in.names, name)
	in.values[name] = Unset{}
}

// Entity returns the entity type the input filters, nil when unknown.
func (in *Input) Entity() domain.EntityType {
	return in.entity
}

// Names returns the field names in declaration order.
func (in *Input) Names() []string {
	return in.names
}

// Get returns the value of name, Unset for undeclared names.
func (in *Input) Get(name string) Value {
	if v, ok := in.values[name]; ok && v != nil {
		return v
	}
	return Unset{}
}

// Set assigns v to name, declaring the name when needed.
func (in *Input) Set(name string, v Value) *Input {
	in.declare(name)
	if v == nil {
		v = Unset{}
	}
	in.values[name] = v
	return in
}

// Clear resets name to Unset.
func (in *Input) Clear(name string) {
	if _, ok := in.values[name]; ok {
		in.values[name] = Unset{}
	}
}

// SetNames returns the names currently holding a value, in order.
func (in *Input) SetNames() []string {
	var out []string
	for _, name := range in.names {
		if IsSet(in.values[name]) {
			out = append(out, name)
		}
	}
	return out
}

// FieldMap returns the custom field remap table.
func (in *Input) FieldMap() []Remap {
	return in.fieldMap
}

// SetFieldMap installs the custom field remap table.
func (in *Input) SetFieldMap(remaps []Remap) *Input {
	in.fieldMap = remaps
	return in
}
