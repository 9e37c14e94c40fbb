package filter

import (
	"strings"

	"github.com/rpattn/netgql/internal/domain"
)

// FieldType is the semantic filter category exposed in the schema. Its value
// is the GraphQL input type name.
type FieldType string

const (
	StringLookup     FieldType = "StrFilterLookup"
	IntComparison    FieldType = "IntComparisonFilterLookup"
	BigIntComparison FieldType = "BigIntComparisonFilterLookup"
	FloatComparison  FieldType = "FloatComparisonFilterLookup"
	DateLookup       FieldType = "DateFilterLookup"
	DatetimeLookup   FieldType = "DatetimeFilterLookup"
	TimeLookup       FieldType = "TimeFilterLookup"
	Boolean          FieldType = "Boolean"
	String           FieldType = "String"
	Int              FieldType = "Int"
	ID               FieldType = "ID"
)

// LookupTypes lists the lookup input types in schema order.
var LookupTypes = []FieldType{
	StringLookup, IntComparison, BigIntComparison, FloatComparison,
	DateLookup, DatetimeLookup, TimeLookup,
}

// IsLookup reports whether t is an operator input rather than a bare scalar.
func (t FieldType) IsLookup() bool {
	return strings.HasSuffix(string(t), "FilterLookup")
}

// Outcome is the result kind of a classification.
type Outcome int

const (
	// OutcomeUnknown means no rule matched the descriptor.
	OutcomeUnknown Outcome = iota
	// OutcomeScalar carries a FieldType.
	OutcomeScalar
	// OutcomeUnsupported is a known kind deliberately left out of the schema.
	OutcomeUnsupported
	// OutcomeDeferred points at another entity and becomes a relationship.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScalar:
		return "scalar"
	case OutcomeUnsupported:
		return "unsupported"
	case OutcomeDeferred:
		return "deferred"
	}
	return "unknown"
}

// Classification is the classifier's answer for one descriptor.
type Classification struct {
	Outcome Outcome
	Type    FieldType
	Target  domain.EntityType
}

func scalar(t FieldType) Classification { return Classification{Outcome: OutcomeScalar, Type: t} }

var unsupported = Classification{Outcome: OutcomeUnsupported}

// Classify maps a storage field to its filter category.
func Classify(field domain.FieldDescriptor) Classification {
	switch field.Kind {
	case domain.FieldKindBigAuto, domain.FieldKindBigInteger:
		return scalar(BigIntComparison)
	case domain.FieldKindBoolean:
		return scalar(Boolean)
	case domain.FieldKindChar, domain.FieldKindText, domain.FieldKindEmail,
		domain.FieldKindGenericIPAddress, domain.FieldKindSlug, domain.FieldKindURL:
		return scalar(StringLookup)
	case domain.FieldKindDate:
		return scalar(DateLookup)
	case domain.FieldKindDateTime:
		return scalar(DatetimeLookup)
	case domain.FieldKindInteger, domain.FieldKindPositiveInteger:
		return scalar(IntComparison)
	case domain.FieldKindDecimal:
		return scalar(FloatComparison)
	case domain.FieldKindForeignKey, domain.FieldKindManyToMany:
		if field.Target == nil {
			return unsupported
		}
		return Classification{Outcome: OutcomeDeferred, Target: field.Target}
	}
	return unsupported
}

// ClassifyAssociation defers every association to the relationship registry.
func ClassifyAssociation(a domain.Association) Classification {
	return Classification{Outcome: OutcomeDeferred, Target: a.Target}
}

type filterRule struct {
	kind     domain.FilterKind
	classify func(domain.FilterDescriptor) Classification
}

func always(c Classification) func(domain.FilterDescriptor) Classification {
	return func(domain.FilterDescriptor) Classification { return c }
}

// filterRules is matched first to last with IsA. Derived kinds must stay
// above their base kinds.
var filterRules = []filterRule{
	{domain.FilterKindContentType, always(scalar(StringLookup))},
	{domain.FilterKindMultiValueArray, always(unsupported)},
	{domain.FilterKindMultiValueChar, always(scalar(StringLookup))},
	{domain.FilterKindMultiValueDate, always(scalar(DateLookup))},
	{domain.FilterKindMultiValueDateTime, always(scalar(DatetimeLookup))},
	{domain.FilterKindMultiValueDecimal, always(scalar(FloatComparison))},
	{domain.FilterKindMultiValueMACAddress, always(scalar(StringLookup))},
	{domain.FilterKindMultiValueNumber, always(scalar(IntComparison))},
	{domain.FilterKindMultiValueTime, always(scalar(TimeLookup))},
	{domain.FilterKindMultiValueWWN, always(scalar(StringLookup))},
	{domain.FilterKindNullableCharField, always(scalar(StringLookup))},
	{domain.FilterKindNumericArray, always(scalar(IntComparison))},
	{domain.FilterKindTreeNodeMultipleChoice, always(scalar(StringLookup))},

	{domain.FilterKindOrdering, always(unsupported)},
	{domain.FilterKindBaseRange, always(unsupported)},
	{domain.FilterKindBaseIn, always(unsupported)},
	{domain.FilterKindLookupChoice, always(unsupported)},
	{domain.FilterKindAllValuesMultiple, always(unsupported)},
	{domain.FilterKindAllValues, always(unsupported)},
	{domain.FilterKindTimeRange, always(unsupported)},
	{domain.FilterKindIsoDateTimeFromToRange, always(scalar(DatetimeLookup))},
	{domain.FilterKindDateTimeFromToRange, always(scalar(DatetimeLookup))},
	{domain.FilterKindDateFromToRange, always(scalar(DateLookup))},
	{domain.FilterKindDateRange, always(scalar(DateLookup))},
	{domain.FilterKindRange, always(scalar(IntComparison))},
	{domain.FilterKindNumericRange, always(scalar(IntComparison))},
	{domain.FilterKindNumber, always(scalar(IntComparison))},
	{domain.FilterKindModelMultipleChoice, func(f domain.FilterDescriptor) Classification {
		if strings.HasSuffix(f.FieldName, "_id") {
			return scalar(Int)
		}
		return scalar(String)
	}},
	{domain.FilterKindModelChoice, always(scalar(String))},
	{domain.FilterKindDuration, always(scalar(StringLookup))},
	{domain.FilterKindIsoDateTime, always(scalar(DatetimeLookup))},
	{domain.FilterKindDateTime, always(scalar(DatetimeLookup))},
	{domain.FilterKindTime, always(scalar(TimeLookup))},
	{domain.FilterKindDate, always(scalar(DateLookup))},
	{domain.FilterKindTypedMultipleChoice, always(scalar(StringLookup))},
	{domain.FilterKindMultipleChoice, always(scalar(String))},
	{domain.FilterKindTypedChoice, always(scalar(StringLookup))},
	{domain.FilterKindChoice, always(scalar(StringLookup))},
	{domain.FilterKindBoolean, always(scalar(Boolean))},
	{domain.FilterKindUUID, always(scalar(StringLookup))},
	{domain.FilterKindChar, always(scalar(StringLookup))},
}

// ClassifyFilter maps a declared filter descriptor to its filter category.
// Kinds no rule covers come back as OutcomeUnknown.
func ClassifyFilter(f domain.FilterDescriptor) Classification {
	for _, rule := range filterRules {
		if f.Kind.IsA(rule.kind) {
			return rule.classify(f)
		}
	}
	return Classification{Outcome: OutcomeUnknown}
}
