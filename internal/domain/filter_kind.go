package domain

import "fmt"

// FilterKind names an ad-hoc filter descriptor kind. Kinds form a single
// inheritance hierarchy rooted at FilterKindBase.
type FilterKind string

const (
	FilterKindBase FilterKind = "filter"

	FilterKindChar                   FilterKind = "char"
	FilterKindUUID                   FilterKind = "uuid"
	FilterKindBoolean                FilterKind = "boolean"
	FilterKindChoice                 FilterKind = "choice"
	FilterKindTypedChoice            FilterKind = "typed_choice"
	FilterKindMultipleChoice         FilterKind = "multiple_choice"
	FilterKindTypedMultipleChoice    FilterKind = "typed_multiple_choice"
	FilterKindDate                   FilterKind = "date"
	FilterKindDateTime               FilterKind = "datetime"
	FilterKindIsoDateTime            FilterKind = "iso_datetime"
	FilterKindTime                   FilterKind = "time"
	FilterKindDuration               FilterKind = "duration"
	FilterKindModelChoice            FilterKind = "model_choice"
	FilterKindModelMultipleChoice    FilterKind = "model_multiple_choice"
	FilterKindNumber                 FilterKind = "number"
	FilterKindNumericRange           FilterKind = "numeric_range"
	FilterKindRange                  FilterKind = "range"
	FilterKindDateRange              FilterKind = "date_range"
	FilterKindDateFromToRange        FilterKind = "date_from_to_range"
	FilterKindDateTimeFromToRange    FilterKind = "datetime_from_to_range"
	FilterKindIsoDateTimeFromToRange FilterKind = "iso_datetime_from_to_range"
	FilterKindTimeRange              FilterKind = "time_range"
	FilterKindAllValues              FilterKind = "all_values"
	FilterKindAllValuesMultiple      FilterKind = "all_values_multiple"
	FilterKindLookupChoice           FilterKind = "lookup_choice"
	FilterKindBaseCSV                FilterKind = "base_csv"
	FilterKindBaseIn                 FilterKind = "base_in"
	FilterKindBaseRange              FilterKind = "base_range"
	FilterKindOrdering               FilterKind = "ordering"

	FilterKindContentType            FilterKind = "content_type"
	FilterKindMultiValueArray        FilterKind = "multi_value_array"
	FilterKindMultiValueChar         FilterKind = "multi_value_char"
	FilterKindMultiValueDate         FilterKind = "multi_value_date"
	FilterKindMultiValueDateTime     FilterKind = "multi_value_datetime"
	FilterKindMultiValueDecimal      FilterKind = "multi_value_decimal"
	FilterKindMultiValueMACAddress   FilterKind = "multi_value_mac_address"
	FilterKindMultiValueNumber       FilterKind = "multi_value_number"
	FilterKindMultiValueTime         FilterKind = "multi_value_time"
	FilterKindMultiValueWWN          FilterKind = "multi_value_wwn"
	FilterKindNullableCharField      FilterKind = "nullable_char_field"
	FilterKindNumericArray           FilterKind = "numeric_array"
	FilterKindTreeNodeMultipleChoice FilterKind = "tree_node_multiple_choice"
)

// parents maps each kind to its direct base kind.
var parents = map[FilterKind]FilterKind{
	FilterKindChar:                   FilterKindBase,
	FilterKindUUID:                   FilterKindBase,
	FilterKindBoolean:                FilterKindBase,
	FilterKindChoice:                 FilterKindBase,
	FilterKindTypedChoice:            FilterKindBase,
	FilterKindMultipleChoice:         FilterKindBase,
	FilterKindTypedMultipleChoice:    FilterKindMultipleChoice,
	FilterKindDate:                   FilterKindBase,
	FilterKindDateTime:               FilterKindBase,
	FilterKindIsoDateTime:            FilterKindDateTime,
	FilterKindTime:                   FilterKindBase,
	FilterKindDuration:               FilterKindBase,
	FilterKindModelChoice:            FilterKindChoice,
	FilterKindModelMultipleChoice:    FilterKindMultipleChoice,
	FilterKindNumber:                 FilterKindBase,
	FilterKindNumericRange:           FilterKindBase,
	FilterKindRange:                  FilterKindBase,
	FilterKindDateRange:              FilterKindChoice,
	FilterKindDateFromToRange:        FilterKindRange,
	FilterKindDateTimeFromToRange:    FilterKindRange,
	FilterKindIsoDateTimeFromToRange: FilterKindRange,
	FilterKindTimeRange:              FilterKindRange,
	FilterKindAllValues:              FilterKindChoice,
	FilterKindAllValuesMultiple:      FilterKindMultipleChoice,
	FilterKindLookupChoice:           FilterKindBase,
	FilterKindBaseCSV:                FilterKindBase,
	FilterKindBaseIn:                 FilterKindBaseCSV,
	FilterKindBaseRange:              FilterKindBaseCSV,
	FilterKindOrdering:               FilterKindBaseCSV,

	FilterKindContentType:            FilterKindChar,
	FilterKindMultiValueArray:        FilterKindMultipleChoice,
	FilterKindMultiValueChar:         FilterKindMultipleChoice,
	FilterKindMultiValueDate:         FilterKindMultipleChoice,
	FilterKindMultiValueDateTime:     FilterKindMultipleChoice,
	FilterKindMultiValueDecimal:      FilterKindMultipleChoice,
	FilterKindMultiValueMACAddress:   FilterKindMultiValueChar,
	FilterKindMultiValueNumber:       FilterKindMultipleChoice,
	FilterKindMultiValueTime:         FilterKindMultipleChoice,
	FilterKindMultiValueWWN:          FilterKindMultiValueChar,
	FilterKindNullableCharField:      FilterKindChar,
	FilterKindNumericArray:           FilterKindNumber,
	FilterKindTreeNodeMultipleChoice: FilterKindModelMultipleChoice,
}

// Valid reports whether k is a known kind.
func (k FilterKind) Valid() bool {
	if k == FilterKindBase {
		return true
	}
	_, ok := parents[k]
	return ok
}

// Base returns the direct base kind, or "" for the root.
func (k FilterKind) Base() FilterKind {
	return parents[k]
}

// IsA reports whether k is base or derives from it.
func (k FilterKind) IsA(base FilterKind) bool {
	for cur := k; cur != ""; cur = parents[cur] {
		if cur == base {
			return true
		}
	}
	return false
}

// ParseFilterKind validates a kind name read from a model definition.
func ParseFilterKind(s string) (FilterKind, error) {
	k := FilterKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown filter kind %q", s)
	}
	return k, nil
}
