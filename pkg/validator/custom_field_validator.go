package validator

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/netgql/internal/customfield"
)

// CustomFieldValidator checks custom_field_data documents against custom
// field definitions.
type CustomFieldValidator struct{}

func NewCustomFieldValidator() *CustomFieldValidator {
	return &CustomFieldValidator{}
}

// ValidationError is one problem with one custom field value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Error joins the messages of r.
func (r ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// ValidateData validates data against fields. Null values are always
// accepted; keys without a definition are errors.
func (v *CustomFieldValidator) ValidateData(data map[string]any, fields []customfield.Field) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []ValidationError{}}

	defined := make(map[string]customfield.Field, len(fields))
	for _, f := range fields {
		defined[f.Name] = f
	}

	for name, value := range data {
		f, ok := defined[name]
		if !ok {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   name,
				Message: fmt.Sprintf("custom field '%s' is not defined", name),
				Value:   value,
			})
			continue
		}
		if value == nil {
			continue
		}
		if err := v.validateValue(f, value); err != nil {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{Field: name, Message: err.Error(), Value: value})
		}
	}
	return result
}

func (v *CustomFieldValidator) validateValue(f customfield.Field, value any) error {
	switch f.Type {
	case customfield.TypeText, customfield.TypeLongText, customfield.TypeSelect:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("custom field '%s' must be a string, got %T", f.Name, value)
		}
	case customfield.TypeURL:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("custom field '%s' must be a URL string, got %T", f.Name, value)
		}
		if _, err := url.ParseRequestURI(s); err != nil {
			return fmt.Errorf("custom field '%s' must be a valid URL: %v", f.Name, err)
		}
	case customfield.TypeInteger, customfield.TypeObject:
		if !isInteger(value) {
			return fmt.Errorf("custom field '%s' must be an integer, got %T", f.Name, value)
		}
	case customfield.TypeDecimal:
		if !isFloat(value) {
			return fmt.Errorf("custom field '%s' must be a number, got %T", f.Name, value)
		}
	case customfield.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("custom field '%s' must be a boolean, got %T", f.Name, value)
		}
	case customfield.TypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("custom field '%s' must be a date string, got %T", f.Name, value)
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return fmt.Errorf("custom field '%s' must be a valid date (YYYY-MM-DD): %v", f.Name, err)
		}
	case customfield.TypeDatetime:
		switch t := value.(type) {
		case string:
			if _, err := time.Parse(time.RFC3339, t); err != nil {
				return fmt.Errorf("custom field '%s' must be a valid timestamp (RFC3339): %v", f.Name, err)
			}
		case time.Time:
		default:
			return fmt.Errorf("custom field '%s' must be a timestamp string, got %T", f.Name, value)
		}
	case customfield.TypeMultiSelect, customfield.TypeMultiObject:
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("custom field '%s' must be an array, got %T", f.Name, value)
		}
		for _, item := range items {
			if f.Type == customfield.TypeMultiSelect {
				if _, ok := item.(string); !ok {
					return fmt.Errorf("custom field '%s' choices must be strings, got %T", f.Name, item)
				}
			} else if !isInteger(item) {
				return fmt.Errorf("custom field '%s' object ids must be integers, got %T", f.Name, item)
			}
		}
	case customfield.TypeJSON:
	default:
		return fmt.Errorf("unknown custom field type: %s", f.Type)
	}
	return nil
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case string:
		_, err := strconv.Atoi(v)
		return err == nil
	default:
		return false
	}
}

func isFloat(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}
