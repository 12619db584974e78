package recordapi

import (
	"strconv"
	"strings"
)

// validateRecord checks a decoded record body against the input rules:
// name must be present and non-empty, age must be present and numeric.
// Numeric strings are accepted alongside JSON numbers so clients sending
// `"age": "25"` behave the same as `"age": 25`. On success it returns the
// normalized name and age; otherwise a *ValidationError listing every
// failed field.
func validateRecord(req *recordRequest) (string, float64, *ValidationError) {
	var fields []FieldError

	name := ""
	if req.Name == nil || *req.Name == "" {
		fields = append(fields, FieldError{Field: "name", Message: "name must not be empty"})
	} else {
		name = *req.Name
	}

	age, ok := numericValue(req.Age)
	if !ok {
		fields = append(fields, FieldError{Field: "age", Message: "age must be numeric"})
	}

	if len(fields) > 0 {
		return "", 0, &ValidationError{Fields: fields}
	}
	return name, age, nil
}

// numericValue extracts a float64 from a decoded JSON value. JSON numbers
// arrive as float64; strings are accepted when they parse as a number.
func numericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
