package camunda

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"admissions-engine/internal/common/errors"
)

// String returns the trimmed string variable key, or "" when it is absent or not a string.
func String(vars map[string]interface{}, key string) string {
	s, _ := vars[key].(string)
	return strings.TrimSpace(s)
}

// RequireString is String but fails with a validation error when the value is blank.
func RequireString(vars map[string]interface{}, key string) (string, error) {
	s := String(vars, key)
	if s == "" {
		return "", errors.NewValidationError(fmt.Sprintf("%s: required", key))
	}
	return s, nil
}

// Int reads a whole-number variable. JSON numbers arrive as float64.
func Int(vars map[string]interface{}, key string) (int64, bool, error) {
	raw, ok := vars[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false, errors.NewValidationError(fmt.Sprintf("%s: must be a whole number", key))
		}
		return int64(v), true, nil
	case int:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false, errors.NewValidationError(fmt.Sprintf("%s: must be a whole number", key))
		}
		return n, true, nil
	default:
		return 0, false, errors.NewValidationError(fmt.Sprintf("%s: must be a number", key))
	}
}

// Bool reads a boolean variable. Absent means false.
func Bool(vars map[string]interface{}, key string) (bool, error) {
	raw, ok := vars[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, errors.NewValidationError(fmt.Sprintf("%s: must be a boolean", key))
	}
	return b, nil
}

// Decode copies the variable under key into out through its JSON form.
func Decode(vars map[string]interface{}, key string, out interface{}) error {
	raw, ok := vars[key]
	if !ok || raw == nil {
		return errors.NewValidationError(fmt.Sprintf("%s: required", key))
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.NewValidationError(fmt.Sprintf("%s: %v", key, err))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewValidationError(fmt.Sprintf("%s: %v", key, err))
	}
	return nil
}
