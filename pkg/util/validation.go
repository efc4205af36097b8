package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Action inputs arrive as literal strings from `with:`, so the helpers below parse
// rather than type-assert.

func RequiredInput(inputs map[string]string, key string) (string, error) {
	value, exists := inputs[key]
	if !exists {
		return "", fmt.Errorf("%s is required", key)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return value, nil
}

func OptionalInput(inputs map[string]string, key string, defaultVal string) string {
	value, ok := inputs[key]
	if !ok || value == "" {
		return defaultVal
	}
	return value
}

func OptionalBoolInput(inputs map[string]string, key string, defaultVal bool) (bool, error) {
	value, ok := inputs[key]
	if !ok || value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
	}
	return parsed, nil
}

func OptionalIntInput(inputs map[string]string, key string, defaultVal int) (int, error) {
	value, ok := inputs[key]
	if !ok || value == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return parsed, nil
}

// UnknownInputs returns the keys of inputs not listed in known, sorted.
func UnknownInputs(inputs map[string]string, known ...string) []string {
	var unknown []string
	for _, key := range SortedKeys(inputs) {
		found := false
		for _, k := range known {
			if k == key {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, key)
		}
	}
	return unknown
}
