package tools

import "fmt"

// StringArg returns args[key] when it is a string.
func StringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}

// BoolArg returns args[key] when it is a bool.
func BoolArg(args map[string]any, key string) (bool, bool) {
	b, ok := args[key].(bool)
	return b, ok
}

// ObjectArg returns args[key] when it is a JSON object.
func ObjectArg(args map[string]any, key string) (map[string]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%s is required", key)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", key, v)
	}
	return obj, nil
}
