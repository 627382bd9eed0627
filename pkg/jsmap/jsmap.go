// Package jsmap reads typed fields out of the generic maps that browser
// evaluation results and JSON exports decode into.
package jsmap

func String(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}

	return ""
}

func Bool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}

	return false
}
