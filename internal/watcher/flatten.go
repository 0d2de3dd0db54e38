package watcher

import "fmt"

// Flatten joins nested map keys with "." so {"a":{"b":1}} becomes
// {"a.b":1}. Arrays get "path[i]" keys per element plus "path" and
// "path[]" for the whole slice.
func Flatten(data map[string]any) map[string]any {
	out := make(map[string]any)
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]any, path string, value any) {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []any:
		out[path] = typed
		out[path+"[]"] = typed
		for i, child := range typed {
			flattenInto(out, fmt.Sprintf("%s[%d]", path, i), child)
		}
	default:
		out[path] = value
	}
}
