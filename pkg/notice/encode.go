package notice

import (
	"encoding/json"
	"fmt"
	"reflect"
)

const maxDepth = 8

// Encode marshals n. Values that encoding/json rejects (funcs, channels, NaN,
// cycles) are replaced with a printed form instead of failing the whole notice.
func (n *Notice) Encode() ([]byte, error) {
	data, err := json.Marshal(n)
	if err == nil {
		return data, nil
	}
	safe := *n
	safe.Params = sanitizeMap(n.Params, 0)
	safe.Environment = sanitizeMap(n.Environment, 0)
	safe.Session = sanitizeMap(n.Session, 0)
	data, err = json.Marshal(&safe)
	if err != nil {
		return nil, fmt.Errorf("error marshalling notice: %w", err)
	}
	return data, nil
}

func sanitizeMap(m map[string]any, depth int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitize(v, depth)
	}
	return out
}

func sanitize(v any, depth int) any {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	if depth < maxDepth {
		switch t := v.(type) {
		case map[string]any:
			return sanitizeMap(t, depth+1)
		case []any:
			out := make([]any, len(t))
			for i, item := range t {
				out[i] = sanitize(item, depth+1)
			}
			return out
		}
	}
	return printable(v)
}

// printable renders v without following references, so cyclic values are safe.
func printable(v any) string {
	if v == nil {
		return "null"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Ptr, reflect.Struct, reflect.Interface:
		return fmt.Sprintf("<%T>", v)
	}
	return fmt.Sprintf("%#v", v)
}
