// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package manifest

import "fmt"

// workspaceMarker reports whether v is a `{ workspace = <bool> }` table
// and, if so, the boolean it carries. TOML decodes such a table into a
// map[string]interface{} since rawPackage fields are interface{} —
// exactly the ambiguity the teacher's rust.go comments document next
// to every interface{}-typed Package field ("Can be string or map
// (workspace inheritance)"); this is the single place that ambiguity
// gets resolved.
func workspaceMarker(v interface{}) (isMarker bool, inherit bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false, false
	}
	raw, ok := m["workspace"]
	if !ok {
		return false, false
	}
	b, _ := raw.(bool)
	return true, b
}

// resolveStringField resolves a single string-typed field that may
// carry a workspace marker. fieldName is used only for error messages.
func resolveStringField(fieldName string, v interface{}, wsValue interface{}, hasWs bool) (string, error) {
	if v == nil {
		return "", nil
	}
	if isMarker, inherit := workspaceMarker(v); isMarker {
		if !inherit {
			return "", fmt.Errorf("field %q: `workspace = false` is not meaningful", fieldName)
		}
		if !hasWs {
			return "", fmt.Errorf("field %q requested inheritance but the workspace does not define it", fieldName)
		}
		s, _ := wsValue.(string)
		return s, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q: expected a string", fieldName)
	}
	return s, nil
}

func resolveBoolField(fieldName string, v interface{}, wsValue interface{}, hasWs bool) (bool, bool, error) {
	if v == nil {
		return false, false, nil
	}
	if isMarker, inherit := workspaceMarker(v); isMarker {
		if !inherit {
			return false, false, fmt.Errorf("field %q: `workspace = false` is not meaningful", fieldName)
		}
		if !hasWs {
			return false, false, fmt.Errorf("field %q requested inheritance but the workspace does not define it", fieldName)
		}
		b, _ := wsValue.(bool)
		return b, true, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case string:
		// readme accepts a boolean *or* a string (§4.B); callers that
		// only want the bool form pass hasWs=false and ignore this path.
		return t != "", true, nil
	default:
		return false, false, fmt.Errorf("field %q: expected a bool or string", fieldName)
	}
}

func resolveStringSliceField(fieldName string, v interface{}, wsValue interface{}, hasWs bool) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if isMarker, inherit := workspaceMarker(v); isMarker {
		if !inherit {
			return nil, fmt.Errorf("field %q: `workspace = false` is not meaningful", fieldName)
		}
		if !hasWs {
			return nil, fmt.Errorf("field %q requested inheritance but the workspace does not define it", fieldName)
		}
		return toStringSlice(wsValue), nil
	}
	return toStringSlice(v), nil
}

func toStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
