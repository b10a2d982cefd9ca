// internal/tools/supabase/schema.go
package supabase

// patchListTablesSchema fixes the list_tables tool schema so models that
// send no schema filter still validate: the schemas property becomes a
// nullable array defaulting to empty, and is dropped from required.
func patchListTablesSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		props = map[string]interface{}{}
		schema["properties"] = props
	}

	props["schemas"] = map[string]interface{}{
		"type":        []interface{}{"array", "null"},
		"items":       map[string]interface{}{"type": "string"},
		"default":     []interface{}{},
		"description": "Database schemas to include. Empty means all.",
	}

	if required, ok := schema["required"].([]interface{}); ok {
		filtered := make([]interface{}, 0, len(required))
		for _, r := range required {
			if r != "schemas" {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) > 0 {
			schema["required"] = filtered
		} else {
			delete(schema, "required")
		}
	}

	return schema
}

// patchNullableArrays widens every array-typed property to accept null, so
// arguments validate before coerceNullArrays rewrites them. Models routinely
// send null for optional lists on any tool, not just list_tables.
func patchNullableArrays(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return schema
	}

	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]interface{})
		if !ok {
			continue
		}
		if t, isStr := prop["type"].(string); isStr && t == "array" {
			prop["type"] = []interface{}{"array", "null"}
			props[name] = prop
		}
	}

	return schema
}

// coerceNullArrays rewrites null arguments to empty arrays for properties
// the schema types as arrays. Some models send null for optional lists, which
// the postgrest MCP server rejects.
func coerceNullArrays(args map[string]interface{}, schema map[string]interface{}) map[string]interface{} {
	if args == nil {
		args = map[string]interface{}{}
	}
	if schema == nil {
		return args
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return args
	}

	for name, rawProp := range props {
		prop, ok := rawProp.(map[string]interface{})
		if !ok {
			continue
		}
		if !isArrayType(prop["type"]) {
			continue
		}

		if val, present := args[name]; present && val == nil {
			args[name] = []interface{}{}
		}
	}

	return args
}

func isArrayType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "array"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "array" {
				return true
			}
		}
	}
	return false
}
