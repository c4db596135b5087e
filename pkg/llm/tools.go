package llm

import (
	"encoding/json"

	"github.com/voxtro/voxtro-engine/pkg/models"
)

// BuildToolDefinitions converts a chatbot's active actions into the tool
// schema list sent to the provider. Returns nil when there are no actions.
func BuildToolDefinitions(actions []*models.Action) []ToolDefinition {
	if len(actions) == 0 {
		return nil
	}

	tools := make([]ToolDefinition, 0, len(actions))
	for _, action := range actions {
		tools = append(tools, ToolDefinition{
			Name:        action.Name,
			Description: action.Description,
			Parameters:  NormalizeParameterSchema(action.Parameters),
		})
	}
	return tools
}

// NormalizeParameterSchema converts a tenant-configured parameter spec into a
// valid JSON-Schema object. Three input shapes are accepted:
//
//   - empty/absent: an empty object schema
//   - an array of field descriptors ({name, type, description, required}):
//     converted into properties plus a required list
//   - an object: passed through if it already declares a type, otherwise
//     treated as a bare properties map
//
// Malformed specs degrade to an empty object schema rather than failing the
// conversation.
func NormalizeParameterSchema(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return emptyObjectSchema()
	}

	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return emptyObjectSchema()
	}

	switch spec := parsed.(type) {
	case []interface{}:
		return schemaFromFieldList(spec)
	case map[string]interface{}:
		if len(spec) == 0 {
			return emptyObjectSchema()
		}
		if _, ok := spec["type"]; ok {
			if _, ok := spec["properties"]; !ok {
				spec["properties"] = map[string]interface{}{}
			}
			return spec
		}
		return map[string]interface{}{
			"type":       "object",
			"properties": spec,
		}
	default:
		return emptyObjectSchema()
	}
}

func schemaFromFieldList(fields []interface{}) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string

	for _, f := range fields {
		field, ok := f.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := field["name"].(string)
		if name == "" {
			continue
		}

		fieldType, _ := field["type"].(string)
		if fieldType == "" {
			fieldType = "string"
		}

		prop := map[string]interface{}{"type": fieldType}
		if desc, _ := field["description"].(string); desc != "" {
			prop["description"] = desc
		}
		properties[name] = prop

		if req, _ := field["required"].(bool); req {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func emptyObjectSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
