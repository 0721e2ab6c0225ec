package resolveduplicates

import "deal-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"a", "b"},
		Properties: map[string]validation.Property{
			"a": {Type: "object", Description: "First normalized deal"},
			"b": {Type: "object", Description: "Second normalized deal, overlaid on a when merged"},
		},
	}
}
