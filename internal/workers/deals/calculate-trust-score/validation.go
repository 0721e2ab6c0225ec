package calculatetrustscore

import "deal-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"deal"},
		Properties: map[string]validation.Property{
			"deal": {
				Type:        "object",
				Description: "A normalized deal",
			},
		},
	}
}
