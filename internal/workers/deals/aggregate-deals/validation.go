package aggregatedeals

import "deal-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"deals"},
		Properties: map[string]validation.Property{
			"deals": {
				Type:        "array",
				Description: "Normalized deals to dedupe and rank",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of deals returned",
			},
			"ranking": {
				Type:        "string",
				Description: "trust or trending; unknown modes are rejected by the handler",
			},
		},
	}
}
