package persistdeals

import "deal-engine/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"deals"},
		Properties: map[string]validation.Property{
			"deals": {
				Type:        "array",
				Description: "Normalized deals to merge into the store",
				Items:       &validation.Property{Type: "object"},
			},
		},
	}
}
