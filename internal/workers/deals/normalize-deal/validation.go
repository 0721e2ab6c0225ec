package normalizedeal

import "deal-engine/internal/common/validation"

// GetInputSchema accepts any array under deals. Non-object entries are
// reported as rejections rather than failing the job.
func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"deals"},
		Properties: map[string]validation.Property{
			"deals": {
				Type:        "array",
				Description: "Raw listing records from any source",
			},
		},
	}
}
