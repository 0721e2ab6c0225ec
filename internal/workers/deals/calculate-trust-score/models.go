package calculatetrustscore

import (
	"deal-engine/internal/engine/trust"
	"deal-engine/internal/models"
)

type Input struct {
	Deal models.DealNormalized `json:"deal"`
}

type Output struct {
	Trust   float64       `json:"trust"`
	Factors trust.Factors `json:"factors"`
}
