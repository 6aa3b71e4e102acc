package analytics

import (
	"fmt"

	"cropcast/internal/models"
)

// HighRiskThreshold is the warming, in °C, at and above which risk is HIGH
const HighRiskThreshold = 3.0

// Recommend classifies a temperature delta into a risk level with advisory text.
// The threshold is inclusive: 3.0°C is already HIGH.
func Recommend(delta float64) models.Recommendation {
	if delta >= HighRiskThreshold {
		return models.Recommendation{
			Level: models.RiskHigh,
			Delta: delta,
			Message: fmt.Sprintf("High temperature increase detected (%.1f°C). Consider adopting heat-tolerant crop varieties, "+
				"optimizing irrigation, and using soil moisture conservation practices.", delta),
		}
	}
	return models.Recommendation{
		Level: models.RiskManageable,
		Delta: delta,
		Message: fmt.Sprintf("Temperature is within a manageable range (%.1f°C). Continue with regular practices but "+
			"monitor soil moisture levels and use early warning systems.", delta),
	}
}
