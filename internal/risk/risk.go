// Package risk decides the minimum vehicle class a shipment needs given its
// cold-chain spec, travel distance and a weather snapshot.
package risk

import (
	"coldroute/internal/model"
)

// Decision carries the selected class and a free-text audit reason.
type Decision struct {
	Class  model.VehicleClass `json:"class"`
	Reason string             `json:"reason"`
}

// RequiredClass applies the ordered risk rules; the first match wins.
// The order encodes risk priority: the most dangerous condition is checked first.
func RequiredClass(spec model.ProductSpec, distanceKm float64, weather model.WeatherSnapshot) Decision {
	if spec.ForceRefrigeration {
		return Decision{Class: model.ClassRefrigerated, Reason: "strict product requirement"}
	}
	if weather.TemperatureC > spec.MaxSafeTempC {
		return Decision{Class: model.ClassRefrigerated, Reason: "ambient heat exceeds safe threshold"}
	}
	if distanceKm > spec.MaxUncooledKm {
		return Decision{Class: model.ClassRefrigerated, Reason: "distance exceeds spoilage-safe range"}
	}
	if weather.Raining {
		return Decision{Class: model.ClassCovered, Reason: "precipitation protection"}
	}
	return Decision{Class: model.ClassUncovered, Reason: "no elevated risk detected"}
}
