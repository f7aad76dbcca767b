package adapter

import (
	"context"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Enrichment reads previously researched vehicle data.
type Enrichment struct{}

// Name implements Adapter.
func (Enrichment) Name() string { return "enrichment" }

// Source implements Adapter.
func (Enrichment) Source() model.Source { return model.SourceEnrichment }

// Extract implements Adapter.
func (Enrichment) Extract(_ context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool) {
	v, conf, ok := enrichedValue(fc.EnrichedData.Vehicle, field)
	if !ok {
		return model.ScoredValue{}, false
	}
	return model.ScoredValue{
		Value:      v,
		Confidence: conf,
		Source:     model.SourceEnrichment,
		Reasoning:  "Taken from researched vehicle data",
	}, true
}

// enrichedValue maps a field to its enrichment attribute and the fixed
// confidence of that attribute.
func enrichedValue(e *model.VehicleEnrichment, field string) (any, int, bool) {
	if e == nil {
		return nil, 0, false
	}
	switch field {
	case "power_ps":
		return floatPtr(e.PowerPS, 95)
	case "power_kw":
		return floatPtr(e.PowerKW, 95)
	case "displacement_ccm":
		return floatPtr(e.DisplacementCCM, 90)
	case "fuel_type":
		return str(e.FuelType, 90)
	case "transmission":
		return str(e.Transmission, 90)
	case "co2_emissions":
		return floatPtr(e.CO2Emissions, 85)
	case "consumption_combined":
		return floatPtr(e.ConsumptionCombined, 85)
	case "emission_class":
		return str(e.EmissionClass, 85)
	case "drive_type":
		return str(e.DriveType, 85)
	case "doors":
		return intPtr(e.Doors, 85)
	case "seats":
		return intPtr(e.Seats, 85)
	case "vehicle_type", "body_type":
		return str(e.BodyType, 80)
	default:
		return nil, 0, false
	}
}

func floatPtr(p *float64, conf int) (any, int, bool) {
	if p == nil {
		return nil, 0, false
	}
	return *p, conf, true
}

func intPtr(p *int, conf int) (any, int, bool) {
	if p == nil {
		return nil, 0, false
	}
	return float64(*p), conf, true
}

func str(s string, conf int) (any, int, bool) {
	if model.IsEmpty(s) {
		return nil, 0, false
	}
	return s, conf, true
}
