package adapter

import (
	"context"
	"fmt"
	"math"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Pattern derives a field from other known fields with fixed domain rules.
type Pattern struct{}

// Name implements Adapter.
func (Pattern) Name() string { return "pattern" }

// Source implements Adapter.
func (Pattern) Source() model.Source { return model.SourcePatternMatching }

// Extract implements Adapter.
func (Pattern) Extract(_ context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool) {
	var (
		v      any
		reason string
		ok     bool
	)
	switch field {
	case "power_kw":
		if ps, found := knownNumber(fc, "power_ps"); found && ps > 0 {
			v, ok = PSToKW(ps), true
			reason = fmt.Sprintf("Converted %v PS to kW", ps)
		}
	case "power_ps":
		if kw, found := knownNumber(fc, "power_kw"); found && kw > 0 {
			v, ok = KWToPS(kw), true
			reason = fmt.Sprintf("Converted %v kW to PS", kw)
		}
	case "emission_class":
		year, found := fc.RegistrationYear()
		if found {
			co2, hasCO2 := knownNumber(fc, "co2_emissions")
			v, ok = EmissionClass(year, co2, hasCO2), true
			reason = fmt.Sprintf("Inferred from first registration %d", year)
		}
	case "fuel_type":
		if co2, found := knownNumber(fc, "co2_emissions"); found && math.Abs(co2) < zeroEmissionTolerance {
			v, ok = electricFuelType, true
			reason = "CO2 emissions of 0 g/km indicate an electric vehicle"
		}
	}
	if !ok {
		return model.ScoredValue{}, false
	}
	return model.ScoredValue{
		Value:      v,
		Confidence: PatternConfidence,
		Source:     model.SourcePatternMatching,
		Reasoning:  reason,
	}, true
}

// PSToKW converts metric horsepower to kilowatts, rounded to whole kW.
func PSToKW(ps float64) float64 {
	return math.Round(ps * psToKW)
}

// KWToPS converts kilowatts to metric horsepower, rounded to whole PS.
func KWToPS(kw float64) float64 {
	return math.Round(kw * kwToPS)
}

// EmissionClass infers the Euro emission standard from the registration
// year. CO2 separates Euro 6d-TEMP from Euro 6 for 2017-2020 registrations.
func EmissionClass(year int, co2 float64, hasCO2 bool) string {
	switch {
	case year >= 2021:
		return "Euro 6d"
	case year >= 2017:
		if hasCO2 && co2 < 130 {
			return "Euro 6d-TEMP"
		}
		return "Euro 6"
	case year >= 2015:
		return "Euro 6"
	case year >= 2011:
		return "Euro 5"
	case year >= 2006:
		return "Euro 4"
	case year >= 2001:
		return "Euro 3"
	default:
		return "Euro 2"
	}
}

// knownNumber looks for a number in form data and extracted data (including
// aliases), then in the enrichment record.
func knownNumber(fc model.FieldContext, field string) (float64, bool) {
	if f, ok := fc.KnownNumber(field); ok {
		return f, true
	}
	for _, alias := range aliases[field] {
		if v, ok := fc.ExtractedData.Lookup(alias); ok {
			if f, ok := model.ToFloat(v); ok {
				return f, true
			}
		}
	}
	if v, _, ok := enrichedValue(fc.EnrichedData.Vehicle, field); ok {
		return model.ToFloat(v)
	}
	return 0, false
}
