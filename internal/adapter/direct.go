package adapter

import (
	"context"
	"fmt"

	"github.com/sells-group/listing-resolver/internal/model"
)

// aliases maps a field to the other keys extractors have used for it.
var aliases = map[string][]string{
	"vehicle_type":         {"body_style", "category", "type", "body_type", "karosserie"},
	"power_ps":             {"ps", "horsepower", "leistung_ps"},
	"power_kw":             {"kw", "leistung_kw"},
	"fuel_type":            {"fuel", "kraftstoff", "kraftstoffart"},
	"transmission":         {"gearbox", "getriebe", "getriebeart"},
	"drive_type":           {"drive", "drivetrain", "antrieb"},
	"mileage_km":           {"mileage", "km", "kilometerstand"},
	"first_registration":   {"registration_date", "erstzulassung", "ez"},
	"displacement_ccm":     {"displacement", "hubraum", "cubic_capacity"},
	"co2_emissions":        {"co2", "co2_emission", "co2_g_km"},
	"consumption_combined": {"consumption", "verbrauch", "fuel_consumption"},
	"emission_class":       {"euro_norm", "schadstoffklasse", "emission_standard"},
	"doors":                {"door_count", "tueren", "türen"},
	"seats":                {"seat_count", "sitze", "sitzplaetze"},
	"color":                {"colour", "farbe", "exterior_color"},
}

// Aliases returns the alternative keys for field.
func Aliases(field string) []string {
	return aliases[field]
}

// UserInput reports a value the caller already committed for the field.
type UserInput struct{}

// Name implements Adapter.
func (UserInput) Name() string { return "user_input" }

// Source implements Adapter.
func (UserInput) Source() model.Source { return model.SourceUserInput }

// Extract implements Adapter.
func (UserInput) Extract(_ context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool) {
	v, ok := fc.CurrentFormData[field]
	if !ok || model.IsEmpty(v) {
		return model.ScoredValue{}, false
	}
	return model.ScoredValue{
		Value:      v,
		Confidence: UserInputConfidence,
		Source:     model.SourceUserInput,
		Reasoning:  "Value entered by the user",
	}, true
}

// Direct looks the field up in the extracted data, verbatim first and then
// through the alias table.
type Direct struct{}

// Name implements Adapter.
func (Direct) Name() string { return "direct" }

// Source implements Adapter.
func (Direct) Source() model.Source { return model.SourceAIExtraction }

// Extract implements Adapter.
func (Direct) Extract(_ context.Context, field string, fc model.FieldContext) (model.ScoredValue, bool) {
	if v, ok := fc.ExtractedData.Lookup(field); ok {
		return model.ScoredValue{
			Value:      v,
			Confidence: DirectConfidence,
			Source:     model.SourceAIExtraction,
			Reasoning:  fmt.Sprintf("Found %s in extracted document data", field),
		}, true
	}
	for _, alias := range aliases[field] {
		if v, ok := fc.ExtractedData.Lookup(alias); ok {
			return model.ScoredValue{
				Value:      v,
				Confidence: AliasConfidence,
				Source:     model.SourceAIExtraction,
				Reasoning:  fmt.Sprintf("Found %s as %s in extracted document data", field, alias),
			}, true
		}
	}
	return model.ScoredValue{}, false
}
