package research

import (
	"strconv"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

// unknownVehicle stands in for the vehicle when nothing identifies it.
const unknownVehicle = "das Fahrzeug"

// Vehicle is the compact identity used to phrase research questions.
type Vehicle struct {
	Make    string `json:"make,omitempty"`
	Model   string `json:"model,omitempty"`
	Variant string `json:"variant,omitempty"`
	Year    int    `json:"year,omitempty"`
}

// VehicleFromContext reads the identity fields from form and extracted data.
func VehicleFromContext(fc model.FieldContext) Vehicle {
	v := Vehicle{
		Make:    strings.TrimSpace(fc.KnownString(model.FieldMake)),
		Model:   strings.TrimSpace(fc.KnownString(model.FieldModel)),
		Variant: strings.TrimSpace(fc.KnownString(model.FieldVariant)),
	}
	if y, ok := fc.RegistrationYear(); ok {
		v.Year = y
	}
	return v
}

// String renders "Make Model Variant (Year)". Without a make it degrades to
// a generic placeholder; model, variant and year are only used alongside a
// make.
func (v Vehicle) String() string {
	if v.Make == "" {
		return unknownVehicle
	}
	parts := []string{v.Make}
	if v.Model != "" {
		parts = append(parts, v.Model)
		if v.Variant != "" {
			parts = append(parts, v.Variant)
		}
	}
	s := strings.Join(parts, " ")
	if v.Year > 0 {
		s += " (" + strconv.Itoa(v.Year) + ")"
	}
	return s
}

// Known reports whether at least the make is known.
func (v Vehicle) Known() bool {
	return v.Make != ""
}
