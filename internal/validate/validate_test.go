package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-resolver/internal/model"
)

func ptr[T any](v T) *T { return &v }

func request(t *testing.T, r model.FieldRequest) model.FieldRequest {
	t.Helper()
	require.NoError(t, r.Validate())
	return r
}

func TestValue(t *testing.T) {
	vehicleType := request(t, model.FieldRequest{
		FieldName: "vehicle_type",
		FieldType: model.FieldTypeEnum,
		Constraints: model.Constraints{
			EnumOptions: []string{"SUV", "Limousine", "Kombi"},
			Required:    true,
		},
	})
	power := request(t, model.FieldRequest{
		FieldName:   "power_ps",
		FieldType:   model.FieldTypeNumber,
		Constraints: model.Constraints{Min: ptr(1.0), Max: ptr(2000.0)},
	})
	reg := request(t, model.FieldRequest{
		FieldName:   "first_registration",
		FieldType:   model.FieldTypeString,
		Constraints: model.Constraints{Pattern: `^(0[1-9]|1[0-2])/\d{4}$`, Required: true},
	})
	accident := request(t, model.FieldRequest{FieldName: "accident_free", FieldType: model.FieldTypeBoolean})
	optional := request(t, model.FieldRequest{FieldName: "color"})

	tests := []struct {
		name   string
		req    model.FieldRequest
		value  any
		valid  bool
		reason string
	}{
		{"enum member", vehicleType, "SUV", true, ""},
		{"enum member case-insensitive", vehicleType, "kombi", true, ""},
		{"enum non-member", vehicleType, "Truck", false, "not one of the allowed options"},
		{"required enum empty", vehicleType, "", false, ReasonRequiredEnumEmpty},
		{"required enum nil", vehicleType, nil, false, ReasonRequiredEnumEmpty},
		{"number in range", power, 150.0, true, ""},
		{"number string in range", power, "150 PS", true, ""},
		{"number below min", power, 0.0, false, "below the minimum"},
		{"number above max", power, 2500.0, false, "above the maximum"},
		{"not a number", power, "viel", false, "not a number"},
		{"optional empty", power, nil, true, ""},
		{"pattern match", reg, "03/2019", true, ""},
		{"pattern mismatch", reg, "2019-03", false, "does not match pattern"},
		{"required string empty", reg, " ", false, "first_registration is required"},
		{"boolean word", accident, "ja", true, ""},
		{"boolean invalid", accident, "vielleicht", false, "not a boolean"},
		{"unconstrained string", optional, "Schwarz", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Value(tt.req, tt.value)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.reason != "" {
				assert.Contains(t, got.Reason, tt.reason)
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}
