package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestFieldRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     FieldRequest
		wantErr string
	}{
		{
			name: "number ok",
			req:  FieldRequest{FieldName: "power_ps", FieldType: FieldTypeNumber},
		},
		{
			name:    "missing name",
			req:     FieldRequest{FieldType: FieldTypeNumber},
			wantErr: "field name is required",
		},
		{
			name:    "unknown type",
			req:     FieldRequest{FieldName: "x", FieldType: "date"},
			wantErr: "unsupported field type",
		},
		{
			name: "required enum without options",
			req: FieldRequest{
				FieldName:   "vehicle_type",
				FieldType:   FieldTypeEnum,
				Constraints: Constraints{Required: true},
			},
			wantErr: "required enum needs enum options",
		},
		{
			name: "min above max",
			req: FieldRequest{
				FieldName:   "doors",
				FieldType:   FieldTypeNumber,
				Constraints: Constraints{Min: ptr(5.0), Max: ptr(2.0)},
			},
			wantErr: "greater than max",
		},
		{
			name: "bad pattern",
			req: FieldRequest{
				FieldName:   "vin",
				FieldType:   FieldTypeString,
				Constraints: Constraints{Pattern: "[A-Z"},
			},
			wantErr: "compile pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := tt.req
			err := req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFieldRequest_ValidateDefaultsTypeAndCompilesPattern(t *testing.T) {
	t.Parallel()

	req := FieldRequest{FieldName: "vin", Constraints: Constraints{Pattern: `^[A-HJ-NPR-Z0-9]{17}$`}}
	require.NoError(t, req.Validate())
	assert.Equal(t, FieldTypeString, req.FieldType)
	require.NotNil(t, req.Constraints.PatternRegex)
	assert.True(t, req.Constraints.PatternRegex.MatchString("WVWZZZ1JZXW000001"))
}

func TestFieldRequest_IsRequiredEnumAndMatchOption(t *testing.T) {
	t.Parallel()

	req := FieldRequest{
		FieldName:   "vehicle_type",
		FieldType:   FieldTypeEnum,
		Constraints: Constraints{Required: true, EnumOptions: []string{"SUV", "Limousine", "Kombi"}},
	}
	assert.True(t, req.IsRequiredEnum())

	got, ok := req.MatchOption(" kombi ")
	assert.True(t, ok)
	assert.Equal(t, "Kombi", got)

	_, ok = req.MatchOption("Cabrio")
	assert.False(t, ok)

	req.Constraints.Required = false
	assert.False(t, req.IsRequiredEnum())
}
