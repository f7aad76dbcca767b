package model

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// DataVersion is the current version of the extracted/enriched data records.
const DataVersion = 1

// versionKey carries the record version inside the flat extracted-data object.
const versionKey = "_version"

// Identity field names used to describe a vehicle.
const (
	FieldMake              = "make"
	FieldModel             = "model"
	FieldVariant           = "variant"
	FieldFirstRegistration = "first_registration"
)

// FieldContext is the read-only evidence bundle for a resolution.
type FieldContext struct {
	PDFText         string         `json:"pdfText,omitempty"`
	ExtractedData   ExtractedData  `json:"extractedData"`
	EnrichedData    EnrichedData   `json:"enrichedData"`
	CurrentFormData map[string]any `json:"currentFormData,omitempty"`
}

// Known returns a value already known for name, preferring values committed
// by the caller over machine-extracted ones.
func (c FieldContext) Known(name string) (any, bool) {
	if v, ok := c.CurrentFormData[name]; ok && !IsEmpty(v) {
		return v, true
	}
	return c.ExtractedData.Lookup(name)
}

// KnownString is Known rendered as a string.
func (c FieldContext) KnownString(name string) string {
	v, ok := c.Known(name)
	if !ok {
		return ""
	}
	return ToString(v)
}

// KnownNumber is Known coerced to a number.
func (c FieldContext) KnownNumber(name string) (float64, bool) {
	v, ok := c.Known(name)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// RegistrationYear returns the first-registration year from known data.
// Accepts a bare year, "MM/YYYY", or an ISO date.
func (c FieldContext) RegistrationYear() (int, bool) {
	v, ok := c.Known(FieldFirstRegistration)
	if !ok {
		v, ok = c.Known("year")
		if !ok {
			return 0, false
		}
	}
	return parseYear(ToString(v))
}

// ExtractedData holds machine-extracted fields keyed by domain field name.
// It serializes as a flat JSON object.
type ExtractedData struct {
	Version int
	fields  map[string]any
}

// NewExtractedData builds an ExtractedData from a field map.
func NewExtractedData(fields map[string]any) ExtractedData {
	return ExtractedData{Version: DataVersion, fields: fields}
}

// Lookup returns the non-empty value stored under name.
func (d ExtractedData) Lookup(name string) (any, bool) {
	v, ok := d.fields[name]
	if !ok || IsEmpty(v) {
		return nil, false
	}
	return v, true
}

// Fields returns the underlying field map. Callers must not mutate it.
func (d ExtractedData) Fields() map[string]any {
	return d.fields
}

// Len returns the number of stored fields.
func (d ExtractedData) Len() int {
	return len(d.fields)
}

// MarshalJSON writes the flat field object with the version key.
func (d ExtractedData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+1)
	for k, v := range d.fields {
		out[k] = v
	}
	if d.Version > 0 {
		out[versionKey] = d.Version
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat field object.
func (d *ExtractedData) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "extracted data: unmarshal")
	}
	d.Version = DataVersion
	if v, ok := raw[versionKey]; ok {
		if f, ok := ToFloat(v); ok {
			d.Version = int(f)
		}
		delete(raw, versionKey)
	}
	d.fields = raw
	return nil
}

// EnrichedData holds previously researched data for the vehicle.
type EnrichedData struct {
	Version int                `json:"version,omitempty"`
	Vehicle *VehicleEnrichment `json:"vehicle,omitempty"`
}

// VehicleEnrichment is the structured research cache for one vehicle.
type VehicleEnrichment struct {
	PowerPS             *float64 `json:"power_ps,omitempty"`
	PowerKW             *float64 `json:"power_kw,omitempty"`
	FuelType            string   `json:"fuel_type,omitempty"`
	Transmission        string   `json:"transmission,omitempty"`
	BodyType            string   `json:"body_type,omitempty"`
	DriveType           string   `json:"drive_type,omitempty"`
	DisplacementCCM     *float64 `json:"displacement_ccm,omitempty"`
	CO2Emissions        *float64 `json:"co2_emissions,omitempty"`
	EmissionClass       string   `json:"emission_class,omitempty"`
	ConsumptionCombined *float64 `json:"consumption_combined,omitempty"`
	Doors               *int     `json:"doors,omitempty"`
	Seats               *int     `json:"seats,omitempty"`
}

// Document is a stored PDF extraction for one vehicle listing.
type Document struct {
	ID            string        `json:"id"`
	Make          string        `json:"make"`
	Model         string        `json:"model"`
	PDFText       string        `json:"pdfText,omitempty"`
	ExtractedData ExtractedData `json:"extractedData"`
	EnrichedData  EnrichedData  `json:"enrichedData"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Context returns the document's evidence as a FieldContext.
func (d Document) Context(formData map[string]any) FieldContext {
	return FieldContext{
		PDFText:         d.PDFText,
		ExtractedData:   d.ExtractedData,
		EnrichedData:    d.EnrichedData,
		CurrentFormData: formData,
	}
}

// VehicleRecord is a persisted vehicle used for similar-vehicle lookups.
type VehicleRecord struct {
	ID     string         `json:"id"`
	Make   string         `json:"make"`
	Model  string         `json:"model"`
	Fields map[string]any `json:"fields"`
}

var yearPattern = regexp.MustCompile(`\b(19[5-9]\d|20\d{2})\b`)

func parseYear(s string) (int, bool) {
	m := yearPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}
