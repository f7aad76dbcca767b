package model

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// FieldType is the value type of a resolvable field.
type FieldType string

// Supported field types.
const (
	FieldTypeEnum    FieldType = "enum"
	FieldTypeNumber  FieldType = "number"
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeEnum, FieldTypeNumber, FieldTypeString, FieldTypeBoolean:
		return true
	default:
		return false
	}
}

// Constraints restrict the values a field may take.
type Constraints struct {
	EnumOptions  []string       `json:"enumOptions,omitempty" yaml:"enum_options"`
	Min          *float64       `json:"min,omitempty" yaml:"min"`
	Max          *float64       `json:"max,omitempty" yaml:"max"`
	Pattern      string         `json:"pattern,omitempty" yaml:"pattern"`
	PatternRegex *regexp.Regexp `json:"-" yaml:"-"` // compiled from Pattern by FieldRequest.Validate
	Required     bool           `json:"required,omitempty" yaml:"required"`
}

// FieldRequest identifies the field being resolved and its constraints.
type FieldRequest struct {
	FieldName   string      `json:"fieldName"`
	FieldType   FieldType   `json:"fieldType"`
	Label       string      `json:"label,omitempty"`
	Constraints Constraints `json:"constraints"`
}

// IsRequiredEnum reports whether the field is an enum that must never resolve
// to an empty value.
func (r FieldRequest) IsRequiredEnum() bool {
	return r.FieldType == FieldTypeEnum && r.Constraints.Required && len(r.Constraints.EnumOptions) > 0
}

// MatchOption returns the canonical enum option equal to v ignoring case and
// surrounding whitespace.
func (r FieldRequest) MatchOption(v string) (string, bool) {
	return matchOption(r.Constraints.EnumOptions, v)
}

// Validate checks the request's structural invariants and compiles the
// pattern constraint.
func (r *FieldRequest) Validate() error {
	if r.FieldName == "" {
		return eris.New("field request: field name is required")
	}
	if r.FieldType == "" {
		r.FieldType = FieldTypeString
	}
	if !r.FieldType.Valid() {
		return eris.Errorf("field request %s: unsupported field type %q", r.FieldName, r.FieldType)
	}
	c := &r.Constraints
	if r.FieldType == FieldTypeEnum && c.Required && len(c.EnumOptions) == 0 {
		return eris.Errorf("field request %s: required enum needs enum options", r.FieldName)
	}
	if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
		return eris.Errorf("field request %s: min %v greater than max %v", r.FieldName, *c.Min, *c.Max)
	}
	if c.Pattern != "" && c.PatternRegex == nil {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return eris.Wrapf(err, "field request %s: compile pattern", r.FieldName)
		}
		c.PatternRegex = re
	}
	return nil
}
