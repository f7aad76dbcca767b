// Package validate checks a resolved value against its field constraints.
package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Result is the outcome of a validation. A failed validation is not an
// error: it drives the retry loop.
type Result struct {
	Valid  bool   `json:"isValid"`
	Reason string `json:"reason,omitempty"`
}

// OK is a passing result.
var OK = Result{Valid: true}

// ReasonRequiredEnumEmpty flags a required enum that reached validation
// without a value. Synthesis substitutes the first option before this point,
// so seeing it indicates a bug rather than bad input.
const ReasonRequiredEnumEmpty = "required enum field resolved to an empty value"

func fail(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Value checks v against req's constraints: required, enum membership,
// numeric bounds, then pattern for strings.
func Value(req model.FieldRequest, v any) Result {
	c := req.Constraints
	if model.IsEmpty(v) {
		if req.IsRequiredEnum() {
			return Result{Reason: ReasonRequiredEnumEmpty}
		}
		if c.Required {
			return fail("%s is required", req.FieldName)
		}
		return OK
	}

	switch req.FieldType {
	case model.FieldTypeEnum:
		if len(c.EnumOptions) == 0 {
			return OK
		}
		s := model.ToString(v)
		if _, ok := req.MatchOption(s); !ok {
			return fail("%q is not one of the allowed options: %s", s, strings.Join(c.EnumOptions, ", "))
		}
	case model.FieldTypeNumber:
		f, ok := model.ToFloat(v)
		if !ok {
			return fail("%q is not a number", model.ToString(v))
		}
		if c.Min != nil && f < *c.Min {
			return fail("%v is below the minimum of %v", f, *c.Min)
		}
		if c.Max != nil && f > *c.Max {
			return fail("%v is above the maximum of %v", f, *c.Max)
		}
	case model.FieldTypeBoolean:
		if _, ok := model.ToBool(v); !ok {
			return fail("%q is not a boolean", model.ToString(v))
		}
	case model.FieldTypeString:
		s, ok := v.(string)
		if !ok || c.PatternRegex == nil {
			return OK
		}
		if !c.PatternRegex.MatchString(s) {
			return fail("%q does not match pattern %s", s, c.Pattern)
		}
	}
	return OK
}
