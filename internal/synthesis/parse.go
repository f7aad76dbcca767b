package synthesis

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

// Enum fallback applied when a required enum comes back empty.
const (
	FallbackConfidence = 10
	FallbackReasoning  = "Fallback to first available option"
)

// defaultConfidence is used when the reply carries a value but no
// confidence line.
const defaultConfidence = 50

var (
	lineKey  = regexp.MustCompile(`(?i)^[\s*_#-]*(value|wert|confidence|konfidenz|reasoning|begründung)[\s*_]*:[\s*_]*(.*)$`)
	firstInt = regexp.MustCompile(`\d{1,3}`)
)

// Reply is the parsed three-line answer.
type Reply struct {
	Value      any
	Confidence int
	Reasoning  string
	// Fallback is set when the required-enum fallback replaced an empty value.
	Fallback bool
}

// Parse reads a VALUE/CONFIDENCE/REASONING reply and coerces the value to
// the field type. A required enum never comes back empty: the first option
// is substituted with FallbackConfidence.
func Parse(text string, req model.FieldRequest) Reply {
	var (
		raw        string
		hasValue   bool
		confidence = -1
		reasoning  []string
		inReason   bool
	)
	for _, line := range strings.Split(text, "\n") {
		m := lineKey.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if inReason && strings.TrimSpace(line) != "" {
				reasoning = append(reasoning, strings.TrimSpace(line))
			}
			continue
		}
		inReason = false
		rest := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "value", "wert":
			if !hasValue {
				raw, hasValue = rest, true
			}
		case "confidence", "konfidenz":
			if n, err := strconv.Atoi(firstInt.FindString(rest)); err == nil {
				confidence = n
			}
		default:
			reasoning = append(reasoning, rest)
			inReason = true
		}
	}

	r := Reply{Reasoning: strings.Join(reasoning, " ")}
	r.Value = coerce(strings.Trim(raw, "\"'`"), req)
	switch {
	case model.IsEmpty(r.Value):
		r.Value = nil
		r.Confidence = 0
	case confidence < 0:
		r.Confidence = defaultConfidence
	default:
		r.Confidence = model.ClampConfidence(confidence)
	}

	if r.Value == nil && req.IsRequiredEnum() {
		r.Value = req.Constraints.EnumOptions[0]
		r.Confidence = FallbackConfidence
		r.Reasoning = FallbackReasoning
		r.Fallback = true
	}
	return r
}

// coerce converts the raw reply value to the field type. Values that do not
// convert are returned as strings for validation to reject.
func coerce(raw string, req model.FieldRequest) any {
	raw = strings.TrimRight(strings.TrimSpace(raw), ".")
	if model.IsEmpty(raw) {
		return nil
	}
	switch req.FieldType {
	case model.FieldTypeNumber:
		if f, ok := model.ToFloat(raw); ok {
			return f
		}
	case model.FieldTypeBoolean:
		if b, ok := model.ToBool(raw); ok {
			return b
		}
	case model.FieldTypeEnum:
		if o, ok := req.MatchOption(raw); ok {
			return o
		}
	}
	return raw
}

// Coerce converts a candidate value from any source to the field type, the
// same way reply values are converted.
func Coerce(v any, req model.FieldRequest) any {
	if s, ok := v.(string); ok {
		return coerce(s, req)
	}
	if req.FieldType == model.FieldTypeNumber {
		if f, ok := model.ToFloat(v); ok {
			return f
		}
	}
	return v
}
