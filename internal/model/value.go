package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingNumber matches the first number in a string, accepting a comma as
// decimal separator ("5,4 l/100km").
var leadingNumber = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// IsEmpty reports whether v carries no usable value.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimRight(strings.TrimSpace(strings.ToLower(t)), ".")
		switch s {
		case "", "null", "unknown", "n/a", "none", "-":
			return true
		}
		return false
	case *float64:
		return t == nil
	case *int:
		return t == nil
	default:
		return false
	}
}

// ToFloat coerces numeric values and numeric-looking strings ("150", "150 PS",
// "5,4") to float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case *float64:
		if t == nil {
			return 0, false
		}
		return *t, true
	case *int:
		if t == nil {
			return 0, false
		}
		return float64(*t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		m := leadingNumber.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToBool coerces booleans and common yes/no spellings (English and German).
func ToBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "ja", "1", "y", "vorhanden":
			return true, true
		case "false", "no", "nein", "0", "n", "nicht vorhanden":
			return false, true
		}
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	}
	return false, false
}

// ToString renders v for prompts, validation and storage.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case *float64:
		if t == nil {
			return ""
		}
		return strconv.FormatFloat(*t, 'f', -1, 64)
	case *int:
		if t == nil {
			return ""
		}
		return strconv.Itoa(*t)
	default:
		return fmt.Sprint(t)
	}
}

func matchOption(options []string, v string) (string, bool) {
	s := strings.TrimSpace(v)
	s = strings.Trim(s, `"'`)
	for _, o := range options {
		if strings.EqualFold(o, s) {
			return o, true
		}
	}
	return "", false
}
