// Package equipment sorts free-text vehicle equipment items into a closed
// set of categories using keyword rules with a language-model fallback.
package equipment

import (
	"strings"

	"golang.org/x/text/cases"
)

// Category is one of the nine equipment categories.
type Category string

// The closed category set. Stored data uses these tags.
const (
	Safety       Category = "safety"
	Comfort      Category = "comfort"
	Assistance   Category = "assistance"
	Infotainment Category = "infotainment"
	Performance  Category = "performance"
	Exterior     Category = "exterior"
	Interior     Category = "interior"
	Lighting     Category = "lighting"
	Other        Category = "other"
)

var all = []Category{Safety, Comfort, Assistance, Infotainment, Performance, Exterior, Interior, Lighting, Other}

// Categories returns the closed set in canonical order.
func Categories() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Valid reports whether c is in the closed set.
func (c Category) Valid() bool {
	for _, a := range all {
		if a == c {
			return true
		}
	}
	return false
}

// aliases maps German and English category labels to tags.
var aliases = map[string]Category{
	"safety":             Safety,
	"sicherheit":         Safety,
	"passive sicherheit": Safety,
	"comfort":            Comfort,
	"komfort":            Comfort,
	"convenience":        Comfort,
	"assistance":         Assistance,
	"assistenz":          Assistance,
	"assistenzsysteme":   Assistance,
	"fahrerassistenz":    Assistance,
	"driver assistance":  Assistance,
	"infotainment":       Infotainment,
	"multimedia":         Infotainment,
	"unterhaltung":       Infotainment,
	"entertainment":      Infotainment,
	"navigation":         Infotainment,
	"performance":        Performance,
	"leistung":           Performance,
	"sport":              Performance,
	"fahrwerk":           Performance,
	"exterior":           Exterior,
	"exterieur":          Exterior,
	"aussen":             Exterior,
	"karosserie":         Exterior,
	"interior":           Interior,
	"interieur":          Interior,
	"innen":              Interior,
	"innenraum":          Interior,
	"lighting":           Lighting,
	"licht":              Lighting,
	"beleuchtung":        Lighting,
	"lights":             Lighting,
	"other":              Other,
	"sonstiges":          Other,
	"andere":             Other,
	"misc":               Other,
}

var folder = cases.Fold()

// fold lowercases s with Unicode case folding and collapses separators.
func fold(s string) string {
	s = folder.String(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Normalize maps a category tag or German/English label to the closed set.
// Unknown labels map to Other.
func Normalize(label string) Category {
	key := strings.Trim(fold(label), " .:\"'`*")
	if c, ok := aliases[key]; ok {
		return c
	}
	return Other
}

// Lookup is Normalize without the Other default.
func Lookup(label string) (Category, bool) {
	c, ok := aliases[strings.Trim(fold(label), " .:\"'`*")]
	return c, ok
}
