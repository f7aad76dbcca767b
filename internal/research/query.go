package research

import (
	"fmt"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

// TemplateSource provides field-specific research templates. A template
// contains one %s for the vehicle identity.
type TemplateSource interface {
	ResearchTemplate(field string) string
}

const genericTemplate = "Was ist der Wert für \"%s\" beim %s laut Hersteller oder technischem Datenblatt?"

// BuildQuery phrases the research question for a field.
func BuildQuery(templates TemplateSource, req model.FieldRequest, vehicle Vehicle) string {
	var tmpl string
	if templates != nil {
		tmpl = templates.ResearchTemplate(req.FieldName)
	}

	var q string
	switch {
	case tmpl == "":
		label := req.Label
		if label == "" {
			label = strings.ReplaceAll(req.FieldName, "_", " ")
		}
		q = fmt.Sprintf(genericTemplate, label, vehicle)
	case strings.Contains(tmpl, "%s"):
		q = fmt.Sprintf(tmpl, vehicle)
	default:
		q = tmpl + " (" + vehicle.String() + ")"
	}

	if len(req.Constraints.EnumOptions) > 0 {
		q += " Mögliche Antworten: " + strings.Join(req.Constraints.EnumOptions, ", ") + "."
	}
	return q
}

const systemPrompt = `Du recherchierst technische Daten von Fahrzeugen für ein Inserat.
Antworte knapp und faktenbasiert mit konkreten Zahlen und Einheiten.
Beende die Antwort mit einer Zeile "Konfidenz: hoch", "Konfidenz: mittel" oder "Konfidenz: niedrig".`
