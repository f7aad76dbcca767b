package synthesis

import (
	"fmt"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

// replyFormat opens every synthesis request; Parse expects these labels.
const replyFormat = `You resolve single fields of German vehicle listings from collected evidence.
Always answer in exactly three lines:
VALUE: <the value, or null if it cannot be determined>
CONFIDENCE: <integer 0-100>
REASONING: <one sentence>
Numbers are plain numbers without units. Booleans are true or false.
When a list of allowed options is given, VALUE must be exactly one of them.

`

func describeConstraints(req model.FieldRequest) string {
	var b strings.Builder
	c := req.Constraints
	fmt.Fprintf(&b, "Field: %s", req.FieldName)
	if req.Label != "" {
		fmt.Fprintf(&b, " (%s)", req.Label)
	}
	fmt.Fprintf(&b, "\nType: %s\n", req.FieldType)
	if c.Required {
		b.WriteString("Required: yes\n")
	}
	if c.Min != nil {
		fmt.Fprintf(&b, "Minimum: %v\n", *c.Min)
	}
	if c.Max != nil {
		fmt.Fprintf(&b, "Maximum: %v\n", *c.Max)
	}
	if c.Pattern != "" {
		fmt.Fprintf(&b, "Format (regex): %s\n", c.Pattern)
	}
	if len(c.EnumOptions) > 0 {
		b.WriteString("Allowed options (choose exactly one):\n")
		for _, o := range c.EnumOptions {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	if req.IsRequiredEnum() {
		b.WriteString("This field must never be empty. Never answer null, empty or unknown. " +
			"If the evidence is weak, pick the most plausible option with a low confidence.\n")
	}
	return b.String()
}

// BuildPrompt renders the synthesis request for in.
func BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString(replyFormat)
	b.WriteString(describeConstraints(in.Request))
	if in.Vehicle != "" {
		fmt.Fprintf(&b, "Vehicle: %s\n", in.Vehicle)
	}

	if len(in.Thoughts) > 0 {
		b.WriteString("\nReasoning so far:\n")
		for _, t := range in.Thoughts {
			fmt.Fprintf(&b, "- [%s] %s\n", t.Step, t.Reasoning)
		}
	}

	b.WriteString("\nExtraction attempts:\n")
	if len(in.Attempts) == 0 {
		b.WriteString("- none\n")
	}
	for _, a := range in.Attempts {
		fmt.Fprintf(&b, "- %s: %s (confidence %d)", a.Source, model.ToString(a.Value), a.Confidence)
		if a.Reasoning != "" {
			fmt.Fprintf(&b, " - %s", a.Reasoning)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nResearch results:\n")
	if len(in.Research) == 0 {
		b.WriteString("- none\n")
	}
	for _, r := range in.Research {
		if r.Failed() || strings.TrimSpace(r.Text) == "" {
			b.WriteString("- research returned nothing\n")
			continue
		}
		fmt.Fprintf(&b, "- (confidence %d) %s\n", r.Confidence, strings.TrimSpace(r.Text))
		if len(r.Sources) > 0 {
			fmt.Fprintf(&b, "  Sources: %s\n", strings.Join(r.Sources, ", "))
		}
	}

	if in.PreviousFailure != "" {
		fmt.Fprintf(&b, "\nYour previous answer %q was rejected: %s. Answer again and fix this.\n",
			model.ToString(in.PreviousValue), in.PreviousFailure)
	}

	b.WriteString("\nAnswer now in the three-line format (VALUE, CONFIDENCE, REASONING).")
	return b.String()
}

// BuildAnalysisPrompt asks for a short plan of where to look for the field.
func BuildAnalysisPrompt(req model.FieldRequest, fc model.FieldContext) string {
	var b strings.Builder
	b.WriteString("We need to fill one field of a vehicle listing.\n")
	b.WriteString(describeConstraints(req))
	fmt.Fprintf(&b, "\nAvailable evidence: %s.\n", evidenceSummary(fc))
	b.WriteString("In at most two sentences, say what value is being searched for and which evidence looks relevant. Do not answer with a value.")
	return b.String()
}

func evidenceSummary(fc model.FieldContext) string {
	var parts []string
	if n := len(fc.PDFText); n > 0 {
		parts = append(parts, fmt.Sprintf("document text (%d characters)", n))
	}
	if n := fc.ExtractedData.Len(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d extracted fields", n))
	}
	if fc.EnrichedData.Vehicle != nil {
		parts = append(parts, "researched vehicle data")
	}
	if n := len(fc.CurrentFormData); n > 0 {
		parts = append(parts, fmt.Sprintf("%d form values", n))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
