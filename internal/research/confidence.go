package research

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/listing-resolver/internal/model"
)

var (
	numericMarker = regexp.MustCompile(`(?i)(?:konfidenz|confidence)\s*[:=]\s*(\d{1,3})\s*%?`)
	levelMarker   = regexp.MustCompile(`(?i)(?:konfidenz|confidence)\s*[:=]\s*(hoch|high|mittel|medium|niedrig|low)`)
	technicalFig  = regexp.MustCompile(`(?i)\d+(?:[.,]\d+)?\s*(?:ps|kw|ccm|cm³|g/km|l/100\s?km|kwh|nm|km/h|türen|sitze)\b`)
)

var hedges = []string{
	"uncertain", "possibly", "maybe", "might", "unclear", "not sure",
	"unsicher", "möglicherweise", "vermutlich", "eventuell", "nicht bekannt", "keine angaben", "unklar",
}

const (
	baseConfidence  = 50
	markerHigh      = 80
	markerMedium    = 60
	markerLow       = 30
	sourceBonus     = 10
	manySourceBonus = 15
	figureBonus     = 10
	hedgePenalty    = 15
	maxHedgePenalty = 30
)

// DeriveConfidence scores a research answer. An explicit marker in the text
// sets the base; cited sources and concrete technical figures raise it;
// hedging language lowers it.
func DeriveConfidence(text string, sources []string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	conf := baseConfidence
	if m := numericMarker.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			conf = n
		}
	} else if m := levelMarker.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1]) {
		case "hoch", "high":
			conf = markerHigh
		case "mittel", "medium":
			conf = markerMedium
		default:
			conf = markerLow
		}
	}

	switch {
	case len(sources) >= 3:
		conf += manySourceBonus
	case len(sources) > 0:
		conf += sourceBonus
	}

	if technicalFig.MatchString(text) {
		conf += figureBonus
	}

	lower := strings.ToLower(text)
	penalty := 0
	for _, h := range hedges {
		if strings.Contains(lower, h) {
			penalty += hedgePenalty
		}
	}
	if penalty > maxHedgePenalty {
		penalty = maxHedgePenalty
	}
	conf -= penalty

	return model.ClampConfidence(conf)
}
