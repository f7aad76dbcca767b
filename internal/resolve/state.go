package resolve

// State is a step of the resolution pipeline.
type State int

// Pipeline states in their nominal order.
const (
	StateAnalyze State = iota
	StateExtract
	StateResearch
	StateSynthesize
	StateValidate
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateAnalyze:
		return "analyze"
	case StateExtract:
		return "extractFromContext"
	case StateResearch:
		return "performResearch"
	case StateSynthesize:
		return "synthesize"
	case StateValidate:
		return "validate"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}
