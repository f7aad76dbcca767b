package resolve

import (
	"time"

	"github.com/sells-group/listing-resolver/internal/synthesis"
)

// Policy constants. The fallback confidence is what a required enum gets
// when synthesis could not pick an option; the relaxed threshold is the
// acceptance floor for extracted candidates of required enums.
const (
	EnumFallbackConfidence        = synthesis.FallbackConfidence
	DefaultRelaxedEnumThreshold   = 20
	DefaultMinConfidenceThreshold = 70
	DefaultMaxRetries             = 2
)

// Config controls one agent. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	MaxRetries             int           `json:"maxRetries"`
	MinConfidenceThreshold int           `json:"minConfidenceThreshold"`
	RelaxedEnumThreshold   int           `json:"relaxedEnumThreshold"`
	EnableResearch         bool          `json:"enablePerplexityResearch"`
	LLMAnalysis            bool          `json:"llmAnalysis"`
	Debug                  bool          `json:"debug"`
	SynthesisTimeout       time.Duration `json:"-"`
	ResearchTimeout        time.Duration `json:"-"`
}

// DefaultConfig returns the standard agent configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:             DefaultMaxRetries,
		MinConfidenceThreshold: DefaultMinConfidenceThreshold,
		RelaxedEnumThreshold:   DefaultRelaxedEnumThreshold,
		EnableResearch:         true,
		LLMAnalysis:            true,
		SynthesisTimeout:       synthesis.DefaultTimeout,
		ResearchTimeout:        60 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	c.MinConfidenceThreshold = clamp(c.MinConfidenceThreshold)
	c.RelaxedEnumThreshold = clamp(c.RelaxedEnumThreshold)
	return c
}

// threshold returns the acceptance threshold for extracted candidates.
func (c Config) threshold(requiredEnum bool) int {
	if requiredEnum && c.RelaxedEnumThreshold < c.MinConfidenceThreshold {
		return c.RelaxedEnumThreshold
	}
	return c.MinConfidenceThreshold
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
