package model

// CategoryReport aggregates the resolutions of one field category.
type CategoryReport struct {
	Category           string            `json:"category"`
	MappedValues       []FieldResolution `json:"mappedValues"`
	OverallConfidence  int               `json:"overallConfidence"`
	PerFieldConfidence map[string]int    `json:"perFieldConfidence"`
	Errors             map[string]string `json:"errors,omitempty"`
	Metadata           ReportMetadata    `json:"metadata"`
}

// ReportMetadata summarizes a category run.
type ReportMetadata struct {
	TotalFields     int      `json:"totalFields"`
	ResolvedCount   int      `json:"resolvedCount"`
	SourcesUsed     []string `json:"sourcesUsed"`
	ResearchInvoked bool     `json:"researchInvoked"`
}
