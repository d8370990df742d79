package buildcoachingprompt

type Input struct {
	DealID      string `json:"dealId"`
	TenantID    string `json:"tenantId"`
	UserID      string `json:"userId"`
	UserMessage string `json:"userMessage,omitempty"`
}

// Output is written back to the process instance as job variables.
type Output struct {
	SystemPrompt       string         `json:"systemPrompt"`
	EnhancedUserPrompt string         `json:"enhancedUserPrompt,omitempty"`
	ContextSummary     string         `json:"contextSummary"`
	ToneInstructions   string         `json:"toneInstructions"`
	Recommendations    string         `json:"recommendations"`
	InsightCounts      map[string]int `json:"insightCounts"`
	FailedBranches     []string       `json:"failedBranches"`
	RunID              string         `json:"runId"`
}
