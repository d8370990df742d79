package models

type Note struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  Timestamp `json:"createdAt"`
}

// Communication is a logged email exchange.
type Communication struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Snippet   string    `json:"snippet,omitempty"`
	Direction string    `json:"direction,omitempty"`
	From      string    `json:"from,omitempty"`
	To        []string  `json:"to,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	CreatedAt Timestamp `json:"createdAt"`
}

type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Timestamp   Timestamp `json:"timestamp"`
}

// Summary is the description, or the type when no description was logged.
func (a Activity) Summary() string {
	if a.Description != "" {
		return a.Description
	}
	return a.Type
}

type Task struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	AssignedTo string    `json:"assignedTo,omitempty"`
	DueDate    Timestamp `json:"dueDate"`
	CreatedAt  Timestamp `json:"createdAt"`
}

// ToneSettings is keyed by the id of the deal or entity it applies to.
type ToneSettings struct {
	ID           string `json:"id"`
	Tone         string `json:"tone,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type AIInference struct {
	ID            string    `json:"id"`
	TargetID      string    `json:"targetId"`
	TargetType    string    `json:"targetType"`
	InferenceType string    `json:"inferenceType,omitempty"`
	Content       string    `json:"content"`
	Confidence    float64   `json:"confidence,omitempty"`
	CreatedAt     Timestamp `json:"createdAt"`
}

type SalespersonPerformance struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary,omitempty"`
	WinRate     *float64 `json:"winRate,omitempty"`
	DealsClosed int      `json:"dealsClosed,omitempty"`
	Strengths   []string `json:"strengths,omitempty"`
}

// LearningData holds tenant-wide coaching statistics.
type LearningData struct {
	SuccessfulPatterns []string           `json:"successfulPatterns"`
	FailedPatterns     []string           `json:"failedPatterns"`
	CommonObjections   []string           `json:"commonObjections"`
	StageSuccessRates  map[string]float64 `json:"stageSuccessRates"`
}

// DefaultLearningData is used when the tenant has no learning document.
func DefaultLearningData() LearningData {
	return LearningData{
		SuccessfulPatterns: []string{},
		FailedPatterns:     []string{},
		CommonObjections:   []string{},
		StageSuccessRates:  map[string]float64{},
	}
}

// Normalize replaces nil collections with empty ones.
func (l *LearningData) Normalize() {
	if l.SuccessfulPatterns == nil {
		l.SuccessfulPatterns = []string{}
	}
	if l.FailedPatterns == nil {
		l.FailedPatterns = []string{}
	}
	if l.CommonObjections == nil {
		l.CommonObjections = []string{}
	}
	if l.StageSuccessRates == nil {
		l.StageSuccessRates = map[string]float64{}
	}
}
