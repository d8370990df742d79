package models

import "sort"

// EnhancedDealContext is the request-scoped aggregate built for one coaching
// call. Every list field is non-nil.
type EnhancedDealContext struct {
	TenantID    string `json:"tenantId"`
	RequestedBy string `json:"requestedBy"`

	Deal        *Deal                `json:"deal"`
	Company     *CompanyContext      `json:"company"`
	Locations   []LocationContext    `json:"locations"`
	Contacts    []ContactContext     `json:"contacts"`
	Salespeople []SalespersonContext `json:"salespeople"`

	DealNotes        []Note          `json:"dealNotes"`
	DealEmails       []Communication `json:"dealEmails"`
	DealActivities   []Activity      `json:"dealActivities"`
	DealTasks        []Task          `json:"dealTasks"`
	DealToneSettings *ToneSettings   `json:"dealToneSettings"`
	DealAIInferences []AIInference   `json:"dealAIInferences"`

	LearningData       LearningData       `json:"learningData"`
	AssociationSummary AssociationSummary `json:"associationSummary"`
	Report             FetchReport        `json:"report"`
}

// NewEnhancedDealContext returns a context with every list initialised.
func NewEnhancedDealContext(tenantID, userID string) *EnhancedDealContext {
	return &EnhancedDealContext{
		TenantID:         tenantID,
		RequestedBy:      userID,
		Locations:        []LocationContext{},
		Contacts:         []ContactContext{},
		Salespeople:      []SalespersonContext{},
		DealNotes:        []Note{},
		DealEmails:       []Communication{},
		DealActivities:   []Activity{},
		DealTasks:        []Task{},
		DealAIInferences: []AIInference{},
		LearningData:     DefaultLearningData(),
		AssociationSummary: AssociationSummary{
			DroppedEntries: map[string]int{},
		},
		Report: FetchReport{Branches: map[string]BranchOutcome{}},
	}
}

type CompanyContext struct {
	Company               Company         `json:"company"`
	CompanyNotes          []Note          `json:"companyNotes"`
	CompanyEmails         []Communication `json:"companyEmails"`
	CompanyTasks          []Task          `json:"companyTasks"`
	CompanyToneSettings   *ToneSettings   `json:"companyToneSettings"`
	CompanyAIInferences   []AIInference   `json:"companyAIInferences"`
	CompanyRecentActivity []Activity      `json:"companyRecentActivity"`
}

type LocationContext struct {
	Location             Location        `json:"location"`
	LocationNotes        []Note          `json:"locationNotes"`
	LocationEmails       []Communication `json:"locationEmails"`
	LocationTasks        []Task          `json:"locationTasks"`
	LocationToneSettings *ToneSettings   `json:"locationToneSettings"`
	LocationAIInferences []AIInference   `json:"locationAIInferences"`
}

type ContactContext struct {
	Contact                  Contact                  `json:"contact"`
	ContactNotes             []Note                   `json:"contactNotes"`
	ContactEmails            []Communication          `json:"contactEmails"`
	ContactTasks             []Task                   `json:"contactTasks"`
	ContactToneSettings      *ToneSettings            `json:"contactToneSettings"`
	ContactAIInferences      []AIInference            `json:"contactAIInferences"`
	ContactDealRole          string                   `json:"contactDealRole,omitempty"`
	ContactPersonality       string                   `json:"contactPersonality,omitempty"`
	CommunicationPreferences CommunicationPreferences `json:"communicationPreferences"`
}

type SalespersonContext struct {
	Salesperson             Salesperson             `json:"salesperson"`
	SalespersonNotes        []Note                  `json:"salespersonNotes"`
	SalespersonEmails       []Communication         `json:"salespersonEmails"`
	SalespersonTasks        []Task                  `json:"salespersonTasks"`
	SalespersonToneSettings *ToneSettings           `json:"salespersonToneSettings"`
	SalespersonAIInferences []AIInference           `json:"salespersonAIInferences"`
	SalespersonPerformance  *SalespersonPerformance `json:"salespersonPerformance"`
}

// AssociationSummary describes what the association resolver produced.
// DroppedEntries counts malformed association entries per entity type.
type AssociationSummary struct {
	PrimaryCompanyID string         `json:"primaryCompanyId,omitempty"`
	CompanyCount     int            `json:"companyCount"`
	LocationCount    int            `json:"locationCount"`
	ContactCount     int            `json:"contactCount"`
	SalespersonCount int            `json:"salespersonCount"`
	DroppedEntries   map[string]int `json:"droppedEntries"`
}

type BranchStatus string

const (
	BranchOK       BranchStatus = "ok"
	BranchNotFound BranchStatus = "not_found"
	BranchFailed   BranchStatus = "failed"
)

// BranchOutcome records how one branch fetch ended.
type BranchOutcome struct {
	Status     BranchStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"durationMs"`
	// Permanent marks a failure that a retry would repeat, such as a
	// document that cannot be decoded.
	Permanent bool `json:"permanent,omitempty"`
}

// FetchReport maps branch keys such as "company.notes" or
// "contact[c1].emails" to their outcome.
type FetchReport struct {
	RunID    string                   `json:"runId"`
	Branches map[string]BranchOutcome `json:"branches"`
}

// Failed returns the keys of failed branches, sorted.
func (r FetchReport) Failed() []string {
	failed := make([]string, 0)
	for key, outcome := range r.Branches {
		if outcome.Status == BranchFailed {
			failed = append(failed, key)
		}
	}
	sort.Strings(failed)
	return failed
}

// ContextInsights holds the generated sentences per category.
type ContextInsights struct {
	CompanyInsights     []string `json:"companyInsights"`
	ContactInsights     []string `json:"contactInsights"`
	SalespersonInsights []string `json:"salespersonInsights"`
	ActivityInsights    []string `json:"activityInsights"`
	ToneInsights        []string `json:"toneInsights"`
	AIInsights          []string `json:"aiInsights"`
}

// Count is the total number of sentences across categories.
func (c ContextInsights) Count() int {
	return len(c.CompanyInsights) + len(c.ContactInsights) + len(c.SalespersonInsights) +
		len(c.ActivityInsights) + len(c.ToneInsights) + len(c.AIInsights)
}
