package prompt

import (
	"strings"

	"deal-coach/internal/insights"
	"deal-coach/internal/models"
)

// enhancementRule appends one insight category to a user message when the
// message contains any of the keywords.
type enhancementRule struct {
	keywords []string
	heading  string
	insights func(models.ContextInsights) []string
}

// Matching is case-insensitive substring containment, so "who" also
// matches "whole".
var enhancementRules = []enhancementRule{
	{
		keywords: []string{"contact", "person", "people", "who", "stakeholder", "decision"},
		heading:  "CONTACT CONTEXT",
		insights: func(i models.ContextInsights) []string { return i.ContactInsights },
	},
	{
		keywords: []string{"company", "business", "organization", "industry"},
		heading:  "COMPANY CONTEXT",
		insights: func(i models.ContextInsights) []string { return i.CompanyInsights },
	},
	{
		keywords: []string{"recent", "activity", "latest", "history"},
		heading:  "RECENT ACTIVITY",
		insights: func(i models.ContextInsights) []string { return i.ActivityInsights },
	},
}

const aiHeading = "AI INSIGHTS"

// EnhanceUserPrompt appends the insight blocks whose keywords appear in msg,
// followed by AI insights whenever there are any. Blocks for empty
// categories are skipped; with nothing to add msg is returned unchanged.
func EnhanceUserPrompt(msg string, dc *models.EnhancedDealContext) string {
	return enhance(msg, insights.GenerateContextInsights(dc))
}

func enhance(msg string, ins models.ContextInsights) string {
	lower := strings.ToLower(msg)

	var b strings.Builder
	b.WriteString(msg)
	for _, rule := range enhancementRules {
		items := rule.insights(ins)
		if len(items) == 0 || !containsAny(lower, rule.keywords) {
			continue
		}
		writeBlock(&b, rule.heading, items)
	}
	if len(ins.AIInsights) > 0 {
		writeBlock(&b, aiHeading, ins.AIInsights)
	}
	return b.String()
}

func writeBlock(b *strings.Builder, heading string, items []string) {
	b.WriteString("\n\n")
	b.WriteString(heading)
	b.WriteString(":")
	for _, item := range items {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
