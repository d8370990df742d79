// Package prompt renders coaching prompts from an enhanced deal context and
// its insights. Every function here is pure.
package prompt

import (
	"fmt"
	"strings"

	"deal-coach/internal/models"
)

const charsPerToken = 4

const preamble = `You are an expert sales coach embedded in the team's CRM. You help the salesperson advance this deal by giving specific, actionable advice grounded in the context below.`

const instructions = `INSTRUCTIONS:
- Refer to people, companies and recent activity by name when relevant.
- Tailor advice to the deal stage and to each contact's role and preferences.
- Keep answers concise and end with a concrete next step.
- If the context does not cover something, say so instead of guessing.`

// section is one insight category as rendered in the system prompt.
type section struct {
	heading string
	items   []string
}

func sections(ins models.ContextInsights) []section {
	return []section{
		{"COMPANY INSIGHTS", ins.CompanyInsights},
		{"CONTACT INSIGHTS", ins.ContactInsights},
		{"SALESPERSON INSIGHTS", ins.SalespersonInsights},
		{"RECENT ACTIVITY", ins.ActivityInsights},
		{"TONE PREFERENCES", ins.ToneInsights},
		{"AI INSIGHTS", ins.AIInsights},
	}
}

type options struct {
	tokenBudget int
}

type Option func(*options)

// WithTokenBudget caps the insight text at roughly n tokens. Entries are
// dropped from the tail of the largest category until the text fits.
func WithTokenBudget(n int) Option {
	return func(o *options) { o.tokenBudget = n }
}

// GenerateEnhancedSystemPrompt renders the preamble, a deal summary block,
// the non-empty insight sections and the fixed instructions.
func GenerateEnhancedSystemPrompt(dc *models.EnhancedDealContext, ins models.ContextInsights, opts ...Option) string {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	secs := sections(ins)
	if o.tokenBudget > 0 {
		secs = truncate(secs, o.tokenBudget*charsPerToken)
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	writeSummaryBlock(&b, dc)
	for _, s := range secs {
		writeSection(&b, s.heading, s.items)
	}
	b.WriteString(instructions)
	return b.String()
}

func writeSummaryBlock(b *strings.Builder, dc *models.EnhancedDealContext) {
	if dc == nil {
		dc = models.NewEnhancedDealContext("", "")
	}
	b.WriteString("DEAL CONTEXT SUMMARY:\n")

	if dc.Deal != nil {
		fmt.Fprintf(b, "- Deal: %s", orUnknown(dc.Deal.Name))
		if dc.Deal.Stage != "" {
			fmt.Fprintf(b, " (stage: %s)", dc.Deal.Stage)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("- Deal: not found\n")
	}

	if dc.Company != nil {
		fmt.Fprintf(b, "- Company: %s", orUnknown(dc.Company.Company.Name))
		if dc.Company.Company.Industry != "" {
			fmt.Fprintf(b, " (%s)", dc.Company.Company.Industry)
		}
		b.WriteString("\n")
	}

	contactNames := make([]string, 0, len(dc.Contacts))
	for _, c := range dc.Contacts {
		if n := c.Contact.DisplayName(); n != "" {
			contactNames = append(contactNames, n)
		}
	}
	writeCountLine(b, "Contacts", len(dc.Contacts), contactNames)

	salesNames := make([]string, 0, len(dc.Salespeople))
	for _, s := range dc.Salespeople {
		if n := s.Salesperson.Name(); n != "" {
			salesNames = append(salesNames, n)
		}
	}
	writeCountLine(b, "Salespeople", len(dc.Salespeople), salesNames)

	fmt.Fprintf(b, "- Records: %d activities, %d emails, %d tasks, %d notes\n\n",
		len(dc.DealActivities), len(dc.DealEmails), len(dc.DealTasks), len(dc.DealNotes))
}

func writeCountLine(b *strings.Builder, label string, count int, names []string) {
	fmt.Fprintf(b, "- %s: %d", label, count)
	if len(names) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(names, ", "))
	}
	b.WriteString("\n")
}

func writeSection(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// truncate drops tail entries, always from the category with the most
// text, until the rendered items fit in maxChars. Inputs are not modified.
func truncate(secs []section, maxChars int) []section {
	out := make([]section, len(secs))
	sizes := make([]int, len(secs))
	total := 0
	for i, s := range secs {
		out[i] = section{heading: s.heading, items: s.items[:len(s.items):len(s.items)]}
		for _, item := range s.items {
			sizes[i] += itemSize(item)
		}
		total += sizes[i]
	}

	for total > maxChars {
		largest := -1
		for i := range out {
			if len(out[i].items) > 0 && (largest < 0 || sizes[i] > sizes[largest]) {
				largest = i
			}
		}
		if largest < 0 {
			break
		}
		items := out[largest].items
		dropped := itemSize(items[len(items)-1])
		out[largest].items = items[:len(items)-1]
		sizes[largest] -= dropped
		total -= dropped
	}
	return out
}

// itemSize counts the "- " prefix and trailing newline.
func itemSize(item string) int {
	return len(item) + 3
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
