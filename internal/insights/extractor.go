// Package insights turns an enhanced deal context into short, categorised
// sentences. Extraction is pure: absent data produces no sentence.
package insights

import (
	"fmt"

	"deal-coach/internal/models"
)

const dueDateLayout = "2006-01-02"

// GenerateContextInsights walks the context in a fixed order: company,
// contacts, salespeople, deal-level records, tone, deal AI inferences.
// Within each list the first (most recent) record is used.
func GenerateContextInsights(dc *models.EnhancedDealContext) models.ContextInsights {
	ins := models.ContextInsights{
		CompanyInsights:     []string{},
		ContactInsights:     []string{},
		SalespersonInsights: []string{},
		ActivityInsights:    []string{},
		ToneInsights:        []string{},
		AIInsights:          []string{},
	}
	if dc == nil {
		return ins
	}

	companyInsights(dc.Company, &ins)
	n := 0
	for _, c := range dc.Contacts {
		if contactInsights(n+1, c, &ins) {
			n++
		}
	}
	n = 0
	for _, s := range dc.Salespeople {
		if salespersonInsights(n+1, s, &ins) {
			n++
		}
	}
	dealActivityInsights(dc, &ins)

	if dc.DealToneSettings != nil && dc.DealToneSettings.Tone != "" {
		ins.ToneInsights = append(ins.ToneInsights, "Deal tone: "+dc.DealToneSettings.Tone)
	}
	if dc.Company != nil && dc.Company.CompanyToneSettings != nil && dc.Company.CompanyToneSettings.Tone != "" {
		ins.ToneInsights = append(ins.ToneInsights, "Company tone: "+dc.Company.CompanyToneSettings.Tone)
	}

	if ai, ok := first(dc.DealAIInferences); ok && ai.Content != "" {
		ins.AIInsights = append(ins.AIInsights, "Deal AI insight: "+ai.Content)
	}
	return ins
}

func companyInsights(cc *models.CompanyContext, ins *models.ContextInsights) {
	if cc == nil {
		return
	}
	if name := cc.Company.Name; name != "" {
		industry := cc.Company.Industry
		if industry == "" {
			industry = "Unknown industry"
		}
		ins.CompanyInsights = append(ins.CompanyInsights, fmt.Sprintf("Company: %s (%s)", name, industry))
	}
	if note, ok := first(cc.CompanyNotes); ok && note.Content != "" {
		ins.CompanyInsights = append(ins.CompanyInsights, "Latest company note: "+note.Content)
	}
	if act, ok := first(cc.CompanyRecentActivity); ok && act.Summary() != "" {
		ins.ActivityInsights = append(ins.ActivityInsights, "Recent company activity: "+act.Summary())
	}
}

// contactInsights reports whether the contact had a name to describe.
func contactInsights(n int, c models.ContactContext, ins *models.ContextInsights) bool {
	name := c.Contact.DisplayName()
	if name == "" {
		return false
	}
	title := c.Contact.Title
	if title == "" {
		title = "No title"
	}
	ins.ContactInsights = append(ins.ContactInsights, fmt.Sprintf("Contact %d: %s (%s)", n, name, title))

	if c.ContactDealRole != "" {
		ins.ContactInsights = append(ins.ContactInsights, fmt.Sprintf("%s's role in this deal: %s", name, c.ContactDealRole))
	}
	if c.ContactPersonality != "" {
		ins.ContactInsights = append(ins.ContactInsights, fmt.Sprintf("%s's personality: %s", name, c.ContactPersonality))
	}
	if style := c.CommunicationPreferences.CommunicationStyle; style != "" {
		ins.ContactInsights = append(ins.ContactInsights, fmt.Sprintf("%s prefers a %s communication style", name, style))
	}
	if note, ok := first(c.ContactNotes); ok && note.Content != "" {
		ins.ContactInsights = append(ins.ContactInsights, fmt.Sprintf("Latest note about %s: %s", name, note.Content))
	}
	if ai, ok := first(c.ContactAIInferences); ok && ai.Content != "" {
		ins.AIInsights = append(ins.AIInsights, fmt.Sprintf("AI insight about %s: %s", name, ai.Content))
	}
	if email, ok := first(c.ContactEmails); ok && email.Subject != "" {
		ins.ActivityInsights = append(ins.ActivityInsights, fmt.Sprintf("Latest email with %s: %s", name, email.Subject))
	}
	return true
}

func salespersonInsights(n int, s models.SalespersonContext, ins *models.ContextInsights) bool {
	name := s.Salesperson.Name()
	if name == "" {
		return false
	}
	ins.SalespersonInsights = append(ins.SalespersonInsights, fmt.Sprintf("Salesperson %d: %s", n, name))

	if p := s.SalespersonPerformance; p != nil && p.Summary != "" {
		ins.SalespersonInsights = append(ins.SalespersonInsights, fmt.Sprintf("%s's performance: %s", name, p.Summary))
	}
	if ai, ok := first(s.SalespersonAIInferences); ok && ai.Content != "" {
		ins.AIInsights = append(ins.AIInsights, fmt.Sprintf("AI insight about %s: %s", name, ai.Content))
	}
	return true
}

func dealActivityInsights(dc *models.EnhancedDealContext, ins *models.ContextInsights) {
	if act, ok := first(dc.DealActivities); ok && act.Summary() != "" {
		ins.ActivityInsights = append(ins.ActivityInsights, "Latest deal activity: "+act.Summary())
	}
	if email, ok := first(dc.DealEmails); ok && email.Subject != "" {
		ins.ActivityInsights = append(ins.ActivityInsights, "Latest deal email: "+email.Subject)
	}
	if task, ok := first(dc.DealTasks); ok && task.Title != "" {
		s := "Latest deal task: " + task.Title
		if !task.DueDate.IsZero() {
			s += fmt.Sprintf(" (due %s)", task.DueDate.Format(dueDateLayout))
		}
		ins.ActivityInsights = append(ins.ActivityInsights, s)
	}
}

func first[T any](items []T) (T, bool) {
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}
