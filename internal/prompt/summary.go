package prompt

import (
	"fmt"
	"sort"
	"strings"

	"deal-coach/internal/models"

	"github.com/dustin/go-humanize"
)

const (
	defaultToneInstructions = "TONE INSTRUCTIONS: Use professional but warm tone"
	defaultRecommendations  = "PERSONALIZED RECOMMENDATIONS: Focus on building relationships and understanding needs"
)

// GenerateContextSummary renders a single pipe-delimited line. Segments
// without data are left out.
func GenerateContextSummary(dc *models.EnhancedDealContext) string {
	if dc == nil {
		return ""
	}
	var segments []string

	if d := dc.Deal; d != nil {
		if d.Name != "" {
			s := "Deal: " + d.Name
			if d.Stage != "" {
				s += " (" + d.Stage + ")"
			}
			segments = append(segments, s)
		}
		if d.Value != nil {
			segments = append(segments, "Value: $"+humanize.Commaf(*d.Value))
		}
	}

	if dc.Company != nil && dc.Company.Company.Name != "" {
		s := "Company: " + dc.Company.Company.Name
		if dc.Company.Company.Industry != "" {
			s += " (" + dc.Company.Company.Industry + ")"
		}
		segments = append(segments, s)
	}

	contacts := make([]string, 0, len(dc.Contacts))
	for _, c := range dc.Contacts {
		name := c.Contact.DisplayName()
		if name == "" {
			continue
		}
		if c.ContactDealRole != "" {
			name += " (" + c.ContactDealRole + ")"
		}
		contacts = append(contacts, name)
	}
	if len(contacts) > 0 {
		segments = append(segments, "Contacts: "+strings.Join(contacts, ", "))
	}

	sales := make([]string, 0, len(dc.Salespeople))
	for _, s := range dc.Salespeople {
		if name := s.Salesperson.Name(); name != "" {
			sales = append(sales, name)
		}
	}
	if len(sales) > 0 {
		segments = append(segments, "Salespeople: "+strings.Join(sales, ", "))
	}

	if counts := activityCounts(dc.DealActivities); counts != "" {
		segments = append(segments, "Activity: "+counts)
	}
	return strings.Join(segments, " | ")
}

func activityCounts(activities []models.Activity) string {
	counts := map[string]int{}
	for _, a := range activities {
		if a.Type != "" {
			counts[a.Type]++
		}
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
	}
	return strings.Join(parts, ", ")
}

// GenerateToneAwareInstructions lists the deal, company and per-contact
// tone directives, in that order.
func GenerateToneAwareInstructions(dc *models.EnhancedDealContext) string {
	if dc == nil {
		return defaultToneInstructions
	}
	var lines []string
	if d := toneDirective(dc.DealToneSettings, "for this deal"); d != "" {
		lines = append(lines, d)
	}
	if dc.Company != nil {
		target := "with the company"
		if dc.Company.Company.Name != "" {
			target = "with " + dc.Company.Company.Name
		}
		if d := toneDirective(dc.Company.CompanyToneSettings, target); d != "" {
			lines = append(lines, d)
		}
	}
	for _, c := range dc.Contacts {
		name := c.Contact.DisplayName()
		if name == "" {
			continue
		}
		if d := toneDirective(c.ContactToneSettings, "with "+name); d != "" {
			lines = append(lines, d)
		}
	}

	if len(lines) == 0 {
		return defaultToneInstructions
	}
	return bulletList("TONE INSTRUCTIONS:", lines)
}

func toneDirective(ts *models.ToneSettings, target string) string {
	if ts == nil {
		return ""
	}
	tone := strings.TrimSpace(ts.Tone)
	extra := strings.TrimSpace(ts.Instructions)
	switch {
	case tone != "" && extra != "":
		return fmt.Sprintf("Use a %s tone %s. %s", tone, target, extra)
	case tone != "":
		return fmt.Sprintf("Use a %s tone %s", tone, target)
	default:
		return extra
	}
}

// GeneratePersonalizedRecommendations applies the contact, salesperson and
// latest-activity heuristics. With no match it returns the fixed default.
func GeneratePersonalizedRecommendations(dc *models.EnhancedDealContext) string {
	if dc == nil {
		return defaultRecommendations
	}
	var recs []string

	for _, c := range dc.Contacts {
		name := c.Contact.DisplayName()
		if name == "" {
			continue
		}
		if isDecisionMaker(c.ContactDealRole) {
			recs = append(recs, fmt.Sprintf("Focus on %s as the primary decision maker", name))
		}
		if strings.EqualFold(strings.TrimSpace(c.ContactPersonality), "analytical") {
			recs = append(recs, fmt.Sprintf("Provide data and metrics when communicating with %s", name))
		}
		if strings.EqualFold(strings.TrimSpace(c.CommunicationPreferences.PreferredChannel), "email") {
			recs = append(recs, fmt.Sprintf("Use email as the primary channel with %s", name))
		}
	}

	for _, s := range dc.Salespeople {
		name := s.Salesperson.Name()
		if name == "" || s.SalespersonPerformance == nil || len(s.SalespersonPerformance.Strengths) == 0 {
			continue
		}
		recs = append(recs, fmt.Sprintf("Leverage %s's strength in %s",
			name, strings.Join(s.SalespersonPerformance.Strengths, ", ")))
	}

	if len(dc.DealActivities) > 0 {
		switch dc.DealActivities[0].Type {
		case "email_sent":
			recs = append(recs, "Follow up on the recent email within 2-3 business days")
		case "meeting_scheduled":
			recs = append(recs, "Prepare an agenda and talking points for the upcoming meeting")
		}
	}

	if len(recs) == 0 {
		return defaultRecommendations
	}
	return bulletList("PERSONALIZED RECOMMENDATIONS:", recs)
}

// isDecisionMaker accepts "decision_maker", "Decision Maker" and similar.
func isDecisionMaker(role string) bool {
	r := strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(role)))
	return r == "decision maker"
}

func bulletList(header string, lines []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, l := range lines {
		b.WriteString("\n- ")
		b.WriteString(l)
	}
	return b.String()
}
