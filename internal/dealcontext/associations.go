package dealcontext

import (
	"strings"

	"deal-coach/internal/models"
)

// Resolution is the canonical set of entity ids related to a deal.
// Lists are never nil and hold no duplicates; Companies starts with the
// primary company when there is one.
type Resolution struct {
	PrimaryCompanyID string
	Companies        []string
	Locations        []string
	Contacts         []string
	Salespeople      []string

	// ContactRoles carries roles recorded on contact association entries.
	ContactRoles map[string]string
	// Dropped counts malformed entries per entity type.
	Dropped map[string]int
}

// ResolveAssociations reconciles the deal's associations map with the
// legacy companyId/contactIds fields. The primary company is, in order:
// associations.primaryCompanyId, the first company entry flagged isPrimary,
// the first company entry, the legacy companyId.
func ResolveAssociations(deal *models.Deal) Resolution {
	res := Resolution{
		Companies:    []string{},
		Locations:    []string{},
		Contacts:     []string{},
		Salespeople:  []string{},
		ContactRoles: map[string]string{},
		Dropped:      map[string]int{},
	}
	if deal == nil {
		return res
	}
	a := deal.Associations

	res.PrimaryCompanyID = primaryCompany(deal)
	if res.PrimaryCompanyID == "" && deal.LegacyCompanyMalformed() {
		res.Dropped["companies"]++
	}
	companies := []string{}
	if res.PrimaryCompanyID != "" {
		companies = append(companies, res.PrimaryCompanyID)
	}
	res.Companies = dedupe(append(companies, a.Companies.IDs()...))

	res.Locations = dedupe(a.Locations.IDs())
	res.Salespeople = dedupe(a.Salespeople.IDs())

	res.Contacts = dedupe(a.Contacts.IDs())
	if len(res.Contacts) == 0 {
		res.Contacts = dedupe(deal.ContactIDs.IDs())
		countMalformed(res.Dropped, "contacts", deal.ContactIDs)
	}
	for _, id := range res.Contacts {
		if ref, ok := a.Contacts.Find(id); ok && ref.Role != "" {
			res.ContactRoles[id] = ref.Role
		} else if ref, ok := deal.ContactIDs.Find(id); ok && ref.Role != "" {
			res.ContactRoles[id] = ref.Role
		}
	}

	countMalformed(res.Dropped, "companies", a.Companies)
	countMalformed(res.Dropped, "locations", a.Locations)
	countMalformed(res.Dropped, "contacts", a.Contacts)
	countMalformed(res.Dropped, "salespeople", a.Salespeople)
	return res
}

func primaryCompany(deal *models.Deal) string {
	if id := strings.TrimSpace(deal.Associations.PrimaryCompanyID); id != "" {
		return id
	}
	for _, ref := range deal.Associations.Companies {
		if !ref.Malformed && ref.IsPrimary {
			return ref.ID
		}
	}
	if ids := deal.Associations.Companies.IDs(); len(ids) > 0 {
		return ids[0]
	}
	return strings.TrimSpace(deal.CompanyID)
}

// Summary converts the resolution into the form kept on the context.
func (r Resolution) Summary() models.AssociationSummary {
	dropped := make(map[string]int, len(r.Dropped))
	for k, v := range r.Dropped {
		dropped[k] = v
	}
	return models.AssociationSummary{
		PrimaryCompanyID: r.PrimaryCompanyID,
		CompanyCount:     len(r.Companies),
		LocationCount:    len(r.Locations),
		ContactCount:     len(r.Contacts),
		SalespersonCount: len(r.Salespeople),
		DroppedEntries:   dropped,
	}
}

// DroppedTotal is the number of malformed entries across all types.
func (r Resolution) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

func countMalformed(into map[string]int, entityType string, list models.AssociationList) {
	for _, ref := range list {
		if ref.Malformed {
			into[entityType]++
		}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
