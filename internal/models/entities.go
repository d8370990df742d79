package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Deal is the sales opportunity being coached. CompanyID and ContactIDs are
// the pre-associations representation and are only read as a fallback.
type Deal struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Stage        string          `json:"stage"`
	Value        *float64        `json:"estimatedValue,omitempty"`
	Associations Associations    `json:"associations"`
	CompanyID    string          `json:"companyId,omitempty"`
	ContactIDs   AssociationList `json:"contactIds,omitempty"`
	CreatedAt    Timestamp       `json:"createdAt"`
	UpdatedAt    Timestamp       `json:"updatedAt"`

	companyIDMalformed bool
}

// UnmarshalJSON decodes the legacy fields leniently. estimatedValue may be
// a number or a numeric string; anything else leaves Value nil. A companyId
// that is neither a string nor a record with an id leaves CompanyID empty
// and is reported by LegacyCompanyMalformed.
func (d *Deal) UnmarshalJSON(data []byte) error {
	type plain Deal
	aux := struct {
		*plain
		Value     json.RawMessage `json:"estimatedValue"`
		CompanyID json.RawMessage `json:"companyId"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Keys absent from data leave the current values alone, so a partial
	// document such as {"id": ...} can be decoded over a full one.
	if aux.Value != nil {
		d.Value = parseAmount(aux.Value)
	}
	if aux.CompanyID != nil {
		d.CompanyID, d.companyIDMalformed = "", false
		if raw := bytes.TrimSpace(aux.CompanyID); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			var ref AssociationRef
			_ = ref.UnmarshalJSON(raw)
			d.CompanyID = ref.ID
			d.companyIDMalformed = ref.Malformed && !ref.Blank()
		}
	}
	return nil
}

// LegacyCompanyMalformed reports whether companyId held an unusable value.
// An empty string counts as absent, not malformed.
func (d *Deal) LegacyCompanyMalformed() bool { return d.companyIDMalformed }

func parseAmount(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

type Company struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Industry     string       `json:"industry,omitempty"`
	Website      string       `json:"website,omitempty"`
	Size         string       `json:"size,omitempty"`
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	Associations Associations `json:"associations"`
}

type Location struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	CompanyID    string       `json:"companyId,omitempty"`
	Address      string       `json:"address,omitempty"`
	City         string       `json:"city,omitempty"`
	State        string       `json:"state,omitempty"`
	Associations Associations `json:"associations"`
}

type CommunicationPreferences struct {
	PreferredChannel   string `json:"preferredChannel,omitempty"`
	CommunicationStyle string `json:"communicationStyle,omitempty"`
}

type Contact struct {
	ID                       string                   `json:"id"`
	FirstName                string                   `json:"firstName,omitempty"`
	LastName                 string                   `json:"lastName,omitempty"`
	FullName                 string                   `json:"fullName,omitempty"`
	PreferredName            string                   `json:"preferredName,omitempty"`
	Title                    string                   `json:"title,omitempty"`
	Email                    string                   `json:"email,omitempty"`
	Phone                    string                   `json:"phone,omitempty"`
	CompanyID                string                   `json:"companyId,omitempty"`
	ContactDealRole          string                   `json:"contactDealRole,omitempty"`
	ContactPersonality       string                   `json:"contactPersonality,omitempty"`
	CommunicationPreferences CommunicationPreferences `json:"communicationPreferences"`
	Associations             Associations             `json:"associations"`
}

// DisplayName prefers the preferred name, then the full name, then first and last.
func (c Contact) DisplayName() string {
	if n := strings.TrimSpace(c.PreferredName); n != "" {
		return n
	}
	if n := strings.TrimSpace(c.FullName); n != "" {
		return n
	}
	if n := strings.TrimSpace(c.FirstName + " " + c.LastName); n != "" {
		return n
	}
	return strings.TrimSpace(c.Email)
}

type Salesperson struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"displayName,omitempty"`
	FirstName    string       `json:"firstName,omitempty"`
	LastName     string       `json:"lastName,omitempty"`
	Email        string       `json:"email,omitempty"`
	Associations Associations `json:"associations"`
}

// Name falls back from the display name to first/last and then the email.
func (s Salesperson) Name() string {
	if n := strings.TrimSpace(s.DisplayName); n != "" {
		return n
	}
	if n := strings.TrimSpace(s.FirstName + " " + s.LastName); n != "" {
		return n
	}
	return s.Email
}
