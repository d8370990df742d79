package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Associations lists the entities a record is related to. Deals may also
// name a primary company explicitly.
type Associations struct {
	Companies        AssociationList `json:"companies,omitempty"`
	Locations        AssociationList `json:"locations,omitempty"`
	Contacts         AssociationList `json:"contacts,omitempty"`
	Salespeople      AssociationList `json:"salespeople,omitempty"`
	Deals            AssociationList `json:"deals,omitempty"`
	PrimaryCompanyID string          `json:"primaryCompanyId,omitempty"`
}

// AssociationRef is one association entry. Stored data holds either a bare
// identifier or a record carrying one; both decode into this type.
type AssociationRef struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	IsPrimary bool   `json:"isPrimary,omitempty"`

	// Malformed marks an entry with no usable identifier.
	Malformed bool `json:"-"`
	blank     bool
}

// Blank reports whether the entry was an empty or whitespace-only string.
func (r AssociationRef) Blank() bool { return r.blank }

func (r *AssociationRef) UnmarshalJSON(data []byte) error {
	*r = AssociationRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		r.Malformed = true
		return nil
	}

	switch data[0] {
	case '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			r.Malformed = true
			return nil
		}
		r.ID = strings.TrimSpace(id)
		r.blank = r.ID == ""
	case '{':
		var rec struct {
			ID        json.RawMessage `json:"id"`
			Name      string          `json:"name"`
			Role      string          `json:"role"`
			IsPrimary bool            `json:"isPrimary"`
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			r.Malformed = true
			return nil
		}
		var id string
		if err := json.Unmarshal(rec.ID, &id); err == nil {
			r.ID = strings.TrimSpace(id)
		}
		r.Name, r.Role, r.IsPrimary = rec.Name, rec.Role, rec.IsPrimary
	}

	if r.ID == "" {
		r.Malformed = true
	}
	return nil
}

// AssociationList decodes from an array of entries or from a single entry.
// Decoding never fails; unusable entries are kept and flagged Malformed so
// they can be counted.
type AssociationList []AssociationRef

func (l *AssociationList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	if data[0] != '[' {
		var ref AssociationRef
		_ = ref.UnmarshalJSON(data)
		*l = AssociationList{ref}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = AssociationList{{Malformed: true}}
		return nil
	}
	out := make(AssociationList, 0, len(raw))
	for _, item := range raw {
		var ref AssociationRef
		_ = ref.UnmarshalJSON(item)
		out = append(out, ref)
	}
	*l = out
	return nil
}

// IDs returns the identifiers of the well-formed entries in order.
func (l AssociationList) IDs() []string {
	ids := make([]string, 0, len(l))
	for _, ref := range l {
		if !ref.Malformed {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

// Find returns the first well-formed entry with the given id.
func (l AssociationList) Find(id string) (AssociationRef, bool) {
	for _, ref := range l {
		if !ref.Malformed && ref.ID == id {
			return ref, true
		}
	}
	return AssociationRef{}, false
}
