package model

import "time"

// ExtraData is a free-form string-keyed bag with shallow merge semantics:
// Merge overwrites by key, one level deep.
type ExtraData map[string]any

// Merge copies every key from other into d, overwriting existing keys.
func (d ExtraData) Merge(other map[string]any) {
	for k, v := range other {
		d[k] = v
	}
}

// Clone returns a shallow copy. A nil map clones to an empty map so callers
// can always merge into the result.
func (d ExtraData) Clone() ExtraData {
	out := make(ExtraData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Contact is an identified person: unique per (site, email), linked to at
// most one Visitor and optionally to the EnrichmentData record supplying its
// enrichment fields.
type Contact struct {
	ID     string `json:"id" db:"id"`
	SiteID string `json:"site_id" db:"site_id"`

	// The visitor currently believed to be this person. Re-linked on
	// conflicting identification (last writer wins).
	VisitorID    string `json:"visitor_id,omitempty" db:"visitor_id"`
	EnrichmentID string `json:"enrichment_id,omitempty" db:"enrichment_id"`

	Email string `json:"email" db:"email"`
	Name  string `json:"name,omitempty" db:"name"`
	Phone string `json:"phone,omitempty" db:"phone"`

	LinkedInURL string `json:"linkedin_url,omitempty" db:"linkedin_url"`
	FacebookURL string `json:"facebook_url,omitempty" db:"facebook_url"`

	ExtraData ExtraData `json:"extra_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
