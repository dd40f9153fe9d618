package model

import (
	"strings"
	"time"
)

// Enrichment record provenance.
const (
	SourceCSVUpload      = "csv_upload"
	SourceIdentification = "visitor_identification"
	SourceAPI            = "api"
	SourceManual         = "manual"
)

// EnrichmentData is the match target: one known person per (site, email),
// carrying identity fields plus four append-only signal sets accumulated
// from CSV uploads and identified visitors. Signal sets only grow (members
// are added if absent, never removed) except via the contact-deletion
// cascade.
type EnrichmentData struct {
	ID     string `json:"id" db:"id"`
	SiteID string `json:"site_id" db:"site_id"`

	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	Phone     string `json:"phone,omitempty" db:"phone"`

	LinkedInURL string `json:"linkedin_url,omitempty" db:"linkedin_url"`
	FacebookURL string `json:"facebook_url,omitempty" db:"facebook_url"`
	TwitterURL  string `json:"twitter_url,omitempty" db:"twitter_url"`

	Company  string `json:"company,omitempty" db:"company"`
	JobTitle string `json:"job_title,omitempty" db:"job_title"`
	Location string `json:"location,omitempty" db:"location"`

	// Signal sets for matching (JSON columns).
	IPAddresses         []string      `json:"ip_addresses"`
	PhoneNumbers        []string      `json:"phone_numbers"`
	UserAgents          []string      `json:"user_agents"`
	BrowserFingerprints []Fingerprint `json:"browser_fingerprints"`

	Source    string    `json:"source" db:"source"`
	ExtraData ExtraData `json:"extra_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name.
func (e *EnrichmentData) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(e.FirstName) + " " + strings.TrimSpace(e.LastName))
}

// AddIPAddress appends ip to the IP signal set if absent.
// Reports whether the set changed.
func (e *EnrichmentData) AddIPAddress(ip string) bool {
	if ip == "" || containsString(e.IPAddresses, ip) {
		return false
	}
	e.IPAddresses = append(e.IPAddresses, ip)
	return true
}

// AddPhoneNumber appends phone to the phone signal set if absent.
func (e *EnrichmentData) AddPhoneNumber(phone string) bool {
	if phone == "" || containsString(e.PhoneNumbers, phone) {
		return false
	}
	e.PhoneNumbers = append(e.PhoneNumbers, phone)
	return true
}

// AddUserAgent appends ua to the user-agent signal set if absent.
func (e *EnrichmentData) AddUserAgent(ua string) bool {
	if ua == "" || containsString(e.UserAgents, ua) {
		return false
	}
	e.UserAgents = append(e.UserAgents, ua)
	return true
}

// AddFingerprint appends fp to the fingerprint signal set if no stored tuple
// is identical. Dedup compares the full stored tuple, not just the four
// matching fields, so refinements (new timezone, new language) accumulate.
func (e *EnrichmentData) AddFingerprint(fp Fingerprint) bool {
	if !fp.Usable() {
		return false
	}
	for _, stored := range e.BrowserFingerprints {
		if stored == fp {
			return false
		}
	}
	e.BrowserFingerprints = append(e.BrowserFingerprints, fp)
	return true
}

// NormalizeEmail canonicalizes an email for (site, email) keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
