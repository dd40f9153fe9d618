package model

import "time"

// How a visitor was linked to a contact. The zero value means not matched.
const (
	MatchedViaFingerprint = "browser_fingerprint"
	MatchedViaUserAgent   = "user_agent"
	MatchedViaIP          = "ip_address"
	MatchedViaEmail       = "email"
)

// Fingerprint is the browser fingerprint tuple collected by the pixel and
// stored on enrichment records for future matching.
type Fingerprint struct {
	BrowserName      string `json:"browser_name,omitempty"`
	OSName           string `json:"os_name,omitempty"`
	DeviceType       string `json:"device_type,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	Language         string `json:"language,omitempty"`
}

// Usable reports whether the fingerprint carries enough signal to match on.
func (f Fingerprint) Usable() bool {
	return f.BrowserName != "" && f.OSName != ""
}

// Matches compares the four fields that form the matching tuple. Timezone and
// language are stored but deliberately excluded: they change too often across
// sessions to be reliable discriminators.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.BrowserName == other.BrowserName &&
		f.OSName == other.OSName &&
		f.DeviceType == other.DeviceType &&
		f.ScreenResolution == other.ScreenResolution
}

// UTMParams is one UTM attribution set. Visitors hold the first-touch set,
// events hold the last-touch set.
type UTMParams struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// IsZero reports whether no UTM field is set.
func (u UTMParams) IsZero() bool {
	return u == UTMParams{}
}

// Visitor is an anonymous actor, keyed by (site, visitor_id) where visitor_id
// comes from the client-side cookie/fingerprint. Created on first event and
// mutated on every subsequent one; never deleted by normal flow.
type Visitor struct {
	ID        string    `json:"id" db:"id"`
	SiteID    string    `json:"site_id" db:"site_id"`
	VisitorID string    `json:"visitor_id" db:"visitor_id"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`

	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`
	Referrer  string `json:"referrer,omitempty" db:"referrer"`

	BrowserName      string `json:"browser_name,omitempty" db:"browser_name"`
	BrowserVersion   string `json:"browser_version,omitempty" db:"browser_version"`
	OSName           string `json:"os_name,omitempty" db:"os_name"`
	DeviceType       string `json:"device_type,omitempty" db:"device_type"`
	ScreenResolution string `json:"screen_resolution,omitempty" db:"screen_resolution"`
	Timezone         string `json:"timezone,omitempty" db:"timezone"`
	Language         string `json:"language,omitempty" db:"language"`

	IsIdentified bool   `json:"is_identified" db:"is_identified"`
	MatchedVia   string `json:"matched_via,omitempty" db:"matched_via"`

	// First-touch attribution: written at creation, never updated.
	UTM UTMParams `json:"utm"`
}

// Fingerprint assembles the visitor's current fingerprint tuple.
func (v *Visitor) Fingerprint() Fingerprint {
	return Fingerprint{
		BrowserName:      v.BrowserName,
		OSName:           v.OSName,
		DeviceType:       v.DeviceType,
		ScreenResolution: v.ScreenResolution,
		Timezone:         v.Timezone,
		Language:         v.Language,
	}
}

// ApplyFingerprint merges incoming fingerprint fields, keeping existing
// values wherever the incoming value is empty. The fingerprint accumulates
// toward the most complete known signal set and is never blanked out.
func (v *Visitor) ApplyFingerprint(fp Fingerprint) {
	v.BrowserName = firstNonEmpty(fp.BrowserName, v.BrowserName)
	v.OSName = firstNonEmpty(fp.OSName, v.OSName)
	v.DeviceType = firstNonEmpty(fp.DeviceType, v.DeviceType)
	v.ScreenResolution = firstNonEmpty(fp.ScreenResolution, v.ScreenResolution)
	v.Timezone = firstNonEmpty(fp.Timezone, v.Timezone)
	v.Language = firstNonEmpty(fp.Language, v.Language)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
