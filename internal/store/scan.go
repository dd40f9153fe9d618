package store

import (
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trackd/internal/model"
)

// scannable abstracts sql.Row, sql.Rows, pgx.Row and pgx.Rows so both store
// implementations share one set of scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

const siteColumns = `id, name, domain, site_key, is_active, created_at`

func siteDests(s *model.Site) []any {
	return []any{&s.ID, &s.Name, &s.Domain, &s.SiteKey, &s.IsActive, &s.CreatedAt}
}

const apiKeyColumns = `id, site_id, name, key, is_active, last_used, created_at`

func apiKeyDests(k *model.APIKey) []any {
	return []any{&k.ID, &k.SiteID, &k.Name, &k.Key, &k.IsActive, &k.LastUsed, &k.CreatedAt}
}

const visitorColumns = `id, site_id, visitor_id, first_seen, last_seen,
	ip_address, user_agent, referrer,
	browser_name, browser_version, os_name, device_type, screen_resolution, timezone, language,
	is_identified, matched_via,
	utm_source, utm_medium, utm_campaign, utm_term, utm_content`

func visitorDests(v *model.Visitor) []any {
	return []any{
		&v.ID, &v.SiteID, &v.VisitorID, &v.FirstSeen, &v.LastSeen,
		&v.IPAddress, &v.UserAgent, &v.Referrer,
		&v.BrowserName, &v.BrowserVersion, &v.OSName, &v.DeviceType,
		&v.ScreenResolution, &v.Timezone, &v.Language,
		&v.IsIdentified, &v.MatchedVia,
		&v.UTM.Source, &v.UTM.Medium, &v.UTM.Campaign, &v.UTM.Term, &v.UTM.Content,
	}
}

func visitorArgs(v *model.Visitor) []any {
	return []any{
		v.ID, v.SiteID, v.VisitorID, v.FirstSeen, v.LastSeen,
		v.IPAddress, v.UserAgent, v.Referrer,
		v.BrowserName, v.BrowserVersion, v.OSName, v.DeviceType,
		v.ScreenResolution, v.Timezone, v.Language,
		v.IsIdentified, v.MatchedVia,
		v.UTM.Source, v.UTM.Medium, v.UTM.Campaign, v.UTM.Term, v.UTM.Content,
	}
}

const enrichmentColumns = `id, site_id, email, first_name, last_name, phone,
	linkedin_url, facebook_url, twitter_url, company, job_title, location,
	ip_addresses, phone_numbers, user_agents, browser_fingerprints,
	source, extra_data, created_at, updated_at`

// enrichmentRow carries the JSON columns as raw text between SQL and model.
type enrichmentRow struct {
	ips, phones, uas, fps, extra string
}

func enrichmentDests(e *model.EnrichmentData, raw *enrichmentRow) []any {
	return []any{
		&e.ID, &e.SiteID, &e.Email, &e.FirstName, &e.LastName, &e.Phone,
		&e.LinkedInURL, &e.FacebookURL, &e.TwitterURL,
		&e.Company, &e.JobTitle, &e.Location,
		&raw.ips, &raw.phones, &raw.uas, &raw.fps,
		&e.Source, &raw.extra, &e.CreatedAt, &e.UpdatedAt,
	}
}

func scanEnrichment(row scannable) (*model.EnrichmentData, error) {
	e := &model.EnrichmentData{}
	var raw enrichmentRow
	if err := row.Scan(enrichmentDests(e, &raw)...); err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		src string
		dst any
	}{
		{raw.ips, &e.IPAddresses},
		{raw.phones, &e.PhoneNumbers},
		{raw.uas, &e.UserAgents},
		{raw.fps, &e.BrowserFingerprints},
		{raw.extra, &e.ExtraData},
	} {
		if err := decodeJSON(pair.src, pair.dst); err != nil {
			return nil, eris.Wrap(err, "store: decode enrichment json")
		}
	}
	return e, nil
}

func enrichmentArgs(e *model.EnrichmentData) ([]any, error) {
	ips, err := encodeJSON(e.IPAddresses)
	if err != nil {
		return nil, err
	}
	phones, err := encodeJSON(e.PhoneNumbers)
	if err != nil {
		return nil, err
	}
	uas, err := encodeJSON(e.UserAgents)
	if err != nil {
		return nil, err
	}
	fps, err := encodeJSON(e.BrowserFingerprints)
	if err != nil {
		return nil, err
	}
	extra, err := encodeJSON(e.ExtraData)
	if err != nil {
		return nil, err
	}
	return []any{
		e.ID, e.SiteID, e.Email, e.FirstName, e.LastName, e.Phone,
		e.LinkedInURL, e.FacebookURL, e.TwitterURL,
		e.Company, e.JobTitle, e.Location,
		ips, phones, uas, fps,
		e.Source, extra, e.CreatedAt, e.UpdatedAt,
	}, nil
}

const contactColumns = `id, site_id, visitor_id, enrichment_id, email, name, phone,
	linkedin_url, facebook_url, extra_data, created_at, updated_at`

func scanContact(row scannable) (*model.Contact, error) {
	c := &model.Contact{}
	var visitorID, enrichmentID sql.NullString
	var extra string
	err := row.Scan(
		&c.ID, &c.SiteID, &visitorID, &enrichmentID, &c.Email, &c.Name, &c.Phone,
		&c.LinkedInURL, &c.FacebookURL, &extra, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.VisitorID = visitorID.String
	c.EnrichmentID = enrichmentID.String
	if err := decodeJSON(extra, &c.ExtraData); err != nil {
		return nil, eris.Wrap(err, "store: decode contact extra_data")
	}
	return c, nil
}

func contactArgs(c *model.Contact) ([]any, error) {
	extra, err := encodeJSON(c.ExtraData)
	if err != nil {
		return nil, err
	}
	return []any{
		c.ID, c.SiteID, nullable(c.VisitorID), nullable(c.EnrichmentID),
		c.Email, c.Name, c.Phone, c.LinkedInURL, c.FacebookURL,
		extra, c.CreatedAt, c.UpdatedAt,
	}, nil
}

const eventColumns = `id, site_id, visitor_id, event_type, event_name,
	page_url, page_title, referrer, event_data,
	utm_source, utm_medium, utm_campaign, utm_term, utm_content,
	session_id, timestamp`

func scanEvent(row scannable) (*model.Event, error) {
	e := &model.Event{}
	var data string
	err := row.Scan(
		&e.ID, &e.SiteID, &e.VisitorID, &e.EventType, &e.EventName,
		&e.PageURL, &e.PageTitle, &e.Referrer, &data,
		&e.UTM.Source, &e.UTM.Medium, &e.UTM.Campaign, &e.UTM.Term, &e.UTM.Content,
		&e.SessionID, &e.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(data, &e.EventData); err != nil {
		return nil, eris.Wrap(err, "store: decode event_data")
	}
	return e, nil
}

func eventArgs(e *model.Event) ([]any, error) {
	data, err := encodeJSON(e.EventData)
	if err != nil {
		return nil, err
	}
	return []any{
		e.ID, e.SiteID, e.VisitorID, e.EventType, e.EventName,
		e.PageURL, e.PageTitle, e.Referrer, data,
		e.UTM.Source, e.UTM.Medium, e.UTM.Campaign, e.UTM.Term, e.UTM.Content,
		e.SessionID, e.Timestamp,
	}, nil
}

const goalColumns = `id, site_id, name, event_type, conditions, is_active, created_at`

func scanGoal(row scannable) (*model.ConversionGoal, error) {
	g := &model.ConversionGoal{}
	var conditions string
	err := row.Scan(&g.ID, &g.SiteID, &g.Name, &g.EventType, &conditions, &g.IsActive, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(conditions, &g.Conditions); err != nil {
		return nil, eris.Wrap(err, "store: decode goal conditions")
	}
	return g, nil
}

func goalArgs(g *model.ConversionGoal) ([]any, error) {
	conditions, err := encodeJSON(g.Conditions)
	if err != nil {
		return nil, err
	}
	return []any{g.ID, g.SiteID, g.Name, g.EventType, conditions, g.IsActive, g.CreatedAt}, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: encode json")
	}
	return string(b), nil
}

func decodeJSON(src string, dst any) error {
	if src == "" {
		return nil
	}
	return json.Unmarshal([]byte(src), dst)
}

// nullable maps empty strings to NULL for optional foreign keys, so the
// partial unique index on contacts.visitor_id behaves.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
