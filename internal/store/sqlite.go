package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trackd/internal/model"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
	q  dbtx
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	site_key   TEXT NOT NULL UNIQUE,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL,
	key        TEXT NOT NULL UNIQUE,
	is_active  INTEGER NOT NULL DEFAULT 1,
	last_used  DATETIME,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS visitors (
	id                TEXT PRIMARY KEY,
	site_id           TEXT NOT NULL REFERENCES sites(id),
	visitor_id        TEXT NOT NULL,
	first_seen        DATETIME NOT NULL,
	last_seen         DATETIME NOT NULL,
	ip_address        TEXT NOT NULL DEFAULT '',
	user_agent        TEXT NOT NULL DEFAULT '',
	referrer          TEXT NOT NULL DEFAULT '',
	browser_name      TEXT NOT NULL DEFAULT '',
	browser_version   TEXT NOT NULL DEFAULT '',
	os_name           TEXT NOT NULL DEFAULT '',
	device_type       TEXT NOT NULL DEFAULT '',
	screen_resolution TEXT NOT NULL DEFAULT '',
	timezone          TEXT NOT NULL DEFAULT '',
	language          TEXT NOT NULL DEFAULT '',
	is_identified     INTEGER NOT NULL DEFAULT 0,
	matched_via       TEXT NOT NULL DEFAULT '',
	utm_source        TEXT NOT NULL DEFAULT '',
	utm_medium        TEXT NOT NULL DEFAULT '',
	utm_campaign      TEXT NOT NULL DEFAULT '',
	utm_term          TEXT NOT NULL DEFAULT '',
	utm_content       TEXT NOT NULL DEFAULT '',
	UNIQUE (site_id, visitor_id)
);

CREATE TABLE IF NOT EXISTS enrichment_data (
	id                   TEXT PRIMARY KEY,
	site_id              TEXT NOT NULL REFERENCES sites(id),
	email                TEXT NOT NULL,
	first_name           TEXT NOT NULL DEFAULT '',
	last_name            TEXT NOT NULL DEFAULT '',
	phone                TEXT NOT NULL DEFAULT '',
	linkedin_url         TEXT NOT NULL DEFAULT '',
	facebook_url         TEXT NOT NULL DEFAULT '',
	twitter_url          TEXT NOT NULL DEFAULT '',
	company              TEXT NOT NULL DEFAULT '',
	job_title            TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	ip_addresses         TEXT NOT NULL DEFAULT '[]',
	phone_numbers        TEXT NOT NULL DEFAULT '[]',
	user_agents          TEXT NOT NULL DEFAULT '[]',
	browser_fingerprints TEXT NOT NULL DEFAULT '[]',
	source               TEXT NOT NULL DEFAULT 'csv_upload',
	extra_data           TEXT NOT NULL DEFAULT '{}',
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL,
	UNIQUE (site_id, email)
);

CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	site_id       TEXT NOT NULL REFERENCES sites(id),
	visitor_id    TEXT UNIQUE REFERENCES visitors(id),
	enrichment_id TEXT REFERENCES enrichment_data(id),
	email         TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	linkedin_url  TEXT NOT NULL DEFAULT '',
	facebook_url  TEXT NOT NULL DEFAULT '',
	extra_data    TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE (site_id, email)
);

CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	site_id      TEXT NOT NULL REFERENCES sites(id),
	visitor_id   TEXT NOT NULL REFERENCES visitors(id),
	event_type   TEXT NOT NULL,
	event_name   TEXT NOT NULL DEFAULT '',
	page_url     TEXT NOT NULL DEFAULT '',
	page_title   TEXT NOT NULL DEFAULT '',
	referrer     TEXT NOT NULL DEFAULT '',
	event_data   TEXT NOT NULL DEFAULT '{}',
	utm_source   TEXT NOT NULL DEFAULT '',
	utm_medium   TEXT NOT NULL DEFAULT '',
	utm_campaign TEXT NOT NULL DEFAULT '',
	utm_term     TEXT NOT NULL DEFAULT '',
	utm_content  TEXT NOT NULL DEFAULT '',
	session_id   TEXT NOT NULL DEFAULT '',
	timestamp    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversion_goals (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL,
	event_type TEXT NOT NULL,
	conditions TEXT NOT NULL DEFAULT '{}',
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visitors_site_last_seen ON visitors(site_id, last_seen);
CREATE INDEX IF NOT EXISTS idx_enrichment_site_created ON enrichment_data(site_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_contacts_site ON contacts(site_id);
CREATE INDEX IF NOT EXISTS idx_contacts_enrichment ON contacts(enrichment_id);
CREATE INDEX IF NOT EXISTS idx_events_site_ts ON events(site_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_visitor_ts ON events(visitor_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_goals_site ON conversion_goals(site_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx begins a transaction and runs fn against a store bound to it.
// A store already inside a transaction reuses it.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&SQLiteStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Sites & API keys ---

func (s *SQLiteStore) CreateSite(ctx context.Context, site *model.Site) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sites (`+siteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		site.ID, site.Name, site.Domain, site.SiteKey, site.IsActive, site.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert site")
}

func (s *SQLiteStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site := &model.Site{}
	if err := row.Scan(siteDests(site)...); err != nil {
		return nil, noRows(err, "sqlite: get site")
	}
	return site, nil
}

func (s *SQLiteStore) GetSiteByKey(ctx context.Context, siteKey string) (*model.Site, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE site_key = ?`, siteKey)
	site := &model.Site{}
	if err := row.Scan(siteDests(site)...); err != nil {
		return nil, noRows(err, "sqlite: get site by key")
	}
	return site, nil
}

func (s *SQLiteStore) ListSites(ctx context.Context, activeOnly bool) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at, id`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sites")
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var site model.Site
		if err := rows.Scan(siteDests(&site)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list sites")
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.SiteID, k.Name, k.Key, k.IsActive, k.LastUsed, k.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert api key")
}

func (s *SQLiteStore) GetAPIKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key = ?`, secret)
	k := &model.APIKey{}
	if err := row.Scan(apiKeyDests(k)...); err != nil {
		return nil, noRows(err, "sqlite: get api key")
	}
	return k, nil
}

func (s *SQLiteStore) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `UPDATE api_keys SET last_used = ? WHERE id = ?`, usedAt, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch api key %s", id)
	}
	return checkRowsAffected(res, "api key", id)
}

// --- Visitors ---

func (s *SQLiteStore) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = ?`, id)
	v := &model.Visitor{}
	if err := row.Scan(visitorDests(v)...); err != nil {
		return nil, noRows(err, "sqlite: get visitor")
	}
	return v, nil
}

func (s *SQLiteStore) FindVisitor(ctx context.Context, siteID, visitorID string) (*model.Visitor, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+visitorColumns+` FROM visitors WHERE site_id = ? AND visitor_id = ?`,
		siteID, visitorID,
	)
	v := &model.Visitor{}
	if err := row.Scan(visitorDests(v)...); err != nil {
		return nil, noRows(err, "sqlite: find visitor")
	}
	return v, nil
}

func (s *SQLiteStore) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO visitors (`+visitorColumns+`) VALUES (`+placeholders(22)+`)`,
		visitorArgs(v)...,
	)
	return eris.Wrap(err, "sqlite: insert visitor")
}

func (s *SQLiteStore) UpdateVisitor(ctx context.Context, v *model.Visitor) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE visitors SET
			last_seen = ?, ip_address = ?, user_agent = ?, referrer = ?,
			browser_name = ?, browser_version = ?, os_name = ?, device_type = ?,
			screen_resolution = ?, timezone = ?, language = ?,
			is_identified = ?, matched_via = ?
		WHERE id = ?`,
		v.LastSeen, v.IPAddress, v.UserAgent, v.Referrer,
		v.BrowserName, v.BrowserVersion, v.OSName, v.DeviceType,
		v.ScreenResolution, v.Timezone, v.Language,
		v.IsIdentified, v.MatchedVia,
		v.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update visitor %s", v.ID)
	}
	return checkRowsAffected(res, "visitor", v.ID)
}

func (s *SQLiteStore) ListVisitors(ctx context.Context, f VisitorFilter) ([]model.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitors WHERE site_id = ?`
	args := []any{f.SiteID}
	if f.Identified != nil {
		query += ` AND is_identified = ?`
		args = append(args, *f.Identified)
	}
	query += ` ORDER BY last_seen DESC, id` + limitOffset(f.Limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list visitors")
	}
	defer rows.Close()

	var visitors []model.Visitor
	for rows.Next() {
		var v model.Visitor
		if err := rows.Scan(visitorDests(&v)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan visitor")
		}
		visitors = append(visitors, v)
	}
	return visitors, eris.Wrap(rows.Err(), "sqlite: list visitors")
}

// --- Enrichment ---

func (s *SQLiteStore) GetEnrichment(ctx context.Context, id string) (*model.EnrichmentData, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+enrichmentColumns+` FROM enrichment_data WHERE id = ?`, id)
	e, err := scanEnrichment(row)
	if err != nil {
		return nil, noRows(err, "sqlite: get enrichment")
	}
	return e, nil
}

func (s *SQLiteStore) FindEnrichmentByEmail(ctx context.Context, siteID, email string) (*model.EnrichmentData, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE site_id = ? AND email = ?`,
		siteID, model.NormalizeEmail(email),
	)
	e, err := scanEnrichment(row)
	if err != nil {
		return nil, noRows(err, "sqlite: find enrichment by email")
	}
	return e, nil
}

func (s *SQLiteStore) ListEnrichment(ctx context.Context, siteID string) ([]model.EnrichmentData, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE site_id = ? ORDER BY created_at, id`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list enrichment")
	}
	defer rows.Close()

	var records []model.EnrichmentData
	for rows.Next() {
		e, err := scanEnrichment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enrichment")
		}
		records = append(records, *e)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list enrichment")
}

func (s *SQLiteStore) CreateEnrichment(ctx context.Context, e *model.EnrichmentData) error {
	args, err := enrichmentArgs(e)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO enrichment_data (`+enrichmentColumns+`) VALUES (`+placeholders(20)+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: insert enrichment")
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, e *model.EnrichmentData) error {
	args, err := enrichmentArgs(e)
	if err != nil {
		return err
	}
	// enrichmentArgs order: id first, created_at second to last, updated_at last.
	set := args[1 : len(args)-2]
	res, err := s.q.ExecContext(ctx,
		`UPDATE enrichment_data SET
			site_id = ?, email = ?, first_name = ?, last_name = ?, phone = ?,
			linkedin_url = ?, facebook_url = ?, twitter_url = ?,
			company = ?, job_title = ?, location = ?,
			ip_addresses = ?, phone_numbers = ?, user_agents = ?, browser_fingerprints = ?,
			source = ?, extra_data = ?, updated_at = ?
		WHERE id = ?`,
		append(append(set, e.UpdatedAt), e.ID)...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", e.ID)
	}
	return checkRowsAffected(res, "enrichment", e.ID)
}

func (s *SQLiteStore) DeleteEnrichment(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM enrichment_data WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete enrichment %s", id)
	}
	return checkRowsAffected(res, "enrichment", id)
}

// --- Contacts ---

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if err != nil {
		return nil, noRows(err, "sqlite: get contact")
	}
	return c, nil
}

func (s *SQLiteStore) FindContactByEmail(ctx context.Context, siteID, email string) (*model.Contact, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE site_id = ? AND email = ?`,
		siteID, model.NormalizeEmail(email),
	)
	c, err := scanContact(row)
	if err != nil {
		return nil, noRows(err, "sqlite: find contact by email")
	}
	return c, nil
}

func (s *SQLiteStore) FindContactByVisitor(ctx context.Context, visitorID string) (*model.Contact, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE visitor_id = ?`, visitorID)
	c, err := scanContact(row)
	if err != nil {
		return nil, noRows(err, "sqlite: find contact by visitor")
	}
	return c, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, siteID string, limit, offset int) ([]model.Contact, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE site_id = ?
		ORDER BY created_at DESC, id`+limitOffset(limit, offset),
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: list contacts")
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	args, err := contactArgs(c)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES (`+placeholders(12)+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: insert contact")
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	extra, err := encodeJSON(c.ExtraData)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE contacts SET
			visitor_id = ?, enrichment_id = ?, email = ?, name = ?, phone = ?,
			linkedin_url = ?, facebook_url = ?, extra_data = ?, updated_at = ?
		WHERE id = ?`,
		nullable(c.VisitorID), nullable(c.EnrichmentID), c.Email, c.Name, c.Phone,
		c.LinkedInURL, c.FacebookURL, extra, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %s", c.ID)
	}
	return checkRowsAffected(res, "contact", c.ID)
}

func (s *SQLiteStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete contact %s", id)
	}
	return checkRowsAffected(res, "contact", id)
}

func (s *SQLiteStore) CountContactsByEnrichment(ctx context.Context, enrichmentID string) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE enrichment_id = ?`, enrichmentID,
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count contacts by enrichment")
}

// --- Events ---

func (s *SQLiteStore) CreateEvent(ctx context.Context, e *model.Event) error {
	args, err := eventArgs(e)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (`+placeholders(16)+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: insert event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE site_id = ?`
	args := []any{f.SiteID}
	if f.VisitorID != "" {
		query += ` AND visitor_id = ?`
		args = append(args, f.VisitorID)
	}
	if f.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, f.EventType)
	}
	query += ` ORDER BY timestamp DESC, id` + limitOffset(f.Limit, f.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		events = append(events, *e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events")
}

func (s *SQLiteStore) LatestIdentifyEvent(ctx context.Context, visitorID string) (*model.Event, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE visitor_id = ? AND event_type = ?
			AND json_extract(event_data, '$.event_name') = 'identify'
		ORDER BY timestamp DESC, id DESC LIMIT 1`,
		visitorID, model.EventCustom,
	)
	e, err := scanEvent(row)
	if err != nil {
		return nil, noRows(err, "sqlite: latest identify event")
	}
	return e, nil
}

// --- Conversion goals ---

func (s *SQLiteStore) CreateGoal(ctx context.Context, g *model.ConversionGoal) error {
	args, err := goalArgs(g)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO conversion_goals (`+goalColumns+`) VALUES (`+placeholders(7)+`)`,
		args...,
	)
	return eris.Wrap(err, "sqlite: insert goal")
}

func (s *SQLiteStore) ListGoals(ctx context.Context, siteID string) ([]model.ConversionGoal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM conversion_goals WHERE site_id = ? ORDER BY created_at, id`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list goals")
	}
	defer rows.Close()

	var goals []model.ConversionGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan goal")
		}
		goals = append(goals, *g)
	}
	return goals, eris.Wrap(rows.Err(), "sqlite: list goals")
}

func (s *SQLiteStore) DeleteGoal(ctx context.Context, siteID, id string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM conversion_goals WHERE site_id = ? AND id = ?`, siteID, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete goal %s", id)
	}
	return checkRowsAffected(res, "goal", id)
}

// --- Aggregates ---

func (s *SQLiteStore) SiteStats(ctx context.Context, siteID string) (*model.SiteStats, error) {
	stats := &model.SiteStats{SiteID: siteID, EventsByType: map[string]int64{}}

	err := s.q.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM visitors WHERE site_id = ?),
			(SELECT COUNT(*) FROM visitors WHERE site_id = ? AND is_identified = 1),
			(SELECT COUNT(*) FROM contacts WHERE site_id = ?),
			(SELECT COUNT(*) FROM events WHERE site_id = ?)`,
		siteID, siteID, siteID, siteID,
	).Scan(&stats.TotalVisitors, &stats.IdentifiedVisitors, &stats.TotalContacts, &stats.TotalEvents)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: site stats")
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT event_type, COUNT(*) FROM events WHERE site_id = ? GROUP BY event_type`, siteID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: site stats by type")
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event count")
		}
		stats.EventsByType[t] = n
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: site stats by type")
}

// --- helpers ---

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func limitOffset(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	if offset > 0 {
		if limit <= 0 {
			b.WriteString(" LIMIT -1")
		}
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(offset))
	}
	return b.String()
}

func noRows(err error, msg string) error {
	if eris.Is(err, sql.ErrNoRows) {
		return nil
	}
	return eris.Wrap(err, msg)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}
