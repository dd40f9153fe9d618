package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trackd/internal/db"
	"github.com/sells-group/trackd/internal/model"
)

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
	inTx bool
}

// NewPostgres connects a pgx pool to the given database URL.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL UNIQUE,
	site_key   TEXT NOT NULL UNIQUE,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL,
	key        TEXT NOT NULL UNIQUE,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	last_used  TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS visitors (
	id                TEXT PRIMARY KEY,
	site_id           TEXT NOT NULL REFERENCES sites(id),
	visitor_id        TEXT NOT NULL,
	first_seen        TIMESTAMPTZ NOT NULL,
	last_seen         TIMESTAMPTZ NOT NULL,
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
	is_identified     BOOLEAN NOT NULL DEFAULT FALSE,
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
	ip_addresses         JSONB NOT NULL DEFAULT '[]',
	phone_numbers        JSONB NOT NULL DEFAULT '[]',
	user_agents          JSONB NOT NULL DEFAULT '[]',
	browser_fingerprints JSONB NOT NULL DEFAULT '[]',
	source               TEXT NOT NULL DEFAULT 'csv_upload',
	extra_data           JSONB NOT NULL DEFAULT '{}',
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL,
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
	extra_data    JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
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
	event_data   JSONB NOT NULL DEFAULT '{}',
	utm_source   TEXT NOT NULL DEFAULT '',
	utm_medium   TEXT NOT NULL DEFAULT '',
	utm_campaign TEXT NOT NULL DEFAULT '',
	utm_term     TEXT NOT NULL DEFAULT '',
	utm_content  TEXT NOT NULL DEFAULT '',
	session_id   TEXT NOT NULL DEFAULT '',
	timestamp    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS conversion_goals (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL REFERENCES sites(id),
	name       TEXT NOT NULL,
	event_type TEXT NOT NULL,
	conditions JSONB NOT NULL DEFAULT '{}',
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_visitors_site_last_seen ON visitors(site_id, last_seen);
CREATE INDEX IF NOT EXISTS idx_enrichment_site_created ON enrichment_data(site_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_contacts_site ON contacts(site_id);
CREATE INDEX IF NOT EXISTS idx_contacts_enrichment ON contacts(enrichment_id);
CREATE INDEX IF NOT EXISTS idx_events_site_ts ON events(site_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_visitor_ts ON events(visitor_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_identify ON events(visitor_id, timestamp)
	WHERE event_type = 'custom' AND event_data->>'event_name' = 'identify';
CREATE INDEX IF NOT EXISTS idx_goals_site ON conversion_goals(site_id);
`

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (p *PostgresStore) Close() error {
	if pool, ok := p.pool.(*pgxpool.Pool); ok {
		pool.Close()
	}
	return nil
}

// WithTx begins a transaction and runs fn against a store bound to it.
// A store already inside a transaction reuses it.
func (p *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if p.inTx {
		return fn(p)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&PostgresStore{pool: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// --- Sites & API keys ---

func (p *PostgresStore) CreateSite(ctx context.Context, site *model.Site) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sites (`+siteColumns+`) VALUES (`+pgPlaceholders(6)+`)`,
		site.ID, site.Name, site.Domain, site.SiteKey, site.IsActive, site.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert site")
}

func (p *PostgresStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	site := &model.Site{}
	if err := row.Scan(siteDests(site)...); err != nil {
		return nil, pgNoRows(err, "postgres: get site")
	}
	return site, nil
}

func (p *PostgresStore) GetSiteByKey(ctx context.Context, siteKey string) (*model.Site, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE site_key = $1`, siteKey)
	site := &model.Site{}
	if err := row.Scan(siteDests(site)...); err != nil {
		return nil, pgNoRows(err, "postgres: get site by key")
	}
	return site, nil
}

func (p *PostgresStore) ListSites(ctx context.Context, activeOnly bool) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at, id`
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sites")
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		var site model.Site
		if err := rows.Scan(siteDests(&site)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan site")
		}
		sites = append(sites, site)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list sites")
}

func (p *PostgresStore) CreateAPIKey(ctx context.Context, k *model.APIKey) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (`+pgPlaceholders(7)+`)`,
		k.ID, k.SiteID, k.Name, k.Key, k.IsActive, k.LastUsed, k.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert api key")
}

func (p *PostgresStore) GetAPIKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key = $1`, secret)
	k := &model.APIKey{}
	if err := row.Scan(apiKeyDests(k)...); err != nil {
		return nil, pgNoRows(err, "postgres: get api key")
	}
	return k, nil
}

func (p *PostgresStore) TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE api_keys SET last_used = $1 WHERE id = $2`, usedAt, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch api key %s", id)
	}
	return checkTag(tag, "api key", id)
}

// --- Visitors ---

func (p *PostgresStore) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = $1`, id)
	v := &model.Visitor{}
	if err := row.Scan(visitorDests(v)...); err != nil {
		return nil, pgNoRows(err, "postgres: get visitor")
	}
	return v, nil
}

func (p *PostgresStore) FindVisitor(ctx context.Context, siteID, visitorID string) (*model.Visitor, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+visitorColumns+` FROM visitors WHERE site_id = $1 AND visitor_id = $2`,
		siteID, visitorID,
	)
	v := &model.Visitor{}
	if err := row.Scan(visitorDests(v)...); err != nil {
		return nil, pgNoRows(err, "postgres: find visitor")
	}
	return v, nil
}

func (p *PostgresStore) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO visitors (`+visitorColumns+`) VALUES (`+pgPlaceholders(22)+`)`,
		visitorArgs(v)...,
	)
	return eris.Wrap(err, "postgres: insert visitor")
}

func (p *PostgresStore) UpdateVisitor(ctx context.Context, v *model.Visitor) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE visitors SET
			last_seen = $1, ip_address = $2, user_agent = $3, referrer = $4,
			browser_name = $5, browser_version = $6, os_name = $7, device_type = $8,
			screen_resolution = $9, timezone = $10, language = $11,
			is_identified = $12, matched_via = $13
		WHERE id = $14`,
		v.LastSeen, v.IPAddress, v.UserAgent, v.Referrer,
		v.BrowserName, v.BrowserVersion, v.OSName, v.DeviceType,
		v.ScreenResolution, v.Timezone, v.Language,
		v.IsIdentified, v.MatchedVia,
		v.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update visitor %s", v.ID)
	}
	return checkTag(tag, "visitor", v.ID)
}

func (p *PostgresStore) ListVisitors(ctx context.Context, f VisitorFilter) ([]model.Visitor, error) {
	query := `SELECT ` + visitorColumns + ` FROM visitors WHERE site_id = $1`
	args := []any{f.SiteID}
	if f.Identified != nil {
		args = append(args, *f.Identified)
		query += fmt.Sprintf(` AND is_identified = $%d`, len(args))
	}
	query += ` ORDER BY last_seen DESC, id` + pgLimitOffset(f.Limit, f.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list visitors")
	}
	defer rows.Close()

	var visitors []model.Visitor
	for rows.Next() {
		var v model.Visitor
		if err := rows.Scan(visitorDests(&v)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan visitor")
		}
		visitors = append(visitors, v)
	}
	return visitors, eris.Wrap(rows.Err(), "postgres: list visitors")
}

// --- Enrichment ---

func (p *PostgresStore) GetEnrichment(ctx context.Context, id string) (*model.EnrichmentData, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+enrichmentColumns+` FROM enrichment_data WHERE id = $1`, id)
	e, err := scanEnrichment(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: get enrichment")
	}
	return e, nil
}

func (p *PostgresStore) FindEnrichmentByEmail(ctx context.Context, siteID, email string) (*model.EnrichmentData, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE site_id = $1 AND email = $2`,
		siteID, model.NormalizeEmail(email),
	)
	e, err := scanEnrichment(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: find enrichment by email")
	}
	return e, nil
}

func (p *PostgresStore) ListEnrichment(ctx context.Context, siteID string) ([]model.EnrichmentData, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE site_id = $1 ORDER BY created_at, id`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list enrichment")
	}
	defer rows.Close()

	var records []model.EnrichmentData
	for rows.Next() {
		e, err := scanEnrichment(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan enrichment")
		}
		records = append(records, *e)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list enrichment")
}

func (p *PostgresStore) CreateEnrichment(ctx context.Context, e *model.EnrichmentData) error {
	args, err := enrichmentArgs(e)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO enrichment_data (`+enrichmentColumns+`) VALUES (`+pgPlaceholders(20)+`)`,
		args...,
	)
	return eris.Wrap(err, "postgres: insert enrichment")
}

func (p *PostgresStore) UpdateEnrichment(ctx context.Context, e *model.EnrichmentData) error {
	args, err := enrichmentArgs(e)
	if err != nil {
		return err
	}
	set := args[1 : len(args)-2]
	tag, err := p.pool.Exec(ctx,
		`UPDATE enrichment_data SET
			site_id = $1, email = $2, first_name = $3, last_name = $4, phone = $5,
			linkedin_url = $6, facebook_url = $7, twitter_url = $8,
			company = $9, job_title = $10, location = $11,
			ip_addresses = $12, phone_numbers = $13, user_agents = $14, browser_fingerprints = $15,
			source = $16, extra_data = $17, updated_at = $18
		WHERE id = $19`,
		append(append(set, e.UpdatedAt), e.ID)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", e.ID)
	}
	return checkTag(tag, "enrichment", e.ID)
}

func (p *PostgresStore) DeleteEnrichment(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM enrichment_data WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete enrichment %s", id)
	}
	return checkTag(tag, "enrichment", id)
}

// --- Contacts ---

func (p *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContact(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: get contact")
	}
	return c, nil
}

func (p *PostgresStore) FindContactByEmail(ctx context.Context, siteID, email string) (*model.Contact, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE site_id = $1 AND email = $2`,
		siteID, model.NormalizeEmail(email),
	)
	c, err := scanContact(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: find contact by email")
	}
	return c, nil
}

func (p *PostgresStore) FindContactByVisitor(ctx context.Context, visitorID string) (*model.Contact, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE visitor_id = $1`, visitorID)
	c, err := scanContact(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: find contact by visitor")
	}
	return c, nil
}

func (p *PostgresStore) ListContacts(ctx context.Context, siteID string, limit, offset int) ([]model.Contact, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE site_id = $1
		ORDER BY created_at DESC, id`+pgLimitOffset(limit, offset),
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "postgres: list contacts")
}

func (p *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	args, err := contactArgs(c)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO contacts (`+contactColumns+`) VALUES (`+pgPlaceholders(12)+`)`,
		args...,
	)
	return eris.Wrap(err, "postgres: insert contact")
}

func (p *PostgresStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	extra, err := encodeJSON(c.ExtraData)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE contacts SET
			visitor_id = $1, enrichment_id = $2, email = $3, name = $4, phone = $5,
			linkedin_url = $6, facebook_url = $7, extra_data = $8, updated_at = $9
		WHERE id = $10`,
		nullable(c.VisitorID), nullable(c.EnrichmentID), c.Email, c.Name, c.Phone,
		c.LinkedInURL, c.FacebookURL, extra, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %s", c.ID)
	}
	return checkTag(tag, "contact", c.ID)
}

func (p *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete contact %s", id)
	}
	return checkTag(tag, "contact", id)
}

func (p *PostgresStore) CountContactsByEnrichment(ctx context.Context, enrichmentID string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contacts WHERE enrichment_id = $1`, enrichmentID,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count contacts by enrichment")
}

// --- Events ---

func (p *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	args, err := eventArgs(e)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (`+pgPlaceholders(16)+`)`,
		args...,
	)
	return eris.Wrap(err, "postgres: insert event")
}

func (p *PostgresStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE site_id = $1`
	args := []any{f.SiteID}
	if f.VisitorID != "" {
		args = append(args, f.VisitorID)
		query += fmt.Sprintf(` AND visitor_id = $%d`, len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		query += fmt.Sprintf(` AND event_type = $%d`, len(args))
	}
	query += ` ORDER BY timestamp DESC, id` + pgLimitOffset(f.Limit, f.Offset)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, *e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events")
}

func (p *PostgresStore) LatestIdentifyEvent(ctx context.Context, visitorID string) (*model.Event, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE visitor_id = $1 AND event_type = $2
			AND event_data->>'event_name' = 'identify'
		ORDER BY timestamp DESC, id DESC LIMIT 1`,
		visitorID, model.EventCustom,
	)
	e, err := scanEvent(row)
	if err != nil {
		return nil, pgNoRows(err, "postgres: latest identify event")
	}
	return e, nil
}

// --- Conversion goals ---

func (p *PostgresStore) CreateGoal(ctx context.Context, g *model.ConversionGoal) error {
	args, err := goalArgs(g)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO conversion_goals (`+goalColumns+`) VALUES (`+pgPlaceholders(7)+`)`,
		args...,
	)
	return eris.Wrap(err, "postgres: insert goal")
}

func (p *PostgresStore) ListGoals(ctx context.Context, siteID string) ([]model.ConversionGoal, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+goalColumns+` FROM conversion_goals WHERE site_id = $1 ORDER BY created_at, id`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list goals")
	}
	defer rows.Close()

	var goals []model.ConversionGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan goal")
		}
		goals = append(goals, *g)
	}
	return goals, eris.Wrap(rows.Err(), "postgres: list goals")
}

func (p *PostgresStore) DeleteGoal(ctx context.Context, siteID, id string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM conversion_goals WHERE site_id = $1 AND id = $2`, siteID, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete goal %s", id)
	}
	return checkTag(tag, "goal", id)
}

// --- Aggregates ---

func (p *PostgresStore) SiteStats(ctx context.Context, siteID string) (*model.SiteStats, error) {
	stats := &model.SiteStats{SiteID: siteID, EventsByType: map[string]int64{}}

	err := p.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM visitors WHERE site_id = $1),
			(SELECT COUNT(*) FROM visitors WHERE site_id = $1 AND is_identified),
			(SELECT COUNT(*) FROM contacts WHERE site_id = $1),
			(SELECT COUNT(*) FROM events WHERE site_id = $1)`,
		siteID,
	).Scan(&stats.TotalVisitors, &stats.IdentifiedVisitors, &stats.TotalContacts, &stats.TotalEvents)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: site stats")
	}

	rows, err := p.pool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM events WHERE site_id = $1 GROUP BY event_type`, siteID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: site stats by type")
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event count")
		}
		stats.EventsByType[t] = n
	}
	return stats, eris.Wrap(rows.Err(), "postgres: site stats by type")
}

// --- helpers ---

func pgPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func pgLimitOffset(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func pgNoRows(err error, msg string) error {
	if eris.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return eris.Wrap(err, msg)
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: %s %s not found", entity, id)
	}
	return nil
}
