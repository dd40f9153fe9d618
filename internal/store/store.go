// Package store persists the tracking domain behind a single interface with
// PostgreSQL and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/sells-group/trackd/internal/model"
)

// VisitorFilter specifies criteria for listing visitors.
type VisitorFilter struct {
	SiteID     string
	Identified *bool
	Limit      int
	Offset     int
}

// EventFilter specifies criteria for listing events.
type EventFilter struct {
	SiteID    string
	VisitorID string
	EventType string
	Limit     int
	Offset    int
}

// Store defines the persistence interface for the tracking pipeline.
// Get/Find methods return (nil, nil) when the row does not exist; only
// storage failures produce errors.
type Store interface {
	// Sites & API keys
	CreateSite(ctx context.Context, s *model.Site) error
	GetSite(ctx context.Context, id string) (*model.Site, error)
	GetSiteByKey(ctx context.Context, siteKey string) (*model.Site, error)
	ListSites(ctx context.Context, activeOnly bool) ([]model.Site, error)
	CreateAPIKey(ctx context.Context, k *model.APIKey) error
	GetAPIKeyBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error

	// Visitors
	GetVisitor(ctx context.Context, id string) (*model.Visitor, error)
	FindVisitor(ctx context.Context, siteID, visitorID string) (*model.Visitor, error)
	CreateVisitor(ctx context.Context, v *model.Visitor) error
	UpdateVisitor(ctx context.Context, v *model.Visitor) error
	ListVisitors(ctx context.Context, f VisitorFilter) ([]model.Visitor, error)

	// Enrichment. ListEnrichment returns rows in (created_at, id) order so
	// the matcher's within-tier tie-break is deterministic.
	GetEnrichment(ctx context.Context, id string) (*model.EnrichmentData, error)
	FindEnrichmentByEmail(ctx context.Context, siteID, email string) (*model.EnrichmentData, error)
	ListEnrichment(ctx context.Context, siteID string) ([]model.EnrichmentData, error)
	CreateEnrichment(ctx context.Context, e *model.EnrichmentData) error
	UpdateEnrichment(ctx context.Context, e *model.EnrichmentData) error
	DeleteEnrichment(ctx context.Context, id string) error

	// Contacts
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	FindContactByEmail(ctx context.Context, siteID, email string) (*model.Contact, error)
	FindContactByVisitor(ctx context.Context, visitorID string) (*model.Contact, error)
	ListContacts(ctx context.Context, siteID string, limit, offset int) ([]model.Contact, error)
	CreateContact(ctx context.Context, c *model.Contact) error
	UpdateContact(ctx context.Context, c *model.Contact) error
	DeleteContact(ctx context.Context, id string) error
	CountContactsByEnrichment(ctx context.Context, enrichmentID string) (int64, error)

	// Events
	CreateEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)
	LatestIdentifyEvent(ctx context.Context, visitorID string) (*model.Event, error)

	// Conversion goals
	CreateGoal(ctx context.Context, g *model.ConversionGoal) error
	ListGoals(ctx context.Context, siteID string) ([]model.ConversionGoal, error)
	DeleteGoal(ctx context.Context, siteID, id string) error

	// Aggregates
	SiteStats(ctx context.Context, siteID string) (*model.SiteStats, error)

	// WithTx runs fn against a transactional view of the store and commits
	// when fn returns nil, rolling back otherwise. Nested calls reuse the
	// surrounding transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
