package model

import "time"

// ConversionGoal is a declarative reporting rule over event type plus
// free-form conditions. Evaluated by dashboards, not by ingestion.
type ConversionGoal struct {
	ID         string    `json:"id" db:"id"`
	SiteID     string    `json:"site_id" db:"site_id"`
	Name       string    `json:"name" db:"name"`
	EventType  string    `json:"event_type" db:"event_type"`
	Conditions ExtraData `json:"conditions"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SiteStats aggregates dashboard counters for one site.
type SiteStats struct {
	SiteID             string         `json:"site_id"`
	TotalVisitors      int64          `json:"total_visitors"`
	IdentifiedVisitors int64          `json:"identified_visitors"`
	TotalContacts      int64          `json:"total_contacts"`
	TotalEvents        int64          `json:"total_events"`
	EventsByType       map[string]int64 `json:"events_by_type"`
}
