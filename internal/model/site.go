// Package model defines the domain types for visitor tracking and identity
// resolution. Every entity is scoped to exactly one Site; cross-site matching
// is never permitted.
package model

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Site is the tenant boundary: one tracked website/domain.
type Site struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Domain    string    `json:"domain" db:"domain"`
	SiteKey   string    `json:"site_key" db:"site_key"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// APIKey authenticates read/write API requests. The key identifies its Site
// as the principal; all queries made with it are scoped to that site.
type APIKey struct {
	ID        string     `json:"id" db:"id"`
	SiteID    string     `json:"site_id" db:"site_id"`
	Name      string     `json:"name" db:"name"`
	Key       string     `json:"key" db:"key"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	LastUsed  *time.Time `json:"last_used,omitempty" db:"last_used"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// NewAPIKeySecret generates an opaque bearer token with the sk_ prefix.
func NewAPIKeySecret() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "sk_" + base64.RawURLEncoding.EncodeToString(buf)
}
