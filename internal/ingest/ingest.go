// Package ingest turns raw pixel payloads into visitors and events and
// drives identity resolution for the live tracking path.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/identity"
	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/monitoring"
	"github.com/sells-group/trackd/internal/store"
)

// Validation sentinels, mapped to 400 responses by the HTTP layer.
var (
	ErrUnknownSiteKey = eris.New("ingest: unknown or inactive site key")
	ErrInvalidRequest = eris.New("ingest: invalid track request")
)

// FingerprintPayload is the nested browser_fingerprint object sent by the
// pixel.
type FingerprintPayload struct {
	model.Fingerprint
	BrowserVersion string `json:"browser_version,omitempty"`
}

// TrackRequest is the pixel payload for POST /track.
type TrackRequest struct {
	SiteKey   string `json:"site_key"`
	VisitorID string `json:"visitor_id"`

	EventType string          `json:"event_type"`
	EventName string          `json:"event_name,omitempty"`
	PageURL   string          `json:"page_url,omitempty"`
	PageTitle string          `json:"page_title,omitempty"`
	Referrer  string          `json:"referrer,omitempty"`
	EventData model.ExtraData `json:"event_data,omitempty"`

	BrowserFingerprint FingerprintPayload `json:"browser_fingerprint,omitempty"`

	// UTMParams is the event's last-touch attribution; StoredUTMParams is
	// the first-touch set the pixel persisted at the visitor's landing and
	// replays on every event.
	UTMParams       model.UTMParams `json:"utm_params,omitempty"`
	StoredUTMParams model.UTMParams `json:"stored_utm_params,omitempty"`

	SessionID string     `json:"session_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Identification state is owned by the server. Clients sometimes send
	// these anyway; they are dropped and logged.
	IsIdentified *bool  `json:"is_identified,omitempty"`
	MatchedVia   string `json:"matched_via,omitempty"`
}

// VisitorSnapshot is the visitor state echoed back to the pixel. Contact and
// enrichment fields are deliberately absent.
type VisitorSnapshot struct {
	IPAddress        string          `json:"ip_address,omitempty"`
	UserAgent        string          `json:"user_agent,omitempty"`
	BrowserName      string          `json:"browser_name,omitempty"`
	BrowserVersion   string          `json:"browser_version,omitempty"`
	OSName           string          `json:"os_name,omitempty"`
	DeviceType       string          `json:"device_type,omitempty"`
	ScreenResolution string          `json:"screen_resolution,omitempty"`
	Timezone         string          `json:"timezone,omitempty"`
	Language         string          `json:"language,omitempty"`
	Referrer         string          `json:"referrer,omitempty"`
	UTM              model.UTMParams `json:"utm"`
	FirstSeen        time.Time       `json:"first_seen"`
	LastSeen         time.Time       `json:"last_seen"`
	MatchedVia       string          `json:"matched_via,omitempty"`
}

// TrackResponse acknowledges an accepted event with the visitor snapshot and
// identification status but never contact or enrichment fields.
type TrackResponse struct {
	EventID      string          `json:"event_id"`
	VisitorID    string          `json:"visitor_id"`
	IsIdentified bool            `json:"is_identified"`
	MatchedVia   string          `json:"matched_via,omitempty"`
	Visitor      VisitorSnapshot `json:"visitor"`
}

func snapshotVisitor(v *model.Visitor) VisitorSnapshot {
	return VisitorSnapshot{
		IPAddress:        v.IPAddress,
		UserAgent:        v.UserAgent,
		BrowserName:      v.BrowserName,
		BrowserVersion:   v.BrowserVersion,
		OSName:           v.OSName,
		DeviceType:       v.DeviceType,
		ScreenResolution: v.ScreenResolution,
		Timezone:         v.Timezone,
		Language:         v.Language,
		Referrer:         v.Referrer,
		UTM:              v.UTM,
		FirstSeen:        v.FirstSeen,
		LastSeen:         v.LastSeen,
		MatchedVia:       v.MatchedVia,
	}
}

// Service is the ingestion pipeline behind POST /track.
type Service struct {
	store    store.Store
	resolver *identity.Resolver
	queue    *identity.Queue
}

// New builds the service. queue may be nil, in which case identify events
// resolve synchronously.
func New(st store.Store, resolver *identity.Resolver, queue *identity.Queue) *Service {
	return &Service{store: st, resolver: resolver, queue: queue}
}

// Track processes one pixel event: resolve the site, upsert the visitor,
// attempt IP-only matching for unidentified visitors, persist the event, and
// kick off async resolution for explicit identify events. Resolution errors
// never fail the request; only validation and event persistence do.
func (s *Service) Track(ctx context.Context, req TrackRequest, clientIP, userAgent string) (*TrackResponse, error) {
	start := time.Now()
	defer func() {
		monitoring.TrackDuration.Observe(time.Since(start).Seconds())
	}()

	if err := validate(req); err != nil {
		monitoring.TrackRejected.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if req.IsIdentified != nil || req.MatchedVia != "" {
		zap.L().Warn("client attempted to set identification state",
			zap.String("site_key", req.SiteKey),
			zap.String("visitor_id", req.VisitorID),
			zap.String("ip", clientIP))
	}

	site, err := s.store.GetSiteByKey(ctx, req.SiteKey)
	if err != nil {
		return nil, err
	}
	if site == nil || !site.IsActive {
		monitoring.TrackRejected.WithLabelValues("unknown_site").Inc()
		return nil, ErrUnknownSiteKey
	}

	visitor, err := s.upsertVisitor(ctx, site.ID, req, clientIP, userAgent)
	if err != nil {
		return nil, err
	}

	if !visitor.IsIdentified {
		s.matchByIP(ctx, site.ID, visitor)
	}

	event := buildEvent(site.ID, visitor.ID, req)
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	monitoring.EventsIngested.WithLabelValues(event.EventType).Inc()

	if in, ok := identity.IdentificationFromPayload(event.IdentifyPayload()); ok {
		s.identify(ctx, visitor, in)
	}

	return &TrackResponse{
		EventID:      event.ID,
		VisitorID:    visitor.VisitorID,
		IsIdentified: visitor.IsIdentified,
		MatchedVia:   visitor.MatchedVia,
		Visitor:      snapshotVisitor(visitor),
	}, nil
}

func validate(req TrackRequest) error {
	switch {
	case req.SiteKey == "":
		return eris.Wrap(ErrInvalidRequest, "site_key is required")
	case req.VisitorID == "":
		return eris.Wrap(ErrInvalidRequest, "visitor_id is required")
	case !model.ValidEventType(req.EventType):
		return eris.Wrapf(ErrInvalidRequest, "unrecognized event_type %q", req.EventType)
	}
	return nil
}

// upsertVisitor creates the visitor on first contact and refreshes it on
// every later event. First-touch UTM parameters come from stored_utm_params,
// written at creation and never touched again; fingerprint fields merge
// non-empty-wins.
func (s *Service) upsertVisitor(ctx context.Context, siteID string, req TrackRequest, clientIP, userAgent string) (*model.Visitor, error) {
	now := time.Now().UTC()
	fp := req.BrowserFingerprint.Fingerprint

	visitor, err := s.store.FindVisitor(ctx, siteID, req.VisitorID)
	if err != nil {
		return nil, err
	}
	if visitor == nil {
		visitor = &model.Visitor{
			ID:             uuid.New().String(),
			SiteID:         siteID,
			VisitorID:      req.VisitorID,
			FirstSeen:      now,
			LastSeen:       now,
			IPAddress:      clientIP,
			UserAgent:      userAgent,
			Referrer:       req.Referrer,
			BrowserVersion: req.BrowserFingerprint.BrowserVersion,
			UTM:            req.StoredUTMParams,
		}
		visitor.ApplyFingerprint(fp)
		if err := s.store.CreateVisitor(ctx, visitor); err != nil {
			return nil, err
		}
		return visitor, nil
	}

	visitor.LastSeen = now
	if clientIP != "" {
		visitor.IPAddress = clientIP
	}
	if userAgent != "" {
		visitor.UserAgent = userAgent
	}
	if req.BrowserFingerprint.BrowserVersion != "" {
		visitor.BrowserVersion = req.BrowserFingerprint.BrowserVersion
	}
	visitor.ApplyFingerprint(fp)
	if err := s.store.UpdateVisitor(ctx, visitor); err != nil {
		return nil, err
	}
	return visitor, nil
}

// matchByIP runs the IP-only tier against the site's enrichment records and
// resolves on a hit. Failures are logged; the event is accepted regardless.
func (s *Service) matchByIP(ctx context.Context, siteID string, visitor *model.Visitor) {
	records, err := s.store.ListEnrichment(ctx, siteID)
	if err != nil {
		zap.L().Warn("enrichment lookup failed during ingest",
			zap.String("site_id", siteID), zap.Error(err))
		return
	}
	m := identity.MatchVisitor(visitor, records, identity.ScopeIPOnly)
	if m == nil {
		return
	}
	if _, err := s.resolver.Resolve(ctx, visitor.ID, identity.Identification{
		Email:      m.Record.Email,
		Enrichment: m.Record,
		MatchedVia: m.MatchedVia,
	}); err != nil {
		zap.L().Warn("ip-match resolution failed",
			zap.String("visitor_id", visitor.ID), zap.Error(err))
		return
	}
	visitor.IsIdentified = true
	visitor.MatchedVia = m.MatchedVia
}

// identify hands an explicit identify payload to the async queue, resolving
// synchronously when the queue is full or absent.
func (s *Service) identify(ctx context.Context, visitor *model.Visitor, in identity.Identification) {
	if s.queue != nil && s.queue.Enqueue(visitor.ID, in) {
		return
	}
	if _, err := s.resolver.Resolve(ctx, visitor.ID, in); err != nil {
		zap.L().Warn("synchronous identify resolution failed",
			zap.String("visitor_id", visitor.ID), zap.Error(err))
		return
	}
	visitor.IsIdentified = true
	visitor.MatchedVia = model.MatchedViaEmail
}

func buildEvent(siteID, visitorRowID string, req TrackRequest) *model.Event {
	ts := time.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}
	return &model.Event{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		VisitorID: visitorRowID,
		EventType: req.EventType,
		EventName: req.EventName,
		PageURL:   req.PageURL,
		PageTitle: req.PageTitle,
		Referrer:  req.Referrer,
		EventData: req.EventData,
		UTM:       req.UTMParams,
		SessionID: req.SessionID,
		Timestamp: ts,
	}
}
