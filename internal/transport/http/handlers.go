package transporthttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/identity"
	"github.com/sells-group/trackd/internal/ingest"
	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

const defaultPageSize = 50

// Server bundles the handler dependencies.
type Server struct {
	store    store.Store
	ingest   *ingest.Service
	resolver *identity.Resolver
}

func NewServer(st store.Store, svc *ingest.Service, resolver *identity.Resolver) *Server {
	return &Server{store: st, ingest: svc, resolver: resolver}
}

// --- Public ---

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var req ingest.TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}

	resp, err := s.ingest.Track(r.Context(), req, clientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case eris.Is(err, ingest.ErrUnknownSiteKey):
			WriteProblem(w, http.StatusBadRequest, "unknown site", "unknown or inactive site key")
		case eris.Is(err, ingest.ErrInvalidRequest):
			WriteProblem(w, http.StatusBadRequest, "invalid request", err.Error())
		default:
			zap.L().Error("track failed", zap.Error(err))
			WriteProblem(w, http.StatusInternalServerError, "internal error", "")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Authenticated API ---

func (s *Server) HandleGetSite(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SiteFrom(r.Context()))
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SiteStats(r.Context(), SiteFrom(r.Context()).ID)
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) HandleListVisitors(w http.ResponseWriter, r *http.Request) {
	f := store.VisitorFilter{SiteID: SiteFrom(r.Context()).ID}
	f.Limit, f.Offset = pagination(r)
	if v := r.URL.Query().Get("identified"); v != "" {
		identified := v == "true"
		f.Identified = &identified
	}
	visitors, err := s.store.ListVisitors(r.Context(), f)
	if err != nil {
		s.internalError(w, "list visitors", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"visitors": emptyNotNull(visitors)})
}

// HandleGetVisitor returns one visitor, lazily repairing identified visitors
// that lost their contact.
func (s *Server) HandleGetVisitor(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetVisitor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, "get visitor", err)
		return
	}
	if v == nil || v.SiteID != SiteFrom(r.Context()).ID {
		WriteProblem(w, http.StatusNotFound, "not found", "no such visitor")
		return
	}

	resp := map[string]any{"visitor": v}
	if v.IsIdentified {
		if contact := s.resolver.Recover(r.Context(), v); contact != nil {
			resp["contact"] = contact
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	contacts, err := s.store.ListContacts(r.Context(), SiteFrom(r.Context()).ID, limit, offset)
	if err != nil {
		s.internalError(w, "list contacts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": emptyNotNull(contacts)})
}

func (s *Server) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, "get contact", err)
		return
	}
	if c == nil || c.SiteID != SiteFrom(r.Context()).ID {
		WriteProblem(w, http.StatusNotFound, "not found", "no such contact")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) HandleDeleteContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, "get contact", err)
		return
	}
	if c == nil || c.SiteID != SiteFrom(r.Context()).ID {
		WriteProblem(w, http.StatusNotFound, "not found", "no such contact")
		return
	}
	if err := s.resolver.DeleteContact(r.Context(), c.ID); err != nil {
		s.internalError(w, "delete contact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	f := store.EventFilter{
		SiteID:    SiteFrom(r.Context()).ID,
		VisitorID: r.URL.Query().Get("visitor_id"),
		EventType: r.URL.Query().Get("event_type"),
	}
	f.Limit, f.Offset = pagination(r)
	events, err := s.store.ListEvents(r.Context(), f)
	if err != nil {
		s.internalError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": emptyNotNull(events)})
}

func (s *Server) HandleListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.store.ListGoals(r.Context(), SiteFrom(r.Context()).ID)
	if err != nil {
		s.internalError(w, "list goals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": emptyNotNull(goals)})
}

func (s *Server) HandleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string          `json:"name"`
		EventType  string          `json:"event_type"`
		Conditions model.ExtraData `json:"conditions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	if req.Name == "" || !model.ValidEventType(req.EventType) {
		WriteProblem(w, http.StatusBadRequest, "invalid request", "name and a valid event_type are required")
		return
	}
	goal := &model.ConversionGoal{
		ID:         uuid.New().String(),
		SiteID:     SiteFrom(r.Context()).ID,
		Name:       req.Name,
		EventType:  req.EventType,
		Conditions: req.Conditions,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateGoal(r.Context(), goal); err != nil {
		s.internalError(w, "create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) HandleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteGoal(r.Context(), SiteFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		WriteProblem(w, http.StatusNotFound, "not found", "no such goal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpsertEnrichment creates or refreshes one enrichment record by
// email, source-tagged as an API write.
func (s *Server) HandleUpsertEnrichment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string          `json:"email"`
		FirstName   string          `json:"first_name"`
		LastName    string          `json:"last_name"`
		Phone       string          `json:"phone"`
		LinkedInURL string          `json:"linkedin_url"`
		FacebookURL string          `json:"facebook_url"`
		TwitterURL  string          `json:"twitter_url"`
		Company     string          `json:"company"`
		JobTitle    string          `json:"job_title"`
		Location    string          `json:"location"`
		IPAddresses []string        `json:"ip_addresses"`
		ExtraData   model.ExtraData `json:"extra_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error())
		return
	}
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		WriteProblem(w, http.StatusBadRequest, "invalid request", "email is required")
		return
	}

	site := SiteFrom(r.Context())
	now := time.Now().UTC()
	enr, err := s.store.FindEnrichmentByEmail(r.Context(), site.ID, email)
	if err != nil {
		s.internalError(w, "find enrichment", err)
		return
	}
	created := enr == nil
	if created {
		enr = &model.EnrichmentData{
			ID:        uuid.New().String(),
			SiteID:    site.ID,
			Email:     email,
			Source:    model.SourceAPI,
			CreatedAt: now,
		}
	}
	setNonEmpty(&enr.FirstName, req.FirstName)
	setNonEmpty(&enr.LastName, req.LastName)
	setNonEmpty(&enr.Phone, req.Phone)
	setNonEmpty(&enr.LinkedInURL, req.LinkedInURL)
	setNonEmpty(&enr.FacebookURL, req.FacebookURL)
	setNonEmpty(&enr.TwitterURL, req.TwitterURL)
	setNonEmpty(&enr.Company, req.Company)
	setNonEmpty(&enr.JobTitle, req.JobTitle)
	setNonEmpty(&enr.Location, req.Location)
	for _, ip := range req.IPAddresses {
		enr.AddIPAddress(ip)
	}
	enr.AddPhoneNumber(req.Phone)
	if len(req.ExtraData) > 0 {
		if enr.ExtraData == nil {
			enr.ExtraData = model.ExtraData{}
		}
		enr.ExtraData.Merge(req.ExtraData)
	}
	enr.UpdatedAt = now

	if created {
		err = s.store.CreateEnrichment(r.Context(), enr)
	} else {
		err = s.store.UpdateEnrichment(r.Context(), enr)
	}
	if err != nil {
		s.internalError(w, "upsert enrichment", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, enr)
}

// --- helpers ---

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error(op+" failed", zap.Error(err))
	WriteProblem(w, http.StatusInternalServerError, "internal error", "")
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func setNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// emptyNotNull keeps list responses as [] rather than null.
func emptyNotNull[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
