package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func createSite(t *testing.T, s store.Store) *model.Site {
	t.Helper()
	site := &model.Site{
		ID:        uuid.New().String(),
		Name:      "Acme",
		Domain:    uuid.New().String() + ".example",
		SiteKey:   uuid.New().String(),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSite(context.Background(), site))
	return site
}

func createVisitor(t *testing.T, s store.Store, siteID string) *model.Visitor {
	t.Helper()
	now := time.Now().UTC()
	v := &model.Visitor{
		ID:               uuid.New().String(),
		SiteID:           siteID,
		VisitorID:        uuid.New().String(),
		FirstSeen:        now,
		LastSeen:         now,
		IPAddress:        "203.0.113.7",
		UserAgent:        "Mozilla/5.0 resolver-test",
		BrowserName:      "Chrome",
		OSName:           "macOS",
		DeviceType:       "desktop",
		ScreenResolution: "2560x1440",
	}
	require.NoError(t, s.CreateVisitor(context.Background(), v))
	return v
}

func TestResolveCreatesContactAndEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	contact, err := r.Resolve(ctx, v.ID, Identification{
		Email: "Jane@Acme.example",
		Name:  "Jane Doe",
		Phone: "+155501",
		Extra: model.ExtraData{"plan": "pro"},
	})
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "jane@acme.example", contact.Email)
	assert.Equal(t, "Jane Doe", contact.Name)
	assert.Equal(t, v.ID, contact.VisitorID)
	assert.Equal(t, "pro", contact.ExtraData["plan"])

	// Enrichment created lazily, tagged as coming from identification,
	// with the visitor's signals backwritten.
	enr, err := s.GetEnrichment(ctx, contact.EnrichmentID)
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, model.SourceIdentification, enr.Source)
	assert.Equal(t, "Jane", enr.FirstName)
	assert.Equal(t, "Doe", enr.LastName)
	assert.Contains(t, enr.IPAddresses, "203.0.113.7")
	assert.Contains(t, enr.UserAgents, "Mozilla/5.0 resolver-test")
	assert.Contains(t, enr.PhoneNumbers, "+155501")
	require.Len(t, enr.BrowserFingerprints, 1)

	// Visitor marked identified last, via email.
	got, err := s.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, got.IsIdentified)
	assert.Equal(t, model.MatchedViaEmail, got.MatchedVia)
}

func TestResolveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	first, err := r.Resolve(ctx, v.ID, Identification{Email: "jane@acme.example"})
	require.NoError(t, err)
	second, err := r.Resolve(ctx, v.ID, Identification{Email: "jane@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	contacts, err := s.ListContacts(ctx, site.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	enr, err := s.FindEnrichmentByEmail(ctx, site.ID, "jane@acme.example")
	require.NoError(t, err)
	assert.Len(t, enr.IPAddresses, 1, "signal sets stay deduplicated")
	assert.Len(t, enr.UserAgents, 1)
}

func TestResolveExistingContactUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	contact, err := r.Resolve(ctx, v.ID, Identification{Email: "old@acme.example", Name: "Old Name"})
	require.NoError(t, err)

	// Same visitor identifies with a new email: in-place update, no new row.
	updated, err := r.Resolve(ctx, v.ID, Identification{Email: "new@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, contact.ID, updated.ID)
	assert.Equal(t, "new@acme.example", updated.Email)
	assert.Equal(t, "Old Name", updated.Name, "empty input keeps existing name")

	contacts, err := s.ListContacts(ctx, site.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestResolveRelinksContactLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	first := createVisitor(t, s, site.ID)
	second := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	contact, err := r.Resolve(ctx, first.ID, Identification{Email: "shared@acme.example"})
	require.NoError(t, err)

	relinked, err := r.Resolve(ctx, second.ID, Identification{Email: "shared@acme.example"})
	require.NoError(t, err)
	assert.Equal(t, contact.ID, relinked.ID, "same (site,email) contact is reused")
	assert.Equal(t, second.ID, relinked.VisitorID)

	byVisitor, err := s.FindContactByVisitor(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, byVisitor, "old visitor loses the contact link")
}

func TestResolveRequiresEmail(t *testing.T) {
	s := newTestStore(t)
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	_, err := r.Resolve(context.Background(), v.ID, Identification{Name: "No Email"})
	require.Error(t, err)
}

func TestResolveUnknownVisitorRollsBack(t *testing.T) {
	s := newTestStore(t)
	site := createSite(t, s)
	r := NewResolver(s)

	_, err := r.Resolve(context.Background(), "ghost", Identification{Email: "x@y.z"})
	require.Error(t, err)

	enr, ferr := s.FindEnrichmentByEmail(context.Background(), site.ID, "x@y.z")
	require.NoError(t, ferr)
	assert.Nil(t, enr, "nothing persists from a failed resolution")
}

func TestDeleteContactCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	contact, err := r.Resolve(ctx, v.ID, Identification{Email: "jane@acme.example"})
	require.NoError(t, err)

	require.NoError(t, r.DeleteContact(ctx, contact.ID))

	gone, err := s.GetContact(ctx, contact.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	visitor, err := s.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, visitor.IsIdentified, "visitor reset to unidentified")
	assert.Empty(t, visitor.MatchedVia)

	enr, err := s.GetEnrichment(ctx, contact.EnrichmentID)
	require.NoError(t, err)
	assert.Nil(t, enr, "unreferenced enrichment is deleted")
}

func TestDeleteContactKeepsSharedEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	contact, err := r.Resolve(ctx, v.ID, Identification{Email: "jane@acme.example"})
	require.NoError(t, err)

	// A second contact referencing the same enrichment record.
	now := time.Now().UTC()
	other := &model.Contact{
		ID:           uuid.New().String(),
		SiteID:       site.ID,
		EnrichmentID: contact.EnrichmentID,
		Email:        "other@acme.example",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateContact(ctx, other))

	require.NoError(t, r.DeleteContact(ctx, contact.ID))

	enr, err := s.GetEnrichment(ctx, contact.EnrichmentID)
	require.NoError(t, err)
	assert.NotNil(t, enr, "enrichment survives while referenced")
}

func TestRecoverReplaysIdentifyEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	require.NoError(t, s.CreateEvent(ctx, &model.Event{
		ID:        uuid.New().String(),
		SiteID:    site.ID,
		VisitorID: v.ID,
		EventType: model.EventCustom,
		EventData: model.ExtraData{
			"event_name":    "identify",
			"identity_data": map[string]any{"email": "jane@acme.example", "name": "Jane"},
		},
		Timestamp: time.Now().UTC(),
	}))

	// Drifted state: flagged identified, no contact row.
	v.IsIdentified = true
	v.MatchedVia = model.MatchedViaEmail
	require.NoError(t, s.UpdateVisitor(ctx, v))

	contact := r.Recover(ctx, v)
	require.NotNil(t, contact)
	assert.Equal(t, "jane@acme.example", contact.Email)

	again := r.Recover(ctx, v)
	require.NotNil(t, again)
	assert.Equal(t, contact.ID, again.ID, "second recover finds the existing contact")
}

func TestRecoverWithoutIdentifyEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	v := createVisitor(t, s, site.ID)
	r := NewResolver(s)

	assert.Nil(t, r.Recover(ctx, v), "unidentified visitors are not recovered")

	v.IsIdentified = true
	require.NoError(t, s.UpdateVisitor(ctx, v))
	assert.Nil(t, r.Recover(ctx, v), "no identify event to replay")
}
