package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

func createEnrichment(t *testing.T, s store.Store, siteID, email string, mutate func(*model.EnrichmentData)) *model.EnrichmentData {
	t.Helper()
	now := time.Now().UTC()
	e := &model.EnrichmentData{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		Email:     email,
		Source:    model.SourceCSVUpload,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(e)
	}
	require.NoError(t, s.CreateEnrichment(context.Background(), e))
	return e
}

func TestReconcileResolvesMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	r := NewResolver(s)

	matched := createVisitor(t, s, site.ID)
	unmatched := createVisitor(t, s, site.ID)
	unmatched.IPAddress = "198.51.100.1"
	unmatched.UserAgent = "other"
	unmatched.ScreenResolution = "800x600"
	require.NoError(t, s.UpdateVisitor(ctx, unmatched))

	createEnrichment(t, s, site.ID, "jane@acme.example", func(e *model.EnrichmentData) {
		e.IPAddresses = []string{matched.IPAddress}
	})

	report, err := r.Reconcile(ctx, ReconcileOptions{SiteID: site.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sites)
	assert.Equal(t, int64(2), report.Scanned)
	assert.Equal(t, int64(1), report.Matched)
	assert.Equal(t, int64(1), report.Resolved)
	assert.Equal(t, int64(0), report.Failed)

	got, err := s.GetVisitor(ctx, matched.ID)
	require.NoError(t, err)
	assert.True(t, got.IsIdentified)
	assert.Equal(t, model.MatchedViaIP, got.MatchedVia)

	contact, err := s.FindContactByVisitor(ctx, matched.ID)
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "jane@acme.example", contact.Email)

	still, err := s.GetVisitor(ctx, unmatched.ID)
	require.NoError(t, err)
	assert.False(t, still.IsIdentified)
}

func TestReconcileUsesFullMatchScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	r := NewResolver(s)

	v := createVisitor(t, s, site.ID)
	createEnrichment(t, s, site.ID, "fp@acme.example", func(e *model.EnrichmentData) {
		e.BrowserFingerprints = []model.Fingerprint{{
			BrowserName:      v.BrowserName,
			OSName:           v.OSName,
			DeviceType:       v.DeviceType,
			ScreenResolution: v.ScreenResolution,
		}}
	})

	report, err := r.Reconcile(ctx, ReconcileOptions{SiteID: site.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Resolved)

	got, err := s.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchedViaFingerprint, got.MatchedVia)
}

func TestReconcileDryRunWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	r := NewResolver(s)

	v := createVisitor(t, s, site.ID)
	createEnrichment(t, s, site.ID, "jane@acme.example", func(e *model.EnrichmentData) {
		e.IPAddresses = []string{v.IPAddress}
	})

	report, err := r.Reconcile(ctx, ReconcileOptions{SiteID: site.ID, DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(1), report.Matched)
	assert.Equal(t, int64(0), report.Resolved)

	got, err := s.GetVisitor(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.IsIdentified)

	contacts, err := s.ListContacts(ctx, site.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestReconcileSkipsSitesWithoutEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	site := createSite(t, s)
	createVisitor(t, s, site.ID)
	r := NewResolver(s)

	report, err := r.Reconcile(ctx, ReconcileOptions{SiteID: site.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Scanned, "no match targets, no scan")
}

func TestReconcileUnknownSite(t *testing.T) {
	s := newTestStore(t)
	r := NewResolver(s)

	_, err := r.Reconcile(context.Background(), ReconcileOptions{SiteID: "ghost"})
	require.Error(t, err)
}

func TestReconcileAllActiveSites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := NewResolver(s)

	active := createSite(t, s)
	require.NoError(t, s.CreateSite(ctx, &model.Site{
		ID:        uuid.New().String(),
		Name:      "Dormant",
		Domain:    uuid.New().String() + ".example",
		SiteKey:   uuid.New().String(),
		IsActive:  false,
		CreatedAt: time.Now().UTC(),
	}))

	v := createVisitor(t, s, active.ID)
	createEnrichment(t, s, active.ID, "jane@acme.example", func(e *model.EnrichmentData) {
		e.IPAddresses = []string{v.IPAddress}
	})

	report, err := r.Reconcile(ctx, ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sites, "inactive sites are excluded")
	assert.Equal(t, int64(1), report.Resolved)
}
