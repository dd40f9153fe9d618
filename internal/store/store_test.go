package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trackd/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSite(t *testing.T, s Store) *model.Site {
	t.Helper()
	site := &model.Site{
		ID:        uuid.New().String(),
		Name:      "Acme",
		Domain:    "acme.example" + uuid.New().String(),
		SiteKey:   uuid.New().String(),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSite(context.Background(), site))
	return site
}

func seedVisitor(t *testing.T, s Store, siteID string) *model.Visitor {
	t.Helper()
	now := time.Now().UTC()
	v := &model.Visitor{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		VisitorID: uuid.New().String(),
		FirstSeen: now,
		LastSeen:  now,
		IPAddress: "203.0.113.10",
		UserAgent: "Mozilla/5.0 test",
	}
	require.NoError(t, s.CreateVisitor(context.Background(), v))
	return v
}

func seedEnrichment(t *testing.T, s Store, siteID, email string) *model.EnrichmentData {
	t.Helper()
	now := time.Now().UTC()
	e := &model.EnrichmentData{
		ID:          uuid.New().String(),
		SiteID:      siteID,
		Email:       email,
		FirstName:   "Jane",
		LastName:    "Doe",
		IPAddresses: []string{"203.0.113.10"},
		Source:      model.SourceCSVUpload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateEnrichment(context.Background(), e))
	return e
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SiteRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		got, err := s.GetSite(ctx, site.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, site.Domain, got.Domain)
		assert.True(t, got.IsActive)

		byKey, err := s.GetSiteByKey(ctx, site.SiteKey)
		require.NoError(t, err)
		require.NotNil(t, byKey)
		assert.Equal(t, site.ID, byKey.ID)

		missing, err := s.GetSite(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("APIKeys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		key := &model.APIKey{
			ID:        uuid.New().String(),
			SiteID:    site.ID,
			Name:      "default",
			Key:       model.NewAPIKeySecret(),
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.CreateAPIKey(ctx, key))

		got, err := s.GetAPIKeyBySecret(ctx, key.Key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, site.ID, got.SiteID)
		assert.Nil(t, got.LastUsed)

		used := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.TouchAPIKey(ctx, key.ID, used))
		got, err = s.GetAPIKeyBySecret(ctx, key.Key)
		require.NoError(t, err)
		require.NotNil(t, got.LastUsed)

		missing, err := s.GetAPIKeyBySecret(ctx, "sk_unknown")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("VisitorRoundTripAndUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)
		v := seedVisitor(t, s, site.ID)

		found, err := s.FindVisitor(ctx, site.ID, v.VisitorID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, v.ID, found.ID)
		assert.False(t, found.IsIdentified)

		found.IsIdentified = true
		found.MatchedVia = model.MatchedViaIP
		found.BrowserName = "Chrome"
		require.NoError(t, s.UpdateVisitor(ctx, found))

		got, err := s.GetVisitor(ctx, v.ID)
		require.NoError(t, err)
		assert.True(t, got.IsIdentified)
		assert.Equal(t, model.MatchedViaIP, got.MatchedVia)
		assert.Equal(t, "Chrome", got.BrowserName)
	})

	t.Run("ListVisitorsFilter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		a := seedVisitor(t, s, site.ID)
		seedVisitor(t, s, site.ID)
		a.IsIdentified = true
		require.NoError(t, s.UpdateVisitor(ctx, a))

		identified := true
		got, err := s.ListVisitors(ctx, VisitorFilter{SiteID: site.ID, Identified: &identified})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.ID, got[0].ID)

		all, err := s.ListVisitors(ctx, VisitorFilter{SiteID: site.ID})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		paged, err := s.ListVisitors(ctx, VisitorFilter{SiteID: site.ID, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, paged, 1)
	})

	t.Run("EnrichmentRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)
		e := seedEnrichment(t, s, site.ID, "jane@acme.example")

		got, err := s.FindEnrichmentByEmail(ctx, site.ID, "JANE@acme.example ")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, []string{"203.0.113.10"}, got.IPAddresses)

		got.AddUserAgent("Mozilla/5.0 test")
		got.AddFingerprint(model.Fingerprint{BrowserName: "Chrome", OSName: "macOS"})
		got.ExtraData = model.ExtraData{"plan": "pro"}
		got.UpdatedAt = time.Now().UTC()
		require.NoError(t, s.UpdateEnrichment(ctx, got))

		again, err := s.GetEnrichment(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, again.BrowserFingerprints, 1)
		assert.Equal(t, "Chrome", again.BrowserFingerprints[0].BrowserName)
		assert.Equal(t, "pro", again.ExtraData["plan"])
	})

	t.Run("ListEnrichmentOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		base := time.Now().UTC().Add(-time.Hour)
		for i, email := range []string{"c@x.com", "a@x.com", "b@x.com"} {
			e := &model.EnrichmentData{
				ID:        uuid.New().String(),
				SiteID:    site.ID,
				Email:     email,
				Source:    model.SourceCSVUpload,
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
				UpdatedAt: base,
			}
			require.NoError(t, s.CreateEnrichment(ctx, e))
		}

		got, err := s.ListEnrichment(ctx, site.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "c@x.com", got[0].Email)
		assert.Equal(t, "a@x.com", got[1].Email)
		assert.Equal(t, "b@x.com", got[2].Email)
	})

	t.Run("ContactLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)
		v := seedVisitor(t, s, site.ID)
		e := seedEnrichment(t, s, site.ID, "jane@acme.example")

		now := time.Now().UTC()
		c := &model.Contact{
			ID:           uuid.New().String(),
			SiteID:       site.ID,
			VisitorID:    v.ID,
			EnrichmentID: e.ID,
			Email:        "jane@acme.example",
			Name:         "Jane Doe",
			ExtraData:    model.ExtraData{"source": "test"},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, s.CreateContact(ctx, c))

		byVisitor, err := s.FindContactByVisitor(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, byVisitor)
		assert.Equal(t, c.ID, byVisitor.ID)
		assert.Equal(t, "test", byVisitor.ExtraData["source"])

		byEmail, err := s.FindContactByEmail(ctx, site.ID, "Jane@Acme.example")
		require.NoError(t, err)
		require.NotNil(t, byEmail)

		n, err := s.CountContactsByEnrichment(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		require.NoError(t, s.DeleteContact(ctx, c.ID))
		gone, err := s.GetContact(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		n, err = s.CountContactsByEnrichment(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("ContactNullableLinks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		now := time.Now().UTC()
		c := &model.Contact{
			ID:        uuid.New().String(),
			SiteID:    site.ID,
			Email:     "nolinks@acme.example",
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, s.CreateContact(ctx, c))

		got, err := s.GetContact(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, got.VisitorID)
		assert.Empty(t, got.EnrichmentID)
	})

	t.Run("EventsAndLatestIdentify", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)
		v := seedVisitor(t, s, site.ID)

		base := time.Now().UTC().Add(-time.Hour)
		mkEvent := func(typ string, data model.ExtraData, at time.Time) *model.Event {
			return &model.Event{
				ID:        uuid.New().String(),
				SiteID:    site.ID,
				VisitorID: v.ID,
				EventType: typ,
				PageURL:   "https://acme.example/p",
				EventData: data,
				Timestamp: at,
			}
		}
		require.NoError(t, s.CreateEvent(ctx, mkEvent(model.EventPageView, nil, base)))
		require.NoError(t, s.CreateEvent(ctx, mkEvent(model.EventCustom, model.ExtraData{
			"event_name":    "identify",
			"identity_data": map[string]any{"email": "old@acme.example"},
		}, base.Add(time.Minute))))
		require.NoError(t, s.CreateEvent(ctx, mkEvent(model.EventCustom, model.ExtraData{
			"event_name":    "identify",
			"identity_data": map[string]any{"email": "new@acme.example"},
		}, base.Add(2*time.Minute))))

		events, err := s.ListEvents(ctx, EventFilter{SiteID: site.ID})
		require.NoError(t, err)
		assert.Len(t, events, 3)

		pageViews, err := s.ListEvents(ctx, EventFilter{SiteID: site.ID, EventType: model.EventPageView})
		require.NoError(t, err)
		assert.Len(t, pageViews, 1)

		latest, err := s.LatestIdentifyEvent(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, latest)
		identity, _ := latest.EventData["identity_data"].(map[string]any)
		assert.Equal(t, "new@acme.example", identity["email"])
	})

	t.Run("Goals", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		g := &model.ConversionGoal{
			ID:         uuid.New().String(),
			SiteID:     site.ID,
			Name:       "Purchases",
			EventType:  model.EventPurchase,
			Conditions: model.ExtraData{"min_total": 10},
			IsActive:   true,
			CreatedAt:  time.Now().UTC(),
		}
		require.NoError(t, s.CreateGoal(ctx, g))

		goals, err := s.ListGoals(ctx, site.ID)
		require.NoError(t, err)
		require.Len(t, goals, 1)
		assert.Equal(t, "Purchases", goals[0].Name)

		require.NoError(t, s.DeleteGoal(ctx, site.ID, g.ID))
		goals, err = s.ListGoals(ctx, site.ID)
		require.NoError(t, err)
		assert.Empty(t, goals)
	})

	t.Run("SiteStats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)
		v := seedVisitor(t, s, site.ID)
		v.IsIdentified = true
		require.NoError(t, s.UpdateVisitor(ctx, v))
		seedVisitor(t, s, site.ID)

		require.NoError(t, s.CreateEvent(ctx, &model.Event{
			ID: uuid.New().String(), SiteID: site.ID, VisitorID: v.ID,
			EventType: model.EventPageView, Timestamp: time.Now().UTC(),
		}))

		stats, err := s.SiteStats(ctx, site.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalVisitors)
		assert.Equal(t, int64(1), stats.IdentifiedVisitors)
		assert.Equal(t, int64(1), stats.TotalEvents)
		assert.Equal(t, int64(1), stats.EventsByType[model.EventPageView])
	})

	t.Run("WithTxCommitAndRollback", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		site := seedSite(t, s)

		err := s.WithTx(ctx, func(tx Store) error {
			seedVisitor(t, tx, site.ID)
			// Nested call must reuse the open transaction.
			return tx.WithTx(ctx, func(inner Store) error {
				seedVisitor(t, inner, site.ID)
				return nil
			})
		})
		require.NoError(t, err)
		got, err := s.ListVisitors(ctx, VisitorFilter{SiteID: site.ID})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		boom := eris.New("boom")
		err = s.WithTx(ctx, func(tx Store) error {
			seedVisitor(t, tx, site.ID)
			return boom
		})
		require.Error(t, err)
		got, err = s.ListVisitors(ctx, VisitorFilter{SiteID: site.ID})
		require.NoError(t, err)
		assert.Len(t, got, 2, "rolled-back visitor must not persist")
	})

	t.Run("UpdateMissingRowErrors", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v := &model.Visitor{ID: "ghost", SiteID: "x", VisitorID: "y",
			FirstSeen: time.Now().UTC(), LastSeen: time.Now().UTC()}
		assert.Error(t, s.UpdateVisitor(ctx, v))
		assert.Error(t, s.DeleteContact(ctx, "ghost"))
		assert.Error(t, s.DeleteEnrichment(ctx, "ghost"))
	})
}
