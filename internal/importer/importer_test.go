package importer

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

func newImporter(t *testing.T) (*Importer, store.Store, string) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	site := &model.Site{
		ID:        uuid.New().String(),
		Name:      "Acme",
		Domain:    uuid.New().String() + ".example",
		SiteKey:   uuid.New().String(),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateSite(context.Background(), site))
	return New(s), s, site.ID
}

func TestImportCSV(t *testing.T) {
	im, s, siteID := newImporter(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"Email,First Name,last_name,Phone,Company,ip,segment",
		"Jane@Acme.example,Jane,Doe,+155501,Acme Inc,203.0.113.7,enterprise",
		"bob@acme.example,Bob,,,,,",
	}, "\n")
	// "First Name" is not an alias; spaces keep it out of the known set.

	report, err := im.ImportCSV(ctx, siteID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Empty(t, report.Errors)

	enr, err := s.FindEnrichmentByEmail(ctx, siteID, "jane@acme.example")
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, "Doe", enr.LastName)
	assert.Equal(t, "+155501", enr.Phone)
	assert.Equal(t, "Acme Inc", enr.Company)
	assert.Equal(t, model.SourceCSVUpload, enr.Source)
	assert.Contains(t, enr.IPAddresses, "203.0.113.7")
	assert.Contains(t, enr.PhoneNumbers, "+155501")
	assert.Equal(t, "enterprise", enr.ExtraData["segment"], "unknown columns land in extra_data")
	assert.Equal(t, "Jane", enr.ExtraData["first name"])
}

func TestImportCSVHeaderAliases(t *testing.T) {
	im, s, siteID := newImporter(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"e-mail,firstname,last,mobile,organization,title,city,linkedin",
		"jane@acme.example,Jane,Doe,+155501,Acme,VP Sales,Austin,https://linkedin.com/in/jane",
	}, "\n")

	report, err := im.ImportCSV(ctx, siteID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	enr, err := s.FindEnrichmentByEmail(ctx, siteID, "jane@acme.example")
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, "Jane", enr.FirstName)
	assert.Equal(t, "Doe", enr.LastName)
	assert.Equal(t, "+155501", enr.Phone)
	assert.Equal(t, "Acme", enr.Company)
	assert.Equal(t, "VP Sales", enr.JobTitle)
	assert.Equal(t, "Austin", enr.Location)
	assert.Equal(t, "https://linkedin.com/in/jane", enr.LinkedInURL)
	assert.Empty(t, enr.ExtraData)
}

func TestImportCSVUpsertsByEmail(t *testing.T) {
	im, s, siteID := newImporter(t)
	ctx := context.Background()

	first := "email,first_name,company,ip\njane@acme.example,Jane,Acme,203.0.113.7"
	_, err := im.ImportCSV(ctx, siteID, strings.NewReader(first))
	require.NoError(t, err)

	// Re-import with a new IP and an empty company: fields merge
	// non-empty-wins, the IP set grows.
	second := "email,first_name,company,ip\nJANE@acme.example,Janet,,203.0.113.8"
	report, err := im.ImportCSV(ctx, siteID, strings.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)

	enr, err := s.FindEnrichmentByEmail(ctx, siteID, "jane@acme.example")
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, "Janet", enr.FirstName)
	assert.Equal(t, "Acme", enr.Company, "empty incoming keeps existing value")
	assert.ElementsMatch(t, []string{"203.0.113.7", "203.0.113.8"}, enr.IPAddresses)

	records, err := s.ListEnrichment(ctx, siteID)
	require.NoError(t, err)
	assert.Len(t, records, 1, "one record per (site, email)")
}

func TestImportCSVRowErrors(t *testing.T) {
	im, s, siteID := newImporter(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"email,first_name",
		",NoEmail",
		"good@acme.example,Good",
		"  ,AlsoNoEmail",
	}, "\n")

	report, err := im.ImportCSV(ctx, siteID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 2, report.Errors[0].Line)
	assert.Equal(t, "missing email", report.Errors[0].Err)
	assert.Equal(t, 4, report.Errors[1].Line)

	enr, err := s.FindEnrichmentByEmail(ctx, siteID, "good@acme.example")
	require.NoError(t, err)
	assert.NotNil(t, enr, "good rows import despite bad neighbors")
}

func TestImportCSVShortRows(t *testing.T) {
	im, s, siteID := newImporter(t)
	ctx := context.Background()

	// Row shorter than the header: trailing columns are simply absent.
	csvData := "email,first_name,company\njane@acme.example,Jane"

	report, err := im.ImportCSV(ctx, siteID, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	enr, err := s.FindEnrichmentByEmail(ctx, siteID, "jane@acme.example")
	require.NoError(t, err)
	require.NotNil(t, enr)
	assert.Equal(t, "Jane", enr.FirstName)
	assert.Empty(t, enr.Company)
}

func TestImportReportSummary(t *testing.T) {
	r := &Report{Created: 3, Updated: 2, Skipped: 1, Errors: []RowError{{Line: 4, Err: "missing email"}}}
	assert.Equal(t, "created=3 updated=2 skipped=1 errors=1", r.Summary())
}
