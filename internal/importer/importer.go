// Package importer loads enrichment records from CSV and XLSX files into a
// site, upserting by email.
package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

// RowError is one rejected row. Imports keep going past bad rows.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Report tallies one import run.
type Report struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

type Importer struct {
	store store.Store
}

func New(st store.Store) *Importer {
	return &Importer{store: st}
}

// Header aliases accepted for each enrichment field, lowercased.
var columnAliases = map[string]string{
	"email":         "email",
	"email_address": "email",
	"e-mail":        "email",
	"first_name":    "first_name",
	"firstname":     "first_name",
	"first":         "first_name",
	"last_name":     "last_name",
	"lastname":      "last_name",
	"last":          "last_name",
	"phone":         "phone",
	"phone_number":  "phone",
	"mobile":        "phone",
	"linkedin":      "linkedin_url",
	"linkedin_url":  "linkedin_url",
	"facebook":      "facebook_url",
	"facebook_url":  "facebook_url",
	"twitter":       "twitter_url",
	"twitter_url":   "twitter_url",
	"company":       "company",
	"organization":  "company",
	"job_title":     "job_title",
	"title":         "job_title",
	"location":      "location",
	"city":          "location",
	"ip_address":    "ip_address",
	"ip":            "ip_address",
}

// ImportCSV streams rows from r into site siteID. The first row must be a
// header; unrecognized columns land in extra_data. Rows without an email are
// reported and skipped, never aborting the run.
func (im *Importer) ImportCSV(ctx context.Context, siteID string, r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read header")
	}

	report := &Report{}
	line := 1
	for {
		if ctx.Err() != nil {
			return report, eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, RowError{Line: line, Err: err.Error()})
			report.Skipped++
			continue
		}
		im.importRow(ctx, siteID, header, record, line, report)
	}
	return report, nil
}

func (im *Importer) importRow(ctx context.Context, siteID string, header, record []string, line int, report *Report) {
	fields := map[string]string{}
	extra := model.ExtraData{}
	for i, col := range header {
		if i >= len(record) {
			break
		}
		val := strings.TrimSpace(record[i])
		if val == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(col))
		if canonical, ok := columnAliases[key]; ok {
			fields[canonical] = val
		} else if key != "" {
			extra[key] = val
		}
	}

	email := model.NormalizeEmail(fields["email"])
	if email == "" {
		report.Errors = append(report.Errors, RowError{Line: line, Err: "missing email"})
		report.Skipped++
		return
	}

	created, err := im.upsert(ctx, siteID, email, fields, extra)
	if err != nil {
		zap.L().Warn("import row failed",
			zap.Int("line", line), zap.String("email", email), zap.Error(err))
		report.Errors = append(report.Errors, RowError{Line: line, Err: err.Error()})
		report.Skipped++
		return
	}
	if created {
		report.Created++
	} else {
		report.Updated++
	}
}

// upsert creates or refreshes the (site, email) enrichment record.
// Existing values are only overwritten by non-empty incoming ones; the IP
// signal set grows append-only.
func (im *Importer) upsert(ctx context.Context, siteID, email string, fields map[string]string, extra model.ExtraData) (created bool, err error) {
	now := time.Now().UTC()
	enr, err := im.store.FindEnrichmentByEmail(ctx, siteID, email)
	if err != nil {
		return false, err
	}
	if enr == nil {
		enr = &model.EnrichmentData{
			ID:        uuid.New().String(),
			SiteID:    siteID,
			Email:     email,
			Source:    model.SourceCSVUpload,
			CreatedAt: now,
			UpdatedAt: now,
		}
		applyFields(enr, fields, extra)
		return true, im.store.CreateEnrichment(ctx, enr)
	}

	applyFields(enr, fields, extra)
	enr.UpdatedAt = now
	return false, im.store.UpdateEnrichment(ctx, enr)
}

func applyFields(enr *model.EnrichmentData, fields map[string]string, extra model.ExtraData) {
	set := func(dst *string, key string) {
		if v := fields[key]; v != "" {
			*dst = v
		}
	}
	set(&enr.FirstName, "first_name")
	set(&enr.LastName, "last_name")
	set(&enr.Phone, "phone")
	set(&enr.LinkedInURL, "linkedin_url")
	set(&enr.FacebookURL, "facebook_url")
	set(&enr.TwitterURL, "twitter_url")
	set(&enr.Company, "company")
	set(&enr.JobTitle, "job_title")
	set(&enr.Location, "location")

	enr.AddIPAddress(fields["ip_address"])
	enr.AddPhoneNumber(fields["phone"])

	if len(extra) > 0 {
		if enr.ExtraData == nil {
			enr.ExtraData = model.ExtraData{}
		}
		enr.ExtraData.Merge(extra)
	}
}

// Summary renders a one-line human summary for CLI output.
func (r *Report) Summary() string {
	return fmt.Sprintf("created=%d updated=%d skipped=%d errors=%d",
		r.Created, r.Updated, r.Skipped, len(r.Errors))
}
