package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/monitoring"
	"github.com/sells-group/trackd/internal/store"
)

// Identification carries the inputs to a resolution: at minimum an email,
// plus whatever else the identify payload or matcher supplied.
type Identification struct {
	Email string
	Name  string
	Phone string
	Extra model.ExtraData

	// Enrichment is an already-matched record, set by the matcher paths.
	// When nil the resolver looks one up (or creates one) by email.
	Enrichment *model.EnrichmentData

	// MatchedVia records how the visitor was linked. Defaults to email,
	// which is what an explicit identify event means.
	MatchedVia string
}

// Resolver promotes visitors to contacts. All writes for one resolution
// happen in a single store transaction so partial identification is never
// observable.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve links the visitor to a contact for in.Email, creating or updating
// contact and enrichment rows as needed and marking the visitor identified.
//
// A visitor that already has a contact gets an in-place update, email change
// included. Otherwise the contact is found or created by (site, email); a
// contact already linked to a different visitor is re-linked to this one,
// last writer wins.
func (r *Resolver) Resolve(ctx context.Context, visitorID string, in Identification) (*model.Contact, error) {
	email := model.NormalizeEmail(in.Email)
	if email == "" && in.Enrichment != nil {
		email = model.NormalizeEmail(in.Enrichment.Email)
	}
	if email == "" {
		return nil, eris.New("identity: resolve requires an email")
	}
	if in.MatchedVia == "" {
		in.MatchedVia = model.MatchedViaEmail
	}

	var contact *model.Contact
	err := r.store.WithTx(ctx, func(tx store.Store) error {
		v, err := tx.GetVisitor(ctx, visitorID)
		if err != nil {
			return err
		}
		if v == nil {
			return eris.Errorf("identity: visitor %s not found", visitorID)
		}
		now := time.Now().UTC()

		enr, err := r.ensureEnrichment(ctx, tx, v, email, in, now)
		if err != nil {
			return err
		}

		contact, err = tx.FindContactByVisitor(ctx, v.ID)
		if err != nil {
			return err
		}
		switch {
		case contact != nil:
			contact.Email = email
			contact.Name = firstNonEmpty(in.Name, contact.Name)
			contact.Phone = firstNonEmpty(in.Phone, contact.Phone)
			contact.EnrichmentID = enr.ID
			contact.ExtraData = mergedExtra(contact.ExtraData, in.Extra, v)
			contact.UpdatedAt = now
			if err := tx.UpdateContact(ctx, contact); err != nil {
				return err
			}

		default:
			contact, err = tx.FindContactByEmail(ctx, v.SiteID, email)
			if err != nil {
				return err
			}
			if contact != nil {
				if contact.VisitorID != "" && contact.VisitorID != v.ID {
					zap.L().Info("re-linking contact to new visitor",
						zap.String("contact_id", contact.ID),
						zap.String("old_visitor", contact.VisitorID),
						zap.String("new_visitor", v.ID))
				}
				contact.VisitorID = v.ID
				contact.Name = firstNonEmpty(in.Name, contact.Name)
				contact.Phone = firstNonEmpty(in.Phone, contact.Phone)
				contact.EnrichmentID = enr.ID
				contact.ExtraData = mergedExtra(contact.ExtraData, in.Extra, v)
				contact.UpdatedAt = now
				if err := tx.UpdateContact(ctx, contact); err != nil {
					return err
				}
			} else {
				contact = &model.Contact{
					ID:           uuid.New().String(),
					SiteID:       v.SiteID,
					VisitorID:    v.ID,
					EnrichmentID: enr.ID,
					Email:        email,
					Name:         firstNonEmpty(in.Name, enr.FullName()),
					Phone:        firstNonEmpty(in.Phone, enr.Phone),
					LinkedInURL:  enr.LinkedInURL,
					FacebookURL:  enr.FacebookURL,
					ExtraData:    mergedExtra(nil, in.Extra, v),
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := tx.CreateContact(ctx, contact); err != nil {
					return err
				}
			}
		}

		// Identification is marked last so a failed write above leaves the
		// visitor cleanly unidentified.
		v.IsIdentified = true
		v.MatchedVia = in.MatchedVia
		return tx.UpdateVisitor(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	monitoring.VisitorsIdentified.WithLabelValues(in.MatchedVia).Inc()
	return contact, nil
}

// ensureEnrichment finds or creates the (site, email) enrichment record and
// back-writes the visitor's current signals into it. Every append is
// idempotent; the row is only persisted when something actually changed.
func (r *Resolver) ensureEnrichment(ctx context.Context, tx store.Store, v *model.Visitor, email string, in Identification, now time.Time) (*model.EnrichmentData, error) {
	enr := in.Enrichment
	if enr == nil || model.NormalizeEmail(enr.Email) != email {
		var err error
		enr, err = tx.FindEnrichmentByEmail(ctx, v.SiteID, email)
		if err != nil {
			return nil, err
		}
	}

	if enr == nil {
		first, last := splitName(in.Name)
		enr = &model.EnrichmentData{
			ID:        uuid.New().String(),
			SiteID:    v.SiteID,
			Email:     email,
			FirstName: first,
			LastName:  last,
			Phone:     in.Phone,
			Source:    model.SourceIdentification,
			CreatedAt: now,
			UpdatedAt: now,
		}
		appendSignals(enr, v, in.Phone)
		return enr, tx.CreateEnrichment(ctx, enr)
	}

	if appendSignals(enr, v, in.Phone) {
		enr.UpdatedAt = now
		if err := tx.UpdateEnrichment(ctx, enr); err != nil {
			return nil, err
		}
	}
	return enr, nil
}

func appendSignals(enr *model.EnrichmentData, v *model.Visitor, phone string) bool {
	changed := enr.AddIPAddress(v.IPAddress)
	if enr.AddUserAgent(v.UserAgent) {
		changed = true
	}
	if enr.AddFingerprint(v.Fingerprint()) {
		changed = true
	}
	if enr.AddPhoneNumber(phone) {
		changed = true
	}
	return changed
}

// mergedExtra layers identify-payload extras and the visitor snapshot over
// the contact's existing extra data.
func mergedExtra(existing model.ExtraData, extra model.ExtraData, v *model.Visitor) model.ExtraData {
	out := existing.Clone()
	out.Merge(extra)
	snapshot := model.ExtraData{}
	for k, val := range map[string]string{
		"ip_address":  v.IPAddress,
		"user_agent":  v.UserAgent,
		"browser":     v.BrowserName,
		"os":          v.OSName,
		"device_type": v.DeviceType,
	} {
		if val != "" {
			snapshot[k] = val
		}
	}
	snapshot["last_seen"] = v.LastSeen.UTC().Format(time.RFC3339)
	out.Merge(snapshot)
	return out
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
