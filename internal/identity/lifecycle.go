package identity

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/store"
)

// DeleteContact removes a contact and unwinds its identity links in one
// transaction: the linked visitor is reset to unidentified, and the
// enrichment record is deleted once no other contact references it.
func (r *Resolver) DeleteContact(ctx context.Context, contactID string) error {
	return r.store.WithTx(ctx, func(tx store.Store) error {
		c, err := tx.GetContact(ctx, contactID)
		if err != nil {
			return err
		}
		if c == nil {
			return eris.Errorf("identity: contact %s not found", contactID)
		}

		if c.VisitorID != "" {
			v, err := tx.GetVisitor(ctx, c.VisitorID)
			if err != nil {
				return err
			}
			if v != nil {
				v.IsIdentified = false
				v.MatchedVia = ""
				if err := tx.UpdateVisitor(ctx, v); err != nil {
					return err
				}
			}
		}

		if err := tx.DeleteContact(ctx, c.ID); err != nil {
			return err
		}

		if c.EnrichmentID != "" {
			n, err := tx.CountContactsByEnrichment(ctx, c.EnrichmentID)
			if err != nil {
				return err
			}
			if n == 0 {
				zap.L().Info("deleting orphaned enrichment record",
					zap.String("enrichment_id", c.EnrichmentID),
					zap.String("contact_id", c.ID))
				if err := tx.DeleteEnrichment(ctx, c.EnrichmentID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}
