package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/model"
)

// Recover repairs a visitor that is flagged identified but has no contact,
// which happens when a contact is re-linked away or deleted out of band.
// It first looks for an existing contact, then replays the visitor's newest
// identify event through Resolve. Best-effort: returns nil when the visitor
// cannot be recovered, never an error.
func (r *Resolver) Recover(ctx context.Context, v *model.Visitor) *model.Contact {
	if v == nil || !v.IsIdentified {
		return nil
	}

	c, err := r.store.FindContactByVisitor(ctx, v.ID)
	if err != nil {
		zap.L().Warn("recover: contact lookup failed",
			zap.String("visitor_id", v.ID), zap.Error(err))
		return nil
	}
	if c != nil {
		return c
	}

	ev, err := r.store.LatestIdentifyEvent(ctx, v.ID)
	if err != nil {
		zap.L().Warn("recover: identify event lookup failed",
			zap.String("visitor_id", v.ID), zap.Error(err))
		return nil
	}
	if ev == nil {
		zap.L().Info("recover: identified visitor has no identify event",
			zap.String("visitor_id", v.ID))
		return nil
	}

	in, ok := IdentificationFromPayload(ev.IdentifyPayload())
	if !ok {
		return nil
	}
	c, err = r.Resolve(ctx, v.ID, in)
	if err != nil {
		zap.L().Warn("recover: replayed resolve failed",
			zap.String("visitor_id", v.ID), zap.Error(err))
		return nil
	}
	zap.L().Info("recovered contact for identified visitor",
		zap.String("visitor_id", v.ID), zap.String("contact_id", c.ID))
	return c
}

// IdentificationFromPayload maps an identify event payload to resolver input.
// Known keys become typed fields; everything else rides along as extra data.
func IdentificationFromPayload(payload map[string]any) (Identification, bool) {
	email, _ := payload["email"].(string)
	if email == "" {
		return Identification{}, false
	}
	in := Identification{Email: email}
	in.Name, _ = payload["name"].(string)
	in.Phone, _ = payload["phone"].(string)
	for k, v := range payload {
		switch k {
		case "email", "name", "phone":
		default:
			if in.Extra == nil {
				in.Extra = model.ExtraData{}
			}
			in.Extra[k] = v
		}
	}
	return in, true
}
