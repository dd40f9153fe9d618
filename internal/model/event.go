package model

import "time"

// Event types accepted from the pixel.
const (
	EventPageView      = "page_view"
	EventCartView      = "cart_view"
	EventCartAdd       = "cart_add"
	EventCheckoutStart = "checkout_start"
	EventPurchase      = "purchase"
	EventFormSubmit    = "form_submit"
	EventCustom        = "custom"

	EventProductView         = "product_view"
	EventBrowseAbandonment   = "browse_abandonment"
	EventProductAbandonment  = "product_abandonment"
	EventCartAbandonment     = "cart_abandonment"
	EventCheckoutAbandonment = "checkout_abandonment"
)

// ValidEventType reports whether t is a recognized event type.
func ValidEventType(t string) bool {
	switch t {
	case EventPageView, EventCartView, EventCartAdd, EventCheckoutStart,
		EventPurchase, EventFormSubmit, EventCustom, EventProductView,
		EventBrowseAbandonment, EventProductAbandonment,
		EventCartAbandonment, EventCheckoutAbandonment:
		return true
	}
	return false
}

// Event is an append-only tracking fact. Never mutated after creation.
type Event struct {
	ID        string `json:"id" db:"id"`
	SiteID    string `json:"site_id" db:"site_id"`
	VisitorID string `json:"visitor_id" db:"visitor_id"`

	EventType string `json:"event_type" db:"event_type"`
	EventName string `json:"event_name,omitempty" db:"event_name"`

	PageURL   string `json:"page_url" db:"page_url"`
	PageTitle string `json:"page_title,omitempty" db:"page_title"`
	Referrer  string `json:"referrer,omitempty" db:"referrer"`

	EventData ExtraData `json:"event_data"`

	// Last-touch attribution for this event.
	UTM UTMParams `json:"utm"`

	SessionID string    `json:"session_id,omitempty" db:"session_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// IdentifyPayload extracts the identity payload from a custom identify
// event. The pixel emits these as event_type=custom with
// event_data.event_name="identify" and the fields under
// event_data.identity_data. Returns nil when the event is not an identify
// event or carries no email.
func (e *Event) IdentifyPayload() map[string]any {
	if e.EventType != EventCustom || e.EventData == nil {
		return nil
	}
	name, _ := e.EventData["event_name"].(string)
	if name != "identify" {
		return nil
	}
	identity, _ := e.EventData["identity_data"].(map[string]any)
	if identity == nil {
		return nil
	}
	if email, _ := identity["email"].(string); email == "" {
		return nil
	}
	return identity
}
