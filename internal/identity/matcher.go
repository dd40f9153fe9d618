// Package identity implements visitor-to-contact resolution: matching
// anonymous visitors against per-site enrichment records, promoting matches
// to contacts, and repairing drift between the two.
package identity

import (
	"github.com/sells-group/trackd/internal/model"
)

// Scope restricts which matching tiers run.
type Scope int

const (
	// ScopeIPOnly runs only the IP membership tier. The live ingestion path
	// uses this scope: fingerprint and user-agent signals are too ambiguous
	// to auto-identify on every incoming event.
	ScopeIPOnly Scope = iota

	// ScopeFull runs all three tiers. Used by the reconciliation sweep.
	ScopeFull
)

// Match is a successful pairing of a visitor with an enrichment record.
type Match struct {
	Record     *model.EnrichmentData
	MatchedVia string
	// Signal is the concrete value that matched, for logging.
	Signal string
}

// MatchVisitor runs the tiered matcher over candidate enrichment records.
// Tier order is fingerprint tuple, user agent, IP address; the first hit wins
// and later tiers are not consulted. Within a tier the first candidate in
// list order wins, so callers must pass records in a stable order.
// Returns nil when nothing matches or the visitor is already identified.
func MatchVisitor(v *model.Visitor, records []model.EnrichmentData, scope Scope) *Match {
	if v.IsIdentified {
		return nil
	}

	if scope == ScopeFull {
		if fp := v.Fingerprint(); fp.Usable() {
			for i := range records {
				for _, stored := range records[i].BrowserFingerprints {
					if stored.Matches(fp) {
						return &Match{
							Record:     &records[i],
							MatchedVia: model.MatchedViaFingerprint,
							Signal:     fp.BrowserName + "/" + fp.OSName,
						}
					}
				}
			}
		}

		if v.UserAgent != "" {
			for i := range records {
				for _, ua := range records[i].UserAgents {
					if ua == v.UserAgent {
						return &Match{
							Record:     &records[i],
							MatchedVia: model.MatchedViaUserAgent,
							Signal:     ua,
						}
					}
				}
			}
		}
	}

	if v.IPAddress != "" {
		for i := range records {
			for _, ip := range records[i].IPAddresses {
				if ip == v.IPAddress {
					return &Match{
						Record:     &records[i],
						MatchedVia: model.MatchedViaIP,
						Signal:     ip,
					}
				}
			}
		}
	}

	return nil
}
