package identity

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

const reconcileBatchSize = 500

// ReconcileOptions controls a reconciliation sweep.
type ReconcileOptions struct {
	// SiteID limits the sweep to one site; empty sweeps all active sites.
	SiteID string
	// DryRun reports intended matches without writing anything.
	DryRun bool
	// Workers bounds concurrent resolutions per site. Defaults to 4.
	Workers int
}

// ReconcileReport tallies one sweep.
type ReconcileReport struct {
	Sites    int
	Scanned  int64
	Matched  int64
	Resolved int64
	Failed   int64
	DryRun   bool
}

// Reconcile sweeps unidentified visitors with the full three-tier matcher
// and resolves every hit. Per-visitor failures are counted and logged but
// never abort the sweep; it is safe to run alongside live ingestion because
// each resolution is its own transaction.
func (r *Resolver) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	var sites []model.Site
	if opts.SiteID != "" {
		site, err := r.store.GetSite(ctx, opts.SiteID)
		if err != nil {
			return nil, err
		}
		if site == nil {
			return nil, eris.Errorf("identity: site %s not found", opts.SiteID)
		}
		sites = []model.Site{*site}
	} else {
		var err error
		sites, err = r.store.ListSites(ctx, true)
		if err != nil {
			return nil, err
		}
	}

	report := &ReconcileReport{Sites: len(sites), DryRun: opts.DryRun}
	for _, site := range sites {
		if err := r.reconcileSite(ctx, site, opts, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (r *Resolver) reconcileSite(ctx context.Context, site model.Site, opts ReconcileOptions, report *ReconcileReport) error {
	records, err := r.store.ListEnrichment(ctx, site.ID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	// Snapshot the unidentified set up front: resolving mutates the filter
	// the pagination runs on, so listing and writing must not interleave.
	unidentified := false
	var visitors []model.Visitor
	for offset := 0; ; offset += reconcileBatchSize {
		page, err := r.store.ListVisitors(ctx, store.VisitorFilter{
			SiteID:     site.ID,
			Identified: &unidentified,
			Limit:      reconcileBatchSize,
			Offset:     offset,
		})
		if err != nil {
			return err
		}
		visitors = append(visitors, page...)
		if len(page) < reconcileBatchSize {
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range visitors {
		v := visitors[i]
		g.Go(func() error {
			atomic.AddInt64(&report.Scanned, 1)
			m := MatchVisitor(&v, records, ScopeFull)
			if m == nil {
				return nil
			}
			atomic.AddInt64(&report.Matched, 1)
			if opts.DryRun {
				zap.L().Info("reconcile: would resolve",
					zap.String("site_id", site.ID),
					zap.String("visitor_id", v.ID),
					zap.String("matched_via", m.MatchedVia),
					zap.String("email", m.Record.Email))
				return nil
			}
			_, err := r.Resolve(gctx, v.ID, Identification{
				Email:      m.Record.Email,
				Enrichment: m.Record,
				MatchedVia: m.MatchedVia,
			})
			if err != nil {
				atomic.AddInt64(&report.Failed, 1)
				zap.L().Warn("reconcile: resolve failed",
					zap.String("site_id", site.ID),
					zap.String("visitor_id", v.ID),
					zap.Error(err))
				return nil
			}
			atomic.AddInt64(&report.Resolved, 1)
			return nil
		})
	}
	return g.Wait()
}
