package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/identity"
)

var (
	reconcileSiteID string
	reconcileDryRun bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match unidentified visitors against enrichment records",
	Long:  "Sweeps unidentified visitors with the full three-tier matcher (fingerprint, user agent, IP) and promotes matches to contacts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		resolver := identity.NewResolver(st)
		report, err := resolver.Reconcile(ctx, identity.ReconcileOptions{
			SiteID:  reconcileSiteID,
			DryRun:  reconcileDryRun,
			Workers: cfg.Reconcile.Workers,
		})
		if err != nil {
			return err
		}

		zap.L().Info("reconcile complete",
			zap.Int("sites", report.Sites),
			zap.Int64("scanned", report.Scanned),
			zap.Int64("matched", report.Matched),
			zap.Int64("resolved", report.Resolved),
			zap.Int64("failed", report.Failed),
			zap.Bool("dry_run", report.DryRun),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileSiteID, "site", "", "limit to one site ID (default: all active sites)")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "report matches without writing")
	rootCmd.AddCommand(reconcileCmd)
}
