package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trackd/internal/importer"
)

var (
	importSiteID string
	importFile   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import enrichment records from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		site, err := st.GetSite(ctx, importSiteID)
		if err != nil {
			return err
		}
		if site == nil {
			return eris.Errorf("site %s not found", importSiteID)
		}

		im := importer.New(st)
		var report *importer.Report
		switch strings.ToLower(filepath.Ext(importFile)) {
		case ".xlsx":
			report, err = im.ImportXLSX(ctx, site.ID, importFile)
		default:
			f, openErr := os.Open(importFile)
			if openErr != nil {
				return eris.Wrap(openErr, "open import file")
			}
			defer f.Close()
			report, err = im.ImportCSV(ctx, site.ID, f)
		}
		if err != nil {
			return eris.Wrap(err, "import")
		}

		for _, rowErr := range report.Errors {
			zap.L().Warn("rejected row",
				zap.Int("line", rowErr.Line), zap.String("error", rowErr.Err))
		}
		zap.L().Info("import complete",
			zap.String("site", site.Domain),
			zap.String("file", importFile),
			zap.String("result", report.Summary()),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSiteID, "site", "", "site ID to import into (required)")
	importCmd.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
	_ = importCmd.MarkFlagRequired("site")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
