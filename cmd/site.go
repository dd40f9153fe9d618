package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/trackd/internal/model"
	"github.com/sells-group/trackd/internal/store"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Manage tracked sites and API keys",
}

var (
	siteCreateName   string
	siteCreateDomain string
)

var siteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a site and issue its first API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		site, key, err := createSite(cmd, st, siteCreateName, siteCreateDomain)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "site_id:  %s\nsite_key: %s\napi_key:  %s\n",
			site.ID, site.SiteKey, key.Key)
		return nil
	},
}

var siteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sites, err := st.ListSites(ctx, false)
		if err != nil {
			return err
		}
		for _, s := range sites {
			status := "active"
			if !s.IsActive {
				status = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s %-25s %s\n", s.ID, s.Domain, s.Name, status)
		}
		return nil
	},
}

var siteSeedFile string

// seedFile is the YAML fixture format for site seed.
type seedFile struct {
	Sites []struct {
		Name       string `yaml:"name"`
		Domain     string `yaml:"domain"`
		Enrichment []struct {
			Email       string   `yaml:"email"`
			FirstName   string   `yaml:"first_name"`
			LastName    string   `yaml:"last_name"`
			Phone       string   `yaml:"phone"`
			Company     string   `yaml:"company"`
			IPAddresses []string `yaml:"ip_addresses"`
		} `yaml:"enrichment"`
	} `yaml:"sites"`
}

var siteSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create sites and enrichment records from a YAML fixture",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(siteSeedFile)
		if err != nil {
			return eris.Wrap(err, "read seed file")
		}
		var seed seedFile
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return eris.Wrap(err, "parse seed file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, def := range seed.Sites {
			site, key, err := createSite(cmd, st, def.Name, def.Domain)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			for _, rec := range def.Enrichment {
				email := model.NormalizeEmail(rec.Email)
				if email == "" {
					continue
				}
				enr := &model.EnrichmentData{
					ID:        uuid.New().String(),
					SiteID:    site.ID,
					Email:     email,
					FirstName: rec.FirstName,
					LastName:  rec.LastName,
					Phone:     rec.Phone,
					Company:   rec.Company,
					Source:    model.SourceManual,
					CreatedAt: now,
					UpdatedAt: now,
				}
				for _, ip := range rec.IPAddresses {
					enr.AddIPAddress(ip)
				}
				enr.AddPhoneNumber(rec.Phone)
				if err := st.CreateEnrichment(ctx, enr); err != nil {
					return err
				}
			}
			zap.L().Info("seeded site",
				zap.String("domain", site.Domain),
				zap.Int("enrichment", len(def.Enrichment)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s  site_key=%s api_key=%s\n",
				site.Domain, site.SiteKey, key.Key)
		}
		return nil
	},
}

func createSite(cmd *cobra.Command, st store.Store, name, domain string) (*model.Site, *model.APIKey, error) {
	if name == "" || domain == "" {
		return nil, nil, eris.New("site name and domain are required")
	}
	ctx := cmd.Context()
	now := time.Now().UTC()

	site := &model.Site{
		ID:        uuid.New().String(),
		Name:      name,
		Domain:    domain,
		SiteKey:   uuid.New().String(),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := st.CreateSite(ctx, site); err != nil {
		return nil, nil, err
	}

	key := &model.APIKey{
		ID:        uuid.New().String(),
		SiteID:    site.ID,
		Name:      "default",
		Key:       model.NewAPIKeySecret(),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		return nil, nil, err
	}
	return site, key, nil
}

func init() {
	siteCreateCmd.Flags().StringVar(&siteCreateName, "name", "", "display name (required)")
	siteCreateCmd.Flags().StringVar(&siteCreateDomain, "domain", "", "tracked domain (required)")
	_ = siteCreateCmd.MarkFlagRequired("name")
	_ = siteCreateCmd.MarkFlagRequired("domain")

	siteSeedCmd.Flags().StringVar(&siteSeedFile, "file", "", "path to YAML seed file (required)")
	_ = siteSeedCmd.MarkFlagRequired("file")

	siteCmd.AddCommand(siteCreateCmd, siteListCmd, siteSeedCmd)
	rootCmd.AddCommand(siteCmd)
}
