package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/kashisync/kashisync/pkg/merchant"
	"github.com/kashisync/kashisync/pkg/runner"
	"github.com/kashisync/kashisync/pkg/storage"
	"github.com/kashisync/kashisync/pkg/storefront/shopify"
	"github.com/kashisync/kashisync/pkg/translate"
	"github.com/spf13/viper"
)

// openDB opens the ledger database, creating its directory on first use.
func openDB() (*storage.DB, string, error) {
	path, err := utils.GetAbsDBPath(viper.GetString("db.path"))
	if err != nil {
		return nil, "", fmt.Errorf("could not get absolute db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

func loadMerchants() (merchant.Registry, error) {
	reg, err := merchant.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if len(reg) == 0 {
		return nil, fmt.Errorf("no merchants configured; add them under \"merchants\" in %s", viper.ConfigFileUsed())
	}
	return reg, nil
}

type factoryOptions struct {
	store  string // shopify | local
	dryRun bool
	db     *storage.DB
	// dryRuns collects the dry-run stores handed out, for reporting.
	dryRuns map[string]*catalog.DryRun
}

func newFactory(o *factoryOptions) (runner.Factory, error) {
	switch o.store {
	case "shopify", "local":
	default:
		return nil, fmt.Errorf("unknown store %q (use shopify or local)", o.store)
	}
	return func(p merchant.Profile) (runner.Deps, error) {
		c, err := p.NewCrawler()
		if err != nil {
			return runner.Deps{}, err
		}

		tcfg, err := translatorConfig()
		if err != nil {
			return runner.Deps{}, err
		}
		if p.Crawler == "dev" && tcfg.APIKey == "" {
			tcfg.Provider = "passthrough"
		}
		tr, err := translate.New(tcfg)
		if err != nil {
			return runner.Deps{}, err
		}

		var store catalog.Store
		if o.store == "local" {
			store = o.db.Catalog()
		} else {
			scfg, err := shopifyConfig()
			if err != nil {
				return runner.Deps{}, err
			}
			store, err = shopify.New(scfg)
			if err != nil {
				return runner.Deps{}, err
			}
		}
		if o.dryRun {
			d := catalog.NewDryRun(store)
			if o.dryRuns != nil {
				o.dryRuns[p.Name] = d
			}
			store = d
		}
		return runner.Deps{Crawler: c, Translator: tr, Store: store}, nil
	}, nil
}

// translatorConfig decodes the translator section. UnmarshalKey does not see values
// bound with BindEnv under a nested key, so credentials are read back with GetString.
func translatorConfig() (translate.Config, error) {
	var cfg translate.Config
	if err := viper.UnmarshalKey("translator", &cfg); err != nil {
		return cfg, fmt.Errorf("decode translator config: %w", err)
	}
	cfg.APIKey = viper.GetString("translator.api_key")
	return cfg, nil
}

// shopifyConfig decodes the shopify section, with Shop and AccessToken resolved the
// same way as in translatorConfig.
func shopifyConfig() (shopify.Config, error) {
	var cfg shopify.Config
	if err := viper.UnmarshalKey("shopify", &cfg); err != nil {
		return cfg, fmt.Errorf("decode shopify config: %w", err)
	}
	cfg.Shop = viper.GetString("shopify.shop")
	cfg.AccessToken = viper.GetString("shopify.access_token")
	return cfg, nil
}
