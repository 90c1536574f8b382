// Package merchant holds the per-merchant profiles that parameterize one reconciliation
// engine: which site to crawl, which storefront group to manage and the business rules.
package merchant

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kashisync/kashisync/pkg/crawler"
	"github.com/kashisync/kashisync/pkg/crawler/dev"
	"github.com/kashisync/kashisync/pkg/crawler/site"
	"github.com/kashisync/kashisync/pkg/pricing"
	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/spf13/viper"
)

// ErrUnknownMerchant is returned for a name with no profile.
var ErrUnknownMerchant = errors.New("unknown merchant")

// Profile is one merchant's configuration, decoded from merchants.<name>.
type Profile struct {
	Name        string        `mapstructure:"-" json:"name" yaml:"name"`
	Crawler     string        `mapstructure:"crawler" json:"crawler" yaml:"crawler"` // site | dev
	Site        site.Config   `mapstructure:"site" json:"-" yaml:"-"`
	GroupName   string        `mapstructure:"group_name" json:"group_name" yaml:"group_name"`
	KeyPrefix   string        `mapstructure:"key_prefix" json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	MinPrice    int           `mapstructure:"min_price" json:"min_price" yaml:"min_price"`
	Rates       pricing.Rates `mapstructure:"rates" json:"rates" yaml:"rates"`
	TitlePrefix string        `mapstructure:"title_prefix" json:"title_prefix,omitempty" yaml:"title_prefix,omitempty"`
	Vendor      string        `mapstructure:"vendor" json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Tags        []string      `mapstructure:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`

	MaxConsecutiveTranslationFailures int    `mapstructure:"max_consecutive_translation_failures" json:"max_consecutive_translation_failures" yaml:"max_consecutive_translation_failures"`
	DeletionPolicy                    string `mapstructure:"deletion_policy" json:"deletion_policy" yaml:"deletion_policy"`
	RecheckStock                      bool   `mapstructure:"recheck_stock" json:"recheck_stock" yaml:"recheck_stock"`
	EmptySourceGuard                  int    `mapstructure:"empty_source_guard" json:"empty_source_guard" yaml:"empty_source_guard"`
}

// WithDefaults fills unset fields.
func (p Profile) WithDefaults() Profile {
	if p.Crawler == "" {
		p.Crawler = "site"
	}
	if p.GroupName == "" {
		p.GroupName = p.Name
	}
	if p.DeletionPolicy == "" {
		p.DeletionPolicy = string(reconcile.PolicyDelete)
	}
	if p.MaxConsecutiveTranslationFailures <= 0 {
		p.MaxConsecutiveTranslationFailures = reconcile.DefaultMaxConsecutiveTranslationFailures
	}
	if p.EmptySourceGuard <= 0 {
		p.EmptySourceGuard = reconcile.DefaultEmptySourceGuard
	}
	if p.Site.Name == "" {
		p.Site.Name = p.Name
	}
	p.Rates = p.Rates.WithDefaults()
	return p
}

// Validate reports the first configuration problem.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("merchant name is required")
	}
	if strings.TrimSpace(p.GroupName) == "" {
		return fmt.Errorf("merchant %s: group_name is required", p.Name)
	}
	if p.MinPrice < 0 {
		return fmt.Errorf("merchant %s: min_price must not be negative", p.Name)
	}
	switch reconcile.Policy(p.DeletionPolicy) {
	case reconcile.PolicyDelete, reconcile.PolicyDraft:
	default:
		return fmt.Errorf("merchant %s: deletion_policy must be delete or draft, got %q", p.Name, p.DeletionPolicy)
	}
	switch p.Crawler {
	case "dev":
	case "site":
		if p.Site.ListURL == "" || p.Site.Selectors.ItemLink == "" {
			return fmt.Errorf("merchant %s: site.list_url and site.selectors.item_link are required", p.Name)
		}
	default:
		return fmt.Errorf("merchant %s: unknown crawler %q", p.Name, p.Crawler)
	}
	return nil
}

// EngineConfig maps the profile onto the reconciliation engine.
func (p Profile) EngineConfig() reconcile.Config {
	return reconcile.Config{
		Merchant:                          p.Name,
		GroupName:                         p.GroupName,
		KeyPrefix:                         p.KeyPrefix,
		MinPrice:                          p.MinPrice,
		Rates:                             p.Rates,
		TitlePrefix:                       p.TitlePrefix,
		Vendor:                            p.Vendor,
		Tags:                              p.Tags,
		MaxConsecutiveTranslationFailures: p.MaxConsecutiveTranslationFailures,
		DeletionPolicy:                    reconcile.Policy(p.DeletionPolicy),
		RecheckStock:                      p.RecheckStock,
		EmptySourceGuard:                  p.EmptySourceGuard,
	}
}

// NewCrawler builds the source crawler the profile names.
func (p Profile) NewCrawler() (crawler.Crawler, error) {
	switch p.Crawler {
	case "dev":
		return dev.New(), nil
	case "site", "":
		return site.New(p.Site)
	default:
		return nil, fmt.Errorf("unknown crawler %q", p.Crawler)
	}
}

// Registry indexes profiles by name.
type Registry map[string]Profile

// Load decodes and validates every profile under the merchants key.
func Load(v *viper.Viper) (Registry, error) {
	raw := map[string]Profile{}
	if err := v.UnmarshalKey("merchants", &raw); err != nil {
		return nil, fmt.Errorf("decode merchants: %w", err)
	}
	reg := make(Registry, len(raw))
	for name, p := range raw {
		p.Name = name
		p = p.WithDefaults()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		reg[name] = p
	}
	return reg, nil
}

// Get returns the named profile or ErrUnknownMerchant.
func (r Registry) Get(name string) (Profile, error) {
	p, ok := r[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownMerchant, name)
	}
	return p, nil
}

// Names returns the merchant names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
