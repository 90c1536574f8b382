package merchant

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kashisync/kashisync/pkg/crawler/dev"
	"github.com/kashisync/kashisync/pkg/crawler/site"
	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/spf13/viper"
)

const testConfig = `
merchants:
  kyoto:
    group_name: Kyoto Sweets
    key_prefix: KW
    min_price: 1000
    title_prefix: "[Kyoto] "
    deletion_policy: draft
    recheck_stock: true
    tags: [wagashi, kyoto]
    rates:
      shipping_per_kg: 1500
    site:
      list_url: https://shop.example.jp/list
      id_pattern: '/items/([0-9]+)'
      request_delay: 800ms
      selectors:
        item_link: a.item
        price: .price
  demo:
    crawler: dev
`

func load(t *testing.T, cfg string) (Registry, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(cfg)); err != nil {
		t.Fatal(err)
	}
	return Load(v)
}

func TestLoad(t *testing.T) {
	reg, err := load(t, testConfig)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"demo", "kyoto"}) {
		t.Fatalf("names = %v", got)
	}

	kyoto, err := reg.Get("kyoto")
	if err != nil {
		t.Fatal(err)
	}
	if kyoto.Site.RequestDelay != 800*time.Millisecond || kyoto.Site.Selectors.ItemLink != "a.item" || kyoto.Site.Name != "kyoto" {
		t.Fatalf("site config not decoded: %+v", kyoto.Site)
	}

	cfg := kyoto.EngineConfig()
	want := reconcile.Config{
		Merchant:                          "kyoto",
		GroupName:                         "Kyoto Sweets",
		KeyPrefix:                         "KW",
		MinPrice:                          1000,
		TitlePrefix:                       "[Kyoto] ",
		Tags:                              []string{"wagashi", "kyoto"},
		MaxConsecutiveTranslationFailures: 3,
		DeletionPolicy:                    reconcile.PolicyDraft,
		RecheckStock:                      true,
		EmptySourceGuard:                  10,
	}
	want.Rates.ShippingPerKg = 1500
	want.Rates.MarginDivisor = 0.70
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("got %+v\nwant %+v", cfg, want)
	}

	c, err := kyoto.NewCrawler()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*site.Crawler); !ok {
		t.Fatalf("expected site crawler, got %T", c)
	}

	demo, _ := reg.Get("demo")
	if demo.GroupName != "demo" || demo.DeletionPolicy != "delete" {
		t.Fatalf("defaults not applied: %+v", demo)
	}
	c, err = demo.NewCrawler()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*dev.Crawler); !ok {
		t.Fatalf("expected dev crawler, got %T", c)
	}

	if _, err := reg.Get("osaka"); !errors.Is(err, ErrUnknownMerchant) {
		t.Fatalf("expected ErrUnknownMerchant, got %v", err)
	}
}

func TestLoadRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name string
		cfg  string
	}{
		{"bad policy", "merchants:\n  x:\n    crawler: dev\n    deletion_policy: archive\n"},
		{"missing site", "merchants:\n  x:\n    group_name: X\n"},
		{"unknown crawler", "merchants:\n  x:\n    crawler: ftp\n"},
		{"negative floor", "merchants:\n  x:\n    crawler: dev\n    min_price: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(t, tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
