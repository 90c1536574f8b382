// Package shopify implements catalog.Store on the Shopify Admin REST API.
package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/kashisync/kashisync/pkg/whttp"
	"github.com/tidwall/gjson"
)

const (
	defaultAPIVersion   = "2024-01"
	defaultTimeout      = 30 * time.Second
	defaultRequestDelay = 500 * time.Millisecond
	pageLimit           = 250
	metafieldNamespace  = "kashisync"
)

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Config holds the store credentials.
type Config struct {
	Shop         string        `mapstructure:"shop"` // example.myshopify.com
	AccessToken  string        `mapstructure:"access_token"`
	APIVersion   string        `mapstructure:"api_version"`
	BaseURL      string        `mapstructure:"base_url"` // overrides Shop/APIVersion
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Store talks to one Shopify shop.
type Store struct {
	base     string
	token    string
	reads    *retryablehttp.Client
	writes   *retryablehttp.Client
	throttle *whttp.Throttle
}

var _ catalog.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("shopify requires an access token (set shopify.access_token in config or SHOPIFY_ACCESS_TOKEN)")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		shop := strings.TrimSpace(cfg.Shop)
		if shop == "" {
			return nil, errors.New("shopify requires a shop domain (set shopify.shop)")
		}
		shop = strings.TrimPrefix(strings.TrimPrefix(shop, "https://"), "http://")
		version := cfg.APIVersion
		if version == "" {
			version = defaultAPIVersion
		}
		base = "https://" + strings.TrimRight(shop, "/") + "/admin/api/" + version
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = defaultRequestDelay
	}
	// writes are not idempotent, so a failed create is never replayed
	return &Store{
		base:     base,
		token:    token,
		reads:    whttp.NewClient(whttp.ClientOptions{Timeout: timeout, RetryMax: 2, Backoff: 2 * time.Second}),
		writes:   whttp.NewClient(whttp.ClientOptions{Timeout: timeout}),
		throttle: whttp.NewThrottle(delay),
	}, nil
}

func (s *Store) do(ctx context.Context, method, rawURL string, body interface{}) (*whttp.WHTTPRes, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	req := &whttp.WHTTPReq{
		URL:    rawURL,
		Method: method,
		Headers: []whttp.WHTTPHeader{
			{Name: "X-Shopify-Access-Token", Value: s.token},
			{Name: "Accept", Value: "application/json"},
		},
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req.Body = string(b)
		req.Headers = append(req.Headers, whttp.WHTTPHeader{Name: "Content-Type", Value: "application/json"})
	}
	client := s.writes
	if method == http.MethodGet {
		client = s.reads
	}
	res, err := whttp.SendHTTPRequest(ctx, req, client)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound {
		return res, fmt.Errorf("%s %s: %w", method, rawURL, catalog.ErrNotFound)
	}
	if err := whttp.CheckStatus("shopify "+method+" "+rawURL, res); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Store) ListAll(ctx context.Context) ([]catalog.TargetRecord, error) {
	return s.listProducts(ctx, s.base+"/products.json?limit="+strconv.Itoa(pageLimit)+"&fields=id,title,status,variants", "")
}

func (s *Store) ListGroup(ctx context.Context, groupID string) ([]catalog.TargetRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(pageLimit))
	q.Set("collection_id", groupID)
	q.Set("fields", "id,title,status,variants")
	return s.listProducts(ctx, s.base+"/products.json?"+q.Encode(), groupID)
}

// listProducts follows Link rel="next" headers until exhausted.
func (s *Store) listProducts(ctx context.Context, pageURL, groupID string) ([]catalog.TargetRecord, error) {
	var out []catalog.TargetRecord
	for page := 1; pageURL != ""; page++ {
		res, err := s.do(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		products := gjson.Get(res.BodyString, "products")
		if !products.IsArray() {
			return nil, fmt.Errorf("shopify products page %d: unexpected body", page)
		}
		products.ForEach(func(_, p gjson.Result) bool {
			r := catalog.TargetRecord{
				ID:     p.Get("id").String(),
				SKU:    p.Get("variants.0.sku").String(),
				Title:  p.Get("title").String(),
				Status: catalog.Status(p.Get("status").String()),
			}
			if groupID != "" {
				r.GroupIDs = []string{groupID}
			}
			out = append(out, r)
			return true
		})
		utils.Log.Debugf("[shopify] page %d: %d products so far", page, len(out))
		pageURL = nextLink(res.Header.Get("Link"))
	}
	return out, nil
}

func nextLink(header string) string {
	m := nextLinkRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

type productVariant struct {
	SKU                 string  `json:"sku"`
	Price               string  `json:"price"`
	Weight              float64 `json:"weight"`
	WeightUnit          string  `json:"weight_unit"`
	InventoryManagement *string `json:"inventory_management"`
	RequiresShipping    bool    `json:"requires_shipping"`
}

type productImage struct {
	Src string `json:"src"`
}

type metafield struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

type product struct {
	Title          string           `json:"title"`
	BodyHTML       string           `json:"body_html"`
	Vendor         string           `json:"vendor,omitempty"`
	Tags           string           `json:"tags,omitempty"`
	Status         string           `json:"status"`
	Variants       []productVariant `json:"variants"`
	Images         []productImage   `json:"images,omitempty"`
	SEOTitle       string           `json:"metafields_global_title_tag,omitempty"`
	SEODescription string           `json:"metafields_global_description_tag,omitempty"`
	Metafields     []metafield      `json:"metafields,omitempty"`
}

// Create publishes l and adds it to its group. When the group assignment fails the
// product is removed again so it cannot linger outside the managed group.
func (s *Store) Create(ctx context.Context, l catalog.Listing) (catalog.TargetRecord, error) {
	status := l.Status
	if status == "" {
		status = catalog.StatusActive
	}
	var collectionID int64
	if l.GroupID != "" {
		var err error
		if collectionID, err = strconv.ParseInt(l.GroupID, 10, 64); err != nil {
			return catalog.TargetRecord{}, fmt.Errorf("shopify create %s: invalid collection id %q", l.SKU, l.GroupID)
		}
	}
	p := product{
		Title:          l.Title,
		BodyHTML:       l.Description,
		Vendor:         l.Vendor,
		Tags:           strings.Join(l.Tags, ", "),
		Status:         string(status),
		SEOTitle:       l.SEOTitle,
		SEODescription: l.SEODescription,
		Variants: []productVariant{{
			SKU:              l.SKU,
			Price:            strconv.Itoa(l.Price),
			Weight:           l.WeightKg,
			WeightUnit:       "kg",
			RequiresShipping: true,
		}},
	}
	for _, img := range l.Images {
		p.Images = append(p.Images, productImage{Src: img})
	}
	if l.SourceURL != "" {
		p.Metafields = []metafield{{Namespace: metafieldNamespace, Key: "source_url", Value: l.SourceURL, Type: "url"}}
	}

	res, err := s.do(ctx, http.MethodPost, s.base+"/products.json", map[string]interface{}{"product": p})
	if err != nil {
		return catalog.TargetRecord{}, err
	}
	id := gjson.Get(res.BodyString, "product.id").String()
	if id == "" {
		return catalog.TargetRecord{}, fmt.Errorf("shopify create %s: response has no product id", l.SKU)
	}
	rec := catalog.TargetRecord{ID: id, SKU: l.SKU, Title: l.Title, Status: status}

	if l.GroupID != "" {
		productID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return catalog.TargetRecord{}, fmt.Errorf("shopify create %s: invalid product id %q", l.SKU, id)
		}
		_, err = s.do(ctx, http.MethodPost, s.base+"/collects.json", map[string]interface{}{
			"collect": map[string]int64{"product_id": productID, "collection_id": collectionID},
		})
		if err != nil {
			if derr := s.Delete(ctx, id); derr != nil {
				utils.Log.Warnf("[shopify] product %s created outside its group and could not be removed: %v", id, derr)
			}
			return catalog.TargetRecord{}, fmt.Errorf("add %s to collection %s: %w", l.SKU, l.GroupID, err)
		}
		rec.GroupIDs = []string{l.GroupID}
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodDelete, s.base+"/products/"+url.PathEscape(id)+".json", nil)
	return err
}

func (s *Store) SetStatus(ctx context.Context, id string, status catalog.Status) error {
	productID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product id %q: %w", id, catalog.ErrNotFound)
	}
	_, err = s.do(ctx, http.MethodPut, s.base+"/products/"+id+".json", map[string]interface{}{
		"product": map[string]interface{}{"id": productID, "status": string(status)},
	})
	return err
}

// EnsureGroup returns the id of the custom collection titled name, creating it when
// missing.
func (s *Store) EnsureGroup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("collection name is required")
	}
	q := url.Values{}
	q.Set("title", name)
	q.Set("fields", "id,title")
	res, err := s.do(ctx, http.MethodGet, s.base+"/custom_collections.json?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var id string
	gjson.Get(res.BodyString, "custom_collections").ForEach(func(_, c gjson.Result) bool {
		if strings.EqualFold(c.Get("title").String(), name) {
			id = c.Get("id").String()
			return false
		}
		return true
	})
	if id != "" {
		return id, nil
	}

	res, err = s.do(ctx, http.MethodPost, s.base+"/custom_collections.json", map[string]interface{}{
		"custom_collection": map[string]string{"title": name},
	})
	if err != nil {
		return "", err
	}
	id = gjson.Get(res.BodyString, "custom_collection.id").String()
	if id == "" {
		return "", fmt.Errorf("shopify create collection %q: response has no id", name)
	}
	utils.Log.Infof("[shopify] created collection %q (%s)", name, id)
	return id, nil
}
