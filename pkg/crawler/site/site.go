// Package site implements a selector-driven crawler for confectionery shop sites. Each
// merchant supplies CSS selectors in its profile; no site-specific code lives here.
package site

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/kashisync/kashisync/internal/utils"
	"github.com/kashisync/kashisync/pkg/callerr"
	"github.com/kashisync/kashisync/pkg/crawler"
	"github.com/kashisync/kashisync/pkg/whttp"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultRequestDelay = 500 * time.Millisecond
	defaultMaxPages     = 50
	imageRetryMax       = 3
	imageRetryBackoff   = 2 * time.Second
)

// Selectors locate product data on listing and detail pages.
type Selectors struct {
	ItemLink    string `mapstructure:"item_link"`
	NextPage    string `mapstructure:"next_page"`
	Title       string `mapstructure:"title"`
	Price       string `mapstructure:"price"`
	Description string `mapstructure:"description"`
	Images      string `mapstructure:"images"`
	Stock       string `mapstructure:"stock"`
	SoldOut     string `mapstructure:"sold_out"`
	Weight      string `mapstructure:"weight"`
}

// Config describes one source site.
type Config struct {
	Name              string        `mapstructure:"name"`
	ListURL           string        `mapstructure:"list_url"`
	IDPattern         string        `mapstructure:"id_pattern"`
	Selectors         Selectors     `mapstructure:"selectors"`
	SoldOutMarkers    []string      `mapstructure:"sold_out_markers"`
	VolumetricDivisor float64       `mapstructure:"volumetric_divisor"`
	RequestDelay      time.Duration `mapstructure:"request_delay"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxPages          int           `mapstructure:"max_pages"`
	ProbeImages       bool          `mapstructure:"probe_images"`
}

// Crawler walks listing pages and parses detail pages of one site.
type Crawler struct {
	cfg         Config
	idRe        *regexp.Regexp
	client      *retryablehttp.Client
	imageClient *retryablehttp.Client
	throttle    *whttp.Throttle
}

// New validates cfg and builds a Crawler.
func New(cfg Config) (*Crawler, error) {
	if strings.TrimSpace(cfg.ListURL) == "" {
		return nil, errors.New("site crawler requires list_url")
	}
	if _, err := url.Parse(cfg.ListURL); err != nil {
		return nil, fmt.Errorf("invalid list_url: %w", err)
	}
	if cfg.Selectors.ItemLink == "" {
		return nil, errors.New("site crawler requires selectors.item_link")
	}
	var idRe *regexp.Regexp
	if cfg.IDPattern != "" {
		re, err := regexp.Compile(cfg.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid id_pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, errors.New("id_pattern needs one capture group")
		}
		idRe = re
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RequestDelay <= 0 {
		cfg.RequestDelay = defaultRequestDelay
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if len(cfg.SoldOutMarkers) == 0 {
		cfg.SoldOutMarkers = DefaultSoldOutMarkers
	}
	if cfg.Name == "" {
		if u, err := url.Parse(cfg.ListURL); err == nil {
			cfg.Name = u.Hostname()
		}
	}

	return &Crawler{
		cfg:         cfg,
		idRe:        idRe,
		client:      whttp.NewClient(whttp.ClientOptions{Timeout: cfg.Timeout, RetryMax: 2, Backoff: 2 * time.Second}),
		imageClient: whttp.NewClient(whttp.ClientOptions{Timeout: cfg.Timeout, RetryMax: imageRetryMax, Backoff: imageRetryBackoff}),
		throttle:    whttp.NewThrottle(cfg.RequestDelay),
	}, nil
}

func (c *Crawler) Name() string { return c.cfg.Name }

func (c *Crawler) get(ctx context.Context, pageURL string) (*whttp.WHTTPRes, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	return whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{Method: http.MethodGet, URL: pageURL}, c.client)
}

// ListCandidates follows listing pages until there is no next page, a page repeats, or
// MaxPages is reached. Links leaving the site are ignored.
func (c *Crawler) ListCandidates(ctx context.Context) ([]crawler.Candidate, error) {
	var (
		out       []crawler.Candidate
		seenIDs   = map[string]struct{}{}
		seenPages = map[string]struct{}{}
		pageURL   = c.cfg.ListURL
	)

	for page := 0; page < c.cfg.MaxPages && pageURL != ""; page++ {
		if _, dup := seenPages[pageURL]; dup {
			break
		}
		seenPages[pageURL] = struct{}{}

		utils.Log.Debugf("[%s] listing page %d: %s", c.Name(), page+1, pageURL)
		res, err := c.get(ctx, pageURL)
		if err != nil {
			return nil, err
		}
		if err := whttp.CheckStatus("list page "+pageURL, res); err != nil {
			return nil, err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
		if err != nil {
			return nil, callerr.Parse("list page "+pageURL, err)
		}
		base, _ := url.Parse(pageURL)

		doc.Find(c.cfg.Selectors.ItemLink).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			abs := resolve(base, href)
			if abs == "" || !sameSite(c.cfg.ListURL, abs) {
				return
			}
			id := c.idFromURL(abs)
			if id == "" {
				return
			}
			if _, dup := seenIDs[id]; dup {
				return
			}
			seenIDs[id] = struct{}{}
			out = append(out, crawler.Candidate{ID: id, URL: abs})
		})

		pageURL = ""
		if c.cfg.Selectors.NextPage != "" {
			if href, ok := doc.Find(c.cfg.Selectors.NextPage).First().Attr("href"); ok {
				if next := resolve(base, href); next != "" && sameSite(c.cfg.ListURL, next) {
					pageURL = next
				}
			}
		}
	}

	utils.Log.Debugf("[%s] found %d candidates", c.Name(), len(out))
	return out, nil
}

// FetchDetail parses one product page. A 404 or 410 means the product is gone and
// yields a nil item.
func (c *Crawler) FetchDetail(ctx context.Context, pageURL string) (*crawler.SourceItem, error) {
	res, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusGone {
		return nil, nil
	}
	if err := whttp.CheckStatus("detail page "+pageURL, res); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.BodyString))
	if err != nil {
		return nil, callerr.Parse("detail page "+pageURL, err)
	}
	base, _ := url.Parse(pageURL)
	sel := c.cfg.Selectors

	item := &crawler.SourceItem{
		ID:  c.idFromURL(pageURL),
		URL: pageURL,
	}

	item.Title = text(doc, sel.Title)
	if item.Title == "" {
		item.Title = res.HTTPTitle
	}
	if item.Title == "" {
		return nil, nil
	}

	item.Price = ParsePrice(text(doc, sel.Price))

	if sel.Description != "" {
		if h, err := doc.Find(sel.Description).First().Html(); err == nil {
			item.Description = strings.TrimSpace(h)
		}
	}

	item.InStock = true
	if sel.SoldOut != "" && doc.Find(sel.SoldOut).Length() > 0 {
		item.InStock = false
	}
	if sel.Stock != "" && IsSoldOut(text(doc, sel.Stock), c.cfg.SoldOutMarkers) {
		item.InStock = false
	}

	if sel.Weight != "" {
		item.WeightKg = ResolveWeightKg(text(doc, sel.Weight), c.cfg.VolumetricDivisor)
	}

	var images []string
	if sel.Images != "" {
		doc.Find(sel.Images).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"data-src", "src", "href"} {
				if v, ok := s.Attr(attr); ok && v != "" {
					if abs := resolve(base, v); abs != "" {
						images = append(images, abs)
					}
					return
				}
			}
		})
	}
	item.Images = crawler.DedupeImages(images)
	if c.cfg.ProbeImages {
		item.Images = c.probeImages(ctx, item.Images)
	}

	return item, nil
}

// probeImages drops images that do not answer 2xx after the retry budget.
func (c *Crawler) probeImages(ctx context.Context, images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{Method: http.MethodHead, URL: img}, c.imageClient)
		if err != nil {
			utils.Log.Debugf("[%s] dropping image %s: %v", c.Name(), img, err)
			continue
		}
		if err := whttp.CheckStatus("image", res); err != nil {
			utils.Log.Debugf("[%s] dropping image %s: %v", c.Name(), img, err)
			continue
		}
		out = append(out, img)
	}
	return out
}

// idFromURL extracts the site-native identifier: the first capture group of IDPattern,
// or the last path segment without extension.
func (c *Crawler) idFromURL(raw string) string {
	if c.idRe != nil {
		m := c.idRe.FindStringSubmatch(raw)
		if len(m) < 2 {
			return ""
		}
		return m[1]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return strings.TrimSuffix(seg, path.Ext(seg))
}

func text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// sameSite reports whether two URLs share a registrable domain, so shop.example.co.jp
// and www.example.co.jp match but example.co.jp and cdn.other.jp do not.
func sameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	ha, hb := strings.ToLower(ua.Hostname()), strings.ToLower(ub.Hostname())
	if ha == hb {
		return true
	}
	da, err := publicsuffix.Domain(ha)
	if err != nil {
		return false
	}
	db, err := publicsuffix.Domain(hb)
	if err != nil {
		return false
	}
	return da == db
}
