package shopify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kashisync/kashisync/pkg/callerr"
	"github.com/kashisync/kashisync/pkg/catalog"
	"github.com/tidwall/gjson"
)

const apiPrefix = "/admin/api/2024-01"

type recorded struct {
	method, path, body string
}

type fakeShop struct {
	mu          sync.Mutex
	requests    []recorded
	collectFail bool
	collections string
}

func (f *fakeShop) handler(t *testing.T, srvURL *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{r.Method, r.URL.Path, string(body)})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		switch {
		case r.Method == http.MethodGet && path == "/products.json":
			if r.URL.Query().Get("page_info") == "" {
				w.Header().Set("Link", fmt.Sprintf(`<%s%s/products.json?limit=250&page_info=p2>; rel="next"`, *srvURL, apiPrefix))
				fmt.Fprint(w, `{"products":[{"id":9001,"title":"Matcha Roll","status":"active","variants":[{"sku":"KW-1"}]}]}`)
				return
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s%s/products.json?limit=250&page_info=p1>; rel="previous"`, *srvURL, apiPrefix))
			fmt.Fprint(w, `{"products":[{"id":9002,"title":"Dorayaki","status":"draft","variants":[{"sku":"KW-2"}]}]}`)
		case r.Method == http.MethodPost && path == "/products.json":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"product":{"id":9100}}`)
		case r.Method == http.MethodPost && path == "/collects.json":
			if f.collectFail {
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, `{"errors":"invalid collection"}`)
				return
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"collect":{"id":1}}`)
		case r.Method == http.MethodDelete && path == "/products/404.json":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errors":"Not Found"}`)
		case r.Method == http.MethodDelete && strings.HasPrefix(path, "/products/"):
			fmt.Fprint(w, `{}`)
		case r.Method == http.MethodPut && strings.HasPrefix(path, "/products/"):
			fmt.Fprint(w, `{"product":{}}`)
		case r.Method == http.MethodGet && path == "/custom_collections.json":
			fmt.Fprint(w, f.collections)
		case r.Method == http.MethodPost && path == "/custom_collections.json":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"custom_collection":{"id":555,"title":"Kyoto Sweets"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestStore(t *testing.T, f *fakeShop) *Store {
	t.Helper()
	var srvURL string
	srv := httptest.NewServer(f.handler(t, &srvURL))
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	s, err := New(Config{BaseURL: srv.URL + apiPrefix, AccessToken: "shpat_test", RequestDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s.reads.RetryMax = 0
	return s
}

func TestListAllFollowsPagination(t *testing.T) {
	f := &fakeShop{}
	s := newTestStore(t, f)

	got, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []catalog.TargetRecord{
		{ID: "9001", SKU: "KW-1", Title: "Matcha Roll", Status: catalog.StatusActive},
		{ID: "9002", SKU: "KW-2", Title: "Dorayaki", Status: catalog.StatusDraft},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
	if len(f.requests) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(f.requests))
	}
}

func TestListGroupTagsRecords(t *testing.T) {
	s := newTestStore(t, &fakeShop{})
	got, err := s.ListGroup(context.Background(), "555")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !reflect.DeepEqual(got[0].GroupIDs, []string{"555"}) {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestCreate(t *testing.T) {
	f := &fakeShop{}
	s := newTestStore(t, f)

	rec, err := s.Create(context.Background(), catalog.Listing{
		SKU:       "KW-3",
		GroupID:   "555",
		Title:     "[Kyoto] Chestnut Yokan",
		Price:     4286,
		WeightKg:  0.6,
		Images:    []string{"https://shop.test/img/1.jpg"},
		SourceURL: "https://shop.test/items/3",
		Tags:      []string{"wagashi", "kyoto"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "9100" || rec.Status != catalog.StatusActive || !reflect.DeepEqual(rec.GroupIDs, []string{"555"}) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	create := f.requests[0].body
	checks := map[string]string{
		"product.variants.0.sku":         "KW-3",
		"product.variants.0.price":       "4286",
		"product.variants.0.weight_unit": "kg",
		"product.images.0.src":           "https://shop.test/img/1.jpg",
		"product.metafields.0.value":     "https://shop.test/items/3",
		"product.tags":                   "wagashi, kyoto",
		"product.status":                 "active",
	}
	for path, want := range checks {
		if got := gjson.Get(create, path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	collect := f.requests[1]
	if collect.path != apiPrefix+"/collects.json" || gjson.Get(collect.body, "collect.collection_id").Int() != 555 || gjson.Get(collect.body, "collect.product_id").Int() != 9100 {
		t.Fatalf("unexpected collect request: %+v", collect)
	}
}

func TestCreateRollsBackWhenCollectFails(t *testing.T) {
	f := &fakeShop{collectFail: true}
	s := newTestStore(t, f)

	_, err := s.Create(context.Background(), catalog.Listing{SKU: "KW-4", GroupID: "555", Title: "Monaka", Price: 2000})
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, _ := callerr.KindOf(err); kind != callerr.HTTPStatus {
		t.Fatalf("expected http status kind, got %v", err)
	}
	last := f.requests[len(f.requests)-1]
	if last.method != http.MethodDelete || last.path != apiPrefix+"/products/9100.json" {
		t.Fatalf("orphan product was not removed, last request %+v", last)
	}
}

func TestCreateRejectsNonNumericGroup(t *testing.T) {
	f := &fakeShop{}
	s := newTestStore(t, f)

	_, err := s.Create(context.Background(), catalog.Listing{SKU: "KW-5", GroupID: "kyoto-sweets", Title: "Kuzumochi", Price: 1800})
	if err == nil || !strings.Contains(err.Error(), "kyoto-sweets") {
		t.Fatalf("expected invalid collection error, got %v", err)
	}
	if len(f.requests) != 0 {
		t.Fatalf("no product should be published for an invalid collection, got %+v", f.requests)
	}
}

func TestDeleteAndSetStatus(t *testing.T) {
	f := &fakeShop{}
	s := newTestStore(t, f)
	ctx := context.Background()

	if err := s.Delete(ctx, "9001"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "404"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetStatus(ctx, "9002", catalog.StatusDraft); err != nil {
		t.Fatal(err)
	}
	put := f.requests[len(f.requests)-1]
	if put.method != http.MethodPut || gjson.Get(put.body, "product.status").String() != "draft" || gjson.Get(put.body, "product.id").Int() != 9002 {
		t.Fatalf("unexpected status update: %+v", put)
	}
	if err := s.SetStatus(ctx, "abc", catalog.StatusDraft); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("non-numeric id should be ErrNotFound, got %v", err)
	}
}

func TestEnsureGroup(t *testing.T) {
	f := &fakeShop{collections: `{"custom_collections":[{"id":777,"title":"kyoto sweets"}]}`}
	s := newTestStore(t, f)
	id, err := s.EnsureGroup(context.Background(), "Kyoto Sweets")
	if err != nil || id != "777" {
		t.Fatalf("expected existing collection 777, got %q, %v", id, err)
	}

	f = &fakeShop{collections: `{"custom_collections":[]}`}
	s = newTestStore(t, f)
	id, err = s.EnsureGroup(context.Background(), "Kyoto Sweets")
	if err != nil || id != "555" {
		t.Fatalf("expected created collection 555, got %q, %v", id, err)
	}
	if len(f.requests) != 2 || f.requests[1].method != http.MethodPost {
		t.Fatalf("expected lookup then create, got %+v", f.requests)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{Shop: "x.myshopify.com"}); err == nil {
		t.Fatal("missing token must fail")
	}
	if _, err := New(Config{AccessToken: "t"}); err == nil {
		t.Fatal("missing shop must fail")
	}
	s, err := New(Config{Shop: "https://x.myshopify.com/", AccessToken: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if s.base != "https://x.myshopify.com/admin/api/2024-01" {
		t.Fatalf("base = %q", s.base)
	}
}
