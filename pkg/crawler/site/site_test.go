package site

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/kashisync/kashisync/pkg/crawler"
)

func newShop(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, `<html><body>
				<a class="item" href="/items/101.html">A</a>
				<a class="item" href="/items/102.html">B</a>
				<a class="item" href="/items/101.html">A again</a>
				<a class="item" href="https://elsewhere.example.org/items/999.html">offsite</a>
				<a class="next" href="/list?page=2">next</a>
			</body></html>`)
		case "2":
			fmt.Fprint(w, `<html><body>
				<a class="item" href="/items/103.html">C</a>
				<a class="next" href="/list?page=1">back to start</a>
			</body></html>`)
		}
	})
	mux.HandleFunc("/items/101.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>fallback</title></head><body>
			<h1 class="name">  抹茶 ロールケーキ </h1>
			<span class="price">¥1,200（税込）</span>
			<div class="desc"><p>京都産の抹茶</p></div>
			<div class="stock">在庫あり</div>
			<div class="details">内容量 350g / 20×15×10cm</div>
			<img class="photo" src="/img/a.jpg">
			<img class="photo" data-src="/img/b.jpg" src="/img/placeholder.gif">
			<img class="photo" src="/img/a.jpg">
		</body></html>`)
	})
	mux.HandleFunc("/items/102.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>どら焼き | shop</title></head><body>
			<span class="price">¥300</span>
			<div class="stock">売り切れ</div>
		</body></html>`)
	})
	mux.HandleFunc("/img/a.jpg", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/img/b.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		Name:      "test-shop",
		ListURL:   srv.URL + "/list",
		IDPattern: `/items/([0-9]+)\.html`,
		Selectors: Selectors{
			ItemLink:    "a.item",
			NextPage:    "a.next",
			Title:       "h1.name",
			Price:       ".price",
			Description: ".desc",
			Images:      "img.photo",
			Stock:       ".stock",
			Weight:      ".details",
		},
		VolumetricDivisor: 5000,
		RequestDelay:      time.Millisecond,
		Timeout:           2 * time.Second,
	}
}

func TestListCandidatesPaginatesAndDedupes(t *testing.T) {
	srv := newShop(t)
	c, err := New(testConfig(srv))
	if err != nil {
		t.Fatal(err)
	}

	got, err := c.ListCandidates(context.Background())
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	want := []crawler.Candidate{
		{ID: "101", URL: srv.URL + "/items/101.html"},
		{ID: "102", URL: srv.URL + "/items/102.html"},
		{ID: "103", URL: srv.URL + "/items/103.html"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestFetchDetail(t *testing.T) {
	srv := newShop(t)
	cfg := testConfig(srv)
	cfg.ProbeImages = true
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	c.imageClient.RetryMax = 0

	item, err := c.FetchDetail(context.Background(), srv.URL+"/items/101.html")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if item == nil {
		t.Fatal("expected an item")
	}
	if item.ID != "101" || item.Title != "抹茶 ロールケーキ" || item.Price != 1200 || !item.InStock {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.Description != "<p>京都産の抹茶</p>" {
		t.Fatalf("description should keep inner HTML, got %q", item.Description)
	}
	if item.WeightKg != 0.6 {
		t.Fatalf("volumetric weight should win, got %v", item.WeightKg)
	}
	// b.jpg answers 404 and is dropped by the probe.
	if want := []string{srv.URL + "/img/a.jpg"}; !reflect.DeepEqual(item.Images, want) {
		t.Fatalf("images = %v, want %v", item.Images, want)
	}
}

func TestFetchDetailFallbacksAndSoldOut(t *testing.T) {
	srv := newShop(t)
	c, err := New(testConfig(srv))
	if err != nil {
		t.Fatal(err)
	}

	item, err := c.FetchDetail(context.Background(), srv.URL+"/items/102.html")
	if err != nil {
		t.Fatal(err)
	}
	if item.Title != "どら焼き | shop" {
		t.Fatalf("expected <title> fallback, got %q", item.Title)
	}
	if item.InStock {
		t.Fatal("売り切れ must mark the item out of stock")
	}

	gone, err := c.FetchDetail(context.Background(), srv.URL+"/items/404.html")
	if err != nil || gone != nil {
		t.Fatalf("404 should yield nil item without error, got %+v, %v", gone, err)
	}
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing list url", Config{Selectors: Selectors{ItemLink: "a"}}},
		{"missing item selector", Config{ListURL: "https://shop.example.jp/list"}},
		{"bad pattern", Config{ListURL: "https://shop.example.jp/list", Selectors: Selectors{ItemLink: "a"}, IDPattern: "("}},
		{"pattern without group", Config{ListURL: "https://shop.example.jp/list", Selectors: Selectors{ItemLink: "a"}, IDPattern: "[0-9]+"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIDFromURLWithoutPattern(t *testing.T) {
	c, err := New(Config{ListURL: "https://shop.example.jp/list", Selectors: Selectors{ItemLink: "a"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.idFromURL("https://shop.example.jp/products/matcha-roll.html?ref=top"); got != "matcha-roll" {
		t.Fatalf("got %q", got)
	}
	if got := c.idFromURL("https://shop.example.jp/products/yokan/"); got != "yokan" {
		t.Fatalf("got %q", got)
	}
}

func TestSameSite(t *testing.T) {
	if !sameSite("https://www.example.co.jp/list", "https://shop.example.co.jp/items/1") {
		t.Fatal("subdomains of one registrable domain are the same site")
	}
	if sameSite("https://www.example.co.jp/list", "https://cdn.other.co.jp/items/1") {
		t.Fatal("different registrable domains are not the same site")
	}
}
