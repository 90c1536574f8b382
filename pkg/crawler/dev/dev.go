package dev

import (
	"context"
	"strings"

	"github.com/kashisync/kashisync/pkg/crawler"
)

// Crawler serves a fixed catalog so the sync pipeline can be exercised end to end
// without touching a real shop.

type Crawler struct{}

func New() *Crawler { return &Crawler{} }

func (c *Crawler) Name() string { return "dev" }

func (c *Crawler) ListCandidates(ctx context.Context) ([]crawler.Candidate, error) {
	return []crawler.Candidate{
		{ID: "001", URL: "https://dev.example.jp/items/001"},
		{ID: "002", URL: "https://dev.example.jp/items/002"},
		{ID: "003", URL: "https://dev.example.jp/items/003"},
		{ID: "004", URL: "https://dev.example.jp/items/004"},
		{ID: "005", URL: "https://dev.example.jp/about"},
	}, nil
}

func (c *Crawler) FetchDetail(ctx context.Context, url string) (*crawler.SourceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := url[strings.LastIndex(url, "/")+1:]
	switch id {
	case "001":
		return &crawler.SourceItem{ID: id, URL: url, Title: "抹茶ロールケーキ", Description: "<p>宇治抹茶を使ったロールケーキ</p>",
			Price: 1800, InStock: true, WeightKg: 0.45, Images: []string{"https://dev.example.jp/img/001.jpg"}}, nil
	case "002":
		return &crawler.SourceItem{ID: id, URL: url, Title: "どら焼き 5個入", Description: "<p>北海道産小豆の粒あん</p>",
			Price: 1200, InStock: true, WeightKg: 0.35, Images: []string{"https://dev.example.jp/img/002.jpg"}}, nil
	case "003":
		// below the usual price floor
		return &crawler.SourceItem{ID: id, URL: url, Title: "金平糖 小袋", Price: 300, InStock: true, WeightKg: 0.05}, nil
	case "004":
		return &crawler.SourceItem{ID: id, URL: url, Title: "栗羊羹", Description: "<p>季節限定</p>",
			Price: 2400, InStock: false, WeightKg: 0.6}, nil
	}
	// not a product page
	return nil, nil
}
