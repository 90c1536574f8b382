package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/kashisync/kashisync/pkg/crawler/site"
	"github.com/kashisync/kashisync/pkg/reconcile"
	"github.com/kashisync/kashisync/pkg/storage"
	"github.com/kashisync/kashisync/pkg/translate"
)

func main() {
	// Usage: go run *.go -list "https://shop.example.jp/list" -link "a.item" -price ".price"

	listFlag := flag.String("list", "", "Source listing page URL")
	linkFlag := flag.String("link", "", "CSS selector of item links")
	priceFlag := flag.String("price", ".price", "CSS selector of the item price")
	minPrice := flag.Int("min-price", 1000, "Minimum source price in yen")

	// Parse the command-line flags
	flag.Parse()

	if *listFlag == "" || *linkFlag == "" {
		fmt.Println("Both -list and -link are required.")
		return
	}

	c, err := site.New(site.Config{
		Name:      "example",
		ListURL:   *listFlag,
		Selectors: site.Selectors{ItemLink: *linkFlag, Price: *priceFlag},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Any catalog.Store works; the local store keeps everything in SQLite.
	db, err := storage.Open(":memory:")
	if err != nil {
		fmt.Println(err)
		return
	}
	defer db.Close()

	engine, err := reconcile.New(reconcile.Options{
		Config:     reconcile.Config{Merchant: "example", GroupName: "Example", MinPrice: *minPrice},
		Crawler:    c,
		Translator: translate.Passthrough{},
		Store:      db.Catalog(),
		OnChange: func(ch reconcile.Change) {
			fmt.Println(ch.Action, ch.Key, ch.Title)
		},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	summary := engine.Run(context.Background(), "example-run")
	fmt.Println(summary.Status)
	for reason, n := range summary.Skipped {
		fmt.Println(" skipped", reason, n)
	}
}
