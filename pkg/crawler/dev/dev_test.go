package dev

import (
	"context"
	"testing"
)

func TestDevCatalog(t *testing.T) {
	c := New()
	ctx := context.Background()
	cands, err := c.ListCandidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	products := 0
	for _, cand := range cands {
		item, err := c.FetchDetail(ctx, cand.URL)
		if err != nil {
			t.Fatalf("%s: %v", cand.URL, err)
		}
		if item == nil {
			continue
		}
		if item.ID != cand.ID {
			t.Fatalf("item id %q does not match candidate %q", item.ID, cand.ID)
		}
		products++
	}
	if products != 4 {
		t.Fatalf("expected 4 products, got %d", products)
	}
}
