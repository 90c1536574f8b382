package crawler

import (
	"context"
	"strings"
)

// MaxImages caps the number of images carried per item.
const MaxImages = 10

// Candidate is one product link discovered on a listing page.
type Candidate struct {
	ID  string
	URL string
}

// SourceItem is one product as seen on the source site during this run.
type SourceItem struct {
	ID          string
	URL         string
	Title       string
	Description string
	Price       int
	InStock     bool
	WeightKg    float64
	Images      []string
}

// Crawler abstracts a source site, hiding how candidates are discovered and how detail
// pages are parsed.
type Crawler interface {
	Name() string
	// ListCandidates returns every product currently listed, in source-listing order.
	ListCandidates(ctx context.Context) ([]Candidate, error)
	// FetchDetail returns the full record for one product page. A nil item with a nil
	// error means the page exists but does not describe a product.
	FetchDetail(ctx context.Context, url string) (*SourceItem, error)
}

// DedupeImages trims, removes empty and repeated URLs while preserving order, and caps
// the result at MaxImages.
func DedupeImages(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == MaxImages {
			break
		}
	}
	return out
}
