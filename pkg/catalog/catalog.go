// Package catalog defines the storefront catalog boundary: the records the
// reconciliation reads, the listing it creates, and the Store that performs writes.
package catalog

import (
	"context"
	"errors"
)

// Status is a storefront listing status.
type Status string

const (
	StatusActive   Status = "active"
	StatusDraft    Status = "draft"
	StatusArchived Status = "archived"
)

// ErrNotFound is returned by Store implementations when a listing or group is missing.
var ErrNotFound = errors.New("catalog: not found")

// TargetRecord is one listing currently in the storefront catalog.
type TargetRecord struct {
	ID       string   `json:"id"`
	SKU      string   `json:"sku"`
	Key      string   `json:"key"` // filled by the snapshot reader
	Title    string   `json:"title"`
	Status   Status   `json:"status"`
	GroupIDs []string `json:"group_ids,omitempty"`
}

// Listing is everything the writer needs to create a storefront product.
type Listing struct {
	SKU            string
	GroupID        string
	Title          string
	Description    string
	SEOTitle       string
	SEODescription string
	Price          int
	WeightKg       float64
	Images         []string
	SourceURL      string
	Vendor         string
	Tags           []string
	Status         Status
}

// Store is the storefront catalog collaborator. List calls follow pagination until
// exhausted.
type Store interface {
	ListAll(ctx context.Context) ([]TargetRecord, error)
	ListGroup(ctx context.Context, groupID string) ([]TargetRecord, error)
	Create(ctx context.Context, l Listing) (TargetRecord, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status Status) error
	EnsureGroup(ctx context.Context, name string) (string, error)
}
