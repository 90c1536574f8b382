package catalog

import (
	"context"
	"fmt"
	"sync"
)

// DryRun reads through to an underlying Store but only records writes. Group creation
// is forwarded since it is idempotent.
type DryRun struct {
	Store Store

	mu     sync.Mutex
	next   int
	Writes []string
}

var _ Store = (*DryRun)(nil)

func NewDryRun(s Store) *DryRun { return &DryRun{Store: s} }

func (d *DryRun) ListAll(ctx context.Context) ([]TargetRecord, error) {
	return d.Store.ListAll(ctx)
}

func (d *DryRun) ListGroup(ctx context.Context, groupID string) ([]TargetRecord, error) {
	return d.Store.ListGroup(ctx, groupID)
}

func (d *DryRun) EnsureGroup(ctx context.Context, name string) (string, error) {
	return d.Store.EnsureGroup(ctx, name)
}

func (d *DryRun) Create(ctx context.Context, l Listing) (TargetRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	id := fmt.Sprintf("dry-run-%d", d.next)
	d.Writes = append(d.Writes, fmt.Sprintf("create %s %q price=%d", l.SKU, l.Title, l.Price))
	rec := TargetRecord{ID: id, SKU: l.SKU, Title: l.Title, Status: l.Status}
	if l.GroupID != "" {
		rec.GroupIDs = []string{l.GroupID}
	}
	return rec, nil
}

func (d *DryRun) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = append(d.Writes, "delete "+id)
	return nil
}

func (d *DryRun) SetStatus(ctx context.Context, id string, status Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Writes = append(d.Writes, fmt.Sprintf("set-status %s %s", id, status))
	return nil
}
