package catalog

import (
	"context"
	"reflect"
	"testing"
)

func TestDryRunRecordsWrites(t *testing.T) {
	// listStore panics on any write, so every write below must stay in DryRun.
	inner := &listStore{all: []TargetRecord{{ID: "1", SKU: "KW-1"}}}
	d := NewDryRun(inner)
	ctx := context.Background()

	all, err := d.ListAll(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("reads must pass through: %v, %v", all, err)
	}
	rec, err := d.Create(ctx, Listing{SKU: "KW-2", GroupID: "g", Title: "Monaka", Price: 2000, Status: StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "dry-run-1" || !reflect.DeepEqual(rec.GroupIDs, []string{"g"}) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	d.Delete(ctx, "1")
	d.SetStatus(ctx, "1", StatusDraft)

	want := []string{`create KW-2 "Monaka" price=2000`, "delete 1", "set-status 1 draft"}
	if !reflect.DeepEqual(d.Writes, want) {
		t.Fatalf("got %q\nwant %q", d.Writes, want)
	}
}
