package catalog

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type listStore struct {
	Store
	all   []TargetRecord
	group map[string][]TargetRecord
	err   error
}

func (s *listStore) ListAll(ctx context.Context) ([]TargetRecord, error) {
	return s.all, s.err
}

func (s *listStore) ListGroup(ctx context.Context, groupID string) ([]TargetRecord, error) {
	return s.group[groupID], s.err
}

func upper(sku string) string { return strings.ToUpper(strings.TrimSpace(sku)) }

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot([]TargetRecord{
		{ID: "1", SKU: "kw-1"},
		{ID: "2", SKU: " "},
		{ID: "3", SKU: "KW-1"},
		{ID: "4", SKU: "kw-2"},
	}, upper)

	if snap.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", snap.Len())
	}
	r, ok := snap.Get("KW-1")
	if !ok || r.ID != "1" || r.Key != "KW-1" {
		t.Fatalf("first record should win and carry its key, got %+v", r)
	}
	if snap.Has("") {
		t.Fatalf("empty key must never match")
	}
	if got := snap.Keys(); !reflect.DeepEqual(got, []string{"KW-1", "KW-2"}) {
		t.Fatalf("Keys() = %v", got)
	}
}

func TestSnapshotKeepsDuplicates(t *testing.T) {
	snap := NewSnapshot([]TargetRecord{
		{ID: "1", SKU: "kw-1"},
		{ID: "2", SKU: "KW-1"},
		{ID: "3", SKU: "kw-2"},
		{ID: "4", SKU: " kw-1"},
	}, upper)

	var ids []string
	for _, r := range snap.All("KW-1") {
		ids = append(ids, r.ID)
		if r.Key != "KW-1" {
			t.Fatalf("duplicate should carry its key, got %+v", r)
		}
	}
	if !reflect.DeepEqual(ids, []string{"1", "2", "4"}) {
		t.Fatalf("All(KW-1) ids = %v", ids)
	}
	if snap.Len() != 2 || snap.Duplicates() != 2 {
		t.Fatalf("len=%d duplicates=%d", snap.Len(), snap.Duplicates())
	}
	if got := snap.All("KW-9"); got != nil {
		t.Fatalf("missing key should return nil, got %v", got)
	}
}

func TestReadAllAndGroup(t *testing.T) {
	store := &listStore{
		all:   []TargetRecord{{ID: "1", SKU: "a"}, {ID: "2", SKU: "b"}},
		group: map[string][]TargetRecord{"g1": {{ID: "2", SKU: "b"}}},
	}
	ctx := context.Background()

	all, err := ReadAll(ctx, store, upper)
	if err != nil || all.Len() != 2 {
		t.Fatalf("ReadAll: %v len=%d", err, all.Len())
	}
	group, err := ReadGroup(ctx, store, "g1", upper)
	if err != nil || !group.Has("B") || group.Has("A") {
		t.Fatalf("ReadGroup: %v keys=%v", err, group.Keys())
	}

	store.err = errors.New("boom")
	if _, err := ReadGroup(ctx, store, "g1", upper); err == nil || !strings.Contains(err.Error(), "g1") {
		t.Fatalf("expected wrapped error naming the group, got %v", err)
	}
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	if s.Has("x") || s.Len() != 0 || s.Keys() != nil {
		t.Fatalf("nil snapshot must behave as empty")
	}
}
