package catalog

import (
	"context"
	"fmt"
	"sort"
)

// KeyFunc maps a stored SKU to its normalized key.
type KeyFunc func(sku string) string

// Snapshot maps normalized key to target record. It is built once per run and only
// read afterwards.
type Snapshot struct {
	records    map[string]TargetRecord
	duplicates map[string][]TargetRecord
}

// NewSnapshot indexes records by key. Records whose SKU normalizes to "" cannot be
// matched and are left out. When two records share a key the first one is the record
// for that key; the others stay reachable through All.
func NewSnapshot(records []TargetRecord, key KeyFunc) *Snapshot {
	s := &Snapshot{records: make(map[string]TargetRecord, len(records))}
	for _, r := range records {
		k := key(r.SKU)
		if k == "" {
			continue
		}
		r.Key = k
		if _, dup := s.records[k]; dup {
			if s.duplicates == nil {
				s.duplicates = map[string][]TargetRecord{}
			}
			s.duplicates[k] = append(s.duplicates[k], r)
			continue
		}
		s.records[k] = r
	}
	return s
}

// All returns every record sharing key, the one Get returns first.
func (s *Snapshot) All(key string) []TargetRecord {
	if s == nil {
		return nil
	}
	r, ok := s.records[key]
	if !ok {
		return nil
	}
	return append([]TargetRecord{r}, s.duplicates[key]...)
}

// Duplicates returns the number of records shadowed by an earlier record with the same key.
func (s *Snapshot) Duplicates() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, d := range s.duplicates {
		n += len(d)
	}
	return n
}

// ReadAll builds the global snapshot: every listing the credential can see.
func ReadAll(ctx context.Context, store Store, key KeyFunc) (*Snapshot, error) {
	records, err := store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all listings: %w", err)
	}
	return NewSnapshot(records, key), nil
}

// ReadGroup builds the group snapshot: the merchant's managed listings.
func ReadGroup(ctx context.Context, store Store, groupID string, key KeyFunc) (*Snapshot, error) {
	records, err := store.ListGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", groupID, err)
	}
	return NewSnapshot(records, key), nil
}

// Has reports whether key is present.
func (s *Snapshot) Has(key string) bool {
	if s == nil || key == "" {
		return false
	}
	_, ok := s.records[key]
	return ok
}

// Get returns the record for key.
func (s *Snapshot) Get(key string) (TargetRecord, bool) {
	if s == nil {
		return TargetRecord{}, false
	}
	r, ok := s.records[key]
	return r, ok
}

// Len returns the number of indexed records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Keys returns the indexed keys in sorted order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
