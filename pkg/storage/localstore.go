package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kashisync/kashisync/pkg/catalog"
)

// LocalStore is a catalog.Store backed by the local database. It lets a merchant be
// reconciled end to end without a storefront: dry runs write here instead.
type LocalStore struct {
	db *DB
}

func (d *DB) Catalog() *LocalStore { return &LocalStore{db: d} }

var _ catalog.Store = (*LocalStore)(nil)

func (s *LocalStore) ListAll(ctx context.Context) ([]catalog.TargetRecord, error) {
	return s.list(ctx, "", nil)
}

func (s *LocalStore) ListGroup(ctx context.Context, groupID string) ([]catalog.TargetRecord, error) {
	gid, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid group id %q: %w", groupID, catalog.ErrNotFound)
	}
	return s.list(ctx, "WHERE l.id IN (SELECT listing_id FROM local_listing_groups WHERE group_id = ?)", []interface{}{gid})
}

func (s *LocalStore) list(ctx context.Context, where string, args []interface{}) ([]catalog.TargetRecord, error) {
	q := `SELECT l.id, l.sku, l.title, l.status, COALESCE(GROUP_CONCAT(lg.group_id), '')
FROM local_listings l LEFT JOIN local_listing_groups lg ON lg.listing_id = l.id ` + where + `
GROUP BY l.id ORDER BY l.id`
	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.TargetRecord
	for rows.Next() {
		var (
			r      catalog.TargetRecord
			id     int64
			status string
			groups string
		)
		if err := rows.Scan(&id, &r.SKU, &r.Title, &status, &groups); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Status = catalog.Status(status)
		if groups != "" {
			r.GroupIDs = strings.Split(groups, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *LocalStore) Create(ctx context.Context, l catalog.Listing) (catalog.TargetRecord, error) {
	if strings.TrimSpace(l.Title) == "" {
		return catalog.TargetRecord{}, errors.New("listing title is required")
	}
	status := l.Status
	if status == "" {
		status = catalog.StatusActive
	}
	images, err := json.Marshal(l.Images)
	if err != nil {
		return catalog.TargetRecord{}, err
	}
	tags, err := json.Marshal(l.Tags)
	if err != nil {
		return catalog.TargetRecord{}, err
	}

	tx, err := s.db.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return catalog.TargetRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO local_listings(sku, title, description, seo_title, seo_description, price, weight_kg, images, source_url, vendor, tags, status, created_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.SKU, l.Title, nullIfEmpty(l.Description), nullIfEmpty(l.SEOTitle), nullIfEmpty(l.SEODescription), l.Price, l.WeightKg,
		string(images), nullIfEmpty(l.SourceURL), nullIfEmpty(l.Vendor), string(tags), string(status), formatTime(time.Now()))
	if err != nil {
		return catalog.TargetRecord{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return catalog.TargetRecord{}, err
	}

	rec := catalog.TargetRecord{ID: strconv.FormatInt(id, 10), SKU: l.SKU, Title: l.Title, Status: status}
	if l.GroupID != "" {
		var gid int64
		gid, err = strconv.ParseInt(l.GroupID, 10, 64)
		if err != nil {
			return catalog.TargetRecord{}, fmt.Errorf("invalid group id %q: %w", l.GroupID, err)
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO local_listing_groups(listing_id, group_id) VALUES(?,?)`, id, gid); err != nil {
			return catalog.TargetRecord{}, err
		}
		rec.GroupIDs = []string{l.GroupID}
	}

	if err = tx.Commit(); err != nil {
		return catalog.TargetRecord{}, err
	}
	return rec, nil
}

func (s *LocalStore) Delete(ctx context.Context, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return catalog.ErrNotFound
	}
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM local_listings WHERE id = ?`, n)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (s *LocalStore) SetStatus(ctx context.Context, id string, status catalog.Status) error {
	switch status {
	case catalog.StatusActive, catalog.StatusDraft, catalog.StatusArchived:
	default:
		return fmt.Errorf("unknown listing status %q", status)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return catalog.ErrNotFound
	}
	res, err := s.db.sql.ExecContext(ctx, `UPDATE local_listings SET status = ? WHERE id = ?`, string(status), n)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// EnsureGroup returns the id of the named group, creating it on first use.
func (s *LocalStore) EnsureGroup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("group name is required")
	}
	if _, err := s.db.sql.ExecContext(ctx, `INSERT INTO local_groups(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return "", err
	}
	var id int64
	if err := s.db.sql.QueryRowContext(ctx, `SELECT id FROM local_groups WHERE name = ?`, name).Scan(&id); err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Count returns the number of local listings per status.
func (s *LocalStore) Count(ctx context.Context) (map[catalog.Status]int, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT status, COUNT(*) FROM local_listings GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[catalog.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[catalog.Status(status)] = n
	}
	return out, rows.Err()
}

func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}
