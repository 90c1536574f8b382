package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/kashisync/kashisync/pkg/reconcile"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("storage: not found")

// Change is one catalog write recorded in the ledger.
type Change struct {
	OccurredAt time.Time `json:"occurred_at" yaml:"occurred_at"`
	RunID      string    `json:"run_id" yaml:"run_id"`
	Merchant   string    `json:"merchant" yaml:"merchant"`
	Key        string    `json:"key" yaml:"key"`
	TargetID   string    `json:"target_id,omitempty" yaml:"target_id,omitempty"`
	Title      string    `json:"title,omitempty" yaml:"title,omitempty"`
	Action     string    `json:"action" yaml:"action"` // created | deleted | drafted | reactivated
}

// SaveRun inserts or replaces the ledger row of s.RunID.
func (d *DB) SaveRun(ctx context.Context, s reconcile.Summary) error {
	skipped, err := json.Marshal(s.Skipped)
	if err != nil {
		return err
	}
	errs, err := json.Marshal(s.Errors)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `
INSERT INTO runs(run_id, merchant, phase, status, running, stopped, stop_reason, seen, uploaded, skipped,
                 upload_failed, deleted, delete_failed, already_draft, reactivated, translation_failures, errors, started_at, finished_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(run_id) DO UPDATE SET
  phase = excluded.phase, status = excluded.status, running = excluded.running, stopped = excluded.stopped,
  stop_reason = excluded.stop_reason, seen = excluded.seen, uploaded = excluded.uploaded, skipped = excluded.skipped,
  upload_failed = excluded.upload_failed, deleted = excluded.deleted, delete_failed = excluded.delete_failed,
  already_draft = excluded.already_draft, reactivated = excluded.reactivated, translation_failures = excluded.translation_failures,
  errors = excluded.errors, finished_at = excluded.finished_at`,
		s.RunID, s.Merchant, string(s.Phase), s.Status, boolToInt(s.Running), boolToInt(s.Stopped), nullIfEmpty(s.StopReason),
		s.Seen, s.Uploaded, string(skipped), s.UploadFailed, s.Deleted, s.DeleteFailed, s.AlreadyDraft, s.Reactivated,
		s.TranslationFailures, string(errs), formatTime(s.StartedAt), formatTime(s.FinishedAt))
	return err
}

const runColumns = `run_id, merchant, phase, status, running, stopped, stop_reason, seen, uploaded, skipped,
upload_failed, deleted, delete_failed, already_draft, reactivated, translation_failures, errors, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (reconcile.Summary, error) {
	var (
		s                 reconcile.Summary
		phase             string
		running, stopped  int
		stopReason        sql.NullString
		skipped, errs     sql.NullString
		started, finished sql.NullString
	)
	if err := row.Scan(&s.RunID, &s.Merchant, &phase, &s.Status, &running, &stopped, &stopReason, &s.Seen, &s.Uploaded,
		&skipped, &s.UploadFailed, &s.Deleted, &s.DeleteFailed, &s.AlreadyDraft, &s.Reactivated, &s.TranslationFailures, &errs,
		&started, &finished); err != nil {
		return s, err
	}
	s.Phase = reconcile.Phase(phase)
	s.Running = running == 1
	s.Stopped = stopped == 1
	s.StopReason = stopReason.String
	s.Skipped = map[reconcile.SkipReason]int{}
	if skipped.Valid && skipped.String != "" && skipped.String != "null" {
		if err := json.Unmarshal([]byte(skipped.String), &s.Skipped); err != nil {
			return s, err
		}
	}
	if errs.Valid && errs.String != "" && errs.String != "null" {
		if err := json.Unmarshal([]byte(errs.String), &s.Errors); err != nil {
			return s, err
		}
	}
	s.StartedAt = parseTime(started)
	s.FinishedAt = parseTime(finished)
	return s, nil
}

// GetRun returns one run by id.
func (d *DB) GetRun(ctx context.Context, runID string) (reconcile.Summary, error) {
	row := d.sql.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	s, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// ListRuns returns the most recent runs, newest first. An empty merchant lists all.
func (d *DB) ListRuns(ctx context.Context, merchant string, limit int) ([]reconcile.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	q := "SELECT " + runColumns + " FROM runs"
	args := []interface{}{}
	if merchant != "" {
		q += " WHERE merchant = ?"
		args = append(args, merchant)
	}
	q += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []reconcile.Summary{}
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, s)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes runs left open by a process that died mid-run. Runs of the
// merchants in busy belong to a live process and are left alone.
func (d *DB) MarkInterrupted(ctx context.Context, busy ...string) (int64, error) {
	q := `UPDATE runs SET running = 0, stopped = 1, phase = ?, stop_reason = 'interrupted',
status = 'stopped: interrupted', finished_at = ? WHERE running = 1`
	args := []interface{}{string(reconcile.PhaseStopped), formatTime(time.Now())}
	if len(busy) > 0 {
		q += " AND merchant NOT IN (?" + strings.Repeat(",?", len(busy)-1) + ")"
		for _, m := range busy {
			args = append(args, m)
		}
	}
	res, err := d.sql.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordChange appends one catalog write to the ledger.
func (d *DB) RecordChange(ctx context.Context, c reconcile.Change) error {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO sync_changes(occurred_at, run_id, merchant, item_key, target_id, title, action) VALUES(?,?,?,?,?,?,?)`,
		formatTime(at), c.RunID, c.Merchant, c.Key, nullIfEmpty(c.TargetID), nullIfEmpty(c.Title), string(c.Action))
	return err
}

// ListRecentChanges returns the most recent N changes across all merchants.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT occurred_at, run_id, merchant, item_key, target_id, title, action FROM sync_changes ORDER BY occurred_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var (
			c               Change
			occurred        sql.NullString
			targetID, title sql.NullString
		)
		if err := rows.Scan(&occurred, &c.RunID, &c.Merchant, &c.Key, &targetID, &title, &c.Action); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTime(occurred)
		c.TargetID = targetID.String
		c.Title = title.String
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

type MerchantStats struct {
	Merchant  string    `json:"merchant" yaml:"merchant"`
	Runs      int       `json:"runs" yaml:"runs"`
	Uploaded  int       `json:"uploaded" yaml:"uploaded"`
	Deleted   int       `json:"deleted" yaml:"deleted"`
	Stopped   int       `json:"stopped" yaml:"stopped"`
	LastRunAt time.Time `json:"last_run_at" yaml:"last_run_at"`
}

func (d *DB) GetStats(ctx context.Context) ([]MerchantStats, error) {
	query := `
		SELECT
			merchant,
			COUNT(*),
			COALESCE(SUM(uploaded), 0),
			COALESCE(SUM(deleted), 0),
			COALESCE(SUM(stopped), 0),
			MAX(started_at)
		FROM
			runs
		GROUP BY
			merchant
		ORDER BY
			merchant;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []MerchantStats
	for rows.Next() {
		var s MerchantStats
		var last sql.NullString
		if err := rows.Scan(&s.Merchant, &s.Runs, &s.Uploaded, &s.Deleted, &s.Stopped, &last); err != nil {
			return nil, err
		}
		s.LastRunAt = parseTime(last)
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
