package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/frahmantamala/teamboard/internal/audit"
	auditDatamodel "github.com/frahmantamala/teamboard/internal/core/datamodel/audit"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

const selectEntries = `SELECT id, user_id, action, permission_slug, resource_type, resource_id, team_id, metadata, created_at
FROM permission_audit_logs`

// AuditRepository writes through gorm and reads through sqlx so Query can hand out a
// row-at-a-time cursor.
type AuditRepository struct {
	db       *gorm.DB
	rdb      *sqlx.DB
	now      func() time.Time
	snapshot bool
}

func NewAuditRepository(db *gorm.DB, rdb *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db, rdb: rdb, now: time.Now}
}

// WithClock replaces the timestamp source, for deterministic ordering in tests.
func (r *AuditRepository) WithClock(now func() time.Time) *AuditRepository {
	r.now = now
	return r
}

// WithSnapshotReads makes Query read every matching row before returning. A pool with
// a single connection needs it: a lazy cursor would hold that connection and block
// every append until the caller finished iterating.
func (r *AuditRepository) WithSnapshotReads(enabled bool) *AuditRepository {
	r.snapshot = enabled
	return r
}

func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) (string, error) {
	if err := Insert(r.db.WithContext(ctx), e, r.now()); err != nil {
		return "", err
	}
	return e.ID, nil
}

// Insert stamps e and writes it with tx. Role mutations call it inside their own
// transaction so the binding and its audit row commit or roll back together.
func Insert(tx *gorm.DB, e *audit.Entry, now time.Time) error {
	if !e.Action.Valid() {
		return fmt.Errorf("audit: invalid action %q", e.Action)
	}
	e.Stamp(now)

	row, err := e.ToDataModel()
	if err != nil {
		return err
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("%w: %v", audit.ErrSinkUnavailable, err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, f audit.Filter) (audit.Cursor, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.TeamID != "" {
		where = append(where, "team_id = ?")
		args = append(args, f.TeamID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.PermissionSlug != "" {
		where = append(where, "permission_slug = ?")
		args = append(args, f.PermissionSlug)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := selectEntries
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.rdb.QueryxContext(ctx, r.rdb.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audit.ErrSinkUnavailable, err)
	}
	cursor := &rowsCursor{rows: rows}
	if !r.snapshot {
		return cursor, nil
	}

	defer cursor.Close()
	var entries []audit.Entry
	for cursor.Next() {
		entries = append(entries, cursor.Entry())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return &snapshotCursor{entries: entries, pos: -1}, nil
}

type rowsCursor struct {
	rows    *sqlx.Rows
	current audit.Entry
	err     error
	done    bool
}

func (c *rowsCursor) Next() bool {
	if c.done {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.finish()
		return false
	}

	var row auditDatamodel.Entry
	if err := c.rows.StructScan(&row); err != nil {
		c.err = err
		c.finish()
		return false
	}
	entry, err := audit.FromDataModel(&row)
	if err != nil {
		c.err = err
		c.finish()
		return false
	}
	c.current = entry
	return true
}

func (c *rowsCursor) Entry() audit.Entry {
	return c.current
}

func (c *rowsCursor) Err() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", audit.ErrSinkUnavailable, c.err)
	}
	return nil
}

func (c *rowsCursor) Close() error {
	c.finish()
	return nil
}

func (c *rowsCursor) finish() {
	if c.done {
		return
	}
	c.done = true
	c.current = audit.Entry{}
	_ = c.rows.Close()
}

type snapshotCursor struct {
	entries []audit.Entry
	pos     int
	closed  bool
}

func (c *snapshotCursor) Next() bool {
	if c.closed || c.pos >= len(c.entries)-1 {
		c.closed = true
		return false
	}
	c.pos++
	return true
}

func (c *snapshotCursor) Entry() audit.Entry {
	if c.closed || c.pos < 0 {
		return audit.Entry{}
	}
	return c.entries[c.pos]
}

func (c *snapshotCursor) Err() error { return nil }

func (c *snapshotCursor) Close() error {
	c.closed = true
	return nil
}
