package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// auditColumns is the audit_logs insert order used by Entry.args.
var auditColumns = []string{
	"id", "actor", "role", "action", "resource_type", "resource_id",
	"metadata", "payload_digest", "ip", "user_agent", "created_at",
}

var insertAuditSQL = fmt.Sprintf(
	"INSERT INTO audit_logs (%s) VALUES (%s)",
	strings.Join(auditColumns, ", "),
	placeholders(len(auditColumns)),
)

// Repository stores device audit entries in audit_logs.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository returns nil for a nil db so callers can leave auditing off.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db, now: time.Now}
}

// Log writes entry, filling in its id and timestamp when unset.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if _, err := r.db.ExecContext(ctx, insertAuditSQL, entry.args()...); err != nil {
		return fmt.Errorf("audit repo: insert %s on device %d: %w", entry.Action, entry.DeviceID, err)
	}
	return nil
}

func (e Entry) args() []any {
	// NULL metadata keeps rows without a payload distinguishable from "{}".
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}
	return []any{
		e.ID,
		e.Actor,
		e.Role,
		e.Action,
		ResourceDevice,
		strconv.FormatInt(e.DeviceID, 10),
		metadata,
		DigestJSON(e.Metadata),
		e.IP,
		e.UserAgent,
		e.CreatedAt.UTC(),
	}
}

func placeholders(n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(marks, ", ")
}
