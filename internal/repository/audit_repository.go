package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogRepository defines the interface for the append-only audit log.
// Entries are never updated or deleted here; retention is an operations concern.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *AuditLog) error
	// List returns a page of entries joined with the acting user's name and
	// email, newest first, plus the total entry count for pagination
	List(ctx context.Context, page, limit int) ([]*AuditLogWithUser, int64, error)
}

// auditLogRepository implements AuditLogRepository using PostgreSQL
type auditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository instance
func NewAuditLogRepository(pool *pgxpool.Pool) AuditLogRepository {
	return &auditLogRepository{pool: pool}
}

// Create appends one audit entry
func (r *auditLogRepository) Create(ctx context.Context, entry *AuditLog) error {
	query := `
		INSERT INTO audit_logs (user_id, action, details, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, timestamp
	`

	return r.pool.QueryRow(ctx, query,
		entry.UserID,
		entry.Action,
		entry.Details,
		entry.IP,
		entry.UserAgent,
	).Scan(&entry.ID, &entry.Timestamp)
}

// List returns a timestamp-descending page with user identity joined on.
// The LEFT JOIN keeps pre-auth entries (nil user) and entries whose user
// has since been deleted.
func (r *auditLogRepository) List(ctx context.Context, page, limit int) ([]*AuditLogWithUser, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT a.id, a.user_id, a.action, a.details, a.ip, a.user_agent, a.timestamp,
		       u.name, u.email
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.timestamp DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*AuditLogWithUser
	for rows.Next() {
		entry := &AuditLogWithUser{}
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Action,
			&entry.Details,
			&entry.IP,
			&entry.UserAgent,
			&entry.Timestamp,
			&entry.UserName,
			&entry.UserEmail,
		); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}
