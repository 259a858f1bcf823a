package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Recorder persists and queries the audit trail
type Recorder interface {
	Record(ctx context.Context, event *Event) error
	Search(ctx context.Context, filter Filter) ([]*Event, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// DBRecorder writes audit events to PostgreSQL. The audit_events table is
// created by the schema migrations, not here.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a database-backed audit recorder
func NewDBRecorder(db *sql.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

// Record inserts the event and fills in its ID and creation time. Callers on
// the request path treat failures as best-effort and log rather than fail
// the request.
func (r *DBRecorder) Record(ctx context.Context, event *Event) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_events (account_id, action, target_key, outcome, ip_address, user_agent, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		event.AccountID, event.Action, event.TargetKey, event.Outcome,
		event.IPAddress, event.UserAgent, event.RequestID, event.Detail,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns events matching the filter, newest first
func (r *DBRecorder) Search(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `
		SELECT id, account_id, action, target_key, outcome, ip_address, user_agent, request_id, detail, created_at
		FROM audit_events
		WHERE 1=1`

	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.AccountID != nil {
		query += " AND account_id = " + arg(*filter.AccountID)
	}
	if filter.Action != "" {
		query += " AND action = " + arg(string(filter.Action))
	}
	if filter.Outcome != "" {
		query += " AND outcome = " + arg(string(filter.Outcome))
	}
	if filter.Start != nil {
		query += " AND created_at >= " + arg(*filter.Start)
	}
	if filter.End != nil {
		query += " AND created_at <= " + arg(*filter.End)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event := &Event{}
		var accountID sql.NullInt64
		var targetKey, ipAddress, userAgent, requestID, detail sql.NullString

		err := rows.Scan(
			&event.ID, &accountID, &event.Action, &targetKey, &event.Outcome,
			&ipAddress, &userAgent, &requestID, &detail, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if accountID.Valid {
			event.AccountID = &accountID.Int64
		}
		event.TargetKey = targetKey.String
		event.IPAddress = ipAddress.String
		event.UserAgent = userAgent.String
		event.RequestID = requestID.String
		event.Detail = detail.String

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Cleanup deletes events recorded before the cutoff and returns how many
// rows were removed. The janitor calls this on its retention schedule.
func (r *DBRecorder) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}
	return result.RowsAffected()
}
