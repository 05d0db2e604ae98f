package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/webstack-labs/auth_gateway/internal/securitylog"
)

var _ securitylog.Store = (*Store)(nil)

// AppendEntry inserts one security log record. The table carries no UPDATE or
// DELETE path; entries are append-only by construction.
func (s *Store) AppendEntry(ctx context.Context, entry securitylog.Entry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_log (id, action, account_id, email_masked, success, detail, metadata, severity, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.Action, entry.AccountID, entry.EmailMasked, entry.Success,
		entry.Detail, metadata, string(entry.Severity), entry.CreatedAt)
	return err
}

func (s *Store) QueryByAccount(ctx context.Context, accountID string, limit int) ([]securitylog.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT id, action, COALESCE(account_id, ''), email_masked, success, detail, metadata, severity, created_at
		FROM security_log WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
}

func (s *Store) QueryByAction(ctx context.Context, action string, limit int) ([]securitylog.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT id, action, COALESCE(account_id, ''), email_masked, success, detail, metadata, severity, created_at
		FROM security_log WHERE action = $1
		ORDER BY created_at DESC LIMIT $2
	`, action, limit)
}

func (s *Store) queryEntries(ctx context.Context, query, key string, limit int) ([]securitylog.Entry, error) {
	if limit <= 0 || limit > securitylog.DefaultPageSize {
		limit = securitylog.DefaultPageSize
	}

	rows, err := s.db.QueryContext(ctx, query, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []securitylog.Entry
	for rows.Next() {
		var entry securitylog.Entry
		var metadata sql.NullString
		var severity string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.AccountID, &entry.EmailMasked,
			&entry.Success, &entry.Detail, &metadata, &severity, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Severity = securitylog.Severity(severity)
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
