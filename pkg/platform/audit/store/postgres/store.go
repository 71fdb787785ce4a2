package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	id "opgate/pkg/domain"
	audit "opgate/pkg/platform/audit"
	"opgate/pkg/platform/sentinel"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Schema creates the audit table. seq carries insertion order because
// timestamps may repeat.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq           BIGSERIAL   PRIMARY KEY,
	id            UUID        NOT NULL UNIQUE,
	operator_code TEXT        NOT NULL,
	operator_role TEXT        NOT NULL,
	operation     TEXT        NOT NULL,
	unit_id       TEXT        NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	status        TEXT        NOT NULL,
	details       TEXT        NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_operator_idx ON audit_entries (operator_code);
CREATE INDEX IF NOT EXISTS audit_entries_unit_idx ON audit_entries (unit_id);
`

// Store implements audit.Store on PostgreSQL. It works with either the lib/pq
// ("postgres") or pgx stdlib ("pgx") database/sql driver.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Append inserts one entry. The insert is committed before it returns.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	query := `
		INSERT INTO audit_entries (
			id, operator_code, operator_role, operation,
			unit_id, timestamp, status, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		entry.OperatorCode.String(),
		entry.OperatorRole,
		entry.Operation,
		nullString(entry.UnitID.String()),
		entry.Timestamp,
		string(entry.Status),
		nullString(entry.Details),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert audit entry %s: %w", entry.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Load returns every entry in insertion order.
func (s *Store) Load(ctx context.Context) ([]audit.Entry, error) {
	query := `
		SELECT id, operator_code, operator_role, operation,
			   unit_id, timestamp, status, details
		FROM audit_entries
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return s.scanEntries(rows)
}

func (s *Store) scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := []audit.Entry{}

	for rows.Next() {
		var (
			entryID uuid.UUID
			code    string
			status  string
			unitID  sql.NullString
			details sql.NullString
			entry   audit.Entry
		)

		err := rows.Scan(
			&entryID,
			&code,
			&entry.OperatorRole,
			&entry.Operation,
			&unitID,
			&entry.Timestamp,
			&status,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.EntryID(entryID)
		entry.OperatorCode = id.OperatorCode(code)
		entry.Status = audit.Status(status)
		entry.UnitID = id.UnitID(unitID.String)
		entry.Details = details.String
		entry.Timestamp = entry.Timestamp.UTC()

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
