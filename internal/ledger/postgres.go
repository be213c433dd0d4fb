package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore keeps the ledger in a single Postgres table. It is an
// alternative to DynamoDB for deployments that already run Postgres.
type PostgresStore struct {
	db    *sql.DB
	table string
	index string
}

// NewPostgresStore creates a Postgres-backed ledger using the given table.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = "support_communications"
	}
	return &PostgresStore{
		db:    db,
		table: pq.QuoteIdentifier(table),
		index: pq.QuoteIdentifier(table + "_sync_flag_time_created_idx"),
	}
}

// EnsureSchema creates the table and its processing index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			communication_id TEXT PRIMARY KEY,
			case_id          TEXT NOT NULL,
			display_id       TEXT NOT NULL,
			subject          TEXT NOT NULL DEFAULT '',
			body             TEXT NOT NULL DEFAULT '',
			submitted_by     TEXT NOT NULL DEFAULT '',
			time_created     TEXT NOT NULL,
			sort_order       INTEGER NOT NULL,
			sync_flag        SMALLINT NOT NULL DEFAULT 0
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (sync_flag, time_created)`, s.index, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring ledger schema: %w", err)
		}
	}
	return nil
}

// PutIfAbsent inserts rec; zero affected rows means the id already existed
func (s *PostgresStore) PutIfAbsent(ctx context.Context, rec Record) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (communication_id, case_id, display_id, subject, body, submitted_by, time_created, sort_order, sync_flag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (communication_id) DO NOTHING`, s.table),
		rec.CommunicationID, rec.CaseID, rec.DisplayID, rec.Subject, rec.Body,
		rec.SubmittedBy, rec.TimeCreated, rec.SortOrder, rec.SyncFlag)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.CommunicationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.CommunicationID, err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// MarkSynced sets sync_flag = 1 on one record
func (s *PostgresStore) MarkSynced(ctx context.Context, communicationID string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET sync_flag = $1 WHERE communication_id = $2`, s.table),
		Synced, communicationID)
	if err != nil {
		return fmt.Errorf("updating %s: %w", communicationID, err)
	}
	return nil
}

// QueryBySyncFlag reads through the (sync_flag, time_created) index
func (s *PostgresStore) QueryBySyncFlag(ctx context.Context, flag int, after time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT communication_id, case_id, display_id, subject, body, submitted_by, time_created, sort_order, sync_flag
		FROM %s
		WHERE sync_flag = $1 AND time_created > $2`, s.table),
		flag, FormatTime(after))
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.CommunicationID, &r.CaseID, &r.DisplayID, &r.Subject, &r.Body,
			&r.SubmittedBy, &r.TimeCreated, &r.SortOrder, &r.SyncFlag); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
