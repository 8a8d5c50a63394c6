package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLQueue stores entries via database/sql. The statements run unchanged on
// Postgres (lib/pq) and SQLite (modernc.org/sqlite).
type SQLQueue struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLQueue(db *sql.DB) *SQLQueue {
	return &SQLQueue{db: db, clock: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS reconcile_entries (
	id TEXT PRIMARY KEY,
	token_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	wallet TEXT NOT NULL,
	record TEXT NOT NULL,
	archive_url TEXT,
	state TEXT NOT NULL,
	reason TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	leased_by TEXT,
	leased_until TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_reconcile_state ON reconcile_entries (state);
`

func (s *SQLQueue) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const selectColumns = `SELECT id, token_id, operation, tx_hash, wallet, record, archive_url, state, reason,
	retry_count, created_at, updated_at, leased_by, leased_until FROM reconcile_entries`

func (s *SQLQueue) Enqueue(ctx context.Context, e Entry) error {
	now := s.clock()
	if e.State == "" {
		e.State = StatePending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconcile_entries (id, token_id, operation, tx_hash, wallet, record, archive_url, state, reason, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, strconv.FormatUint(e.TokenID, 10), e.Operation, e.TxHash, e.Wallet, string(e.Record),
		e.ArchiveURL, string(e.State), e.Reason, e.RetryCount, now, now,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

func (s *SQLQueue) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

func (s *SQLQueue) AcquireLease(ctx context.Context, id, workerID string, duration time.Duration) (Entry, error) {
	now := s.clock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconcile_entries
		SET leased_by = $1, leased_until = $2
		WHERE id = $3 AND state = 'PENDING'
			AND (leased_until IS NULL OR leased_until < $4 OR leased_by = $1)`,
		workerID, now.Add(duration), id, now,
	)
	if err != nil {
		return Entry{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		e, getErr := s.Get(ctx, id)
		switch {
		case errors.Is(getErr, ErrNotFound):
			return Entry{}, ErrNotFound
		case getErr == nil && e.State != StatePending:
			return e, ErrNotPending
		}
		return Entry{}, ErrLeased
	}
	return s.Get(ctx, id)
}

func (s *SQLQueue) UpdateState(ctx context.Context, id string, state State, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconcile_entries
		SET state = $1, reason = $2, updated_at = $3, leased_by = NULL, leased_until = NULL
		WHERE id = $4`,
		string(state), reason, s.clock(), id,
	)
	return affectedOne(res, err)
}

func (s *SQLQueue) RecordFailure(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconcile_entries
		SET retry_count = retry_count + 1, state = $1, reason = $2, updated_at = $3, leased_by = NULL, leased_until = NULL
		WHERE id = $4`,
		string(StatePending), reason, s.clock(), id,
	)
	return affectedOne(res, err)
}

func (s *SQLQueue) ListPending(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, selectColumns+` WHERE state = $1 ORDER BY created_at, id`, string(StatePending))
}

func (s *SQLQueue) ListAll(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, selectColumns+` ORDER BY created_at, id`)
}

func (s *SQLQueue) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e           Entry
		tokenID     string
		record      string
		state       string
		archiveURL  sql.NullString
		reason      sql.NullString
		leasedBy    sql.NullString
		leasedUntil sql.NullTime
	)
	if err := sc.Scan(&e.ID, &tokenID, &e.Operation, &e.TxHash, &e.Wallet, &record, &archiveURL, &state,
		&reason, &e.RetryCount, &e.CreatedAt, &e.UpdatedAt, &leasedBy, &leasedUntil); err != nil {
		return Entry{}, err
	}
	id, err := strconv.ParseUint(tokenID, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: token id %q: %w", e.ID, tokenID, err)
	}
	e.TokenID = id
	e.Record = []byte(record)
	e.State = State(state)
	e.ArchiveURL = archiveURL.String
	e.Reason = reason.String
	e.LeasedBy = leasedBy.String
	if leasedUntil.Valid {
		e.LeasedUntil = leasedUntil.Time
	}
	return e, nil
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation matches the duplicate-key errors of lib/pq (SQLSTATE 23505) and SQLite.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
