package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outboxbridge/core/outbox"
)

var (
	// ErrConnectionRequired is returned when a nil connection client is supplied.
	ErrConnectionRequired = errors.New("postgres: connection client is required")

	// ErrNoPrimaryDB is returned when the resolver has no usable primary connection.
	ErrNoPrimaryDB = errors.New("postgres: resolver returned no primary database")
)

const (
	defaultOutboxTable = "outbox_entries"
	defaultEntityTable = "domain_entities"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("postgres: invalid identifier %q", name)
	}

	return nil
}

// quoteIdentifier double-quotes a validated identifier for safe interpolation
// into SQL that database/sql's placeholder syntax can't parameterize (table
// and column names).
func quoteIdentifier(name string) (string, error) {
	if err := validateIdentifier(name); err != nil {
		return "", err
	}

	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// Repository implements outbox.OutboxStore and outbox.IntentStore against the
// schema described in the EXTERNAL INTERFACES contract: an outbox_entries
// table backing OutboxStore, cross-referenced with a domain_entities table
// that carries the business-visible ledger status.
type Repository struct {
	client      resolverProvider
	outboxTable string
	entityTable string
}

// RepositoryOption configures a Repository at construction time.
type RepositoryOption func(*Repository)

// WithTableNames overrides the default outbox_entries/domain_entities table
// names. Both must be valid unquoted SQL identifiers.
func WithTableNames(outboxTable, entityTable string) RepositoryOption {
	return func(r *Repository) {
		if outboxTable != "" {
			r.outboxTable = outboxTable
		}

		if entityTable != "" {
			r.entityTable = entityTable
		}
	}
}

// NewRepository builds a Repository against client, validating the
// configured table identifiers up front so malformed configuration fails at
// construction rather than on the first query.
func NewRepository(client resolverProvider, opts ...RepositoryOption) (*Repository, error) {
	if client == nil {
		return nil, ErrConnectionRequired
	}

	r := &Repository{
		client:      client,
		outboxTable: defaultOutboxTable,
		entityTable: defaultEntityTable,
	}

	for _, opt := range opts {
		opt(r)
	}

	if _, err := quoteIdentifier(r.outboxTable); err != nil {
		return nil, err
	}

	if _, err := quoteIdentifier(r.entityTable); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Repository) db(ctx context.Context) (*sql.DB, error) {
	return resolvePrimaryDB(ctx, r.client)
}

// WriteIntent implements outbox.IntentStore: a single transaction inserts
// both the domain entity and its paired outbox entry, per §4.1.
func (r *Repository) WriteIntent(ctx context.Context, entity *outbox.DomainEntity, entry *outbox.OutboxEntry) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin write_intent tx: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck

	entityQuery := fmt.Sprintf(
		`INSERT INTO %s (id, content_hash, payload_fields, ledger_status, ledger_retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		mustQuoteTable(r.entityTable),
	)

	if _, err := tx.ExecContext(ctx, entityQuery,
		entity.ID, entity.ContentHash, entity.PayloadFields, string(entity.LedgerStatus), entity.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert domain entity: %w", err)
	}

	entryQuery := fmt.Sprintf(
		`INSERT INTO %s (id, aggregate_id, payload, status, retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		mustQuoteTable(r.outboxTable),
	)

	if _, err := tx.ExecContext(ctx, entryQuery,
		entry.ID, entry.AggregateID, entry.Payload, string(entry.Status), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit write_intent tx: %w", err)
	}

	return nil
}

// Claim implements the claim half of I2: an ordered, non-blocking lease over
// up to limit eligible rows, per §4.2.1.
func (r *Repository) Claim(ctx context.Context, limit int, now time.Time) ([]*outbox.OutboxEntry, error) {
	db, err := r.db(ctx)
	if err != nil {
		return nil, err
	}

	table := mustQuoteTable(r.outboxTable)

	query := fmt.Sprintf(`
		WITH claimable AS (
			SELECT id FROM %[1]s
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
			ORDER BY next_retry_at ASC NULLS FIRST, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE %[1]s AS o
		SET status = 'processing', updated_at = $1
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING o.id, o.aggregate_id, o.payload, o.status, o.created_at, o.updated_at,
		          o.retry_count, o.next_retry_at, o.attempt_blockhash`,
		table,
	)

	rows, err := db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: claim: %w", err)
	}
	defer rows.Close()

	var claimed []*outbox.OutboxEntry

	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan claimed entry: %w", err)
		}

		claimed = append(claimed, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: claim rows: %w", err)
	}

	return claimed, nil
}

// Complete implements §4.2.2: Processing -> Completed, cross-table signature
// recorded within one transaction. Idempotent against an already-Completed row.
func (r *Repository) Complete(ctx context.Context, entryID uuid.UUID, signature string, now time.Time) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin complete tx: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck

	aggregateID, alreadyDone, err := r.transitionOutboxEntry(ctx, tx, entryID, outbox.StatusCompleted, now)
	if err != nil {
		return err
	}

	if alreadyDone {
		return tx.Commit()
	}

	entityQuery := fmt.Sprintf(
		`UPDATE %s SET ledger_status = $1, ledger_signature = $2, updated_at = $3 WHERE id = $4`,
		mustQuoteTable(r.entityTable),
	)

	if _, err := tx.ExecContext(ctx, entityQuery, string(outbox.LedgerStatusConfirmed), signature, now, aggregateID); err != nil {
		return fmt.Errorf("postgres: update entity on complete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit complete tx: %w", err)
	}

	return nil
}

// Reschedule implements §4.2.3: Processing -> Pending with the sticky
// blockhash handed back verbatim by the caller's classification.
func (r *Repository) Reschedule(ctx context.Context, entryID uuid.UUID, delay time.Duration, pinnedBlockhash string, now time.Time) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin reschedule tx: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck

	nextRetryAt := now.Add(delay)

	query := fmt.Sprintf(
		`UPDATE %s SET status = 'pending', retry_count = retry_count + 1, next_retry_at = $1,
		     attempt_blockhash = $2, updated_at = $3
		 WHERE id = $4 AND status = 'processing'
		 RETURNING aggregate_id, retry_count`,
		mustQuoteTable(r.outboxTable),
	)

	var aggregateID string

	var retryCount int

	row := tx.QueryRowContext(ctx, query, nextRetryAt, nullableString(pinnedBlockhash), now, entryID)
	if err := row.Scan(&aggregateID, &retryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existsQuery := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, mustQuoteTable(r.outboxTable))

			var current string

			lookupErr := tx.QueryRowContext(ctx, existsQuery, entryID).Scan(&current)
			if lookupErr != nil && !errors.Is(lookupErr, sql.ErrNoRows) {
				return fmt.Errorf("postgres: lookup entry status: %w", lookupErr)
			}

			if status := outbox.OutboxStatus(current); status == outbox.StatusCompleted || status == outbox.StatusFailed {
				return outbox.ErrAlreadyTerminal
			}

			return outbox.ErrNotFound
		}

		return fmt.Errorf("postgres: reschedule: %w", err)
	}

	entityQuery := fmt.Sprintf(
		`UPDATE %s SET ledger_status = $1, ledger_retry_count = $2, ledger_next_retry_at = $3, updated_at = $4
		 WHERE id = $5`,
		mustQuoteTable(r.entityTable),
	)

	if _, err := tx.ExecContext(ctx, entityQuery, string(outbox.LedgerStatusPendingSubmission), retryCount, nextRetryAt, now, aggregateID); err != nil {
		return fmt.Errorf("postgres: update entity on reschedule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit reschedule tx: %w", err)
	}

	return nil
}

// Fail implements §4.2.4: terminal Processing -> Failed with the reason
// recorded on the paired entity within the same transaction.
func (r *Repository) Fail(ctx context.Context, entryID uuid.UUID, reason string, now time.Time) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin fail tx: %w", err)
	}

	defer tx.Rollback() //nolint:errcheck

	aggregateID, alreadyDone, err := r.transitionOutboxEntry(ctx, tx, entryID, outbox.StatusFailed, now)
	if err != nil {
		return err
	}

	if alreadyDone {
		return tx.Commit()
	}

	entityQuery := fmt.Sprintf(
		`UPDATE %s SET ledger_status = $1, ledger_last_error = $2, updated_at = $3 WHERE id = $4`,
		mustQuoteTable(r.entityTable),
	)

	if _, err := tx.ExecContext(ctx, entityQuery, string(outbox.LedgerStatusFailed), reason, now, aggregateID); err != nil {
		return fmt.Errorf("postgres: update entity on fail: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit fail tx: %w", err)
	}

	return nil
}

// transitionOutboxEntry moves entryID from Processing to target, clearing
// attempt_blockhash. It returns alreadyDone=true when the row is already in
// target (the idempotent no-op path Complete relies on).
func (r *Repository) transitionOutboxEntry(ctx context.Context, tx *sql.Tx, entryID uuid.UUID, target outbox.OutboxStatus, now time.Time) (aggregateID string, alreadyDone bool, err error) {
	table := mustQuoteTable(r.outboxTable)

	query := fmt.Sprintf(
		`UPDATE %s SET status = $1, attempt_blockhash = NULL, updated_at = $2
		 WHERE id = $3 AND status = 'processing'
		 RETURNING aggregate_id`,
		table,
	)

	row := tx.QueryRowContext(ctx, query, string(target), now, entryID)
	if err := row.Scan(&aggregateID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("postgres: transition to %s: %w", target, err)
		}

		// Either the row doesn't exist, or it is already terminal (I4) — the
		// caller treats re-applying a terminal transition as a no-op.
		existsQuery := fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, table)

		var current string

		if err := tx.QueryRowContext(ctx, existsQuery, entryID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", false, outbox.ErrNotFound
			}

			return "", false, fmt.Errorf("postgres: lookup entry status: %w", err)
		}

		if currentStatus := outbox.OutboxStatus(current); currentStatus == target {
			return "", true, nil
		}

		return "", false, outbox.ErrAlreadyTerminal
	}

	return aggregateID, false, nil
}

// ReclaimZombies implements §4.2.5: a bulk age-threshold sweep that does not
// touch retry_count or attempt_blockhash.
func (r *Repository) ReclaimZombies(ctx context.Context, ageThreshold time.Duration, now time.Time) (int, error) {
	db, err := r.db(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-ageThreshold)

	query := fmt.Sprintf(
		`UPDATE %s SET status = 'pending', updated_at = $1 WHERE status = 'processing' AND updated_at < $2`,
		mustQuoteTable(r.outboxTable),
	)

	result, err := db.ExecContext(ctx, query, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: reclaim zombies: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: reclaim zombies rows affected: %w", err)
	}

	return int(affected), nil
}

// Ping satisfies outbox.Pinger so Health can probe storage reachability.
func (r *Repository) Ping(ctx context.Context) error {
	db, err := r.db(ctx)
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

func scanOutboxEntry(rows *sql.Rows) (*outbox.OutboxEntry, error) {
	var (
		entry      outbox.OutboxEntry
		status     string
		blockhash  sql.NullString
		nextRetry  sql.NullTime
	)

	if err := rows.Scan(
		&entry.ID, &entry.AggregateID, &entry.Payload, &status, &entry.CreatedAt, &entry.UpdatedAt,
		&entry.RetryCount, &nextRetry, &blockhash,
	); err != nil {
		return nil, err
	}

	parsed, err := outbox.ParseOutboxStatus(status)
	if err != nil {
		return nil, err
	}

	entry.Status = parsed
	entry.AttemptBlockhash = blockhash.String

	if nextRetry.Valid {
		t := nextRetry.Time
		entry.NextRetryAt = &t
	}

	return &entry, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mustQuoteTable(name string) string {
	quoted, err := quoteIdentifier(name)
	if err != nil {
		// Validated at NewRepository construction time; reaching here means a
		// Repository was built bypassing the constructor.
		panic(err)
	}

	return quoted
}
