package entryrepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

// RepoSQLite keeps the entry log in a SQLite file for single node deployments.
//
// Timestamps are stored as unix microseconds so that range filters compare integers.
type RepoSQLite struct {
	db *sql.DB
}

// NewRepoSQLite opens the database at path and creates the schema if needed.
// Use ":memory:" for an in-memory database.
func NewRepoSQLite(path string) (*RepoSQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	r := &RepoSQLite{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return r, nil
}

// Close closes the database connection.
func (r *RepoSQLite) Close() error {
	return r.db.Close()
}

func (r *RepoSQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		source_account_id TEXT NOT NULL,
		destination_account_id TEXT,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source
		ON entries(source_account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_destination
		ON entries(destination_account_id, created_at);
	`

	_, err := r.db.Exec(schema)

	return err
}

// Append stores the entry.
func (r *RepoSQLite) Append(ctx context.Context, e domain.Entry) error {
	l := zerolog.Ctx(ctx)

	var destination sql.NullString
	if dst := e.DestinationAccountID(); dst.Valid {
		destination = sql.NullString{String: dst.UUID.String(), Valid: true}
	}

	query := `
		INSERT INTO entries
		(id, source_account_id, destination_account_id, kind, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID().String(),
		e.SourceAccountID().String(),
		destination,
		string(e.Kind()),
		e.Amount().String(),
		e.Timestamp().UnixMicro(),
	)
	if err != nil {
		l.Error().Err(err).Str("entry_id", e.ID().String()).Send()
		return domain.ErrStorageFailure
	}

	return nil
}

// ListByAccount returns the entries where accountID is the source or the destination
// and whose timestamp is not after upTo. The order is unspecified.
func (r *RepoSQLite) ListByAccount(ctx context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	query := `
		SELECT id, source_account_id, destination_account_id, kind, amount, created_at
		FROM entries
		WHERE (source_account_id = ? OR destination_account_id = ?) AND created_at <= ?
	`

	id := accountID.String()

	rows, err := r.db.QueryContext(ctx, query, id, id, upTo.UnixMicro())
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}
	defer rows.Close()

	items := []domain.Entry{}

	for rows.Next() {
		var (
			entryID, source, kind, amount string
			destination                   sql.NullString
			createdAt                     int64
		)

		if err := rows.Scan(&entryID, &source, &destination, &kind, &amount, &createdAt); err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrStorageFailure
		}

		e, err := restoreSQLiteEntry(entryID, source, destination, kind, amount, createdAt)
		if err != nil {
			l.Error().Err(err).Str("entry_id", entryID).Msg("corrupt entry")
			return nil, domain.ErrStorageFailure
		}

		items = append(items, e)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}

	return items, nil
}

func restoreSQLiteEntry(id, source string, destination sql.NullString, kind, amount string, createdAt int64) (domain.Entry, error) {
	entryID, err := uuid.Parse(id)
	if err != nil {
		return domain.Entry{}, err
	}

	sourceID, err := uuid.Parse(source)
	if err != nil {
		return domain.Entry{}, err
	}

	var destinationID uuid.NullUUID
	if destination.Valid {
		if destinationID.UUID, err = uuid.Parse(destination.String); err != nil {
			return domain.Entry{}, err
		}
		destinationID.Valid = true
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Entry{}, err
	}

	return domain.RestoreEntry(
		entryID,
		sourceID,
		destinationID,
		domain.EntryKind(kind),
		moneypkg.FromDecimal(d),
		time.UnixMicro(createdAt),
	)
}
