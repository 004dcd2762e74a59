// Package entryrepo manages repository layer of ledger entries.
//
// Entries are append-only: every implementation offers Append and a range read by
// account, and none of them updates or deletes a stored entry.
package entryrepo

import (
	"context"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates entry repository layer logic on PostgreSQL.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns entry RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{db: db}
}

const appendQuery = `
INSERT INTO
    entries (id, source_account_id, destination_account_id, kind, amount, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6)
`

// Append stores the entry.
func (r *RepoPGS) Append(ctx context.Context, e domain.Entry) error {
	l := zerolog.Ctx(ctx)

	_, err := dbpkg.Conn(ctx, r.db).ExecContext(ctx, appendQuery,
		e.ID(),
		e.SourceAccountID(),
		e.DestinationAccountID(),
		string(e.Kind()),
		e.Amount(),
		e.Timestamp(),
	)
	if err != nil {
		l.Error().Err(err).Str("entry_id", e.ID().String()).Send()
		return domain.ErrStorageFailure
	}

	return nil
}

const listByAccountQuery = `
SELECT id, source_account_id, destination_account_id, kind, amount, created_at FROM entries
WHERE (source_account_id = $1 OR destination_account_id = $1) AND created_at <= $2
`

// ListByAccount returns the entries where accountID is the source or the destination
// and whose timestamp is not after upTo. The order is unspecified.
func (r *RepoPGS) ListByAccount(ctx context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	rows, err := dbpkg.Conn(ctx, r.db).QueryContext(ctx, listByAccountQuery, accountID, upTo)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}
	defer rows.Close()

	items := []domain.Entry{}

	for rows.Next() {
		var (
			id, source  uuid.UUID
			destination uuid.NullUUID
			kind        string
			amount      moneypkg.Money
			createdAt   time.Time
		)

		if err := rows.Scan(&id, &source, &destination, &kind, &amount, &createdAt); err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrStorageFailure
		}

		e, err := domain.RestoreEntry(id, source, destination, domain.EntryKind(kind), amount, createdAt)
		if err != nil {
			l.Error().Err(err).Str("entry_id", id.String()).Msg("corrupt entry")
			return nil, domain.ErrStorageFailure
		}

		items = append(items, e)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}

	return items, nil
}
