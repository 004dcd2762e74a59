// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Postgres error codes and constraints the repository translates.
const (
	codeUniqueViolation   = "23505"
	codeCheckViolation    = "23514"
	codeLockNotAvailable  = "55P03"
	codeQueryCanceled     = "57014"
	constraintOwnerUnique = "accounts_owner_id_key"
	constraintBalance     = "accounts_balance_check"
)

// RepoPGS facilitates account repository layer logic on PostgreSQL.
type RepoPGS struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewRepoPGS returns account RepoPGS.
//
// A positive lockTimeout bounds how long GetByIDForUpdate and GetByOwnerForUpdate wait
// for a row held by another transaction.
func NewRepoPGS(db *sql.DB, lockTimeout time.Duration) *RepoPGS {
	return &RepoPGS{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

// WithinTx runs fn in a transaction. Row locks taken by the *ForUpdate methods are held
// until fn returns and the transaction commits or rolls back.
func (r *RepoPGS) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var setup []string
	if r.lockTimeout > 0 {
		setup = append(setup, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
	}

	var fnErr error

	err := dbpkg.RunInTx(ctx, r.db, func(ctx context.Context) error {
		fnErr = fn(ctx)
		return fnErr
	}, setup...)
	if err != nil {
		if fnErr != nil {
			return fnErr
		}

		return mapError(err)
	}

	return nil
}

const existsQuery = `
SELECT EXISTS (SELECT 1 FROM accounts WHERE owner_id = $1)
`

// Exists reports whether the owner already has an account.
func (r *RepoPGS) Exists(ctx context.Context, ownerID string) (bool, error) {
	l := zerolog.Ctx(ctx)

	var exists bool

	err := dbpkg.Conn(ctx, r.db).QueryRowContext(ctx, existsQuery, ownerID).Scan(&exists)
	if err != nil {
		l.Error().Err(err).Send()
		return false, mapError(err)
	}

	return exists, nil
}

const createQuery = `
INSERT INTO
    accounts (id, owner_id, balance, created_at)
VALUES
    ($1, $2, $3, $4)
RETURNING id, owner_id, balance, created_at
`

// Create creates the account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, a domain.Account) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := dbpkg.Conn(ctx, r.db).QueryRowContext(ctx, createQuery, a.ID, a.OwnerID, a.Balance, a.CreatedAt)

	created, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %+v)", a)
		return domain.Account{}, mapError(err)
	}

	return created, nil
}

const selectColumns = `
SELECT
	id, owner_id, balance, created_at
FROM accounts
`

const (
	getByIDQuery             = selectColumns + `WHERE id = $1`
	getByOwnerQuery          = selectColumns + `WHERE owner_id = $1`
	getByIDForUpdateQuery    = getByIDQuery + ` FOR UPDATE`
	getByOwnerForUpdateQuery = getByOwnerQuery + ` FOR UPDATE`
)

// GetByID returns the account with the given id without locking it.
func (r *RepoPGS) GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return r.get(ctx, getByIDQuery, id)
}

// GetByOwner returns the account of the given owner without locking it.
func (r *RepoPGS) GetByOwner(ctx context.Context, ownerID string) (domain.Account, error) {
	return r.get(ctx, getByOwnerQuery, ownerID)
}

// GetByIDForUpdate returns the account with the given id and locks its row until the
// enclosing WithinTx finishes.
func (r *RepoPGS) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	return r.get(ctx, getByIDForUpdateQuery, id)
}

// GetByOwnerForUpdate returns the account of the given owner and locks its row until the
// enclosing WithinTx finishes.
func (r *RepoPGS) GetByOwnerForUpdate(ctx context.Context, ownerID string) (domain.Account, error) {
	return r.get(ctx, getByOwnerForUpdateQuery, ownerID)
}

func (r *RepoPGS) get(ctx context.Context, query string, arg interface{}) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(dbpkg.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, mapError(err)
	}

	return a, nil
}

const updateQuery = `
UPDATE accounts
SET balance = $1
WHERE id = $2
`

// Update persists the balance of the account.
func (r *RepoPGS) Update(ctx context.Context, a domain.Account) error {
	l := zerolog.Ctx(ctx)

	res, err := dbpkg.Conn(ctx, r.db).ExecContext(ctx, updateQuery, a.Balance, a.ID)
	if err != nil {
		l.Error().Err(err).Send()
		return mapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return domain.ErrStorageFailure
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Balance,
		&a.CreatedAt,
	)
	if err != nil {
		return domain.Account{}, err
	}

	a.CreatedAt = a.CreatedAt.UTC()

	return a, nil
}

func mapError(err error) error {
	if errors.Is(err, domain.ErrAccountNotFound) ||
		errors.Is(err, domain.ErrBusy) ||
		errors.Is(err, domain.ErrStorageFailure) ||
		errors.Is(err, domain.ErrAccountAlreadyExists) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrBusy
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation && pqErr.Constraint == constraintOwnerUnique:
			return domain.ErrAccountAlreadyExists
		case pqErr.Code == codeCheckViolation && pqErr.Constraint == constraintBalance:
			return domain.ErrInsufficientFunds
		case pqErr.Code == codeLockNotAvailable, pqErr.Code == codeQueryCanceled:
			return domain.ErrBusy
		}
	}

	return domain.ErrStorageFailure
}
