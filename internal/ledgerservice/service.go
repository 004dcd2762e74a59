// Package ledgerservice manages business logic layer of the wallet ledger.
//
// Every balance mutation follows the same protocol: lock the account rows for update
// inside one unit of work, mutate the in-memory accounts, persist them, commit, append
// one entry to the log, evict the cached balances of the touched accounts.
package ledgerservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountRepo provides the account store needed by the ledger service.
//
// GetByIDForUpdate and GetByOwnerForUpdate lock the row until the WithinTx call that
// encloses them returns.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type AccountRepo interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	Exists(ctx context.Context, ownerID string) (bool, error)
	Create(ctx context.Context, a domain.Account) (domain.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetByOwner(ctx context.Context, ownerID string) (domain.Account, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error)
	GetByOwnerForUpdate(ctx context.Context, ownerID string) (domain.Account, error)
	Update(ctx context.Context, a domain.Account) error
}

// EntryRepo provides the append-only entry log needed by the ledger service.
type EntryRepo interface {
	Append(ctx context.Context, e domain.Entry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error)
}

// Publisher announces appended entries.
type Publisher interface {
	Publish(ctx context.Context, e domain.Entry) error
}

// DefaultHistorySettle is how far in the past asOf must lie before a historical balance
// is cached.
const DefaultHistorySettle = time.Minute

// Service facilitates ledger service layer logic.
type Service struct {
	accounts   AccountRepo
	entries    EntryRepo
	balances   Cache[domain.Balance]
	accountIDs Cache[uuid.UUID]
	publisher  Publisher
	now        func() time.Time
	settle     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher makes the service publish every appended entry with p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock replaces the clock used to clamp historical queries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistorySettle sets how old asOf must be for a historical balance to be cached.
// Entries are timestamped before they are appended, so a balance computed for a very
// recent asOf may still miss an entry that is being written.
func WithHistorySettle(d time.Duration) Option {
	return func(s *Service) { s.settle = d }
}

// New returns ledger service struct to manage ledger bussines logic.
func New(ar AccountRepo, er EntryRepo, balances Cache[domain.Balance], accountIDs Cache[uuid.UUID], opts ...Option) *Service {
	s := &Service{
		accounts:   ar,
		entries:    er,
		balances:   balances,
		accountIDs: accountIDs,
		now:        time.Now,
		settle:     DefaultHistorySettle,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateAccount opens the single account of ownerID.
func (s *Service) CreateAccount(ctx context.Context, ownerID string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	exists, err := s.accounts.Exists(ctx, ownerID)
	if err != nil {
		l.Error().Err(err).Str("owner_id", ownerID).Send()
		return domain.Account{}, err
	}

	if exists {
		l.Info().Str("owner_id", ownerID).Msg("account already exists")
		return domain.Account{}, domain.ErrAccountAlreadyExists
	}

	account, err := domain.NewAccount(ownerID)
	if err != nil {
		l.Info().Err(err).Send()
		return domain.Account{}, err
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		s.logFailure(ctx, err)
		return domain.Account{}, err
	}

	return created, nil
}

// Deposit credits amount to the referenced account and records a DEPOSIT entry.
func (s *Service) Deposit(ctx context.Context, ref domain.AccountRef, amount moneypkg.Money) (domain.Entry, error) {
	account, err := s.mutate(ctx, ref, func(a *domain.Account) error {
		return a.Credit(amount)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	entry, err := domain.NewDepositEntry(account.ID, amount)
	if err != nil {
		return domain.Entry{}, err
	}

	return s.record(ctx, entry, account)
}

// Withdraw debits amount from the referenced account and records a WITHDRAW entry.
// A rejected withdrawal leaves no entry.
func (s *Service) Withdraw(ctx context.Context, ref domain.AccountRef, amount moneypkg.Money) (domain.Entry, error) {
	account, err := s.mutate(ctx, ref, func(a *domain.Account) error {
		return a.Debit(amount)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	entry, err := domain.NewWithdrawEntry(account.ID, amount)
	if err != nil {
		return domain.Entry{}, err
	}

	return s.record(ctx, entry, account)
}

func (s *Service) mutate(ctx context.Context, ref domain.AccountRef, change func(a *domain.Account) error) (domain.Account, error) {
	var account domain.Account

	err := s.accounts.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.lock(ctx, ref)
		if err != nil {
			return err
		}

		if err := change(&a); err != nil {
			return err
		}

		if err := s.accounts.Update(ctx, a); err != nil {
			return err
		}

		account = a

		return nil
	})
	if err != nil {
		s.logFailure(ctx, err)
		return domain.Account{}, err
	}

	return account, nil
}

// Transfer moves amount from source to destination and records one TRANSFER entry.
//
// Both rows are locked in ascending id order whatever the direction of the transfer,
// so two opposite transfers between the same accounts cannot deadlock.
func (s *Service) Transfer(ctx context.Context, source, destination uuid.UUID, amount moneypkg.Money) (domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	if source == destination {
		l.Info().Str("account_id", source.String()).Msg("transfer to the same account")
		return domain.Entry{}, domain.ErrOperationNotAllowed
	}

	var src, dst domain.Account

	err := s.accounts.WithinTx(ctx, func(ctx context.Context) error {
		first, second := source, destination
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}

		locked := make(map[uuid.UUID]domain.Account, 2)

		for _, id := range []uuid.UUID{first, second} {
			a, err := s.lock(ctx, domain.RefByID(id))
			if err != nil {
				return err
			}

			locked[id] = a
		}

		src, dst = locked[source], locked[destination]

		if err := src.Debit(amount); err != nil {
			return err
		}

		if err := dst.Credit(amount); err != nil {
			return err
		}

		if err := s.accounts.Update(ctx, src); err != nil {
			return err
		}

		return s.accounts.Update(ctx, dst)
	})
	if err != nil {
		s.logFailure(ctx, err)
		return domain.Entry{}, err
	}

	entry, err := domain.NewTransferEntry(src.ID, dst.ID, amount)
	if err != nil {
		return domain.Entry{}, err
	}

	return s.record(ctx, entry, src, dst)
}

// lock reads the referenced account for update inside the current unit of work.
func (s *Service) lock(ctx context.Context, ref domain.AccountRef) (domain.Account, error) {
	var (
		a   domain.Account
		err error
	)

	if ref.ByOwner() {
		a, err = s.accounts.GetByOwnerForUpdate(ctx, ref.OwnerID)
	} else {
		a, err = s.accounts.GetByIDForUpdate(ctx, ref.ID)
	}

	return a, notFound(ref, err)
}

// get reads the referenced account without locking it.
func (s *Service) get(ctx context.Context, ref domain.AccountRef) (domain.Account, error) {
	var (
		a   domain.Account
		err error
	)

	if ref.ByOwner() {
		a, err = s.accounts.GetByOwner(ctx, ref.OwnerID)
	} else {
		a, err = s.accounts.GetByID(ctx, ref.ID)
	}

	return a, notFound(ref, err)
}

func notFound(ref domain.AccountRef, err error) error {
	if errors.Is(err, domain.ErrAccountNotFound) {
		return &domain.AccountNotFoundError{Ref: ref}
	}

	return err
}

// record appends entry after its balance change has committed, then evicts the cached
// balances of accounts. The eviction happens even if the append fails.
func (s *Service) record(ctx context.Context, entry domain.Entry, accounts ...domain.Account) (domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	appendErr := s.entries.Append(ctx, entry)

	s.evict(ctx, accounts...)

	if appendErr != nil {
		l.Error().Err(appendErr).
			Str("entry_id", entry.ID().String()).
			Str("kind", string(entry.Kind())).
			Msg("balance committed but entry was not appended")

		return domain.Entry{}, fmt.Errorf("append entry %s: %w", entry.ID(), domain.ErrStorageFailure)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			l.Warn().Err(err).Str("entry_id", entry.ID().String()).Msg("entry event not published")
		}
	}

	return entry, nil
}

func (s *Service) logFailure(ctx context.Context, err error) {
	l := zerolog.Ctx(ctx)

	if domain.IsClientError(err) {
		l.Info().Err(err).Send()
		return
	}

	l.Error().Err(err).Send()
}

// CurrentBalance returns the balance of the referenced account, from the cache when
// possible.
func (s *Service) CurrentBalance(ctx context.Context, ref domain.AccountRef) (domain.Balance, error) {
	key := currentBalanceKey(ref)

	if b, hit := s.cachedBalance(ctx, key); hit {
		return b, nil
	}

	account, err := s.get(ctx, ref)
	if err != nil {
		s.logFailure(ctx, err)
		return domain.Balance{}, err
	}

	b := domain.Balance{AccountID: account.ID, Balance: account.Balance}

	s.cacheBalance(ctx, key, b)

	return b, nil
}

// HistoricalBalance rebuilds the balance of the referenced account at asOf from the
// entry log. An asOf in the future is treated as now.
func (s *Service) HistoricalBalance(ctx context.Context, ref domain.AccountRef, asOf time.Time) (domain.Balance, error) {
	now := s.now()
	asOf = clamp(asOf, now)
	key := historicalBalanceKey(ref, asOf)

	if b, hit := s.cachedBalance(ctx, key); hit {
		return b, nil
	}

	account, entries, err := s.history(ctx, ref, asOf)
	if err != nil {
		return domain.Balance{}, err
	}

	b := domain.Balance{AccountID: account.ID, Balance: domain.FoldBalance(account.ID, entries)}

	if asOf.Before(now.Add(-s.settle)) {
		s.cacheBalance(ctx, key, b)
	}

	return b, nil
}

// Statement returns the entries of the referenced account up to asOf, oldest first.
func (s *Service) Statement(ctx context.Context, ref domain.AccountRef, asOf time.Time) ([]domain.Entry, error) {
	_, entries, err := s.history(ctx, ref, clamp(asOf, s.now()))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].Timestamp(), entries[j].Timestamp()
		if ti.Equal(tj) {
			a, b := entries[i].ID(), entries[j].ID()
			return bytes.Compare(a[:], b[:]) < 0
		}

		return ti.Before(tj)
	})

	return entries, nil
}

func (s *Service) history(ctx context.Context, ref domain.AccountRef, asOf time.Time) (domain.Account, []domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	account, err := s.get(ctx, ref)
	if err != nil {
		s.logFailure(ctx, err)
		return domain.Account{}, nil, err
	}

	entries, err := s.entries.ListByAccount(ctx, account.ID, asOf)
	if err != nil {
		l.Error().Err(err).Str("account_id", account.ID.String()).Send()
		return domain.Account{}, nil, fmt.Errorf("list entries: %w", domain.ErrStorageFailure)
	}

	return account, entries, nil
}

// clamp limits asOf to now and truncates it to the microsecond precision of entry
// timestamps.
func clamp(asOf, now time.Time) time.Time {
	if asOf.After(now) {
		asOf = now
	}

	return asOf.UTC().Truncate(time.Microsecond)
}

// AccountID returns the id of ownerID's account.
func (s *Service) AccountID(ctx context.Context, ownerID string) (uuid.UUID, error) {
	l := zerolog.Ctx(ctx)
	key := accountIDKey(ownerID)

	id, hit, err := s.accountIDs.Get(ctx, key)
	if err != nil {
		l.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}

	if hit {
		return id, nil
	}

	account, err := s.get(ctx, domain.RefByOwner(ownerID))
	if err != nil {
		s.logFailure(ctx, err)
		return uuid.Nil, err
	}

	if err := s.accountIDs.Put(ctx, key, account.ID); err != nil {
		l.Warn().Err(err).Str("key", key).Msg("cache put failed")
	}

	return account.ID, nil
}
