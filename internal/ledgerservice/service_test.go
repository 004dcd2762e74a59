package ledgerservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-petr/pet-ledger/internal/balancecache"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func randomAccount(t *testing.T, balance string) domain.Account {
	t.Helper()

	a, err := domain.NewAccount(randompkg.Owner())
	require.NoError(t, err)

	a.Balance = moneypkg.FromDecimal(decimal.RequireFromString(balance))

	return a
}

// runTx makes the WithinTx mock run its callback like a real unit of work.
func runTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func newMockedService(t *testing.T) (*Service, *MockAccountRepo, *MockEntryRepo, *balancecache.Typed[domain.Balance]) {
	ctrl := gomock.NewController(t)

	accounts := NewMockAccountRepo(ctrl)
	entries := NewMockEntryRepo(ctrl)

	backend := balancecache.NewMemory()
	balances := balancecache.NewTyped[domain.Balance](backend, "", 0)
	ids := balancecache.NewTyped[uuid.UUID](backend, "", 0)

	return New(accounts, entries, balances, ids), accounts, entries, balances
}

func TestCreateAccount(t *testing.T) {
	owner := randompkg.Owner()

	testCases := []struct {
		name          string
		owner         string
		buildStubs    func(accounts *MockAccountRepo)
		checkResponse func(t *testing.T, res domain.Account, err error)
	}{
		{
			name:  "OK",
			owner: owner,
			buildStubs: func(accounts *MockAccountRepo) {
				accounts.EXPECT().Exists(gomock.Any(), gomock.Eq(owner)).Times(1).Return(false, nil)
				accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Times(1).
					DoAndReturn(func(_ context.Context, a domain.Account) (domain.Account, error) {
						return a, nil
					})
			},
			checkResponse: func(t *testing.T, res domain.Account, err error) {
				require.NoError(t, err)
				require.Equal(t, owner, res.OwnerID)
				require.NotEqual(t, uuid.Nil, res.ID)
				require.Equal(t, "0.00", res.Balance.String())
			},
		},
		{
			name:  "AlreadyExists",
			owner: owner,
			buildStubs: func(accounts *MockAccountRepo) {
				accounts.EXPECT().Exists(gomock.Any(), gomock.Eq(owner)).Times(1).Return(true, nil)
				accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Account, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
			},
		},
		{
			name:  "CreateRace",
			owner: owner,
			buildStubs: func(accounts *MockAccountRepo) {
				accounts.EXPECT().Exists(gomock.Any(), gomock.Eq(owner)).Times(1).Return(false, nil)
				accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Times(1).
					Return(domain.Account{}, domain.ErrAccountAlreadyExists)
			},
			checkResponse: func(t *testing.T, res domain.Account, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
			},
		},
		{
			name:  "EmptyOwner",
			owner: "",
			buildStubs: func(accounts *MockAccountRepo) {
				accounts.EXPECT().Exists(gomock.Any(), gomock.Eq("")).Times(1).Return(false, nil)
				accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Account, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidOwner)
			},
		},
		{
			name:  "StoreError",
			owner: owner,
			buildStubs: func(accounts *MockAccountRepo) {
				accounts.EXPECT().Exists(gomock.Any(), gomock.Any()).Times(1).Return(false, errorspkg.ErrInternal)
				accounts.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Account, err error) {
				require.ErrorIs(t, err, errorspkg.ErrInternal)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			s, accounts, _, _ := newMockedService(t)
			tc.buildStubs(accounts)

			res, err := s.CreateAccount(context.Background(), tc.owner)
			tc.checkResponse(t, res, err)
		})
	}
}

func TestDeposit(t *testing.T) {
	account := randomAccount(t, "10.00")
	amount := moneypkg.MustParseAmount("5.25")

	testCases := []struct {
		name          string
		ref           domain.AccountRef
		amount        moneypkg.Money
		buildStubs    func(accounts *MockAccountRepo, entries *MockEntryRepo)
		checkResponse func(t *testing.T, res domain.Entry, err error)
	}{
		{
			name:   "OK",
			ref:    domain.RefByID(account.ID),
			amount: amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).
					DoAndReturn(func(_ context.Context, a domain.Account) error {
						require.Equal(t, "15.25", a.Balance.String())
						return nil
					})
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.NoError(t, err)
				require.Equal(t, domain.EntryDeposit, res.Kind())
				require.Equal(t, account.ID, res.SourceAccountID())
				require.False(t, res.DestinationAccountID().Valid)
				require.Equal(t, "5.25", res.Amount().String())
			},
		},
		{
			name:   "ByOwner",
			ref:    domain.RefByOwner(account.OwnerID),
			amount: amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByOwnerForUpdate(gomock.Any(), gomock.Eq(account.OwnerID)).Times(1).Return(account, nil)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).Return(nil)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.NoError(t, err)
				require.Equal(t, account.ID, res.SourceAccountID())
			},
		},
		{
			name:   "NotFound",
			ref:    domain.RefByOwner("ghost"),
			amount: amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByOwnerForUpdate(gomock.Any(), gomock.Eq("ghost")).Times(1).
					Return(domain.Account{}, domain.ErrAccountNotFound)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.ErrorIs(t, err, domain.ErrAccountNotFound)

				var nf *domain.AccountNotFoundError
				require.ErrorAs(t, err, &nf)
				require.Equal(t, domain.RefByOwner("ghost"), nf.Ref)
			},
		},
		{
			name:   "InvalidAmount",
			ref:    domain.RefByID(account.ID),
			amount: moneypkg.FromDecimal(decimal.RequireFromString("1.001")),
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name:   "Busy",
			ref:    domain.RefByID(account.ID),
			amount: amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).
					Return(domain.Account{}, domain.ErrBusy)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.ErrorIs(t, err, domain.ErrBusy)
			},
		},
		{
			name:   "AppendFailure",
			ref:    domain.RefByID(account.ID),
			amount: amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).Return(nil)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(domain.ErrStorageFailure)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrStorageFailure)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			s, accounts, entries, _ := newMockedService(t)
			tc.buildStubs(accounts, entries)

			res, err := s.Deposit(context.Background(), tc.ref, tc.amount)
			tc.checkResponse(t, res, err)
		})
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	s, accounts, entries, _ := newMockedService(t)
	account := randomAccount(t, "10.00")

	accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
	accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
	accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
	entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.Withdraw(context.Background(), domain.RefByID(account.ID), moneypkg.MustParseAmount("10.01"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, account.ID, insufficient.AccountID)
	require.Equal(t, "10.00", insufficient.Balance.String())
	require.Equal(t, "10.01", insufficient.Requested.String())
}

func TestTransfer(t *testing.T) {
	src := randomAccount(t, "100.00")
	dst := randomAccount(t, "1.00")
	amount := moneypkg.MustParseAmount("40.00")

	testCases := []struct {
		name          string
		source        uuid.UUID
		destination   uuid.UUID
		amount        moneypkg.Money
		buildStubs    func(accounts *MockAccountRepo, entries *MockEntryRepo)
		checkResponse func(t *testing.T, res domain.Entry, err error)
	}{
		{
			name:        "OK",
			source:      src.ID,
			destination: dst.ID,
			amount:      amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(src.ID)).Times(1).Return(src, nil)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(dst.ID)).Times(1).Return(dst, nil)

				balances := map[uuid.UUID]string{}
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(2).
					DoAndReturn(func(_ context.Context, a domain.Account) error {
						balances[a.ID] = a.Balance.String()
						return nil
					})
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).
					DoAndReturn(func(_ context.Context, e domain.Entry) error {
						require.Equal(t, "60.00", balances[src.ID])
						require.Equal(t, "41.00", balances[dst.ID])
						return nil
					})
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.NoError(t, err)
				require.Equal(t, domain.EntryTransfer, res.Kind())
				require.Equal(t, src.ID, res.SourceAccountID())
				require.Equal(t, dst.ID, res.DestinationAccountID().UUID)
				require.Equal(t, "40.00", res.Amount().String())
			},
		},
		{
			name:        "SameAccount",
			source:      src.ID,
			destination: src.ID,
			amount:      amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.ErrorIs(t, err, domain.ErrOperationNotAllowed)
			},
		},
		{
			name:        "DestinationNotFound",
			source:      src.ID,
			destination: dst.ID,
			amount:      amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(src.ID)).AnyTimes().Return(src, nil)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(dst.ID)).Times(1).
					Return(domain.Account{}, domain.ErrAccountNotFound)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				var nf *domain.AccountNotFoundError
				require.ErrorAs(t, err, &nf)
				require.Equal(t, dst.ID, nf.Ref.ID)
			},
		},
		{
			name:        "InsufficientFunds",
			source:      dst.ID,
			destination: src.ID,
			amount:      amount,
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(src.ID)).Times(1).Return(src, nil)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(dst.ID)).Times(1).Return(dst, nil)
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			},
		},
		{
			name:        "InvalidAmount",
			source:      src.ID,
			destination: dst.ID,
			amount:      moneypkg.FromDecimal(decimal.RequireFromString("-1")),
			buildStubs: func(accounts *MockAccountRepo, entries *MockEntryRepo) {
				accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
				accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any()).Times(2).
					DoAndReturn(func(_ context.Context, id uuid.UUID) (domain.Account, error) {
						if id == src.ID {
							return src, nil
						}
						return dst, nil
					})
				accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(0)
				entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Entry, err error) {
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			s, accounts, entries, _ := newMockedService(t)
			tc.buildStubs(accounts, entries)

			res, err := s.Transfer(context.Background(), tc.source, tc.destination, tc.amount)
			tc.checkResponse(t, res, err)
		})
	}
}

func TestTransferLocksInIDOrder(t *testing.T) {
	a := randomAccount(t, "50.00")
	b := randomAccount(t, "50.00")

	first, second := a, b
	if string(first.ID[:]) > string(second.ID[:]) {
		first, second = second, first
	}

	for _, dir := range [][2]domain.Account{{a, b}, {b, a}} {
		s, accounts, entries, _ := newMockedService(t)

		accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
		gomock.InOrder(
			accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(first.ID)).Return(first, nil),
			accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(second.ID)).Return(second, nil),
		)
		accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(2).Return(nil)
		entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(nil)

		_, err := s.Transfer(context.Background(), dir[0].ID, dir[1].ID, moneypkg.MustParseAmount("1"))
		require.NoError(t, err)
	}
}

func TestWriteEvictsCachedBalance(t *testing.T) {
	s, accounts, entries, balances := newMockedService(t)
	account := randomAccount(t, "10.00")
	ctx := context.Background()

	byID := domain.RefByID(account.ID)
	byOwner := domain.RefByOwner(account.OwnerID)

	stale := domain.Balance{AccountID: account.ID, Balance: account.Balance}
	require.NoError(t, balances.Put(ctx, currentBalanceKey(byID), stale))
	require.NoError(t, balances.Put(ctx, currentBalanceKey(byOwner), stale))

	accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
	accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
	accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).Return(nil)
	// Eviction also happens when the append fails.
	entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(errors.New("log down"))

	_, err := s.Withdraw(ctx, byID, moneypkg.MustParseAmount("1"))
	require.ErrorIs(t, err, domain.ErrStorageFailure)

	for _, ref := range []domain.AccountRef{byID, byOwner} {
		_, hit, err := balances.Get(ctx, currentBalanceKey(ref))
		require.NoError(t, err)
		require.False(t, hit, ref.String())
	}
}

func TestCurrentBalanceCache(t *testing.T) {
	s, accounts, _, _ := newMockedService(t)
	account := randomAccount(t, "12.34")
	ref := domain.RefByOwner(account.OwnerID)

	// The second call is served from the cache.
	accounts.EXPECT().GetByOwner(gomock.Any(), gomock.Eq(account.OwnerID)).Times(1).Return(account, nil)

	for i := 0; i < 2; i++ {
		b, err := s.CurrentBalance(context.Background(), ref)
		require.NoError(t, err)
		require.Equal(t, account.ID, b.AccountID)
		require.Equal(t, "12.34", b.Balance.String())
	}
}

type brokenCache[V any] struct{}

func (brokenCache[V]) Get(context.Context, string) (V, bool, error) {
	var zero V
	return zero, false, errors.New("cache down")
}

func (brokenCache[V]) Put(context.Context, string, V) error { return errors.New("cache down") }

func (brokenCache[V]) Evict(context.Context, ...string) error { return errors.New("cache down") }

func TestCacheErrorsDoNotFailOperations(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := NewMockAccountRepo(ctrl)
	entries := NewMockEntryRepo(ctrl)
	s := New(accounts, entries, brokenCache[domain.Balance]{}, brokenCache[uuid.UUID]{})

	account := randomAccount(t, "3.00")

	accounts.EXPECT().GetByID(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
	accounts.EXPECT().GetByOwner(gomock.Any(), gomock.Eq(account.OwnerID)).Times(1).Return(account, nil)
	accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(1).DoAndReturn(runTx)
	accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
	accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).Return(nil)
	entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(nil)

	b, err := s.CurrentBalance(context.Background(), domain.RefByID(account.ID))
	require.NoError(t, err)
	require.Equal(t, "3.00", b.Balance.String())

	id, err := s.AccountID(context.Background(), account.OwnerID)
	require.NoError(t, err)
	require.Equal(t, account.ID, id)

	_, err = s.Deposit(context.Background(), domain.RefByID(account.ID), moneypkg.MustParseAmount("1"))
	require.NoError(t, err)
}

func TestHistoricalBalanceStorageFailure(t *testing.T) {
	s, accounts, entries, _ := newMockedService(t)
	account := randomAccount(t, "3.00")

	accounts.EXPECT().GetByID(gomock.Any(), gomock.Eq(account.ID)).Times(1).Return(account, nil)
	entries.EXPECT().ListByAccount(gomock.Any(), gomock.Eq(account.ID), gomock.Any()).Times(1).
		Return(nil, domain.ErrStorageFailure)

	_, err := s.HistoricalBalance(context.Background(), domain.RefByID(account.ID), time.Now().Add(-time.Hour))
	require.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestPublisher(t *testing.T) {
	ctrl := gomock.NewController(t)
	accounts := NewMockAccountRepo(ctrl)
	entries := NewMockEntryRepo(ctrl)
	publisher := NewMockPublisher(ctrl)

	backend := balancecache.NewMemory()
	s := New(accounts, entries,
		balancecache.NewTyped[domain.Balance](backend, "", 0),
		balancecache.NewTyped[uuid.UUID](backend, "", 0),
		WithPublisher(publisher),
	)

	account := randomAccount(t, "0")

	accounts.EXPECT().WithinTx(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(runTx)
	accounts.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Eq(account.ID)).Times(2).Return(account, nil)
	accounts.EXPECT().Update(gomock.Any(), gomock.Any()).Times(1).Return(nil)
	entries.EXPECT().Append(gomock.Any(), gomock.Any()).Times(1).Return(nil)

	// A publish failure is not reported to the caller: the entry is already stored.
	publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(1).Return(errors.New("broker down"))

	e, err := s.Deposit(context.Background(), domain.RefByID(account.ID), moneypkg.MustParseAmount("2"))
	require.NoError(t, err)
	require.Equal(t, domain.EntryDeposit, e.Kind())

	// Rejected operations publish nothing.
	_, err = s.Withdraw(context.Background(), domain.RefByID(account.ID), moneypkg.MustParseAmount("2"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}
