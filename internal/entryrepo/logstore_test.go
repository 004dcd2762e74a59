package entryrepo

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type logStore interface {
	Append(ctx context.Context, e domain.Entry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error)
}

// entryMaker returns a helper that unwraps an entry constructor result and fails t on
// error.
func entryMaker(t *testing.T) func(domain.Entry, error) domain.Entry {
	return func(e domain.Entry, err error) domain.Entry {
		t.Helper()
		require.NoError(t, err)

		return e
	}
}

func entryIDs(entries []domain.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID().String())
	}

	sort.Strings(ids)

	return ids
}

// testLogStore runs the behaviour every entry log implementation shares.
func testLogStore(t *testing.T, store logStore) {
	ctx := context.Background()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustEntry := entryMaker(t)

	deposit := mustEntry(domain.NewDepositEntry(a, moneypkg.MustParseAmount("100.00")))
	transfer := mustEntry(domain.NewTransferEntry(a, b, moneypkg.MustParseAmount("25.50")))
	withdraw := mustEntry(domain.NewWithdrawEntry(b, moneypkg.MustParseAmount("0.01")))
	other := mustEntry(domain.NewDepositEntry(c, moneypkg.MustParseAmount("7")))

	for _, e := range []domain.Entry{deposit, transfer, withdraw, other} {
		require.NoError(t, store.Append(ctx, e))
	}

	upTo := withdraw.Timestamp()

	t.Run("SourceOrDestination", func(t *testing.T) {
		gotA, err := store.ListByAccount(ctx, a, upTo)
		require.NoError(t, err)
		require.Equal(t, entryIDs([]domain.Entry{deposit, transfer}), entryIDs(gotA))

		gotB, err := store.ListByAccount(ctx, b, upTo)
		require.NoError(t, err)
		require.Equal(t, entryIDs([]domain.Entry{transfer, withdraw}), entryIDs(gotB))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		got, err := store.ListByAccount(ctx, b, upTo)
		require.NoError(t, err)

		var stored domain.Entry
		for _, e := range got {
			if e.ID() == transfer.ID() {
				stored = e
			}
		}

		require.Equal(t, transfer.SourceAccountID(), stored.SourceAccountID())
		require.Equal(t, transfer.DestinationAccountID(), stored.DestinationAccountID())
		require.Equal(t, domain.EntryTransfer, stored.Kind())
		require.Equal(t, "25.50", stored.Amount().String())
		require.True(t, transfer.Timestamp().Equal(stored.Timestamp()),
			cmp.Diff(transfer.Timestamp(), stored.Timestamp()))
	})

	t.Run("UpToIsInclusive", func(t *testing.T) {
		got, err := store.ListByAccount(ctx, a, deposit.Timestamp())
		require.NoError(t, err)
		require.Contains(t, entryIDs(got), deposit.ID().String())

		got, err = store.ListByAccount(ctx, a, deposit.Timestamp().Add(-time.Microsecond))
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		got, err := store.ListByAccount(ctx, uuid.New(), time.Now())
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
