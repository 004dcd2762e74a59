package ledgerservice

import (
	"context"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/rs/zerolog"
)

// Cache is one key namespace of the balance cache. All values in a namespace share the
// type V.
//
// The cache is advisory. Reads work with an always empty cache and its errors never
// fail an operation.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (value V, hit bool, err error)
	Put(ctx context.Context, key string, value V) error
	Evict(ctx context.Context, keys ...string) error
}

// Cache keys. Current balances are stored for both the id and the owner reference of an
// account, historical balances carry the asOf instant.
func currentBalanceKey(ref domain.AccountRef) string {
	return "wallet:" + ref.String() + ":balance"
}

func historicalBalanceKey(ref domain.AccountRef, asOf time.Time) string {
	return currentBalanceKey(ref) + ":" + asOf.UTC().Format(time.RFC3339Nano)
}

func accountIDKey(ownerID string) string {
	return "wallet:id:" + ownerID
}

func (s *Service) cachedBalance(ctx context.Context, key string) (domain.Balance, bool) {
	b, hit, err := s.balances.Get(ctx, key)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache get failed")
		return domain.Balance{}, false
	}

	return b, hit
}

func (s *Service) cacheBalance(ctx context.Context, key string, b domain.Balance) {
	if err := s.balances.Put(ctx, key, b); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache put failed")
	}
}

// evict drops the current balance of accounts under both of their references.
func (s *Service) evict(ctx context.Context, accounts ...domain.Account) {
	keys := make([]string, 0, 2*len(accounts))
	for _, a := range accounts {
		keys = append(keys,
			currentBalanceKey(domain.RefByID(a.ID)),
			currentBalanceKey(domain.RefByOwner(a.OwnerID)),
		)
	}

	if err := s.balances.Evict(ctx, keys...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("cache evict failed")
	}
}
