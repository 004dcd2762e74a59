package entryrepo

import (
	"context"
	"sync"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/google/uuid"
)

// RepoMem keeps the entry log in memory.
type RepoMem struct {
	mu      sync.RWMutex
	entries []domain.Entry
}

// NewRepoMem returns an empty entry RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{}
}

// Append stores the entry.
func (r *RepoMem) Append(_ context.Context, e domain.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)

	return nil
}

// ListByAccount returns the entries where accountID is the source or the destination
// and whose timestamp is not after upTo.
func (r *RepoMem) ListByAccount(_ context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []domain.Entry{}

	for _, e := range r.entries {
		if e.Involves(accountID) && !e.Timestamp().After(upTo) {
			items = append(items, e)
		}
	}

	return items, nil
}
