package accountrepo

import (
	"context"
	"sync"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/google/uuid"
)

// RepoMem is an in-memory account repository with row locks.
//
// GetByIDForUpdate and GetByOwnerForUpdate take an exclusive per-account lock that is held
// until the enclosing WithinTx returns. Updates made inside WithinTx become visible to
// other callers only when fn succeeds. Plain reads never wait for a lock.
type RepoMem struct {
	mu          sync.RWMutex
	accounts    map[uuid.UUID]domain.Account
	owners      map[string]uuid.UUID
	rows        map[uuid.UUID]chan struct{}
	lockTimeout time.Duration
}

// NewRepoMem returns an empty RepoMem. A positive lockTimeout bounds lock waits.
func NewRepoMem(lockTimeout time.Duration) *RepoMem {
	return &RepoMem{
		accounts:    make(map[uuid.UUID]domain.Account),
		owners:      make(map[string]uuid.UUID),
		rows:        make(map[uuid.UUID]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

type memTxKey struct{}

type memTx struct {
	held   map[uuid.UUID]chan struct{}
	writes map[uuid.UUID]domain.Account
}

func txFromContext(ctx context.Context) (*memTx, bool) {
	tx, ok := ctx.Value(memTxKey{}).(*memTx)
	return tx, ok
}

// WithinTx runs fn as one unit of work. Locks are released after fn returns; staged
// updates are applied only if fn returns nil.
func (r *RepoMem) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx := &memTx{
		held:   make(map[uuid.UUID]chan struct{}),
		writes: make(map[uuid.UUID]domain.Account),
	}

	defer r.release(tx)

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}

	r.mu.Lock()
	for id, a := range tx.writes {
		r.accounts[id] = a
	}
	r.mu.Unlock()

	return nil
}

func (r *RepoMem) release(tx *memTx) {
	for _, row := range tx.held {
		<-row
	}
}

func (r *RepoMem) row(id uuid.UUID) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		row = make(chan struct{}, 1)
		r.rows[id] = row
	}

	return row
}

func (r *RepoMem) lock(ctx context.Context, tx *memTx, id uuid.UUID) error {
	if _, ok := tx.held[id]; ok {
		return nil
	}

	row := r.row(id)

	var timeout <-chan time.Time

	if r.lockTimeout > 0 {
		timer := time.NewTimer(r.lockTimeout)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case row <- struct{}{}:
		tx.held[id] = row
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return domain.ErrBusy
	}
}

// Exists reports whether the owner already has an account.
func (r *RepoMem) Exists(_ context.Context, ownerID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.owners[ownerID]

	return ok, nil
}

// Create stores a new account. It fails if the owner already has one.
func (r *RepoMem) Create(_ context.Context, a domain.Account) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[a.OwnerID]; ok {
		return domain.Account{}, domain.ErrAccountAlreadyExists
	}

	if _, ok := r.accounts[a.ID]; ok {
		return domain.Account{}, domain.ErrAccountAlreadyExists
	}

	r.accounts[a.ID] = a
	r.owners[a.OwnerID] = a.ID

	return a, nil
}

// GetByID returns the last committed state of the account.
func (r *RepoMem) GetByID(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if tx, ok := txFromContext(ctx); ok {
		if a, ok := tx.writes[id]; ok {
			return a, nil
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// GetByOwner returns the last committed state of the owner's account.
func (r *RepoMem) GetByOwner(ctx context.Context, ownerID string) (domain.Account, error) {
	id, err := r.resolve(ownerID)
	if err != nil {
		return domain.Account{}, err
	}

	return r.GetByID(ctx, id)
}

// GetByIDForUpdate locks the account row and returns its state.
//
// Outside WithinTx the lock is released before returning.
func (r *RepoMem) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (domain.Account, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return domain.Account{}, err
	}

	tx, ok := txFromContext(ctx)
	if !ok {
		var a domain.Account

		err := r.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			a, err = r.GetByIDForUpdate(ctx, id)

			return err
		})

		return a, err
	}

	if err := r.lock(ctx, tx, id); err != nil {
		return domain.Account{}, err
	}

	return r.GetByID(ctx, id)
}

// GetByOwnerForUpdate locks the owner's account row and returns its state.
func (r *RepoMem) GetByOwnerForUpdate(ctx context.Context, ownerID string) (domain.Account, error) {
	id, err := r.resolve(ownerID)
	if err != nil {
		return domain.Account{}, err
	}

	return r.GetByIDForUpdate(ctx, id)
}

// Update persists the account balance. Inside WithinTx the write is staged until commit.
func (r *RepoMem) Update(ctx context.Context, a domain.Account) error {
	if a.Balance.IsNegative() {
		return domain.ErrInsufficientFunds
	}

	if _, err := r.GetByID(ctx, a.ID); err != nil {
		return err
	}

	if tx, ok := txFromContext(ctx); ok {
		tx.writes[a.ID] = a
		return nil
	}

	r.mu.Lock()
	r.accounts[a.ID] = a
	r.mu.Unlock()

	return nil
}

func (r *RepoMem) resolve(ownerID string) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.owners[ownerID]
	if !ok {
		return uuid.Nil, domain.ErrAccountNotFound
	}

	return id, nil
}
