package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
)

// MemoryRepository keeps accounts in process memory. Used by the memory
// store backend and in tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]*models.Account
	byIdentity map[string]string
	now        func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       map[string]*models.Account{},
		byIdentity: map[string]string{},
		now:        time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byIdentity[a.Identity]; ok {
		return nil, common.ErrAccountExists
	}
	stored := a.Clone()
	stored.ID = uuid.NewString()
	stored.Version = 1
	stored.CreatedAt = r.now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	r.byID[stored.ID] = stored
	r.byIdentity[stored.Identity] = stored.ID
	return stored.Clone(), nil
}

func (r *MemoryRepository) GetByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	r.mu.RLock()
	id, ok := r.byIdentity[identity]
	r.mu.RUnlock()
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) UpdateSessionKey(_ context.Context, id string, key []byte) error {
	return r.update(id, func(a *models.Account) {
		a.SessionKey = append([]byte(nil), key...)
	})
}

func (r *MemoryRepository) UpdateAddress(_ context.Context, id string, address string) error {
	return r.update(id, func(a *models.Account) { a.Address = address })
}

func (r *MemoryRepository) update(id string, fn func(*models.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(a)
	a.Version++
	a.UpdatedAt = r.now().UTC()
	return nil
}
