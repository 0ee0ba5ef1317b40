// Package accounts stores registered accounts. Three backends share one
// interface: PostgreSQL, an S3-compatible bucket and process memory.
package accounts

import (
	"context"

	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
)

// Repository persists accounts.
//
// Create fails with common.ErrAccountExists when the identity is taken.
// Lookups and updates of a missing account fail with common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, a *models.Account) (*models.Account, error)
	GetByIdentity(ctx context.Context, identity string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdateSessionKey(ctx context.Context, id string, key []byte) error
	UpdateAddress(ctx context.Context, id string, address string) error
}
