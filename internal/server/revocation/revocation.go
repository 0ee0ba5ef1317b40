// Package revocation remembers logged-out session tokens until they would
// have expired anyway.
package revocation

import (
	"context"
	"time"
)

type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
