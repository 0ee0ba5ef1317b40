package metadata

import (
	"context"
	"fmt"
)

// Keys under which the persisted session lives.
const (
	KeyIdentity     = "identity"
	KeyAccountID    = "account_id"
	KeyAddress      = "address"
	KeySessionToken = "session_token"
	KeyArtifact     = "artifact"
)

var sessionKeys = []string{KeyIdentity, KeyAccountID, KeyAddress, KeySessionToken, KeyArtifact}

// SessionRecord is what survives a restart: the session credential and the
// private key sealed under the session key. Nothing in it opens without the
// authority.
type SessionRecord struct {
	Identity     string
	AccountID    string
	Address      string
	SessionToken string
	Artifact     []byte
}

// SaveSession writes every field in one statement.
func SaveSession(ctx context.Context, r Repository, s *SessionRecord) error {
	return r.SetMany(ctx, map[string][]byte{
		KeyIdentity:     []byte(s.Identity),
		KeyAccountID:    []byte(s.AccountID),
		KeyAddress:      []byte(s.Address),
		KeySessionToken: []byte(s.SessionToken),
		KeyArtifact:     s.Artifact,
	})
}

// LoadSession returns nil when no complete session is stored.
func LoadSession(ctx context.Context, r Repository) (*SessionRecord, error) {
	all, err := r.GetMany(ctx, sessionKeys...)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(all[KeySessionToken]) == 0 || len(all[KeyArtifact]) == 0 {
		return nil, nil
	}
	return &SessionRecord{
		Identity:     string(all[KeyIdentity]),
		AccountID:    string(all[KeyAccountID]),
		Address:      string(all[KeyAddress]),
		SessionToken: string(all[KeySessionToken]),
		Artifact:     all[KeyArtifact],
	}, nil
}

// ClearSession drops the credential and artifact but keeps the identity so
// the next login can prefill it.
func ClearSession(ctx context.Context, r Repository) error {
	return r.Delete(ctx, KeySessionToken, KeyArtifact, KeyAccountID)
}
