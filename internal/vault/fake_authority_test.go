package vault

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
)

type fakeAccount struct {
	id         string
	ph         cryptox.Secret
	address    string
	env        *cryptox.Envelope
	kdf        cryptox.KDFParams
	sessionKey cryptox.Secret
}

// fakeAuthority keeps accounts in memory and tracks one logged-in session,
// like a single client talking to the server.
type fakeAuthority struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount
	current  string
	expired  bool
	revoked  bool

	creates   int
	fetches   int
	fetchErrs []error
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{accounts: map[string]*fakeAccount{}}
}

func newSessionKey() cryptox.Secret {
	return cryptox.NewSecret(common.GenerateRandByteArray(32))
}

func (f *fakeAuthority) KDFParams(_ context.Context, id string) (cryptox.KDFParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a.kdf, nil
	}
	return testSuite.KDF, nil
}

func (f *fakeAuthority) CreateAccount(_ context.Context, req *CreateAccountRequest) (*CreateAccountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if _, ok := f.accounts[req.ID]; ok {
		return nil, common.ErrAccountExists
	}
	a := &fakeAccount{
		id:         uuid.NewString(),
		ph:         cryptox.CopySecret(req.PasswordHash.Bytes()),
		address:    req.Address,
		env:        req.Envelope.Clone(),
		kdf:        req.KDF,
		sessionKey: newSessionKey(),
	}
	f.accounts[req.ID] = a
	f.login(req.ID)
	return &CreateAccountResponse{AccountID: a.id, SessionKey: cryptox.CopySecret(a.sessionKey.Bytes())}, nil
}

func (f *fakeAuthority) Authenticate(_ context.Context, req *AuthenticateRequest) (*AuthenticateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[req.ID]
	if !ok || !a.ph.Equal(req.PasswordHash) {
		return nil, common.ErrAuthentication
	}
	f.login(req.ID)
	return &AuthenticateResponse{Envelope: a.env.Clone(), SessionKey: cryptox.CopySecret(a.sessionKey.Bytes())}, nil
}

func (f *fakeAuthority) login(id string) {
	f.current = id
	f.expired = false
	f.revoked = false
}

func (f *fakeAuthority) session() (*fakeAccount, error) {
	switch {
	case f.revoked:
		return nil, common.ErrSessionRevoked
	case f.expired:
		return nil, common.ErrSessionExpired
	case f.current == "":
		return nil, common.ErrSessionInvalid
	}
	return f.accounts[f.current], nil
}

func (f *fakeAuthority) FetchSessionKey(context.Context) (cryptox.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return cryptox.Secret{}, err
	}
	a, err := f.session()
	if err != nil {
		return cryptox.Secret{}, err
	}
	return cryptox.CopySecret(a.sessionKey.Bytes()), nil
}

func (f *fakeAuthority) RotateSessionKey(context.Context) (cryptox.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, err := f.session()
	if err != nil {
		return cryptox.Secret{}, err
	}
	a.sessionKey = newSessionKey()
	return cryptox.CopySecret(a.sessionKey.Bytes()), nil
}

func (f *fakeAuthority) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.session(); err != nil {
		return err
	}
	f.revoked = true
	return nil
}

func (f *fakeAuthority) expire() {
	f.mu.Lock()
	f.expired = true
	f.mu.Unlock()
}

func (f *fakeAuthority) account(id string) *fakeAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}
