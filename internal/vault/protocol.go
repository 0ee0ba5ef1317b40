package vault

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/poolx"
	"github.com/multiplycharity/multiply-monorepo/internal/wallet"
)

// Session is the outcome of a register or login. Mnemonic and PrivateKey
// are plaintext; call Wipe when done.
type Session struct {
	Identity   string
	AccountID  string
	Address    ethcommon.Address
	Mnemonic   cryptox.Secret
	PrivateKey *ecdsa.PrivateKey
	Artifact   cryptox.SessionArtifact
	State      State
}

func (s *Session) Wipe() {
	if s == nil {
		return
	}
	s.Mnemonic.Wipe()
	if s.PrivateKey != nil && s.PrivateKey.D != nil {
		s.PrivateKey.D.SetInt64(0)
	}
}

// Protocol drives registration, login and session recovery. It holds no
// per-user state and is safe for concurrent use.
type Protocol struct {
	authority Authority
	suite     cryptox.Suite
	scrypt    cryptox.ScryptParams
	pool      *poolx.Pool
	logger    logging.Logger
}

type Option func(*Protocol)

// WithSuite sets the KDF params used for new accounts and the cipher.
func WithSuite(s cryptox.Suite) Option { return func(p *Protocol) { p.suite = s } }

func WithScrypt(sp cryptox.ScryptParams) Option { return func(p *Protocol) { p.scrypt = sp } }

// WithPool bounds concurrent derivations.
func WithPool(pool *poolx.Pool) Option { return func(p *Protocol) { p.pool = pool } }

func WithLogger(l logging.Logger) Option { return func(p *Protocol) { p.logger = l } }

func New(a Authority, opts ...Option) *Protocol {
	p := &Protocol{
		authority: a,
		suite:     cryptox.DefaultSuite(),
		scrypt:    cryptox.DefaultScryptParams(),
		pool:      poolx.New(0, 5*time.Second),
		logger:    logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("module", "vault")
	return p
}

// Register creates an account for id. A nil w generates a new wallet; a
// supplied wallet stays owned by the caller. Nothing is sent unless the
// envelope was built completely. Registration is not idempotent, so callers
// must not retry it blindly.
func (p *Protocol) Register(ctx context.Context, id string, password []byte, w *wallet.Wallet) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", common.ErrValidation)
	}
	if err := p.suite.KDF.Validate(); err != nil {
		return nil, err
	}

	owned := w == nil
	if owned {
		var err error
		if w, err = wallet.New(); err != nil {
			return nil, err
		}
	}
	if w.Mnemonic.IsZero() {
		return nil, fmt.Errorf("%w: wallet has no mnemonic", common.ErrValidation)
	}

	dataKey, err := cryptox.NewDataKey()
	if err != nil {
		return nil, err
	}
	defer dataKey.Wipe()

	var pdk, ph cryptox.Secret
	err = p.pool.Do(ctx, func() error {
		var err error
		if pdk, err = cryptox.DeriveKey(id, password, p.suite.KDF); err != nil {
			return err
		}
		ph, err = cryptox.PasswordHashFromKey(pdk, password, p.suite.KDF)
		return err
	})
	defer pdk.Wipe()
	defer ph.Wipe()
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}

	env, err := p.suite.SealWithDataKey(w.Mnemonic, dataKey, pdk)
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	pdk.Wipe()
	dataKey.Wipe()

	resp, err := p.authority.CreateAccount(ctx, &CreateAccountRequest{
		ID:           id,
		PasswordHash: ph,
		Address:      w.Address.Hex(),
		Envelope:     env,
		KDF:          p.suite.KDF,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	defer resp.SessionKey.Wipe()

	artifact, err := p.PersistSession(ctx, w.PrivateKey, resp.SessionKey)
	if err != nil {
		return nil, err
	}

	p.logger.Info(ctx, "account registered", "account_id", resp.AccountID, "address", w.Address.Hex())

	s := &Session{
		Identity:   id,
		AccountID:  resp.AccountID,
		Address:    w.Address,
		PrivateKey: w.PrivateKey,
		Artifact:   artifact,
		State:      SessionPersisted,
	}
	if owned {
		s.Mnemonic = w.Mnemonic
	}
	return s, nil
}

// Login authenticates with the password hash, then opens the returned
// envelope locally. Bad credentials fail on the server with
// ErrAuthentication; an envelope that does not open fails with
// ErrDecryption.
func (p *Protocol) Login(ctx context.Context, id string, password []byte) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", common.ErrValidation)
	}

	kdf, err := p.authority.KDFParams(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("kdf params: %w", err)
	}

	var pdk, ph cryptox.Secret
	err = p.pool.Do(ctx, func() error {
		var err error
		if pdk, err = cryptox.DeriveKey(id, password, kdf); err != nil {
			return err
		}
		ph, err = cryptox.PasswordHashFromKey(pdk, password, kdf)
		return err
	})
	defer pdk.Wipe()
	defer ph.Wipe()
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}

	resp, err := p.authority.Authenticate(ctx, &AuthenticateRequest{ID: id, PasswordHash: ph})
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	ph.Wipe()
	defer resp.SessionKey.Wipe()

	mnemonic, err := p.suite.Open(resp.Envelope, pdk)
	if err != nil {
		p.logger.Warn(ctx, "envelope did not open", "id", id)
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	pdk.Wipe()

	w, err := wallet.FromMnemonic(mnemonic)
	if err != nil {
		mnemonic.Wipe()
		if errors.Is(err, wallet.ErrInvalidMnemonic) {
			return nil, fmt.Errorf("restore wallet: %w", common.ErrDecryption)
		}
		return nil, fmt.Errorf("restore wallet: %w", err)
	}

	artifact, err := p.PersistSession(ctx, w.PrivateKey, resp.SessionKey)
	if err != nil {
		w.Wipe()
		return nil, err
	}

	p.logger.Info(ctx, "logged in", "address", w.Address.Hex())

	return &Session{
		Identity:   id,
		Address:    w.Address,
		Mnemonic:   w.Mnemonic,
		PrivateKey: w.PrivateKey,
		Artifact:   artifact,
		State:      SessionPersisted,
	}, nil
}

// PersistSession encrypts priv under the session key for local storage.
func (p *Protocol) PersistSession(ctx context.Context, priv *ecdsa.PrivateKey, sessionKey cryptox.Secret) (cryptox.SessionArtifact, error) {
	var artifact cryptox.SessionArtifact
	err := p.pool.Do(ctx, func() error {
		var err error
		artifact, err = cryptox.SealSessionArtifact(priv, sessionKey, p.scrypt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return artifact, nil
}

// RecoverSession fetches the current session key with the session
// credential and opens artifact with it. No password is involved.
func (p *Protocol) RecoverSession(ctx context.Context, artifact cryptox.SessionArtifact) (*ecdsa.PrivateKey, error) {
	if len(artifact) == 0 {
		return nil, fmt.Errorf("%w: no persisted session", common.ErrInvalidState)
	}

	sk, err := p.authority.FetchSessionKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch session key: %w", err)
	}
	defer sk.Wipe()

	var priv *ecdsa.PrivateKey
	err = p.pool.Do(ctx, func() error {
		var err error
		priv, err = cryptox.OpenSessionArtifact(artifact, sk)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recover session: %w", err)
	}
	return priv, nil
}

// RotateSession asks the authority for a new session key and re-seals priv
// under it. Artifacts built before the rotation no longer open.
func (p *Protocol) RotateSession(ctx context.Context, priv *ecdsa.PrivateKey) (cryptox.SessionArtifact, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: no private key in memory", common.ErrInvalidState)
	}
	sk, err := p.authority.RotateSessionKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("rotate session key: %w", err)
	}
	defer sk.Wipe()
	return p.PersistSession(ctx, priv, sk)
}

// Logout revokes the session credential on the authority.
func (p *Protocol) Logout(ctx context.Context) error {
	if err := p.authority.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
