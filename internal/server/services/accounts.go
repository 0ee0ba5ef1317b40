// Package services holds the server's business logic. AccountService is the
// account authority: it stores envelopes it cannot open, checks password
// hashes and hands out session keys behind a signed session token.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
	"github.com/multiplycharity/multiply-monorepo/internal/server/events"
	"github.com/multiplycharity/multiply-monorepo/internal/server/metrics"
	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
	"github.com/multiplycharity/multiply-monorepo/internal/server/ratelimit"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/accounts"
	"github.com/multiplycharity/multiply-monorepo/internal/server/revocation"
)

const (
	sessionKeySize    = 32
	maxIdentityLength = 320
)

// Session is what a successful register or login returns to the transport.
type Session struct {
	AccountID  string
	Token      string
	Claims     *auth.Claims
	SessionKey []byte
}

// NewAccount is the registration payload.
type NewAccount struct {
	Identity     string
	PasswordHash []byte
	Address      string
	Envelope     *cryptox.Envelope
	KDF          cryptox.KDFParams
}

type AccountService struct {
	repo          accounts.Repository
	tokens        *auth.Issuer
	revocations   revocation.Store
	events        events.Publisher
	limiter       *ratelimit.KeyLimiter
	metrics       *metrics.Metrics
	logger        logging.Logger
	defaultKDF    cryptox.KDFParams
	rotateOnLogin bool
	dummyHash     []byte
	now           func() time.Time
}

type Option func(*AccountService)

func WithRevocations(r revocation.Store) Option  { return func(s *AccountService) { s.revocations = r } }
func WithEvents(p events.Publisher) Option       { return func(s *AccountService) { s.events = p } }
func WithLimiter(l *ratelimit.KeyLimiter) Option { return func(s *AccountService) { s.limiter = l } }
func WithMetrics(m *metrics.Metrics) Option      { return func(s *AccountService) { s.metrics = m } }
func WithLogger(l logging.Logger) Option         { return func(s *AccountService) { s.logger = l } }

// WithDefaultKDF sets the params reported for identities with no account.
func WithDefaultKDF(p cryptox.KDFParams) Option { return func(s *AccountService) { s.defaultKDF = p } }

// NewAccountService wires the service. Revocations default to an in-memory
// list, events to a no-op publisher.
func NewAccountService(repo accounts.Repository, cfg *config.Config, opts ...Option) *AccountService {
	s := &AccountService{
		repo:          repo,
		tokens:        auth.NewIssuer([]byte(cfg.SecretKey), cfg.SessionTokenValidityDuration),
		revocations:   revocation.NewMemoryStore(),
		events:        events.Nop(),
		logger:        logging.Nop(),
		defaultKDF:    cryptox.DefaultKDFParams(),
		rotateOnLogin: cfg.RotateSessionKeyOnLogin,
		dummyHash:     common.GenerateRandByteArray(cryptox.KeySize),
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("module", "account_service")
	return s
}

func (s *AccountService) observe(op string, start time.Time, err *error) {
	s.metrics.Observe(op, *err, s.now().Sub(start))
}

// KDFParams returns the work factor stored for identity. Unknown identities
// get the current default, so the answer does not reveal whether an account
// exists.
func (s *AccountService) KDFParams(ctx context.Context, identity string) (p cryptox.KDFParams, err error) {
	defer s.observe("kdf_params", s.now(), &err)

	a, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.defaultKDF, nil
		}
		return cryptox.KDFParams{}, s.internal(ctx, "load account", err)
	}
	return a.KDF, nil
}

// Exists reports whether identity is registered.
func (s *AccountService) Exists(ctx context.Context, identity string) (ok bool, err error) {
	defer s.observe("exists", s.now(), &err)

	_, err = s.repo.GetByIdentity(ctx, identity)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	}
	return false, s.internal(ctx, "load account", err)
}

// CreateAccount stores a new account with a fresh session key and logs it in.
func (s *AccountService) CreateAccount(ctx context.Context, in *NewAccount) (sess *Session, err error) {
	defer s.observe("create_account", s.now(), &err)

	if err := validateNewAccount(in); err != nil {
		return nil, err
	}

	account := &models.Account{
		Identity:     in.Identity,
		PasswordHash: in.PasswordHash,
		Address:      ethcommon.HexToAddress(in.Address).Hex(),
		Envelope:     *in.Envelope,
		KDF:          in.KDF,
		SessionKey:   common.GenerateRandByteArray(sessionKeySize),
	}

	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrAccountExists) {
			return nil, common.ErrAccountExists
		}
		return nil, s.internal(ctx, "create account", err)
	}

	s.metrics.AccountCreated()
	s.publish(ctx, events.TopicAccountCreated, events.Event{AccountID: created.ID, Address: created.Address})
	s.logger.Info(ctx, "account created", "account_id", created.ID)

	return s.newSession(created.ID, created.SessionKey)
}

// Authenticate checks the password hash in constant time and returns the
// stored envelope with a session. A missing account and a wrong hash are
// indistinguishable to the caller.
func (s *AccountService) Authenticate(ctx context.Context, identity string, passwordHash []byte, peer string) (sess *Session, env *cryptox.Envelope, err error) {
	defer s.observe("authenticate", s.now(), &err)

	now := s.now()
	if !s.limiter.Allow(ratelimit.IdentityKey(identity), now) || !s.limiter.Allow(ratelimit.PeerKey(peer), now) {
		s.metrics.Throttled()
		return nil, nil, common.ErrRateLimited
	}

	a, err := s.repo.GetByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			subtle.ConstantTimeCompare(s.dummyHash, passwordHash)
			return nil, nil, common.ErrAuthentication
		}
		return nil, nil, s.internal(ctx, "load account", err)
	}
	if subtle.ConstantTimeCompare(a.PasswordHash, passwordHash) != 1 {
		s.logger.Info(ctx, "authentication failed", "account_id", a.ID)
		return nil, nil, common.ErrAuthentication
	}

	sessionKey := a.SessionKey
	if s.rotateOnLogin {
		if sessionKey, err = s.rotate(ctx, a.ID); err != nil {
			return nil, nil, err
		}
	}

	sess, err = s.newSession(a.ID, sessionKey)
	if err != nil {
		return nil, nil, err
	}
	envelope := a.Envelope
	return sess, &envelope, nil
}

// Verify checks a session token and that it has not been revoked.
func (s *AccountService) Verify(ctx context.Context, token string) (*auth.Claims, error) {
	if token == "" {
		return nil, common.ErrSessionInvalid
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "revocation lookup failed", "error", err)
		return nil, common.ErrUnavailable
	}
	if revoked {
		return nil, common.ErrSessionRevoked
	}
	return claims, nil
}

// FetchSessionKey returns the session key of the account behind claims.
func (s *AccountService) FetchSessionKey(ctx context.Context, claims *auth.Claims) (key []byte, err error) {
	defer s.observe("fetch_session_key", s.now(), &err)

	a, err := s.account(ctx, claims)
	if err != nil {
		return nil, err
	}
	return a.SessionKey, nil
}

// RotateSessionKey replaces the session key. Every artifact sealed with the
// old key stops opening.
func (s *AccountService) RotateSessionKey(ctx context.Context, claims *auth.Claims) (key []byte, err error) {
	defer s.observe("rotate_session_key", s.now(), &err)

	if _, err := s.account(ctx, claims); err != nil {
		return nil, err
	}
	return s.rotate(ctx, claims.AccountID)
}

func (s *AccountService) UpdateAddress(ctx context.Context, claims *auth.Claims, address string) (err error) {
	defer s.observe("update_address", s.now(), &err)

	if !ethcommon.IsHexAddress(address) {
		return fmt.Errorf("%w: bad address", common.ErrValidation)
	}
	if claims == nil {
		return common.ErrSessionInvalid
	}
	err = s.repo.UpdateAddress(ctx, claims.AccountID, ethcommon.HexToAddress(address).Hex())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrSessionInvalid
		}
		return s.internal(ctx, "update address", err)
	}
	return nil
}

// Logout revokes the token until its natural expiry.
func (s *AccountService) Logout(ctx context.Context, claims *auth.Claims) (err error) {
	defer s.observe("logout", s.now(), &err)

	if claims == nil {
		return common.ErrSessionInvalid
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.TTL(s.now())); err != nil {
		s.logger.Error(ctx, "revoke failed", "error", err)
		return common.ErrUnavailable
	}
	s.publish(ctx, events.TopicSessionRevoked, events.Event{AccountID: claims.AccountID, TokenID: claims.ID})
	s.logger.Info(ctx, "logged out", "account_id", claims.AccountID)
	return nil
}

func (s *AccountService) account(ctx context.Context, claims *auth.Claims) (*models.Account, error) {
	if claims == nil {
		return nil, common.ErrSessionInvalid
	}
	a, err := s.repo.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, s.internal(ctx, "load account", err)
	}
	return a, nil
}

func (s *AccountService) rotate(ctx context.Context, accountID string) ([]byte, error) {
	key := common.GenerateRandByteArray(sessionKeySize)
	if err := s.repo.UpdateSessionKey(ctx, accountID, key); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrSessionInvalid
		}
		return nil, s.internal(ctx, "rotate session key", err)
	}
	s.publish(ctx, events.TopicSessionRotated, events.Event{AccountID: accountID})
	return key, nil
}

func (s *AccountService) newSession(accountID string, sessionKey []byte) (*Session, error) {
	token, claims, err := s.tokens.Issue(accountID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Session{AccountID: accountID, Token: token, Claims: claims, SessionKey: sessionKey}, nil
}

// publish never fails the request: events are informational.
func (s *AccountService) publish(ctx context.Context, topic string, e events.Event) {
	e.At = s.now().UTC()
	if err := s.events.Publish(ctx, topic, e); err != nil {
		s.logger.Warn(ctx, "event not published", "topic", topic, "error", err)
	}
}

func (s *AccountService) internal(ctx context.Context, what string, err error) error {
	s.logger.Error(ctx, what, "error", err)
	if errors.Is(err, common.ErrUnavailable) {
		return common.ErrUnavailable
	}
	return common.ErrorInternal
}

func validateNewAccount(in *NewAccount) error {
	if in == nil {
		return fmt.Errorf("%w: empty request", common.ErrValidation)
	}
	if strings.TrimSpace(in.Identity) == "" || len(in.Identity) > maxIdentityLength {
		return fmt.Errorf("%w: bad identity", common.ErrValidation)
	}
	if len(in.PasswordHash) != cryptox.KeySize {
		return fmt.Errorf("%w: password hash must be %d bytes", common.ErrValidation, cryptox.KeySize)
	}
	if !ethcommon.IsHexAddress(in.Address) {
		return fmt.Errorf("%w: bad address", common.ErrValidation)
	}
	if err := in.Envelope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := in.KDF.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
