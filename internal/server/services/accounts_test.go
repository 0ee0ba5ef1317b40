package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
	"github.com/multiplycharity/multiply-monorepo/internal/server/events"
	"github.com/multiplycharity/multiply-monorepo/internal/server/metrics"
	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
	"github.com/multiplycharity/multiply-monorepo/internal/server/ratelimit"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/accounts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

type recordedEvent struct {
	topic string
	event events.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic, e})
	return p.err
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type brokenRepo struct{ err error }

func (r brokenRepo) Create(context.Context, *models.Account) (*models.Account, error) {
	return nil, r.err
}
func (r brokenRepo) GetByIdentity(context.Context, string) (*models.Account, error) {
	return nil, r.err
}
func (r brokenRepo) GetByID(context.Context, string) (*models.Account, error) { return nil, r.err }
func (r brokenRepo) UpdateSessionKey(context.Context, string, []byte) error   { return r.err }
func (r brokenRepo) UpdateAddress(context.Context, string, string) error      { return r.err }

type brokenRevocations struct{}

func (brokenRevocations) Revoke(context.Context, string, time.Duration) error {
	return errors.New("redis down")
}
func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func testConfig() *config.Config {
	return &config.Config{SecretKey: "k", SessionTokenValidityDuration: time.Hour}
}

func newTestService(t *testing.T, opts ...Option) (*AccountService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return NewAccountService(accounts.NewMemoryRepository(), testConfig(), append([]Option{WithEvents(pub)}, opts...)...), pub
}

func testEnvelope(t *testing.T) *cryptox.Envelope {
	t.Helper()
	env, err := cryptox.DefaultSuite().Seal(
		cryptox.CopySecret([]byte("test test test test test test test test test test test junk")),
		cryptox.NewSecret(common.GenerateRandByteArray(32)),
	)
	require.NoError(t, err)
	return env
}

func newAccount(t *testing.T, identity string, ph []byte) *NewAccount {
	return &NewAccount{
		Identity:     identity,
		PasswordHash: ph,
		Address:      testAddress,
		Envelope:     testEnvelope(t),
		KDF:          cryptox.DefaultKDFParams(),
	}
}

func hash(b byte) []byte {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return h
}

func TestCreateAccount_IssuesSession(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	s, pub := newTestService(t, WithMetrics(m))

	sess, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccountID)
	assert.Len(t, sess.SessionKey, 32)

	claims, err := s.Verify(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.AccountID, claims.AccountID)

	key, err := s.FetchSessionKey(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionKey, key)

	assert.Equal(t, []string{events.TopicAccountCreated}, pub.topics())
	assert.Equal(t, sess.AccountID, pub.events[0].event.AccountID)
	expected := `
# HELP multiply_vault_accounts_created_total Accounts registered since start.
# TYPE multiply_vault_accounts_created_total counter
multiply_vault_accounts_created_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "multiply_vault_accounts_created_total"))
}

func TestCreateAccount_Duplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, newAccount(t, "alice", hash(2)))
	require.ErrorIs(t, err, common.ErrAccountExists)
}

func TestCreateAccount_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewAccount)
	}{
		{"empty identity", func(a *NewAccount) { a.Identity = "  " }},
		{"long identity", func(a *NewAccount) { a.Identity = strings.Repeat("a", maxIdentityLength+1) }},
		{"short hash", func(a *NewAccount) { a.PasswordHash = []byte("short") }},
		{"bad address", func(a *NewAccount) { a.Address = "not-an-address" }},
		{"nil envelope", func(a *NewAccount) { a.Envelope = nil }},
		{"reused iv", func(a *NewAccount) { a.Envelope.MnemonicIV = a.Envelope.DataKeyIV }},
		{"weak kdf", func(a *NewAccount) { a.KDF.Iterations = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pub := newTestService(t)
			in := newAccount(t, "alice", hash(1))
			tt.mutate(in)

			_, err := s.CreateAccount(context.Background(), in)
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Empty(t, pub.topics())
		})
	}

	s, _ := newTestService(t)
	_, err := s.CreateAccount(context.Background(), nil)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	in := newAccount(t, "alice", hash(1))
	reg, err := s.CreateAccount(ctx, in)
	require.NoError(t, err)

	sess, env, err := s.Authenticate(ctx, "alice", hash(1), "")
	require.NoError(t, err)
	assert.True(t, in.Envelope.Equal(env), "login returns the envelope stored at registration")
	assert.Equal(t, reg.SessionKey, sess.SessionKey)
	assert.Equal(t, reg.AccountID, sess.AccountID)
	assert.NotEqual(t, reg.Claims.ID, sess.Claims.ID)

	_, _, err = s.Authenticate(ctx, "alice", hash(2), "")
	require.ErrorIs(t, err, common.ErrAuthentication)

	_, _, err = s.Authenticate(ctx, "nobody", hash(1), "")
	require.ErrorIs(t, err, common.ErrAuthentication)
}

func TestAuthenticate_RotateOnLogin(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RotateSessionKeyOnLogin = true
	pub := &fakePublisher{}
	s := NewAccountService(accounts.NewMemoryRepository(), cfg, WithEvents(pub))

	reg, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	sess, _, err := s.Authenticate(ctx, "alice", hash(1), "")
	require.NoError(t, err)
	assert.NotEqual(t, reg.SessionKey, sess.SessionKey)

	key, err := s.FetchSessionKey(ctx, sess.Claims)
	require.NoError(t, err)
	assert.Equal(t, sess.SessionKey, key)
	assert.Contains(t, pub.topics(), events.TopicSessionRotated)
}

func TestAuthenticate_RateLimited(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithLimiter(ratelimit.New(0.001, 2, time.Minute)))

	_, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	_, _, err = s.Authenticate(ctx, "alice", hash(2), "")
	require.ErrorIs(t, err, common.ErrAuthentication)
	_, _, err = s.Authenticate(ctx, "alice", hash(1), "")
	require.NoError(t, err)
	_, _, err = s.Authenticate(ctx, "alice", hash(1), "")
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestAuthenticate_RateLimitIsPerExactIdentity(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithLimiter(ratelimit.New(0.001, 1, time.Minute)))

	_, err := s.CreateAccount(ctx, newAccount(t, "Alice", hash(1)))
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, newAccount(t, "alice", hash(2)))
	require.NoError(t, err)

	_, _, err = s.Authenticate(ctx, "Alice", hash(1), "")
	require.NoError(t, err)
	_, _, err = s.Authenticate(ctx, "alice", hash(2), "")
	require.NoError(t, err, "a distinct identity has its own bucket")
	_, _, err = s.Authenticate(ctx, "Alice", hash(1), "")
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestAuthenticate_RateLimitedPerPeer(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithLimiter(ratelimit.New(0.001, 2, time.Minute)))

	_, _, err := s.Authenticate(ctx, "a", hash(1), "10.0.0.1")
	require.ErrorIs(t, err, common.ErrAuthentication)
	_, _, err = s.Authenticate(ctx, "b", hash(1), "10.0.0.1")
	require.ErrorIs(t, err, common.ErrAuthentication)
	_, _, err = s.Authenticate(ctx, "c", hash(1), "10.0.0.1")
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestRotateSessionKey(t *testing.T) {
	ctx := context.Background()
	s, pub := newTestService(t)

	reg, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	rotated, err := s.RotateSessionKey(ctx, reg.Claims)
	require.NoError(t, err)
	assert.NotEqual(t, reg.SessionKey, rotated)

	key, err := s.FetchSessionKey(ctx, reg.Claims)
	require.NoError(t, err)
	assert.Equal(t, rotated, key)
	assert.Equal(t, []string{events.TopicAccountCreated, events.TopicSessionRotated}, pub.topics())
}

func TestSessionCalls_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	ghost := &auth.Claims{AccountID: "ghost"}

	_, err := s.FetchSessionKey(ctx, ghost)
	require.ErrorIs(t, err, common.ErrSessionInvalid)
	_, err = s.RotateSessionKey(ctx, ghost)
	require.ErrorIs(t, err, common.ErrSessionInvalid)
	_, err = s.FetchSessionKey(ctx, nil)
	require.ErrorIs(t, err, common.ErrSessionInvalid)
	require.ErrorIs(t, s.UpdateAddress(ctx, ghost, testAddress), common.ErrSessionInvalid)
	require.ErrorIs(t, s.Logout(ctx, nil), common.ErrSessionInvalid)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.Verify(ctx, "")
	require.ErrorIs(t, err, common.ErrSessionInvalid)
	_, err = s.Verify(ctx, "garbage")
	require.ErrorIs(t, err, common.ErrSessionInvalid)

	cfg := testConfig()
	cfg.SessionTokenValidityDuration = -time.Minute
	expiring := NewAccountService(accounts.NewMemoryRepository(), cfg)
	reg, err := expiring.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)
	_, err = expiring.Verify(ctx, reg.Token)
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestLogout_RevokesToken(t *testing.T) {
	ctx := context.Background()
	s, pub := newTestService(t)

	reg, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, reg.Claims))

	_, err = s.Verify(ctx, reg.Token)
	require.ErrorIs(t, err, common.ErrSessionRevoked)
	assert.Contains(t, pub.topics(), events.TopicSessionRevoked)

	// a new login gets a fresh, unrevoked token
	sess, _, err := s.Authenticate(ctx, "alice", hash(1), "")
	require.NoError(t, err)
	_, err = s.Verify(ctx, sess.Token)
	require.NoError(t, err)
}

func TestRevocationStoreDown(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithRevocations(brokenRevocations{}))

	reg, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	_, err = s.Verify(ctx, reg.Token)
	require.ErrorIs(t, err, common.ErrUnavailable)
	require.ErrorIs(t, s.Logout(ctx, reg.Claims), common.ErrUnavailable)
}

func TestKDFParamsAndExists(t *testing.T) {
	ctx := context.Background()
	fallback := cryptox.KDFParams{Version: 1, Algorithm: cryptox.KDFPBKDF2SHA512, Iterations: 700_000}
	s, _ := newTestService(t, WithDefaultKDF(fallback))

	in := newAccount(t, "alice", hash(1))
	_, err := s.CreateAccount(ctx, in)
	require.NoError(t, err)

	p, err := s.KDFParams(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, in.KDF, p)

	p, err = s.KDFParams(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, fallback, p)

	ok, err := s.Exists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateAddress(t *testing.T) {
	ctx := context.Background()
	repo := accounts.NewMemoryRepository()
	s := NewAccountService(repo, testConfig())

	reg, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.NoError(t, err)

	require.ErrorIs(t, s.UpdateAddress(ctx, reg.Claims, "nope"), common.ErrValidation)

	next := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	require.NoError(t, s.UpdateAddress(ctx, reg.Claims, next))

	a, err := repo.GetByID(ctx, reg.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", a.Address)
}

func TestRepositoryFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	s := NewAccountService(brokenRepo{err: errors.New("db error: connection refused")}, testConfig())

	_, err := s.CreateAccount(ctx, newAccount(t, "alice", hash(1)))
	require.ErrorIs(t, err, common.ErrorInternal)
	assert.NotContains(t, err.Error(), "connection refused")

	_, _, err = s.Authenticate(ctx, "alice", hash(1), "")
	require.ErrorIs(t, err, common.ErrorInternal)

	_, err = s.KDFParams(ctx, "alice")
	require.ErrorIs(t, err, common.ErrorInternal)

	_, err = s.Exists(ctx, "alice")
	require.ErrorIs(t, err, common.ErrorInternal)

	unavailable := NewAccountService(brokenRepo{err: common.ErrUnavailable}, testConfig())
	_, err = unavailable.FetchSessionKey(ctx, &auth.Claims{AccountID: "a"})
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := NewAccountService(accounts.NewMemoryRepository(), testConfig(), WithEvents(pub))

	_, err := s.CreateAccount(context.Background(), newAccount(t, "alice", hash(1)))
	require.NoError(t, err)
}
