package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/rpc"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
	"github.com/multiplycharity/multiply-monorepo/internal/server/repositories/accounts"
	"github.com/multiplycharity/multiply-monorepo/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func startServer(t *testing.T) *rpc.AccountAuthorityClient {
	t.Helper()

	cfg := &config.Config{SecretKey: "k", SessionTokenValidityDuration: time.Hour}
	svc := services.NewAccountService(accounts.NewMemoryRepository(), cfg)
	s := NewGRPCServer("bufnet", logging.Nop(), svc)

	lis := bufconn.Listen(1 << 20)
	srv := s.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return rpc.NewAccountAuthorityClient(conn)
}

func envelope(t *testing.T) cryptox.Envelope {
	t.Helper()
	env, err := cryptox.DefaultSuite().Seal(
		cryptox.CopySecret([]byte("test test test test test test test test test test test junk")),
		cryptox.NewSecret(common.GenerateRandByteArray(32)),
	)
	require.NoError(t, err)
	return *env
}

func hash(b byte) []byte {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return h
}

func register(t *testing.T, c *rpc.AccountAuthorityClient, id string) (*rpc.CreateAccountResponse, string) {
	t.Helper()
	var header metadata.MD
	resp, err := c.CreateAccount(context.Background(), &rpc.CreateAccountRequest{
		ID:           id,
		PasswordHash: hash(7),
		Address:      testAddress,
		Envelope:     envelope(t),
		KDF:          cryptox.DefaultKDFParams(),
	}, grpc.Header(&header))
	require.NoError(t, err)
	tokens := header.Get(common.SessionTokenHeaderName)
	require.Len(t, tokens, 1)
	return resp, tokens[0]
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), common.SessionTokenHeaderName, token)
}

func TestPing_OK(t *testing.T) {
	c := startServer(t)
	resp, err := c.Ping(context.Background(), &rpc.Empty{})
	if err != nil {
		t.Fatalf("Ping error: %v", err)
	}
	if resp.Status != "OK" {
		t.Fatalf("unexpected status: %q", resp.Status)
	}
}

func TestRegisterAuthenticateFetch(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	created, token := register(t, c, "alice")
	assert.NotEmpty(t, created.AccountID)
	assert.Len(t, created.SessionKey, 32)

	exists, err := c.Exists(ctx, &rpc.IdentityRequest{ID: "alice"})
	require.NoError(t, err)
	assert.True(t, exists.Exists)

	kdf, err := c.KDFParams(ctx, &rpc.IdentityRequest{ID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, cryptox.DefaultKDFParams(), kdf.KDF)

	var header metadata.MD
	auth, err := c.Authenticate(ctx, &rpc.AuthenticateRequest{ID: "alice", PasswordHash: hash(7)}, grpc.Header(&header))
	require.NoError(t, err)
	assert.NoError(t, auth.Envelope.Validate())
	assert.Equal(t, created.SessionKey, auth.SessionKey)
	assert.NotEmpty(t, header.Get(common.SessionTokenHeaderName))

	key, err := c.FetchSessionKey(withToken(token), &rpc.Empty{})
	require.NoError(t, err)
	assert.Equal(t, created.SessionKey, key.SessionKey)
}

func TestCreateAccount_Duplicate(t *testing.T) {
	c := startServer(t)
	register(t, c, "alice")

	_, err := c.CreateAccount(context.Background(), &rpc.CreateAccountRequest{
		ID: "alice", PasswordHash: hash(1), Address: testAddress, Envelope: envelope(t), KDF: cryptox.DefaultKDFParams(),
	})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("want AlreadyExists, got %v", status.Code(err))
	}
	assert.ErrorIs(t, rpc.FromStatus(err), common.ErrAccountExists)
}

func TestAuthenticate_WrongPasswordAndUnknownLookAlike(t *testing.T) {
	c := startServer(t)
	register(t, c, "alice")

	_, errWrong := c.Authenticate(context.Background(), &rpc.AuthenticateRequest{ID: "alice", PasswordHash: hash(8)})
	_, errUnknown := c.Authenticate(context.Background(), &rpc.AuthenticateRequest{ID: "bob", PasswordHash: hash(8)})

	assert.Equal(t, codes.Unauthenticated, status.Code(errWrong))
	assert.Equal(t, status.Convert(errWrong).Message(), status.Convert(errUnknown).Message())
	assert.ErrorIs(t, rpc.FromStatus(errWrong), common.ErrAuthentication)
}

func TestSessionMethods_RequireToken(t *testing.T) {
	c := startServer(t)

	_, err := c.FetchSessionKey(context.Background(), &rpc.Empty{})
	assert.ErrorIs(t, rpc.FromStatus(err), common.ErrSessionInvalid)

	_, err = c.FetchSessionKey(withToken("not-a-jwt"), &rpc.Empty{})
	assert.ErrorIs(t, rpc.FromStatus(err), common.ErrSessionInvalid)
}

func TestRotateAndLogout(t *testing.T) {
	c := startServer(t)
	created, token := register(t, c, "alice")
	ctx := withToken(token)

	rotated, err := c.RotateSessionKey(ctx, &rpc.Empty{})
	require.NoError(t, err)
	assert.NotEqual(t, created.SessionKey, rotated.SessionKey)

	_, err = c.UpdateAddress(ctx, &rpc.UpdateAddressRequest{Address: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"})
	require.NoError(t, err)

	_, err = c.UpdateAddress(ctx, &rpc.UpdateAddressRequest{Address: "nope"})
	assert.ErrorIs(t, rpc.FromStatus(err), common.ErrValidation)

	_, err = c.Logout(ctx, &rpc.Empty{})
	require.NoError(t, err)

	_, err = c.FetchSessionKey(ctx, &rpc.Empty{})
	assert.ErrorIs(t, rpc.FromStatus(err), common.ErrSessionRevoked)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), nil)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
