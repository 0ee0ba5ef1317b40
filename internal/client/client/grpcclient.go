package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/rpc"
	"github.com/multiplycharity/multiply-monorepo/internal/vault"
	"github.com/sethvargo/go-retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      *rpc.AccountAuthorityClient
	dialOptions []grpc.DialOption

	fetchRetries uint64
	retryBase    time.Duration
	timeout      time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*GRPCClient)

// WithFetchRetries sets how often FetchSessionKey is retried while the
// authority is unavailable.
func WithFetchRetries(n uint64, base time.Duration) Option {
	return func(c *GRPCClient) { c.fetchRetries, c.retryBase = n, base }
}

// WithRequestTimeout bounds every call that has no deadline of its own.
func WithRequestTimeout(d time.Duration) Option { return func(c *GRPCClient) { c.timeout = d } }

func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *GRPCClient) { c.dialOptions = append(c.dialOptions, opts...) }
}

func NewGRPCClient(endpointURL string, opts ...Option) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL:  endpointURL,
		fetchRetries: 3,
		retryBase:    200 * time.Millisecond,
		timeout:      30 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.initGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *GRPCClient) initGRPCClient() error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.sessionTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rpc.Codec{})),
	}, c.dialOptions...)

	conn, err := grpc.NewClient(c.endpointURL, opts...)
	if err != nil {
		return err
	}
	c.conn = conn
	c.client = rpc.NewAccountAuthorityClient(conn)
	return nil
}

func withSessionToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.SessionTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// sessionTokenInterceptor attaches the session token to session calls and
// captures the token the authority issues on register and login.
func (c *GRPCClient) sessionTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if rpc.SessionMethods[method] {
		ctx = withSessionToken(ctx, c.SessionToken())
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if !rpc.IssuingMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	var header metadata.MD
	if err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Header(&header))...); err != nil {
		return err
	}
	if values := header.Get(common.SessionTokenHeaderName); len(values) > 0 {
		c.SetSessionToken(values[0])
	}
	return nil
}

func (c *GRPCClient) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *GRPCClient) SetSessionToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *GRPCClient) KDFParams(ctx context.Context, id string) (cryptox.KDFParams, error) {
	resp, err := c.client.KDFParams(ctx, &rpc.IdentityRequest{ID: id})
	if err != nil {
		return cryptox.KDFParams{}, mapError(err)
	}
	return resp.KDF, nil
}

func (c *GRPCClient) Exists(ctx context.Context, id string) (bool, error) {
	resp, err := c.client.Exists(ctx, &rpc.IdentityRequest{ID: id})
	if err != nil {
		return false, mapError(err)
	}
	return resp.Exists, nil
}

func (c *GRPCClient) CreateAccount(ctx context.Context, req *vault.CreateAccountRequest) (*vault.CreateAccountResponse, error) {
	if req.Envelope == nil {
		return nil, common.ErrValidation
	}
	resp, err := c.client.CreateAccount(ctx, &rpc.CreateAccountRequest{
		ID:           req.ID,
		PasswordHash: req.PasswordHash.Bytes(),
		Address:      req.Address,
		Envelope:     *req.Envelope,
		KDF:          req.KDF,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &vault.CreateAccountResponse{AccountID: resp.AccountID, SessionKey: cryptox.NewSecret(resp.SessionKey)}, nil
}

func (c *GRPCClient) Authenticate(ctx context.Context, req *vault.AuthenticateRequest) (*vault.AuthenticateResponse, error) {
	resp, err := c.client.Authenticate(ctx, &rpc.AuthenticateRequest{ID: req.ID, PasswordHash: req.PasswordHash.Bytes()})
	if err != nil {
		return nil, mapError(err)
	}
	env := resp.Envelope
	return &vault.AuthenticateResponse{Envelope: &env, SessionKey: cryptox.NewSecret(resp.SessionKey)}, nil
}

// FetchSessionKey retries with exponential backoff while the authority is
// unavailable. Session errors are returned at once.
func (c *GRPCClient) FetchSessionKey(ctx context.Context) (cryptox.Secret, error) {
	var key []byte
	b := retry.WithMaxRetries(c.fetchRetries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := c.client.FetchSessionKey(ctx, &rpc.Empty{})
		if err != nil {
			err = mapError(err)
			if errors.Is(err, common.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		key = resp.SessionKey
		return nil
	})
	if err != nil {
		return cryptox.Secret{}, err
	}
	return cryptox.NewSecret(key), nil
}

func (c *GRPCClient) RotateSessionKey(ctx context.Context) (cryptox.Secret, error) {
	resp, err := c.client.RotateSessionKey(ctx, &rpc.Empty{})
	if err != nil {
		return cryptox.Secret{}, mapError(err)
	}
	return cryptox.NewSecret(resp.SessionKey), nil
}

func (c *GRPCClient) UpdateAddress(ctx context.Context, address string) error {
	if _, err := c.client.UpdateAddress(ctx, &rpc.UpdateAddressRequest{Address: address}); err != nil {
		return mapError(err)
	}
	return nil
}

// Logout revokes the session and forgets the token.
func (c *GRPCClient) Logout(ctx context.Context) error {
	if _, err := c.client.Logout(ctx, &rpc.Empty{}); err != nil {
		return mapError(err)
	}
	c.SetSessionToken("")
	return nil
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(ctx, &rpc.Empty{})
	if err != nil {
		return mapError(err)
	}
	if resp.Status != "OK" {
		return common.ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	return rpc.FromStatus(err)
}
