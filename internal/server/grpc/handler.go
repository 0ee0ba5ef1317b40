package grpc

import (
	"context"
	"net"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/rpc"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
	"github.com/multiplycharity/multiply-monorepo/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

func (s *GRPCServer) KDFParams(ctx context.Context, req *rpc.IdentityRequest) (*rpc.KDFParamsResponse, error) {
	p, err := s.accounts.KDFParams(ctx, req.ID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.KDFParamsResponse{KDF: p}, nil
}

func (s *GRPCServer) Exists(ctx context.Context, req *rpc.IdentityRequest) (*rpc.ExistsResponse, error) {
	ok, err := s.accounts.Exists(ctx, req.ID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.ExistsResponse{Exists: ok}, nil
}

func (s *GRPCServer) CreateAccount(ctx context.Context, req *rpc.CreateAccountRequest) (*rpc.CreateAccountResponse, error) {
	env := req.Envelope
	sess, err := s.accounts.CreateAccount(ctx, &services.NewAccount{
		Identity:     req.ID,
		PasswordHash: req.PasswordHash,
		Address:      req.Address,
		Envelope:     &env,
		KDF:          req.KDF,
	})
	if err != nil {
		return nil, rpc.ToStatus(err)
	}

	if err := setSessionToken(ctx, sess.Token); err != nil {
		return nil, rpc.ToStatus(err)
	}

	s.logger.Info(ctx, "Registered", "account_id", sess.AccountID)
	return &rpc.CreateAccountResponse{AccountID: sess.AccountID, SessionKey: sess.SessionKey}, nil
}

func (s *GRPCServer) Authenticate(ctx context.Context, req *rpc.AuthenticateRequest) (*rpc.AuthenticateResponse, error) {
	sess, env, err := s.accounts.Authenticate(ctx, req.ID, req.PasswordHash, peerAddr(ctx))
	if err != nil {
		return nil, rpc.ToStatus(err)
	}

	if err := setSessionToken(ctx, sess.Token); err != nil {
		return nil, rpc.ToStatus(err)
	}

	return &rpc.AuthenticateResponse{Envelope: *env, SessionKey: sess.SessionKey}, nil
}

func (s *GRPCServer) FetchSessionKey(ctx context.Context, _ *rpc.Empty) (*rpc.SessionKeyResponse, error) {
	claims, ok := auth.ClaimsFrom(ctx)
	if !ok {
		return nil, rpc.ToStatus(common.ErrSessionInvalid)
	}
	key, err := s.accounts.FetchSessionKey(ctx, claims)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.SessionKeyResponse{SessionKey: key}, nil
}

func (s *GRPCServer) RotateSessionKey(ctx context.Context, _ *rpc.Empty) (*rpc.SessionKeyResponse, error) {
	claims, ok := auth.ClaimsFrom(ctx)
	if !ok {
		return nil, rpc.ToStatus(common.ErrSessionInvalid)
	}
	key, err := s.accounts.RotateSessionKey(ctx, claims)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.SessionKeyResponse{SessionKey: key}, nil
}

func (s *GRPCServer) UpdateAddress(ctx context.Context, req *rpc.UpdateAddressRequest) (*rpc.Empty, error) {
	claims, ok := auth.ClaimsFrom(ctx)
	if !ok {
		return nil, rpc.ToStatus(common.ErrSessionInvalid)
	}
	if err := s.accounts.UpdateAddress(ctx, claims, req.Address); err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	claims, ok := auth.ClaimsFrom(ctx)
	if !ok {
		return nil, rpc.ToStatus(common.ErrSessionInvalid)
	}
	if err := s.accounts.Logout(ctx, claims); err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.Empty{}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

func setSessionToken(ctx context.Context, token string) error {
	return grpc.SetHeader(ctx, metadata.Pairs(common.SessionTokenHeaderName, token))
}

func peerAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
