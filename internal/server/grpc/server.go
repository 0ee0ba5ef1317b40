// Package grpc serves the AccountAuthority service over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/rpc"
	"github.com/multiplycharity/multiply-monorepo/internal/server/auth"
	"github.com/multiplycharity/multiply-monorepo/internal/server/services"
	"google.golang.org/grpc"
)

type accountService interface {
	KDFParams(ctx context.Context, identity string) (cryptox.KDFParams, error)
	Exists(ctx context.Context, identity string) (bool, error)
	CreateAccount(ctx context.Context, in *services.NewAccount) (*services.Session, error)
	Authenticate(ctx context.Context, identity string, passwordHash []byte, peer string) (*services.Session, *cryptox.Envelope, error)
	Verify(ctx context.Context, token string) (*auth.Claims, error)
	FetchSessionKey(ctx context.Context, claims *auth.Claims) ([]byte, error)
	RotateSessionKey(ctx context.Context, claims *auth.Claims) ([]byte, error)
	UpdateAddress(ctx context.Context, claims *auth.Claims, address string) error
	Logout(ctx context.Context, claims *auth.Claims) error
}

type GRPCServer struct {
	address  string
	accounts accountService
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, as accountService) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		accounts: as,
	}
}

// NewServer builds the grpc.Server with codec, interceptors and service
// registered. Run uses it; tests serve it on a bufconn listener.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.sessionTokenInterceptor),
	)
	rpc.RegisterAccountAuthorityServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
