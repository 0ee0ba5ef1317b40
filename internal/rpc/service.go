package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "multiply.vault.v1.AccountAuthority"

const (
	MethodKDFParams        = "/" + ServiceName + "/KDFParams"
	MethodExists           = "/" + ServiceName + "/Exists"
	MethodCreateAccount    = "/" + ServiceName + "/CreateAccount"
	MethodAuthenticate     = "/" + ServiceName + "/Authenticate"
	MethodFetchSessionKey  = "/" + ServiceName + "/FetchSessionKey"
	MethodRotateSessionKey = "/" + ServiceName + "/RotateSessionKey"
	MethodUpdateAddress    = "/" + ServiceName + "/UpdateAddress"
	MethodLogout           = "/" + ServiceName + "/Logout"
	MethodPing             = "/" + ServiceName + "/Ping"
)

// SessionMethods need a valid session token.
var SessionMethods = map[string]bool{
	MethodFetchSessionKey:  true,
	MethodRotateSessionKey: true,
	MethodUpdateAddress:    true,
	MethodLogout:           true,
}

// IssuingMethods answer with a new session token in the response header.
var IssuingMethods = map[string]bool{
	MethodCreateAccount: true,
	MethodAuthenticate:  true,
}

type AccountAuthorityServer interface {
	KDFParams(context.Context, *IdentityRequest) (*KDFParamsResponse, error)
	Exists(context.Context, *IdentityRequest) (*ExistsResponse, error)
	CreateAccount(context.Context, *CreateAccountRequest) (*CreateAccountResponse, error)
	Authenticate(context.Context, *AuthenticateRequest) (*AuthenticateResponse, error)
	FetchSessionKey(context.Context, *Empty) (*SessionKeyResponse, error)
	RotateSessionKey(context.Context, *Empty) (*SessionKeyResponse, error)
	UpdateAddress(context.Context, *UpdateAddressRequest) (*Empty, error)
	Logout(context.Context, *Empty) (*Empty, error)
	Ping(context.Context, *Empty) (*PingResponse, error)
}

func unary[Req, Resp any](name string, call func(AccountAuthorityServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AccountAuthorityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AccountAuthorityServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountAuthorityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("KDFParams", AccountAuthorityServer.KDFParams),
		unary("Exists", AccountAuthorityServer.Exists),
		unary("CreateAccount", AccountAuthorityServer.CreateAccount),
		unary("Authenticate", AccountAuthorityServer.Authenticate),
		unary("FetchSessionKey", AccountAuthorityServer.FetchSessionKey),
		unary("RotateSessionKey", AccountAuthorityServer.RotateSessionKey),
		unary("UpdateAddress", AccountAuthorityServer.UpdateAddress),
		unary("Logout", AccountAuthorityServer.Logout),
		unary("Ping", AccountAuthorityServer.Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}

func RegisterAccountAuthorityServer(s grpc.ServiceRegistrar, srv AccountAuthorityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// AccountAuthorityClient is the client stub. The connection must be
// dialled with grpc.ForceCodec(Codec{}).
type AccountAuthorityClient struct {
	cc grpc.ClientConnInterface
}

func NewAccountAuthorityClient(cc grpc.ClientConnInterface) *AccountAuthorityClient {
	return &AccountAuthorityClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AccountAuthorityClient) KDFParams(ctx context.Context, in *IdentityRequest, opts ...grpc.CallOption) (*KDFParamsResponse, error) {
	return invoke[KDFParamsResponse](ctx, c.cc, MethodKDFParams, in, opts)
}

func (c *AccountAuthorityClient) Exists(ctx context.Context, in *IdentityRequest, opts ...grpc.CallOption) (*ExistsResponse, error) {
	return invoke[ExistsResponse](ctx, c.cc, MethodExists, in, opts)
}

func (c *AccountAuthorityClient) CreateAccount(ctx context.Context, in *CreateAccountRequest, opts ...grpc.CallOption) (*CreateAccountResponse, error) {
	return invoke[CreateAccountResponse](ctx, c.cc, MethodCreateAccount, in, opts)
}

func (c *AccountAuthorityClient) Authenticate(ctx context.Context, in *AuthenticateRequest, opts ...grpc.CallOption) (*AuthenticateResponse, error) {
	return invoke[AuthenticateResponse](ctx, c.cc, MethodAuthenticate, in, opts)
}

func (c *AccountAuthorityClient) FetchSessionKey(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*SessionKeyResponse, error) {
	return invoke[SessionKeyResponse](ctx, c.cc, MethodFetchSessionKey, in, opts)
}

func (c *AccountAuthorityClient) RotateSessionKey(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*SessionKeyResponse, error) {
	return invoke[SessionKeyResponse](ctx, c.cc, MethodRotateSessionKey, in, opts)
}

func (c *AccountAuthorityClient) UpdateAddress(ctx context.Context, in *UpdateAddressRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodUpdateAddress, in, opts)
}

func (c *AccountAuthorityClient) Logout(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, MethodLogout, in, opts)
}

func (c *AccountAuthorityClient) Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}
