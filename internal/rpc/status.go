package rpc

import (
	"context"
	"errors"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[common.Kind]codes.Code{
	common.KindAuthentication: codes.Unauthenticated,
	common.KindSessionExpired: codes.Unauthenticated,
	common.KindSessionInvalid: codes.Unauthenticated,
	common.KindSessionRevoked: codes.Unauthenticated,
	common.KindAccountExists:  codes.AlreadyExists,
	common.KindValidation:     codes.InvalidArgument,
	common.KindRateLimited:    codes.ResourceExhausted,
	common.KindBusy:           codes.ResourceExhausted,
	common.KindUnavailable:    codes.Unavailable,
	common.KindNotFound:       codes.NotFound,
}

// ToStatus turns a service error into a gRPC status whose message is the
// error kind. Nothing else about the failure crosses the wire.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	k := common.KindOf(err)
	code, ok := kindCodes[k]
	if !ok {
		return status.Error(codes.Internal, common.KindInternal.String())
	}
	return status.Error(code, k.String())
}

// FromStatus maps a gRPC error back to the common sentinels.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	if k := common.ParseKind(st.Message()); k != common.KindUnknown {
		return common.SentinelFor(k)
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return common.ErrUnavailable
	case codes.Canceled:
		return context.Canceled
	case codes.Unauthenticated:
		return common.ErrSessionInvalid
	case codes.AlreadyExists:
		return common.ErrAccountExists
	case codes.InvalidArgument:
		return common.ErrValidation
	case codes.ResourceExhausted:
		return common.ErrRateLimited
	case codes.NotFound:
		return common.ErrorNotFound
	}
	return common.ErrorInternal
}
