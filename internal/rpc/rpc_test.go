package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

func TestCodec_ProtobufWireFormat(t *testing.T) {
	req := &CreateAccountRequest{
		ID:           "alice",
		PasswordHash: []byte{1, 2},
		Address:      "0xabc",
		Envelope: cryptox.Envelope{
			EncryptedDataKey:  []byte{3},
			DataKeyIV:         []byte{4},
			EncryptedMnemonic: []byte{5},
			MnemonicIV:        []byte{6},
		},
		KDF: cryptox.DefaultKDFParams(),
	}

	b, err := Codec{}.Marshal(req)
	require.NoError(t, err)

	md := File.Messages().ByName("CreateAccountRequest")
	require.NotNil(t, md)
	raw := dynamicpb.NewMessage(md)
	require.NoError(t, proto.Unmarshal(b, raw))

	get := func(name string) protoreflect.Value {
		return raw.Get(md.Fields().ByName(protoreflect.Name(name)))
	}
	assert.Equal(t, "alice", get("id").String())
	assert.Equal(t, []byte{1, 2}, get("password_hash").Bytes())
	assert.Equal(t, []byte{4}, get("data_key_iv").Bytes())
	assert.Equal(t, []byte{6}, get("mnemonic_iv").Bytes())

	kdf := get("kdf").Message()
	kdfFields := kdf.Descriptor().Fields()
	assert.Equal(t, uint64(600_000), kdf.Get(kdfFields.ByName("iterations")).Uint())
	assert.Equal(t, cryptox.KDFPBKDF2SHA256, kdf.Get(kdfFields.ByName("algorithm")).String())

	var back CreateAccountRequest
	require.NoError(t, Codec{}.Unmarshal(b, &back))
	assert.Equal(t, *req, back)
	assert.Equal(t, "proto", Codec{}.Name())
}

func TestCodec_EmptyAndZeroValues(t *testing.T) {
	b, err := Codec{}.Marshal(&Empty{})
	require.NoError(t, err)
	assert.Empty(t, b)
	require.NoError(t, Codec{}.Unmarshal(b, &Empty{}))

	b, err = Codec{}.Marshal(&ExistsResponse{})
	require.NoError(t, err)
	out := ExistsResponse{Exists: true}
	require.NoError(t, Codec{}.Unmarshal(b, &out))
	assert.False(t, out.Exists)

	b, err = Codec{}.Marshal(&SessionKeyResponse{})
	require.NoError(t, err)
	var sk SessionKeyResponse
	require.NoError(t, Codec{}.Unmarshal(b, &sk))
	assert.Empty(t, sk.SessionKey)
}

func TestCodec_Errors(t *testing.T) {
	_, err := Codec{}.Marshal(struct{}{})
	assert.Error(t, err)

	_, err = Codec{}.Marshal(&struct{ X int }{})
	assert.Error(t, err)

	var resp PingResponse
	assert.Error(t, Codec{}.Unmarshal([]byte{0xff, 0xff, 0xff}, &resp))
}

func TestDescriptor_MatchesServiceDesc(t *testing.T) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(ServiceName)
	require.NoError(t, err)
	sd, ok := d.(protoreflect.ServiceDescriptor)
	require.True(t, ok)

	require.Equal(t, len(ServiceDesc.Methods), sd.Methods().Len())
	for _, m := range ServiceDesc.Methods {
		assert.NotNil(t, sd.Methods().ByName(protoreflect.Name(m.MethodName)), m.MethodName)
	}
	assert.Equal(t, ProtoFile, ServiceDesc.Metadata)
}

func TestStatusRoundTrip(t *testing.T) {
	for _, sentinel := range []error{
		common.ErrAuthentication,
		common.ErrSessionExpired,
		common.ErrSessionInvalid,
		common.ErrSessionRevoked,
		common.ErrAccountExists,
		common.ErrValidation,
		common.ErrRateLimited,
		common.ErrUnavailable,
		common.ErrorNotFound,
	} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			st := ToStatus(fmt.Errorf("deep: %w", sentinel))
			assert.NotContains(t, st.Error(), "deep")
			assert.ErrorIs(t, FromStatus(st), sentinel)
		})
	}
}

func TestToStatus_HidesInternalErrors(t *testing.T) {
	st := ToStatus(errors.New("pq: password authentication failed for user postgres"))
	s, ok := status.FromError(st)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, s.Code())
	assert.Equal(t, "internal", s.Message())

	assert.Nil(t, ToStatus(nil))

	already := status.Error(codes.PermissionDenied, "x")
	assert.Equal(t, already, ToStatus(already))
}

func TestFromStatus_FallsBackToCode(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.Unavailable, common.ErrUnavailable},
		{codes.DeadlineExceeded, common.ErrUnavailable},
		{codes.Unauthenticated, common.ErrSessionInvalid},
		{codes.AlreadyExists, common.ErrAccountExists},
		{codes.InvalidArgument, common.ErrValidation},
		{codes.ResourceExhausted, common.ErrRateLimited},
		{codes.NotFound, common.ErrorNotFound},
		{codes.Unknown, common.ErrorInternal},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, FromStatus(status.Error(tt.code, "connection refused")), tt.want, tt.code.String())
	}

	assert.ErrorIs(t, FromStatus(status.Error(codes.Canceled, "x")), context.Canceled)
	assert.ErrorIs(t, FromStatus(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.Nil(t, FromStatus(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, FromStatus(plain))
}
