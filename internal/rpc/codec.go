// Package rpc defines the AccountAuthority gRPC service shared by server
// and client: message types, the service descriptor, a client stub and the
// mapping between error kinds and gRPC statuses. The schema lives in
// proto/multiply/vault/v1/account_authority.proto and is registered with
// the protobuf runtime by descriptor.go.
package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Codec puts messages on the wire in protobuf binary form. The Go message
// types map onto the schema through their json tags, which equal the
// fields' json_name. Install it with grpc.ForceServerCodec and
// grpc.ForceCodec.
type Codec struct{}

var (
	toProto   = protojson.UnmarshalOptions{}
	fromProto = protojson.MarshalOptions{}
)

func (Codec) Marshal(v any) ([]byte, error) {
	md, err := descriptorFor(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	js, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	msg := dynamicpb.NewMessage(md)
	if err := toProto.Unmarshal(js, msg); err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	md, err := descriptorFor(v)
	if err != nil {
		return fmt.Errorf("rpc: unmarshal %T: %w", v, err)
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("rpc: unmarshal %T: %w", v, err)
	}
	js, err := fromProto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rpc: unmarshal %T: %w", v, err)
	}
	// Unset proto3 fields are absent from js; clear v so they read as zero.
	reflect.ValueOf(v).Elem().SetZero()
	if err := json.Unmarshal(js, v); err != nil {
		return fmt.Errorf("rpc: unmarshal %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return "proto" }
