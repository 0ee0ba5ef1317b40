package rpc

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ProtoFile is the path of the schema in proto/ and in the global registry.
const ProtoFile = "multiply/vault/v1/account_authority.proto"

const protoPackage = "multiply.vault.v1"

// File is the descriptor of proto/multiply/vault/v1/account_authority.proto.
var File protoreflect.FileDescriptor

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("rpc: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("rpc: register descriptor: %v", err))
	}
	File = fd
}

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tBytes  = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	tBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tUint32 = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tMsg    = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

// field declares a proto3 singular field. jsonName matches the json tag of
// the Go type the message is decoded into.
func field(num int32, name, jsonName string, t fieldType, typeName ...string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(jsonName),
		Number:   proto.Int32(num),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     t.Enum(),
	}
	if len(typeName) > 0 {
		f.TypeName = proto.String("." + protoPackage + "." + typeName[0])
	}
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + in),
		OutputType: proto.String("." + protoPackage + "." + out),
	}
}

func envelopeFields(first int32) []*descriptorpb.FieldDescriptorProto {
	return []*descriptorpb.FieldDescriptorProto{
		field(first, "encrypted_data_key", "encryptedDataKey", tBytes),
		field(first+1, "data_key_iv", "dataKeyIV", tBytes),
		field(first+2, "encrypted_mnemonic", "encryptedMnemonic", tBytes),
		field(first+3, "mnemonic_iv", "mnemonicIV", tBytes),
	}
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	createFields := []*descriptorpb.FieldDescriptorProto{
		field(1, "id", "id", tString),
		field(2, "password_hash", "passwordHash", tBytes),
		field(3, "address", "address", tString),
	}
	createFields = append(createFields, envelopeFields(4)...)
	createFields = append(createFields, field(8, "kdf", "kdf", tMsg, "KDFParams"))

	authFields := append(envelopeFields(1), field(5, "session_key", "sessionKey", tBytes))

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(ProtoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/multiplycharity/multiply-monorepo/internal/rpc"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("KDFParams",
				field(1, "version", "version", tInt32),
				field(2, "algorithm", "algorithm", tString),
				field(3, "iterations", "iterations", tUint32),
				field(4, "memory_kib", "memory_kib", tUint32),
				field(5, "threads", "threads", tUint32),
			),
			message("IdentityRequest", field(1, "id", "id", tString)),
			message("KDFParamsResponse", field(1, "kdf", "kdf", tMsg, "KDFParams")),
			message("ExistsResponse", field(1, "exists", "exists", tBool)),
			message("CreateAccountRequest", createFields...),
			message("CreateAccountResponse",
				field(1, "account_id", "accountId", tString),
				field(2, "session_key", "sessionKey", tBytes),
			),
			message("AuthenticateRequest",
				field(1, "id", "id", tString),
				field(2, "password_hash", "passwordHash", tBytes),
			),
			message("AuthenticateResponse", authFields...),
			message("SessionKeyResponse", field(1, "session_key", "sessionKey", tBytes)),
			message("UpdateAddressRequest", field(1, "address", "address", tString)),
			message("PingResponse", field(1, "status", "status", tString)),
			message("Empty"),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("AccountAuthority"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("KDFParams", "IdentityRequest", "KDFParamsResponse"),
				method("Exists", "IdentityRequest", "ExistsResponse"),
				method("CreateAccount", "CreateAccountRequest", "CreateAccountResponse"),
				method("Authenticate", "AuthenticateRequest", "AuthenticateResponse"),
				method("FetchSessionKey", "Empty", "SessionKeyResponse"),
				method("RotateSessionKey", "Empty", "SessionKeyResponse"),
				method("UpdateAddress", "UpdateAddressRequest", "Empty"),
				method("Logout", "Empty", "Empty"),
				method("Ping", "Empty", "PingResponse"),
			},
		}},
	}
}

// descriptorFor finds the message schema for a pointer to one of the
// message types in messages.go. Go and proto names are the same.
func descriptorFor(v any) (protoreflect.MessageDescriptor, error) {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("not a message pointer")
	}
	md := File.Messages().ByName(protoreflect.Name(t.Elem().Name()))
	if md == nil {
		return nil, fmt.Errorf("no schema for %s", t.Elem().Name())
	}
	return md, nil
}
