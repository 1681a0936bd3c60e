package noble

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"cctp-forwarder/go-backend/internal/domains/contracts"
)

const (
	forwardingQueryService = "noble.forwarding.v1.Query"
	authQueryService       = "cosmos.auth.v1beta1.Query"
	txService              = "cosmos.tx.v1beta1.Service"
	baseAccountTypeURL     = "/cosmos.auth.v1beta1.BaseAccount"
)

// Method is a unary RPC resolved from a descriptor.
type Method struct {
	Path   string
	Input  protoreflect.MessageDescriptor
	Output protoreflect.MessageDescriptor
}

// Schema holds every remote method the adapter invokes. Messages are built
// with dynamicpb, so no generated code is required.
type Schema struct {
	Address     Method
	Account     Method
	BroadcastTx Method
	BaseAccount protoreflect.MessageDescriptor
}

// LoadSchema returns the built-in schema, with the forwarding query taken
// from a serialized FileDescriptorSet when path is set.
func LoadSchema(path string) (*Schema, error) {
	schema, err := DefaultSchema()
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return schema, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, contracts.ConfigError("read schema %s: %v", path, err)
	}
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(raw, &set); err != nil {
		return nil, contracts.ConfigError("decode schema %s: %v", path, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, contracts.ConfigError("resolve schema %s: %v", path, err)
	}
	address, err := resolveMethod(files, forwardingQueryService, "Address")
	if err != nil {
		return nil, contracts.ConfigError("schema %s: %v", path, err)
	}
	if err := checkAddressMethod(address); err != nil {
		return nil, contracts.ConfigError("schema %s: %v", path, err)
	}
	schema.Address = address
	return schema, nil
}

func DefaultSchema() (*Schema, error) {
	files := new(protoregistry.Files)
	for _, fdp := range []*descriptorpb.FileDescriptorProto{forwardingFile(), authFile(), txFile()} {
		fd, err := protodesc.NewFile(fdp, files)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", fdp.GetName(), err)
		}
		if err := files.RegisterFile(fd); err != nil {
			return nil, err
		}
	}
	address, err := resolveMethod(files, forwardingQueryService, "Address")
	if err != nil {
		return nil, err
	}
	account, err := resolveMethod(files, authQueryService, "Account")
	if err != nil {
		return nil, err
	}
	broadcast, err := resolveMethod(files, txService, "BroadcastTx")
	if err != nil {
		return nil, err
	}
	desc, err := files.FindDescriptorByName("cosmos.auth.v1beta1.BaseAccount")
	if err != nil {
		return nil, err
	}
	return &Schema{
		Address:     address,
		Account:     account,
		BroadcastTx: broadcast,
		BaseAccount: desc.(protoreflect.MessageDescriptor),
	}, nil
}

func resolveMethod(files *protoregistry.Files, service string, name protoreflect.Name) (Method, error) {
	desc, err := files.FindDescriptorByName(protoreflect.FullName(service))
	if err != nil {
		return Method{}, fmt.Errorf("service %s: %w", service, err)
	}
	sd, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		return Method{}, fmt.Errorf("%s is not a service", service)
	}
	md := sd.Methods().ByName(name)
	if md == nil {
		return Method{}, fmt.Errorf("service %s has no method %s", service, name)
	}
	if md.IsStreamingClient() || md.IsStreamingServer() {
		return Method{}, fmt.Errorf("method %s.%s must be unary", service, name)
	}
	return Method{
		Path:   "/" + service + "/" + string(name),
		Input:  md.Input(),
		Output: md.Output(),
	}, nil
}

func checkAddressMethod(m Method) error {
	for _, f := range []struct {
		msg  protoreflect.MessageDescriptor
		name protoreflect.Name
		kind protoreflect.Kind
	}{
		{m.Input, "channel", protoreflect.StringKind},
		{m.Input, "recipient", protoreflect.StringKind},
		{m.Input, "fallback", protoreflect.StringKind},
		{m.Output, "address", protoreflect.StringKind},
		{m.Output, "exists", protoreflect.BoolKind},
	} {
		fd := f.msg.Fields().ByName(f.name)
		if fd == nil {
			return fmt.Errorf("%s lacks field %s", f.msg.FullName(), f.name)
		}
		if fd.Kind() != f.kind || fd.Cardinality() == protoreflect.Repeated {
			return fmt.Errorf("%s.%s must be a singular %s", f.msg.FullName(), f.name, f.kind)
		}
	}
	return nil
}

func forwardingFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("noble/forwarding/v1/query.proto"),
		Package: proto.String("noble.forwarding.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("QueryAddress",
				field("channel", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("recipient", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("fallback", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
			),
			message("QueryAddressResponse",
				field("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("exists", 2, descriptorpb.FieldDescriptorProto_TYPE_BOOL, ""),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service("Query", rpc("Address", ".noble.forwarding.v1.QueryAddress", ".noble.forwarding.v1.QueryAddressResponse")),
		},
	}
}

func authFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("cosmos/auth/v1beta1/query.proto"),
		Package: proto.String("cosmos.auth.v1beta1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("QueryAccountRequest",
				field("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
			),
			// account is a google.protobuf.Any on the wire; it is kept as raw
			// bytes and unpacked with anypb.
			message("QueryAccountResponse",
				field("account", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES, ""),
			),
			message("BaseAccount",
				field("address", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("pub_key", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES, ""),
				field("account_number", 3, descriptorpb.FieldDescriptorProto_TYPE_UINT64, ""),
				field("sequence", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT64, ""),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service("Query", rpc("Account", ".cosmos.auth.v1beta1.QueryAccountRequest", ".cosmos.auth.v1beta1.QueryAccountResponse")),
		},
	}
}

func txFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("cosmos/tx/v1beta1/service.proto"),
		Package: proto.String("cosmos.tx.v1beta1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			message("BroadcastTxRequest",
				field("tx_bytes", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES, ""),
				field("mode", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32, ""),
			),
			message("TxResponse",
				field("height", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64, ""),
				field("txhash", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("codespace", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("code", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT32, ""),
				field("data", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("raw_log", 6, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
			),
			message("BroadcastTxResponse",
				field("tx_response", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".cosmos.tx.v1beta1.TxResponse"),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			service("Service", rpc("BroadcastTx", ".cosmos.tx.v1beta1.BroadcastTxRequest", ".cosmos.tx.v1beta1.BroadcastTxResponse")),
		},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if typeName != "" {
		fd.TypeName = proto.String(typeName)
	}
	return fd
}

func service(name string, methods ...*descriptorpb.MethodDescriptorProto) *descriptorpb.ServiceDescriptorProto {
	return &descriptorpb.ServiceDescriptorProto{Name: proto.String(name), Method: methods}
}

func rpc(name, input, output string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(input),
		OutputType: proto.String(output),
	}
}
