package auth

import (
	"fmt"
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Wire contract of the auth service, mirrored in api/proto/auth.proto.
const (
	protoPackage = "ru.pobopo.weather.grpc"

	// DefaultMethod is the full gRPC method path of AuthUser on the auth service.
	DefaultMethod = "/" + protoPackage + ".AuthService/AuthUser"
)

var (
	descOnce      sync.Once
	descErr       error
	creditsDesc   protoreflect.MessageDescriptor
	loginField    protoreflect.FieldDescriptor
	passwordField protoreflect.FieldDescriptor
)

// loadDescriptors resolves the Credits message once. wrappers.proto is linked in through
// wrapperspb, so the import resolves from the global registry.
func loadDescriptors() error {
	descOnce.Do(func() {
		_ = wrapperspb.Bool(false)
		fd, err := protodesc.NewFile(authFileDescriptor(), protoregistry.GlobalFiles)
		if err != nil {
			descErr = fmt.Errorf("build auth descriptor: %w", err)
			return
		}
		creditsDesc = fd.Messages().ByName("Credits")
		loginField = creditsDesc.Fields().ByName("login")
		passwordField = creditsDesc.Fields().ByName("password")
	})
	return descErr
}

func authFileDescriptor() *descriptorpb.FileDescriptorProto {
	stringField := func(name string, number int32) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(number),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("auth.proto"),
		Package:    proto.String(protoPackage),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/wrappers.proto"},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name:  proto.String("Credits"),
			Field: []*descriptorpb.FieldDescriptorProto{stringField("login", 1), stringField("password", 2)},
		}},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("AuthService"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("AuthUser"),
				InputType:  proto.String("." + protoPackage + ".Credits"),
				OutputType: proto.String(".google.protobuf.BoolValue"),
			}},
		}},
	}
}

// splitMethod splits "/pkg.Service/Method" into its service and method names.
func splitMethod(full string) (service, method string, err error) {
	service, method, ok := strings.Cut(strings.TrimPrefix(full, "/"), "/")
	if !strings.HasPrefix(full, "/") || !ok || service == "" || method == "" || strings.Contains(method, "/") {
		return "", "", fmt.Errorf("invalid gRPC method %q: want /package.Service/Method", full)
	}
	return service, method, nil
}

// newCreditsMessage builds the AuthUser request.
func newCreditsMessage(c Credentials) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(creditsDesc)
	msg.Set(loginField, protoreflect.ValueOfString(c.Login))
	msg.Set(passwordField, protoreflect.ValueOfString(c.Password))
	return msg
}

func credentialsFromMessage(msg *dynamicpb.Message) Credentials {
	return Credentials{
		Login:    msg.Get(loginField).String(),
		Password: msg.Get(passwordField).String(),
	}
}
