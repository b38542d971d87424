package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CheckFunc answers an AuthUser call.
type CheckFunc func(ctx context.Context, c Credentials) (bool, error)

// RegisterAuthServer serves the AuthUser call at method (DefaultMethod when empty) on s using
// check. Used for local stubs and tests.
func RegisterAuthServer(s *grpc.Server, method string, check CheckFunc) error {
	if method == "" {
		method = DefaultMethod
	}
	serviceName, methodName, err := splitMethod(method)
	if err != nil {
		return err
	}
	if err := loadDescriptors(); err != nil {
		return err
	}
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: methodName,
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := dynamicpb.NewMessage(creditsDesc)
				if err := dec(in); err != nil {
					return nil, err
				}
				handle := func(ctx context.Context, req interface{}) (interface{}, error) {
					ok, err := check(ctx, credentialsFromMessage(req.(*dynamicpb.Message)))
					if err != nil {
						return nil, err
					}
					return wrapperspb.Bool(ok), nil
				}
				if interceptor == nil {
					return handle(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
				return interceptor(ctx, in, info, handle)
			},
		}},
		Metadata: "auth.proto",
	}, struct{}{})
	return nil
}
