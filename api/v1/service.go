package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// The fully-qualified name of the primality service.
	ServiceName = "dhprime.v1.PrimalityService"
	// Full method names, as used by interceptors and stats handlers.
	IsPrimeFullMethodName = "/" + ServiceName + "/IsPrime"
	JacobiFullMethodName  = "/" + ServiceName + "/Jacobi"
)

// PrimalityServiceServer is the server API for PrimalityService.
type PrimalityServiceServer interface {
	// Decide whether the candidate in the request is probably prime.
	IsPrime(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Compute the Jacobi symbol (a/n) for the values in the request.
	Jacobi(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedPrimalityServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedPrimalityServiceServer struct{}

func (UnimplementedPrimalityServiceServer) IsPrime(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("IsPrime")
}

func (UnimplementedPrimalityServiceServer) Jacobi(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, errUnimplemented("Jacobi")
}

// PrimalityServiceClient is the client API for PrimalityService.
type PrimalityServiceClient interface {
	IsPrime(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Jacobi(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type primalityServiceClient struct {
	cc grpc.ClientConnInterface
}

// Returns a PrimalityServiceClient that issues calls over cc.
func NewPrimalityServiceClient(cc grpc.ClientConnInterface) PrimalityServiceClient {
	return &primalityServiceClient{cc}
}

func (c *primalityServiceClient) IsPrime(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IsPrimeFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *primalityServiceClient) Jacobi(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, JacobiFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Registers srv with the gRPC service registrar s.
func RegisterPrimalityServiceServer(s grpc.ServiceRegistrar, srv PrimalityServiceServer) {
	s.RegisterService(&PrimalityServiceDesc, srv)
}

func isPrimeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrimalityServiceServer).IsPrime(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: IsPrimeFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrimalityServiceServer).IsPrime(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func jacobiHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrimalityServiceServer).Jacobi(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: JacobiFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrimalityServiceServer).Jacobi(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PrimalityServiceDesc is the grpc.ServiceDesc for PrimalityService.
var PrimalityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PrimalityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IsPrime",
			Handler:    isPrimeHandler,
		},
		{
			MethodName: "Jacobi",
			Handler:    jacobiHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dhprime/v1/primality.proto",
}
