package evaluator

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region names
const serviceName = "detsweep.evaluator.v1.EvaluatorService"

const (
	methodCapabilities       = "Capabilities"
	methodInitProcessGroup   = "InitProcessGroup"
	methodSynchronize        = "Synchronize"
	methodBuildModel         = "BuildModel"
	methodInitMixedPrecision = "InitMixedPrecision"
	methodLoadCheckpoint     = "LoadCheckpoint"
	methodMakeDataLoaders    = "MakeDataLoaders"
	methodInference          = "Inference"
)

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// #endregion names

// #region client-interface
// ServiceClient is the wire-level client of the evaluator service.
// Every message is a google.protobuf.Struct so the Python side needs no generated stubs.
type ServiceClient interface {
	Capabilities(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	InitProcessGroup(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Synchronize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	BuildModel(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	InitMixedPrecision(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LoadCheckpoint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	MakeDataLoaders(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Inference(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type serviceClient struct {
	cc grpc.ClientConnInterface
}

// NewServiceClient binds a ServiceClient to a connection.
func NewServiceClient(cc grpc.ClientConnInterface) ServiceClient {
	return &serviceClient{cc: cc}
}

func (c *serviceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *serviceClient) Capabilities(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCapabilities, in, opts)
}

func (c *serviceClient) InitProcessGroup(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodInitProcessGroup, in, opts)
}

func (c *serviceClient) Synchronize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodSynchronize, in, opts)
}

func (c *serviceClient) BuildModel(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodBuildModel, in, opts)
}

func (c *serviceClient) InitMixedPrecision(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodInitMixedPrecision, in, opts)
}

func (c *serviceClient) LoadCheckpoint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodLoadCheckpoint, in, opts)
}

func (c *serviceClient) MakeDataLoaders(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodMakeDataLoaders, in, opts)
}

func (c *serviceClient) Inference(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodInference, in, opts)
}

// #endregion client-interface

// #region server-interface
// ServiceServer is implemented by an evaluator backend.
type ServiceServer interface {
	Capabilities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitProcessGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Synchronize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BuildModel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InitMixedPrecision(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MakeDataLoaders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Inference(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedServiceServer answers every RPC with codes.Unimplemented.
// Embed it to implement a subset.
type UnimplementedServiceServer struct{}

func (UnimplementedServiceServer) Capabilities(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Capabilities not implemented")
}

func (UnimplementedServiceServer) InitProcessGroup(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method InitProcessGroup not implemented")
}

func (UnimplementedServiceServer) Synchronize(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Synchronize not implemented")
}

func (UnimplementedServiceServer) BuildModel(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method BuildModel not implemented")
}

func (UnimplementedServiceServer) InitMixedPrecision(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method InitMixedPrecision not implemented")
}

func (UnimplementedServiceServer) LoadCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method LoadCheckpoint not implemented")
}

func (UnimplementedServiceServer) MakeDataLoaders(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method MakeDataLoaders not implemented")
}

func (UnimplementedServiceServer) Inference(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Inference not implemented")
}

// RegisterServiceServer attaches srv to a gRPC server.
func RegisterServiceServer(s grpc.ServiceRegistrar, srv ServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

type serverCall func(ServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call serverCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodCapabilities, Handler: unaryHandler(methodCapabilities, ServiceServer.Capabilities)},
		{MethodName: methodInitProcessGroup, Handler: unaryHandler(methodInitProcessGroup, ServiceServer.InitProcessGroup)},
		{MethodName: methodSynchronize, Handler: unaryHandler(methodSynchronize, ServiceServer.Synchronize)},
		{MethodName: methodBuildModel, Handler: unaryHandler(methodBuildModel, ServiceServer.BuildModel)},
		{MethodName: methodInitMixedPrecision, Handler: unaryHandler(methodInitMixedPrecision, ServiceServer.InitMixedPrecision)},
		{MethodName: methodLoadCheckpoint, Handler: unaryHandler(methodLoadCheckpoint, ServiceServer.LoadCheckpoint)},
		{MethodName: methodMakeDataLoaders, Handler: unaryHandler(methodMakeDataLoaders, ServiceServer.MakeDataLoaders)},
		{MethodName: methodInference, Handler: unaryHandler(methodInference, ServiceServer.Inference)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "detsweep/evaluator/v1/evaluator.proto",
}

// #endregion server-interface
