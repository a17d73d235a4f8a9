package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "hemrs.TelemetryService"

// TelemetryServiceServer is the server side of hemrs.TelemetryService.
// Messages travel as google.protobuf.Struct so no generated code is needed.
type TelemetryServiceServer interface {
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Persist(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LatestMeasurement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// TelemetryServiceClient is the client side of hemrs.TelemetryService.
type TelemetryServiceClient interface {
	Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Persist(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LatestMeasurement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Stats(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type telemetryServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTelemetryServiceClient creates a client bound to cc.
func NewTelemetryServiceClient(cc grpc.ClientConnInterface) TelemetryServiceClient {
	return &telemetryServiceClient{cc: cc}
}

func (c *telemetryServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *telemetryServiceClient) Ingest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Ingest", in, opts...)
}

func (c *telemetryServiceClient) Persist(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Persist", in, opts...)
}

func (c *telemetryServiceClient) LatestMeasurement(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "LatestMeasurement", in, opts...)
}

func (c *telemetryServiceClient) Stats(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Stats", in, opts...)
}

// RegisterTelemetryServiceServer registers srv with the provided registrar.
func RegisterTelemetryServiceServer(s grpc.ServiceRegistrar, srv TelemetryServiceServer) {
	s.RegisterService(&TelemetryService_ServiceDesc, srv)
}

// TelemetryService_ServiceDesc describes hemrs.TelemetryService for the gRPC server.
var TelemetryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TelemetryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: unaryHandler("Ingest", TelemetryServiceServer.Ingest)},
		{MethodName: "Persist", Handler: unaryHandler("Persist", TelemetryServiceServer.Persist)},
		{MethodName: "LatestMeasurement", Handler: unaryHandler("LatestMeasurement", TelemetryServiceServer.LatestMeasurement)},
		{MethodName: "Stats", Handler: unaryHandler("Stats", TelemetryServiceServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hemrs/telemetry.proto",
}

type unaryMethod func(TelemetryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// methodHandler matches grpc.MethodDesc.Handler.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unaryHandler(name string, call unaryMethod) methodHandler {
	fullMethod := "/" + serviceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TelemetryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(TelemetryServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
