// Package proto describes the two gRPC services the bulletin server
// exposes. Both carry a single unary Call method whose request is a
// structpb.Struct envelope (see Request) and whose reply is a
// structpb.ListValue holding a result code followed by values.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	BulletinService_Call_FullMethodName  = "/bulletin.v1.BulletinService/Call"
	MirroringService_Call_FullMethodName = "/bulletin.v1.MirroringService/Call"
)

// CommandServiceClient is the client API shared by both services.
type CommandServiceClient interface {
	Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
}

type commandServiceClient struct {
	cc     grpc.ClientConnInterface
	method string
}

func NewBulletinServiceClient(cc grpc.ClientConnInterface) CommandServiceClient {
	return &commandServiceClient{cc: cc, method: BulletinService_Call_FullMethodName}
}

func NewMirroringServiceClient(cc grpc.ClientConnInterface) CommandServiceClient {
	return &commandServiceClient{cc: cc, method: MirroringService_Call_FullMethodName}
}

func (c *commandServiceClient) Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, c.method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CommandServiceServer is the server API shared by both services.
type CommandServiceServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.ListValue, error)
}

// UnimplementedCommandServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedCommandServiceServer struct{}

func (UnimplementedCommandServiceServer) Call(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Call not implemented")
}

func RegisterBulletinServiceServer(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&BulletinService_ServiceDesc, srv)
}

func RegisterMirroringServiceServer(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&MirroringService_ServiceDesc, srv)
}

func callHandler(fullMethod string) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return srv.(CommandServiceServer).Call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.(CommandServiceServer).Call(ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BulletinService_ServiceDesc serves clients uploading and retrieving
// bulletins.
var BulletinService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bulletin.v1.BulletinService",
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    callHandler(BulletinService_Call_FullMethodName),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bulletin/v1/bulletin.proto",
}

// MirroringService_ServiceDesc serves peer servers pulling sealed
// bulletins.
var MirroringService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bulletin.v1.MirroringService",
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler:    callHandler(MirroringService_Call_FullMethodName),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bulletin/v1/bulletin.proto",
}
