package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "opschat.v1.Console"

// ConsoleServer is the control and read API a daemon exposes to the ctl
// and the tui. Messages are protobuf well-known types carrying the JSON
// views defined in this package.
type ConsoleServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListChats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetUnread(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	OpenChat(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	CloseChat(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SetPageActive(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	InjectMessage(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetTranscript(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetTyping(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Keystroke(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	MessageSent(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	WatchEvents(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Res proto.Message](name string, newReq func() Req, call func(ConsoleServer, context.Context, Req) (Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConsoleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConsoleServer), ctx, req.(Req))
			})
		},
	}
}

func newEmpty() *emptypb.Empty           { return &emptypb.Empty{} }
func newString() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }
func newBool() *wrapperspb.BoolValue     { return &wrapperspb.BoolValue{} }
func newStruct() *structpb.Struct        { return &structpb.Struct{} }

// ServiceDesc describes the Console service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsoleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", newEmpty, ConsoleServer.GetStatus),
		unary("ListChats", newEmpty, ConsoleServer.ListChats),
		unary("GetUnread", newString, ConsoleServer.GetUnread),
		unary("OpenChat", newString, ConsoleServer.OpenChat),
		unary("CloseChat", newEmpty, ConsoleServer.CloseChat),
		unary("SetPageActive", newBool, ConsoleServer.SetPageActive),
		unary("InjectMessage", newStruct, ConsoleServer.InjectMessage),
		unary("GetTranscript", newEmpty, ConsoleServer.GetTranscript),
		unary("GetTyping", newString, ConsoleServer.GetTyping),
		unary("Keystroke", newString, ConsoleServer.Keystroke),
		unary("MessageSent", newString, ConsoleServer.MessageSent),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := newString()
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ConsoleServer).WatchEvents(in, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
			},
		},
	},
	Metadata: "opschat/v1/console.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv ConsoleServer) {
	s.RegisterService(&ServiceDesc, srv)
}
