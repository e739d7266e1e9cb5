package wire

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names of the parley.v1.Gateway service.
const (
	ServiceName                        = "parley.v1.Gateway"
	Gateway_Connect_FullMethodName     = "/parley.v1.Gateway/Connect"
	Gateway_GetStatus_FullMethodName   = "/parley.v1.Gateway/GetStatus"
	Gateway_History_FullMethodName     = "/parley.v1.Gateway/History"
	Gateway_Presence_FullMethodName    = "/parley.v1.Gateway/Presence"
	Gateway_WatchEvents_FullMethodName = "/parley.v1.Gateway/WatchEvents"
)

// GatewayServer is the server API for the Gateway service.
type GatewayServer interface {
	// Connect is a session: the client sends operations, the daemon sends
	// events. Authentication comes from call metadata.
	Connect(grpc.BidiStreamingServer[ClientFrame, ServerFrame]) error
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Presence(context.Context, *PresenceRequest) (*PresenceResponse, error)
	WatchEvents(*WatchRequest, grpc.ServerStreamingServer[EventEnvelope]) error
}

// RegisterGatewayServer registers srv with s.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&Gateway_ServiceDesc, srv)
}

func _Gateway_GetStatus_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Gateway_GetStatus_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServer).GetStatus(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_History_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).History(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Gateway_History_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServer).History(ctx, req.(*HistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_Presence_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PresenceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GatewayServer).Presence(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Gateway_Presence_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GatewayServer).Presence(ctx, req.(*PresenceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Gateway_Connect_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(GatewayServer).Connect(&grpc.GenericServerStream[ClientFrame, ServerFrame]{ServerStream: stream})
}

func _Gateway_WatchEvents_Handler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GatewayServer).WatchEvents(in, &grpc.GenericServerStream[WatchRequest, EventEnvelope]{ServerStream: stream})
}

// Gateway_ServiceDesc describes the Gateway service for grpc.Server.
var Gateway_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Gateway_GetStatus_Handler},
		{MethodName: "History", Handler: _Gateway_History_Handler},
		{MethodName: "Presence", Handler: _Gateway_Presence_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _Gateway_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "WatchEvents",
			Handler:       _Gateway_WatchEvents_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "parley/v1/gateway",
}

// GatewayClient is the client API for the Gateway service. Every call uses
// the JSON codec.
type GatewayClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientFrame, ServerFrame], error)
	GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error)
	Presence(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error)
	WatchEvents(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[EventEnvelope], error)
}

type gatewayClient struct {
	cc grpc.ClientConnInterface
}

// NewGatewayClient creates a client over cc.
func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient {
	return &gatewayClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *gatewayClient) Connect(ctx context.Context, opts ...grpc.CallOption) (grpc.BidiStreamingClient[ClientFrame, ServerFrame], error) {
	stream, err := c.cc.NewStream(ctx, &Gateway_ServiceDesc.Streams[0], Gateway_Connect_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[ClientFrame, ServerFrame]{ClientStream: stream}, nil
}

func (c *gatewayClient) GetStatus(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, Gateway_GetStatus_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	out := new(HistoryResponse)
	if err := c.cc.Invoke(ctx, Gateway_History_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) Presence(ctx context.Context, in *PresenceRequest, opts ...grpc.CallOption) (*PresenceResponse, error) {
	out := new(PresenceResponse)
	if err := c.cc.Invoke(ctx, Gateway_Presence_FullMethodName, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *gatewayClient) WatchEvents(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[EventEnvelope], error) {
	stream, err := c.cc.NewStream(ctx, &Gateway_ServiceDesc.Streams[1], Gateway_WatchEvents_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchRequest, EventEnvelope]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
