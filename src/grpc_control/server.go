package grpc_control

import (
	"context"
	"fmt"
	"net"

	"market-analytics/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "marketanalytics.control.v1.Control"

// ControlServer is the server API of the control service. Messages are the
// well-known protobuf types, so no generated code is needed.
type ControlServer interface {
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	InvalidateCache(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// -----------------------------------------------------------------------------

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Refresh", Handler: refreshHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "InvalidateCache", Handler: invalidateHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// -----------------------------------------------------------------------------

func refreshHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Refresh(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Refresh"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Refresh(ctx, req.(*wrapperspb.StringValue))
	})
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Status"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Status(ctx, req.(*emptypb.Empty))
	})
}

func invalidateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).InvalidateCache(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/InvalidateCache"}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).InvalidateCache(ctx, req.(*wrapperspb.StringValue))
	})
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) Refresh(ctx context.Context, dataset string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/Refresh", wrapperspb.String(dataset), out, opts...)
	return out, err
}

func (c *ControlClient) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/Status", &emptypb.Empty{}, out, opts...)
	return out, err
}

func (c *ControlClient) InvalidateCache(ctx context.Context, dataset string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/InvalidateCache", wrapperspb.String(dataset), out, opts...)
	return out, err
}

// -----------------------------------------------------------------------------
// Server lifecycle
// -----------------------------------------------------------------------------

// GRPCServer wraps grpc.Server as an IDataExchanger
type GRPCServer struct {
	Addr   string
	Logger *logger.Logger
	server *grpc.Server
}

func NewGRPCServer(host string, port int, service ControlServer, log *logger.Logger) *GRPCServer {
	s := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(log)))
	RegisterControlServer(s, service)
	return &GRPCServer{
		Addr:   fmt.Sprintf("%s:%d", host, port),
		Logger: log,
		server: s,
	}
}

// Start blocks serving until Stop
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.Addr, err)
	}
	g.Logger.Info("gRPC control server listening on %s", g.Addr)
	return g.server.Serve(lis)
}

func (g *GRPCServer) Stop() error {
	g.server.GracefulStop()
	return nil
}

// -----------------------------------------------------------------------------

func loggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warning("gRPC %s failed: %v", info.FullMethod, err)
		} else {
			log.Debug("gRPC %s ok", info.FullMethod)
		}
		return resp, err
	}
}
