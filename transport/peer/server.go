package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	serviceName = "tictactoe.peer.v1.Peer"
	callMethod  = "/" + serviceName + "/Call"
)

type caller interface {
	call(ctx context.Context, in *envelope) (*envelope, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*caller)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tictactoe/peer/v1/peer",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(envelope)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(caller).call(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(caller).call(ctx, req.(*envelope))
	}

	return interceptor(ctx, in, info, handler)
}

type handlerFunc func(ctx context.Context, payload cbor.RawMessage) (any, error)

// Server answers calls from other nodes.
type Server struct {
	logger     *slog.Logger
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server

	handlers map[string]handlerFunc
}

// NewServer listens on addr. Endpoints must be registered with Handle before Serve.
func NewServer(logger *slog.Logger, addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &Server{
		logger:     logger.With("component", "peer_server"),
		listener:   listener,
		grpcServer: grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler())),
		health:     health.NewServer(),
		handlers:   make(map[string]handlerFunc),
	}

	server.grpcServer.RegisterService(&serviceDesc, server)
	grpc_health_v1.RegisterHealthServer(server.grpcServer, server.health)
	server.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	server.health.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return server, nil
}

// Handle binds endpoint to fn, decoding the request payload into Req.
func Handle[Req, Resp any](server *Server, endpoint string, fn func(ctx context.Context, request Req) (Resp, error)) {
	server.handlers[endpoint] = func(ctx context.Context, payload cbor.RawMessage) (any, error) {
		var request Req
		if err := unmarshal(payload, &request); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}

		return fn(ctx, request)
	}
}

func (that *Server) Addr() string {
	return that.listener.Addr().String()
}

func (that *Server) call(ctx context.Context, in *envelope) (*envelope, error) {
	log := that.logger.With("method", "call", "endpoint", in.Endpoint)

	handler, ok := that.handlers[in.Endpoint]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown endpoint %q", in.Endpoint)
	}

	out, err := handler(ctx, in.Payload)
	if err != nil {
		log.Debug("peer call failed", "error", err)

		if _, isStatus := status.FromError(err); isStatus {
			return nil, err
		}

		return nil, toStatus(err)
	}

	payload, err := marshal(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return &envelope{Endpoint: in.Endpoint, Payload: payload}, nil
}

// Serve runs the gRPC server until ctx is done.
func (that *Server) Serve(ctx context.Context) error {
	that.logger.Info("peer server listening", "addr", that.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- that.grpcServer.Serve(that.listener)
	}()

	select {
	case <-ctx.Done():
		that.health.Shutdown()
		that.grpcServer.GracefulStop()

		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}

		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}

		return fmt.Errorf("serve gRPC: %w", err)
	}
}
