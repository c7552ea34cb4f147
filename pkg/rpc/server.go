package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/wire"
)

// Service 实现 EstimatorServer：两条腿的价格 → spread → 拟合
type Service struct {
	opts analysis.FitOptions

	requests atomic.Int64
	failures atomic.Int64
}

// NewService creates the Estimator service with default fit options
func NewService(opts analysis.FitOptions) *Service {
	return &Service{opts: opts}
}

// Fit implements EstimatorServer
func (s *Service) Fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.requests.Add(1)

	resp, err := s.fit(ctx, req)
	if err != nil {
		s.failures.Add(1)
		log.Printf("[RPC] Fit failed: %v", err)
		return nil, toStatus(err)
	}
	return resp, nil
}

func (s *Service) fit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fr, err := wire.DecodeFitRequest(req)
	if err != nil {
		return nil, err
	}
	a, b, err := fr.Series()
	if err != nil {
		return nil, err
	}

	opts := s.opts
	if fr.PeriodsPerYear > 0 {
		opts.Dt = 1 / fr.PeriodsPerYear
	}
	if fr.Costs != nil {
		opts.Costs = *fr.Costs
	}

	sp, err := spread.Build(a, b)
	if err != nil {
		return nil, err
	}

	window := analysis.Window{Name: "request"}
	if pts := sp.Points(); len(pts) > 0 {
		window.Start, window.End = pts[0].Time, pts[len(pts)-1].Time
	}

	fit, err := analysis.FitSpread(sp, window, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("[RPC] Fit %s: %d points, mu=%.4f", sp.Name(), sp.Len(), fit.Params.Mu)

	return wire.EncodeFit(fit)
}

// Stats returns request and failure counts
func (s *Service) Stats() (requests, failures int64) {
	return s.requests.Load(), s.failures.Load()
}

// toStatus 把领域错误映射为 gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, wire.ErrMalformed),
		errors.Is(err, spread.ErrInvalidInput),
		errors.Is(err, ou.ErrInvalidParameter):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, spread.ErrInsufficientData),
		errors.Is(err, ou.ErrDegenerateFit):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Server gRPC 服务器：Estimator + 标准健康检查
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// NewServer registers svc and the health service
func NewServer(svc EstimatorServer, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	RegisterEstimatorServer(gs, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{grpcServer: gs, health: hs}
}

// Listen binds addr and serves in the background
func (s *Server) Listen(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go s.Serve(lis)
	return lis.Addr(), nil
}

// Serve blocks serving lis
func (s *Server) Serve(lis net.Listener) {
	log.Printf("[RPC] gRPC server listening on %s", lis.Addr())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		log.Printf("[RPC] gRPC server error: %v", err)
	}
}

// Stop marks the service NOT_SERVING and stops gracefully
func (s *Server) Stop() {
	log.Println("[RPC] Stopping gRPC server...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	log.Println("[RPC] gRPC server stopped")
}
