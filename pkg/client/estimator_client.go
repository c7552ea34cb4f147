// Package client dials the Estimator gRPC service
package client

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/rpc"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/wire"
)

// EstimatorClient gRPC 估计服务客户端
type EstimatorClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewEstimatorClient 创建客户端，extra 追加在默认的 insecure 凭证之后
func NewEstimatorClient(addr string, extra ...grpc.DialOption) (*EstimatorClient, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to estimator: %w", err)
	}

	log.Printf("[EstimatorClient] Using estimator at %s", addr)
	return &EstimatorClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close 关闭连接
func (c *EstimatorClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Fit 发送两条腿的价格，返回拟合结果
// 服务端错误以 gRPC status 返回，可用 status.Code(err) 区分
func (c *EstimatorClient) Fit(ctx context.Context, req wire.FitRequest) (*analysis.Fit, error) {
	in, err := wire.EncodeFitRequest(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, rpc.FitMethod, in, out); err != nil {
		return nil, fmt.Errorf("fit %s/%s: %w", req.A, req.B, err)
	}

	return wire.DecodeFit(out)
}

// Healthy 查询 Estimator 服务的健康状态
func (c *EstimatorClient) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
