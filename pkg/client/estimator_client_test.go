package client

import (
	"context"
	"math"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/rpc"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/stats"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/wire"
)

func startServer(t *testing.T) *EstimatorClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := rpc.NewServer(rpc.NewService(analysis.DefaultFitOptions()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewEstimatorClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("NewEstimatorClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// ouRequest 两条腿的对数价差服从 mu=0.2 的离散 OU
func ouRequest(n int) wire.FitRequest {
	s := stats.NewAR1FromOU(0.2, 0.1, 0.01, 0.1).Generate(n, 7)
	req := wire.FitRequest{A: "AAA", B: "BBB"}
	t0 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range s {
		b := 50 * math.Exp(0.001*float64(i))
		req.Times = append(req.Times, t0.AddDate(0, 0, i))
		req.PricesA = append(req.PricesA, b*math.Exp(v))
		req.PricesB = append(req.PricesB, b)
	}
	return req
}

func TestEstimatorClient_Fit(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fit, err := c.Fit(ctx, ouRequest(400))
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if fit.Params.Mu < 0.1 || fit.Params.Mu > 0.3 {
		t.Errorf("Mu = %v, want near 0.2", fit.Params.Mu)
	}
	if math.Abs(fit.Params.Theta-0.1) > 0.01 {
		t.Errorf("Theta = %v, want near 0.1", fit.Params.Theta)
	}
	if fit.Params.Pairs != 399 || !fit.Params.MeanReverting {
		t.Errorf("Pairs/MeanReverting = %d/%v", fit.Params.Pairs, fit.Params.MeanReverting)
	}
	if fit.Model == nil {
		t.Fatal("expected continuous model")
	}
	if fit.Window.Name != "request" {
		t.Errorf("Window.Name = %s", fit.Window.Name)
	}
}

func TestEstimatorClient_FitErrors(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	negative := ouRequest(50)
	negative.PricesB[3] = -1

	constant := ouRequest(50)
	for i := range constant.PricesA {
		constant.PricesA[i], constant.PricesB[i] = 50, 50
	}

	mismatched := ouRequest(10)
	mismatched.PricesA = mismatched.PricesA[:5]

	tests := []struct {
		name string
		req  wire.FitRequest
		want codes.Code
	}{
		{"Negative price", negative, codes.InvalidArgument},
		{"Constant spread", constant, codes.FailedPrecondition},
		{"Length mismatch", mismatched, codes.InvalidArgument},
		{"Too short", ouRequest(1), codes.FailedPrecondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Fit(ctx, tt.req)
			if got := status.Code(err); got != tt.want {
				t.Errorf("status = %v (%v), want %v", got, err, tt.want)
			}
		})
	}
}

func TestEstimatorClient_Healthy(t *testing.T) {
	c := startServer(t)
	ok, err := c.Healthy(context.Background())
	if err != nil {
		t.Fatalf("Healthy() error = %v", err)
	}
	if !ok {
		t.Error("expected SERVING")
	}
}
