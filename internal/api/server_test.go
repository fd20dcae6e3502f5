package api

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/alert-triage/internal/config"
)

type echoServer struct {
	calls int
}

func (e *echoServer) ScoreAlerts(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	e.calls++
	return structpb.NewStruct(map[string]any{"echo": len(req.GetFields())})
}

func startBufServer(t *testing.T, service ScoringServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServerWithListener(config.ServerConfig{GracefulTimeout: time.Second}, lis, service)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerRoutesScoreAlerts(t *testing.T) {
	service := &echoServer{}
	conn := startBufServer(t, service)

	req, _ := structpb.NewStruct(map[string]any{"config": map[string]any{}, "alerts": []any{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := NewClient(conn).ScoreAlerts(ctx, req)
	if err != nil {
		t.Fatalf("score alerts: %v", err)
	}
	if resp.Fields["echo"].GetNumberValue() != 2 || service.calls != 1 {
		t.Fatalf("unexpected response %v (calls=%d)", resp, service.calls)
	}
}

func TestServerHealth(t *testing.T) {
	conn := startBufServer(t, &echoServer{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestNewServerListenError(t *testing.T) {
	if _, err := NewServer(config.ServerConfig{Address: "bad-address"}, &echoServer{}); err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestServerGracefulTimeout(t *testing.T) {
	srv := NewServerWithListener(config.ServerConfig{GracefulTimeout: 3 * time.Second}, bufconn.Listen(1024), &echoServer{})
	if srv.GracefulTimeout() != 3*time.Second {
		t.Fatalf("expected configured graceful timeout, got %v", srv.GracefulTimeout())
	}
}
