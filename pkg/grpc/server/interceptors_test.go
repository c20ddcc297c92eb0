package server

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor(t *testing.T) {
	logger := zaptest.NewLogger(t)

	interceptor := LoggingInterceptor(logger)

	successHandler := func(ctx context.Context, req any) (any, error) {
		return "success", nil
	}

	errorHandler := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "test error")
	}

	info := &grpc.UnaryServerInfo{
		FullMethod: "/sentiment.v1.Dashboard/GetSnapshot",
	}

	t.Run("successful request", func(t *testing.T) {
		resp, err := interceptor(context.Background(), "test request", info, successHandler)
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if resp != "success" {
			t.Errorf("Expected 'success', got %v", resp)
		}
	})

	t.Run("error request", func(t *testing.T) {
		_, err := interceptor(context.Background(), "test request", info, errorHandler)
		if err == nil {
			t.Error("Expected an error, got nil")
		}

		st, ok := status.FromError(err)
		if !ok {
			t.Error("Expected gRPC status error")
		}
		if st.Code() != codes.InvalidArgument {
			t.Errorf("Expected InvalidArgument, got %v", st.Code())
		}
	})
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/sentiment.v1.Dashboard/GetSnapshot"}

	t.Run("panic becomes Internal", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			panic("snapshot encoder exploded")
		})
		if resp != nil {
			t.Errorf("Expected nil response, got %v", resp)
		}
		if status.Code(err) != codes.Internal {
			t.Errorf("Expected Internal, got %v", status.Code(err))
		}
	})

	t.Run("normal calls pass through", func(t *testing.T) {
		resp, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			return "ok", nil
		})
		if err != nil || resp != "ok" {
			t.Errorf("Expected ok, got %v, %v", resp, err)
		}
	})
}

func TestNew_RejectsInvalidPort(t *testing.T) {
	if _, err := New(WithPort(70000)); err == nil {
		t.Error("Expected an error for port 70000")
	}
}

func TestServerBuilderWithLogging(t *testing.T) {
	logger := zaptest.NewLogger(t)

	server, err := New(
		WithPort(0),
		WithLogger(logger),
		WithLogging(true),
		WithRecovery(true),
	)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			t.Logf("Server shutdown error: %v", err)
		}
	}()

	if server.grpcServer == nil {
		t.Error("gRPC server should not be nil")
	}
	if server.healthServer == nil {
		t.Error("Health server should not be nil")
	}

	server.RegisterServiceWithHealth("sentiment.v1.Dashboard", func(s *grpc.Server) {})
	server.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(server.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	defer conn.Close()

	healthClient := healthpb.NewHealthClient(conn)
	for _, svc := range []string{"", "sentiment.v1.Dashboard"} {
		resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: svc}, grpc.WaitForReady(true))
		if err != nil {
			t.Fatalf("Health check for %q failed: %v", svc, err)
		}
		if resp.Status != healthpb.HealthCheckResponse_SERVING {
			t.Errorf("Expected SERVING for %q, got %v", svc, resp.Status)
		}
	}

	server.SetServiceHealth("sentiment.v1.Dashboard", healthpb.HealthCheckResponse_NOT_SERVING)
	resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{Service: "sentiment.v1.Dashboard"})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING, got %v", resp.Status)
	}
}
