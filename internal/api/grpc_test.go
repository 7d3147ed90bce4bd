package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"rentals/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startBufGRPC(t *testing.T, cfg *config.APIConfig, checker *HealthChecker) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := zerolog.Nop()

	srv, err := NewGRPCServer(cfg, lis, checker, &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestGRPCHealthFollowsChecker(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, GRPC: config.APIGRPCConfig{Reflection: true}}

	var dbErr error
	checker := NewHealthChecker(nil)
	checker.Register("database", func(context.Context) error { return dbErr })
	checker.RegisterOptional("redis", func(context.Context) error { return errors.New("down") })

	client := startBufGRPC(t, cfg, checker)

	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGRPCHealthNotServing(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true}

	checker := NewHealthChecker(nil)
	checker.Register("database", func(context.Context) error { return errors.New("locked") })

	client := startBufGRPC(t, cfg, checker)

	assert.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: serviceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown.Service"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCHealthRequiresKey(t *testing.T) {
	cfg := &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "probe", Extra: "secret", Name: "k8s", Permissions: []string{permHealth}},
			},
		},
	}

	client := startBufGRPC(t, cfg, nil)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "probe", "x-api-extra", "secret")
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestBuildTLSConfigValidation(t *testing.T) {
	_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
	assert.Error(t, err)

	_, err = buildTLSConfig(config.APITLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
