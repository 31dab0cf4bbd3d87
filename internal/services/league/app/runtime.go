package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/hardwoodsim/league/internal/services/league/domain/event"
	leaguesqlite "github.com/hardwoodsim/league/internal/services/league/storage/sqlite"
)

// RuntimeConfig controls governor startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	SeasonID      string
	PollInterval  time.Duration
	MaxPendingAge time.Duration
}

const (
	defaultGovernorPort = 8094
	defaultGovernorDB   = "data/governor.db"
	defaultPollInterval = 30 * time.Second
)

// Run starts the governor runtime: the journal store, the governance core,
// a health-only gRPC server, and the interpretation reconciler loop.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.SeasonID) == "" {
		return fmt.Errorf("season id is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultGovernorPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultGovernorDB
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create governor storage dir: %w", err)
		}
	}

	store, err := leaguesqlite.Open(cfg.DBPath, event.NewRegistry())
	if err != nil {
		return fmt.Errorf("open governor journal store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close governor journal store: %v", closeErr)
		}
	}()

	service, err := NewService(ctx, ServiceParams{
		Store:         store,
		SeasonID:      cfg.SeasonID,
		MaxPendingAge: cfg.MaxPendingAge,
	})
	if err != nil {
		return fmt.Errorf("build governance core: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on governor port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("governor.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	log.Printf("governor server listening at %v", listener.Addr())
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return grpcServer.Serve(listener)
	})
	group.Go(func() error {
		err := service.Reconciler.Run(groupCtx, cfg.PollInterval)
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return group.Wait()
}
