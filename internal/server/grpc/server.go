package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// ServiceName is the name reported by the health service for the whole API.
const ServiceName = "tableside"

const readinessInterval = 10 * time.Second

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(NewServer),
	fx.Provide(health.NewServer),
	fx.Invoke(Run),
)

// Checker reports whether the service's dependencies are reachable.
type Checker interface {
	Ready(ctx context.Context) error
}

// NewServer builds a gRPC server with logging interceptors that also turn
// application errors into gRPC statuses.
func NewServer(logger *zap.Logger) *grpc.Server {
	unary := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration), zap.Error(err))
			return resp, toStatus(err)
		}
		logger.Debug("grpc unary call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration))
		return resp, nil
	}

	stream := func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc stream call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration), zap.Error(err))
			return toStatus(err)
		}
		logger.Debug("grpc stream call finished", zap.String("method", info.FullMethod), zap.Duration("duration", duration))
		return nil
	}

	return grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary),
		grpc.ChainStreamInterceptor(stream),
	)
}

// toStatus leaves gRPC statuses untouched and maps everything else through errorbank.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	appErr := errorbank.From(err)
	return status.Error(appErr.GRPCCode(), appErr.Message())
}

// RunParams collects what Run needs from Fx.
type RunParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Server    *grpc.Server
	Health    *health.Server
	Conns     *database.Connections
	Logger    *zap.Logger
}

// Run binds the gRPC server to the configured host/port and manages lifecycle.
func Run(p RunParams) {
	addr := fmt.Sprintf("%s:%d", p.Config.GRPC.Host, p.Config.GRPC.Port)
	var listener net.Listener

	healthpb.RegisterHealthServer(p.Server, p.Health)
	reflection.Register(p.Server)
	watcher := newReadinessWatcher(p.Health, p.Conns, p.Logger)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			watcher.start()
			p.Logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := p.Server.Serve(listener); err != nil {
					p.Logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("stopping gRPC server")
			watcher.stop()
			p.Health.Shutdown()
			stopped := make(chan struct{})
			go func() {
				p.Server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-ctx.Done():
				p.Server.Stop()
				return ctx.Err()
			case <-stopped:
				if listener != nil {
					_ = listener.Close()
				}
				return nil
			}
		},
	})
}

// readinessWatcher keeps the health status in line with database reachability.
type readinessWatcher struct {
	health  *health.Server
	checker Checker
	logger  *zap.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newReadinessWatcher(h *health.Server, checker Checker, logger *zap.Logger) *readinessWatcher {
	return &readinessWatcher{health: h, checker: checker, logger: logger}
}

func (p *readinessWatcher) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.check(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(readinessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.check(ctx)
			}
		}
	}()
}

func (p *readinessWatcher) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *readinessWatcher) check(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if p.checker != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.checker.Ready(checkCtx); err != nil {
			p.logger.Warn("readiness check failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	p.health.SetServingStatus("", st)
	p.health.SetServingStatus(ServiceName, st)
}
