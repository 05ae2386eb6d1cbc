package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/discovery"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

const readHeaderTimeout = 10 * time.Second

// newMetricsMux - /metrics и пробы для оркестратора.
func newMetricsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает HTTP-обработчик метрик и health checks.
func startMetricsServer(addr string, healthHandler *healthcheck.Handler, logger *log.Entry) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newMetricsMux(healthHandler), ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}

// startAPIServer запускает HTTP API; ошибка прослушивания уходит в errCh.
func startAPIServer(addr string, handler http.Handler, logger *log.Entry, errCh chan<- error) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("HTTP API слушает %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}

// grpcServer обслуживает стандартный gRPC health для проб service mesh.
type grpcServer struct {
	server *grpc.Server
	health *health.Server
}

func newGRPCServer(logger *log.Entry) *grpcServer {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return &grpcServer{server: server, health: healthServer}
}

func startGRPCServer(addr string, logger *log.Entry, errCh chan<- error) (*grpcServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc %s: %w", addr, err)
	}

	srv := newGRPCServer(logger)
	go func() {
		logger.Infof("gRPC health слушает %s", addr)
		if err := srv.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	return srv, nil
}

func (s *grpcServer) stop(logger *log.Entry) {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		s.server.Stop()
	}
}

// registerInConsul публикует HTTP API и возвращает функцию снятия регистрации.
func registerInConsul(cfg Config, logger *log.Entry) (func(), error) {
	consulLogger := logger.WithField("component", "consul")
	registrar, err := discovery.NewRegistrar(discovery.Config{
		Address:       cfg.ConsulAddr,
		ServiceName:   cfg.ConsulServiceName,
		AdvertiseAddr: cfg.ConsulAdvertise,
		HealthURL:     consulHealthURL(cfg),
		Tags:          []string{"http", "api"},
	}, consulLogger)
	if err != nil {
		return nil, err
	}
	if err := registrar.Register(); err != nil {
		return nil, err
	}
	return func() {
		if err := registrar.Deregister(); err != nil {
			consulLogger.WithError(err).Warn("consul deregistration failed")
		}
	}, nil
}

// consulHealthURL строит адрес /readyz на хосте из ConsulAdvertise и порту сервера метрик.
func consulHealthURL(cfg Config) string {
	host, _, err := net.SplitHostPort(cfg.ConsulAdvertise)
	if err != nil {
		return ""
	}
	_, port, err := net.SplitHostPort(cfg.MetricsAddr)
	if err != nil {
		return ""
	}
	return "http://" + net.JoinHostPort(host, port) + "/readyz"
}
