// Package server exposes a memory.Manager over HTTP, WebSocket and a gRPC
// health endpoint.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-recall/logging"
	"github.com/becomeliminal/nim-recall/memory"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "nim.recall.Memory"

// DefaultAllowedOrigins are the browser origins accepted by default: the
// usual local dev servers, and any origin.
var DefaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"*",
}

// Config holds server configuration.
type Config struct {
	// Manager answers questions and owns the store. Required.
	Manager *memory.Manager

	// Addr is the HTTP listen address.
	// Default: ":8000"
	Addr string

	// GRPCAddr enables the gRPC health service when set.
	GRPCAddr string

	// AllowedOrigins lists CORS and WebSocket origins. "*" allows any.
	// Default: DefaultAllowedOrigins
	AllowedOrigins []string

	// AskRate is the sustained number of questions per second across all
	// clients. Zero disables rate limiting.
	AskRate float64

	// AskBurst is the maximum burst of questions.
	// Default: 5
	AskBurst int

	// LLMStatus reports the answer model's state for /health, for example
	// a circuit breaker's State. Optional.
	LLMStatus func() string

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10 seconds
	ShutdownTimeout time.Duration
}

// Server serves the recall API.
type Server struct {
	cfg      Config
	manager  *memory.Manager
	store    *memory.Store
	limiter  *rate.Limiter
	origins  originSet
	upgrader websocket.Upgrader
	handler  http.Handler
	health   *health.Server
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Manager == nil {
		return nil, goerr.New("manager is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if cfg.AskBurst <= 0 {
		cfg.AskBurst = 5
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		manager: cfg.Manager,
		store:   cfg.Manager.Store(),
		origins: newOriginSet(cfg.AllowedOrigins),
		health:  health.NewServer(),
	}
	if cfg.AskRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AskRate), cfg.AskBurst)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.origins.allows(origin)
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /add-memory", s.handleAddMemory)
	mux.Handle("POST /ask", s.rateLimit(http.HandlerFunc(s.handleAsk)))
	mux.HandleFunc("GET /memories", s.handleMemories)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.handler = s.withRequestID(s.cors(mux))
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP, and gRPC health when configured, until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	logger := logging.From(ctx)

	httpSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var grpcSrv *grpc.Server
	if s.cfg.GRPCAddr != "" {
		grpcSrv = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcSrv, s.health)
	}

	// Bind every listener before serving so a failed bind leaves nothing running.
	httpLis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen for http", goerr.V("addr", s.cfg.Addr))
	}

	var grpcLis net.Listener
	if grpcSrv != nil {
		grpcLis, err = net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			_ = httpLis.Close()
			return goerr.Wrap(err, "failed to listen for grpc", goerr.V("addr", s.cfg.GRPCAddr))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "http server failed", goerr.V("addr", s.cfg.Addr))
		}
		return nil
	})

	if grpcSrv != nil {
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", grpcLis.Addr().String())
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return goerr.Wrap(err, "grpc server failed", goerr.V("addr", s.cfg.GRPCAddr))
			}
			return nil
		})
	}

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		s.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "http shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

// HealthServer returns the gRPC health server so callers can change status.
func (s *Server) HealthServer() *health.Server {
	return s.health
}
