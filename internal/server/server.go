package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/allowlist"
	"github.com/edgecomet/siteguard/internal/audit"
	"github.com/edgecomet/siteguard/internal/common/configtypes"
	"github.com/edgecomet/siteguard/internal/common/httputil"
	"github.com/edgecomet/siteguard/internal/common/requestid"
	"github.com/edgecomet/siteguard/internal/risk"
)

const shutdownTimeout = 5 * time.Second

// HostsStore is the block list the API edits. *hostsfile.LockedStore
// implements it.
type HostsStore interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, domain string) (bool, error)
	Remove(ctx context.Context, domain string) (bool, error)
}

// RiskAssessor scores URLs. *risk.Assessor implements it.
type RiskAssessor interface {
	Assess(ctx context.Context, rawURL string) (risk.Assessment, error)
	Ready() bool
}

// Recorder receives request and domain metrics. *metrics.Collector
// implements it.
type Recorder interface {
	RecordRequest(endpoint string, statusCode int, duration time.Duration)
	RecordScan(score float64, block bool)
	RecordHostsOperation(op, result string)
	SetManagedEntries(n int)
}

type handlerFunc func(ctx *fasthttp.RequestCtx, requestID string, logger *zap.Logger)

// readinessCheck is an extra dependency /ready probes.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

type route struct {
	method  string
	handler handlerFunc
}

type Server struct {
	store     HostsStore
	assessor  RiskAssessor
	metrics   Recorder
	audit     audit.Emitter
	protected *allowlist.List
	cfg       configtypes.ServerConfig
	logger    *zap.Logger
	routes    map[string]route
	checks    []readinessCheck
}

// NewServer wires the API. recorder, emitter and protected may be nil.
func NewServer(
	store HostsStore,
	assessor RiskAssessor,
	recorder Recorder,
	emitter audit.Emitter,
	protected *allowlist.List,
	cfg configtypes.ServerConfig,
	logger *zap.Logger,
) *Server {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if emitter == nil {
		emitter = &audit.NoopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:     store,
		assessor:  assessor,
		metrics:   recorder,
		audit:     emitter,
		protected: protected,
		cfg:       cfg,
		logger:    logger,
	}
	s.routes = map[string]route{
		"/":           {fasthttp.MethodGet, s.handleIndex},
		"/check":      {fasthttp.MethodPost, s.handleCheck},
		"/api/add":    {fasthttp.MethodPost, s.handleAdd},
		"/api/remove": {fasthttp.MethodPost, s.handleRemove},
		"/api/list":   {fasthttp.MethodGet, s.handleList},
		"/health":     {fasthttp.MethodGet, s.handleHealth},
		"/ready":      {fasthttp.MethodGet, s.handleReady},
	}
	return s
}

// AddReadinessCheck makes /ready fail with "<name> unavailable" while check
// returns an error. Register checks before serving.
func (s *Server) AddReadinessCheck(name string, check func(ctx context.Context) error) {
	s.checks = append(s.checks, readinessCheck{name: name, check: check})
}

func (s *Server) HandleRequest(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	requestID := requestid.FromRequest(ctx)
	logger := s.logger.With(zap.String("request_id", requestID))

	path := string(ctx.Path())
	endpoint := path

	r, ok := s.routes[path]
	switch {
	case !ok:
		endpoint = "other"
		logger.Debug("Not found", zap.String("path", path))
		httputil.JSONError(ctx, "Not found", fasthttp.StatusNotFound)
	case !methodAllowed(ctx, r.method):
		logger.Warn("Method not allowed",
			zap.String("method", string(ctx.Method())),
			zap.String("path", path))
		ctx.Response.Header.Set("Allow", allowHeader(r.method))
		httputil.JSONError(ctx, "Method not allowed", fasthttp.StatusMethodNotAllowed)
	default:
		r.handler(ctx, requestID, logger)
	}

	s.metrics.RecordRequest(endpoint, ctx.Response.StatusCode(), time.Since(start))
}

// RefreshManagedEntries re-reads the block list and updates the entries
// gauge.
func (s *Server) RefreshManagedEntries(ctx context.Context) error {
	domains, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	s.metrics.SetManagedEntries(len(domains))
	return nil
}

// Run listens on listen and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:            s.HandleRequest,
		Name:               "siteguard",
		ReadTimeout:        time.Duration(s.cfg.Timeout),
		WriteTimeout:       time.Duration(s.cfg.Timeout),
		MaxRequestBodySize: s.cfg.MaxBodySize,
		Logger:             zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("listen", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// opContext bounds a store or scoring call by the configured timeout.
// It is detached from the RequestCtx, whose Done channel belongs to the
// server rather than the request.
func (s *Server) opContext() (context.Context, context.CancelFunc) {
	if timeout := time.Duration(s.cfg.Timeout); timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

func methodAllowed(ctx *fasthttp.RequestCtx, method string) bool {
	m := string(ctx.Method())
	if m == method {
		return true
	}
	return method == fasthttp.MethodGet && m == fasthttp.MethodHead
}

func allowHeader(method string) string {
	if method == fasthttp.MethodGet {
		return "GET, HEAD"
	}
	return method
}

type noopRecorder struct{}

func (noopRecorder) RecordRequest(string, int, time.Duration) {}
func (noopRecorder) RecordScan(float64, bool)                 {}
func (noopRecorder) RecordHostsOperation(string, string)      {}
func (noopRecorder) SetManagedEntries(int)                    {}
