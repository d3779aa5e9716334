package metricsserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MetricsHandler serves the metrics exposition.
type MetricsHandler interface {
	ServeHTTP(ctx *fasthttp.RequestCtx)
}

const shutdownTimeout = 5 * time.Second

// NewServer builds the fasthttp server that exposes handler at path.
func NewServer(path string, handler MetricsHandler) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:            createMetricsHandler(path, handler),
		Name:               "siteguard-metrics",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 1 * 1024,
		TCPKeepalive:       true,
		TCPKeepalivePeriod: 30 * time.Second,
		Concurrency:        100,
	}
}

// Run listens on listen and serves metrics until ctx is cancelled, then
// shuts the server down. It returns nil after a clean shutdown.
func Run(ctx context.Context, listen, path string, handler MetricsHandler, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	return Serve(ctx, ln, path, handler, logger)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, ln net.Listener, path string, handler MetricsHandler, logger *zap.Logger) error {
	server := NewServer(path, handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening",
			zap.String("listen", ln.Addr().String()),
			zap.String("path", path))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("Metrics server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Metrics server stopped")
	return nil
}

func createMetricsHandler(path string, handler MetricsHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == path {
			handler.ServeHTTP(ctx)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("Not Found")
	}
}
