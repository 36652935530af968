package infra

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerTimeouts bounds request handling on an HTTPServer.
type ServerTimeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// HTTPServer wraps http.Server with context driven startup and graceful
// shutdown.
type HTTPServer struct {
	server   *http.Server
	shutdown time.Duration
	logger   *Logger
}

// NewHTTPServer creates a server listening on :port.
func NewHTTPServer(port string, handler http.Handler, timeouts ServerTimeouts, logger *Logger) *HTTPServer {
	if timeouts.Shutdown <= 0 {
		timeouts.Shutdown = 15 * time.Second
	}
	return &HTTPServer{
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadTimeout:       timeouts.Read,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      timeouts.Write,
			IdleTimeout:       timeouts.Idle,
		},
		shutdown: timeouts.Shutdown,
		logger:   LoggerOrDiscard(logger),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("http: listening")
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http: stopped")
	return nil
}
